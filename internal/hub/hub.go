// Package hub implements the broadcast fan-out and the connection
// registry. A single actor goroutine owns all viewer state; callers talk
// to it over a command channel, so registry mutation and broadcast
// iteration never race. Delivery is fire-and-forget per viewer: each
// connection has a bounded send queue and is dropped on overflow.
package hub

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/domain"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second

	// Disconnects below this age with a non-clean reason count as failed
	// connections.
	failedConnectionWindow = 5 * time.Second
)

// SnapshotSource provides the current authoritative snapshot for
// full-on-connect and request-update replies.
type SnapshotSource interface {
	Current() domain.Snapshot
	Revision() uint64
}

// --- Command types ---

type hubCmd interface{ hubCmd() }

type baseCmd struct{}

func (baseCmd) hubCmd() {}

type registerCmd struct {
	baseCmd
	conn     *websocket.Conn
	session  ViewerSession
	messages [][]byte
	errCh    chan error
}

type unregisterCmd struct {
	baseCmd
	conn  *websocket.Conn
	clean bool
}

type broadcastCmd struct {
	baseCmd
	data    []byte
	replyCh chan int
}

type sendCmd struct {
	baseCmd
	conn *websocket.Conn
	data []byte
}

type setTransportCmd struct {
	baseCmd
	conn *websocket.Conn
	kind string
}

type clientCountCmd struct {
	baseCmd
	replyCh chan int
}

type sessionsCmd struct {
	baseCmd
	replyCh chan []ViewerSession
}

type statsCmd struct {
	baseCmd
	replyCh chan Stats
}

type failedConnCmd struct{ baseCmd }

type stopCmd struct{ baseCmd }

type client struct {
	writer  *clientWriter
	session ViewerSession
}

// Hub is the fan-out actor.
type Hub struct {
	cmdCh     chan hubCmd
	clock     clockwork.Clock
	clients   map[*websocket.Conn]*client
	stats     Stats
	snapshots SnapshotSource
	fullGroup singleflight.Group
	done      chan struct{}
}

// New creates the hub and starts its actor goroutine. BindSource must be
// called before the first viewer registers.
func New(clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clock:   clock,
		clients: make(map[*websocket.Conn]*client),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// BindSource wires the snapshot source. Separate from New because the
// store and the hub reference each other; the store is constructed second.
func (h *Hub) BindSource(src SnapshotSource) {
	h.snapshots = src
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.conn, c.clean)
		case broadcastCmd:
			c.replyCh <- h.handleBroadcast(c.data)
		case sendCmd:
			h.handleSend(c.conn, c.data)
		case setTransportCmd:
			if cl, ok := h.clients[c.conn]; ok {
				cl.session.Transport = c.kind
			}
		case clientCountCmd:
			c.replyCh <- len(h.clients)
		case sessionsCmd:
			c.replyCh <- h.snapshotSessions()
		case statsCmd:
			stats := h.stats
			stats.CurrentClients = len(h.clients)
			c.replyCh <- stats
		case failedConnCmd:
			h.stats.FailedConnections++
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	cw := newClientWriter(c.conn, h.clock)
	h.clients[c.conn] = &client{writer: cw, session: c.session}
	h.stats.Connections++

	for _, msg := range c.messages {
		cw.enqueue(msg)
	}

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectedClients.Set(float64(len(h.clients)))

	slog.Info("Viewer connected",
		"client_id", c.session.ID.String(),
		"remote_addr", c.session.RemoteAddr,
		"total_clients", len(h.clients),
	)
	c.errCh <- nil
}

func (h *Hub) handleUnregister(conn *websocket.Conn, clean bool) {
	cl, exists := h.clients[conn]
	if !exists {
		return
	}

	cl.writer.stop()
	delete(h.clients, conn)

	duration := h.clock.Now().Sub(cl.session.ConnectedAt)
	if !clean && duration < failedConnectionWindow {
		h.stats.FailedConnections++
		metrics.FailedConnectionsTotal.Inc()
	}

	metrics.ConnectedClients.Set(float64(len(h.clients)))
	slog.Info("Viewer disconnected",
		"client_id", cl.session.ID.String(),
		"duration", duration,
		"clean", clean,
		"remaining_clients", len(h.clients),
	)
}

func (h *Hub) handleBroadcast(data []byte) int {
	start := h.clock.Now()
	h.stats.Syncs++

	notified := 0
	var slow []*websocket.Conn
	for conn, cl := range h.clients {
		if cl.writer.enqueue(data) {
			notified++
		} else {
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow viewer", "client_id", h.clients[conn].session.ID.String())
		metrics.SlowClientsEvicted.Inc()
		h.handleUnregister(conn, false)
	}

	metrics.BroadcastDuration.Observe(h.clock.Since(start).Seconds())
	return notified
}

func (h *Hub) handleSend(conn *websocket.Conn, data []byte) {
	cl, exists := h.clients[conn]
	if !exists {
		return
	}
	if !cl.writer.enqueue(data) {
		slog.Warn("Disconnecting slow viewer", "client_id", cl.session.ID.String())
		metrics.SlowClientsEvicted.Inc()
		h.handleUnregister(conn, false)
	}
}

func (h *Hub) snapshotSessions() []ViewerSession {
	sessions := make([]ViewerSession, 0, len(h.clients))
	for _, cl := range h.clients {
		sessions = append(sessions, cl.session)
	}
	return sessions
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "clients", len(h.clients))
	for conn, cl := range h.clients {
		cl.writer.stopGraceful("Server shutting down")
		delete(h.clients, conn)
	}
	metrics.ConnectedClients.Set(0)
}

// --- Public API ---

// Register adds a viewer, immediately queueing the connection-ready
// message and a full snapshot so a reconnecting viewer reaches full state
// in one round trip.
func (h *Hub) Register(conn *websocket.Conn, remoteAddr, userAgent string) (uuid.UUID, error) {
	session := ViewerSession{
		ID:          uuid.New(),
		RemoteAddr:  remoteAddr,
		UserAgent:   userAgent,
		Transport:   TransportWebsocket,
		ConnectedAt: h.clock.Now(),
	}

	ready, err := domain.MarshalEnvelope(domain.EventConnectionReady, domain.ConnectionReady{
		ClientID:   session.ID.String(),
		ServerTime: h.clock.Now().UnixMilli(),
		Message:    "Connected to sync relay",
	})
	if err != nil {
		return uuid.Nil, err
	}

	revision := h.snapshots.Revision()
	full, err := h.fullMessage()
	if err != nil {
		return uuid.Nil, err
	}

	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{conn: conn, session: session, messages: [][]byte{ready, full}, errCh: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			return uuid.Nil, err
		}
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}

	// An apply that finished between snapshot capture and registration
	// broadcast to everyone but this viewer. Resend the current snapshot so
	// the viewer is not left behind until the producer changes again.
	if h.snapshots.Revision() != revision {
		refreshed, err := h.fullMessage()
		if err != nil {
			return uuid.Nil, err
		}
		h.cmdCh <- sendCmd{conn: conn, data: refreshed}
	}
	return session.ID, nil
}

// Unregister removes a viewer. clean indicates a client-initiated close.
func (h *Hub) Unregister(conn *websocket.Conn, clean bool) {
	h.cmdCh <- unregisterCmd{conn: conn, clean: clean}
}

// SetTransport records a transport upgrade or downgrade on the session.
func (h *Hub) SetTransport(conn *websocket.Conn, kind string) {
	h.cmdCh <- setTransportCmd{conn: conn, kind: kind}
}

// PublishFull pushes a full-type game-update to every viewer and returns
// the number notified.
func (h *Hub) PublishFull(snap domain.Snapshot) int {
	data, err := domain.MarshalEnvelope(domain.EventGameUpdate,
		domain.NewFullUpdate(snap, h.clock.Now().UnixMilli()))
	if err != nil {
		slog.Error("Failed to marshal full update", "error", err)
		return 0
	}
	return h.broadcast(data)
}

// PublishDelta pushes a delta-type game-update carrying only the changes
// plus refreshed metadata.
func (h *Hub) PublishDelta(changes *domain.Changes, meta domain.Metadata) int {
	data, err := domain.MarshalEnvelope(domain.EventGameUpdate, domain.DeltaUpdate{
		Type:       domain.UpdateTypeDelta,
		Changes:    changes,
		Metadata:   meta,
		ServerTime: h.clock.Now().UnixMilli(),
	})
	if err != nil {
		slog.Error("Failed to marshal delta update", "error", err)
		return 0
	}
	return h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- broadcastCmd{data: data, replyCh: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case notified := <-replyCh:
		return notified
	case <-timer.Chan():
		slog.Warn("Broadcast command timed out", "timeout", commandTimeout)
		return 0
	}
}

// SendCurrent answers a viewer's request-update with a full snapshot, sent
// only to the requester.
func (h *Hub) SendCurrent(conn *websocket.Conn) error {
	data, err := h.fullMessage()
	if err != nil {
		return err
	}
	h.cmdCh <- sendCmd{conn: conn, data: data}
	return nil
}

// SendPong answers a viewer ping, echoing the client timestamp.
func (h *Hub) SendPong(conn *websocket.Conn, clientTimestamp int64) {
	data, err := domain.MarshalEnvelope(domain.EventPong, domain.Pong{
		Timestamp:       h.clock.Now().UnixMilli(),
		ClientTimestamp: clientTimestamp,
	})
	if err != nil {
		slog.Error("Failed to marshal pong", "error", err)
		return
	}
	h.cmdCh <- sendCmd{conn: conn, data: data}
}

// fullMessage builds the full-type game-update from the current snapshot.
// Concurrent connects share one marshal per store revision.
func (h *Hub) fullMessage() ([]byte, error) {
	key := strconv.FormatUint(h.snapshots.Revision(), 10)
	v, err, _ := h.fullGroup.Do(key, func() (any, error) {
		return domain.MarshalEnvelope(domain.EventGameUpdate,
			domain.NewFullUpdate(h.snapshots.Current(), h.clock.Now().UnixMilli()))
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{replyCh: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return 0
	}
}

// Sessions returns a copy of all live viewer sessions.
func (h *Hub) Sessions() []ViewerSession {
	replyCh := make(chan []ViewerSession, 1)
	h.cmdCh <- sessionsCmd{replyCh: replyCh}
	return <-replyCh
}

// Stats returns the lifetime counters plus the current client count.
func (h *Hub) Stats() Stats {
	replyCh := make(chan Stats, 1)
	h.cmdCh <- statsCmd{replyCh: replyCh}
	return <-replyCh
}

// RecordFailedConnection counts a connection rejected before registration
// (limiter rejections, failed upgrades).
func (h *Hub) RecordFailedConnection() {
	metrics.FailedConnectionsTotal.Inc()
	h.cmdCh <- failedConnCmd{}
}

// Stop closes all viewer connections with a close frame and shuts the
// actor down. Blocks until the actor exits or the timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}
