package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/domain"
	apperrors "github.com/FadhilAkbarC/roblox-sync-backend/internal/errors"
)

// --- Producer sync submission ---

func (s *Server) handleSync(c echo.Context) error {
	var req domain.SyncRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return apperrors.Validation(apperrors.CodeInvalidPayload, "malformed sync payload")
	}

	resp, err := s.store.Apply(&req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// --- Read-only projections ---

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handlePing(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"pong": s.clock.Now().UnixMilli(),
	})
}

func (s *Server) handleCurrent(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Current())
}

func (s *Server) handleStats(c echo.Context) error {
	stats := s.hub.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"connections":       stats.Connections,
		"failedConnections": stats.FailedConnections,
		"syncs":             stats.Syncs,
		"currentClients":    stats.CurrentClients,
		"sessions":          s.hub.Sessions(),
		"uptime":            s.clock.Since(s.startTime).Seconds(),
	})
}

// --- Viewer websocket ---

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	ok, reason := s.limits.Acquire(ip)
	if !ok {
		s.hub.RecordFailedConnection()
		slog.Warn("Rejecting viewer connection", "ip", ip, "reason", reason)
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "connection limit reached"})
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.hub.RecordFailedConnection()
		slog.Warn("Websocket upgrade failed", "ip", ip, "error", err)
		return nil
	}

	clientID, err := s.hub.Register(conn, ip, c.Request().UserAgent())
	if err != nil {
		slog.Error("Failed to register viewer", "ip", ip, "error", err)
		_ = conn.Close()
		return nil
	}

	// Read pump: dispatch viewer events until the connection drops.
	clean := s.readPump(conn)
	s.hub.Unregister(conn, clean)
	slog.Debug("Read pump finished", "client_id", clientID.String())
	return nil
}

// readPump reads viewer events until error and reports whether the
// connection ended with a clean client-initiated close.
func (s *Server) readPump(conn *websocket.Conn) bool {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Debug("Ignoring malformed viewer message", "error", err)
			continue
		}

		switch env.Event {
		case domain.EventRequestUpdate:
			if err := s.hub.SendCurrent(conn); err != nil {
				slog.Error("Failed to answer request-update", "error", err)
			}
		case domain.EventPing:
			var ping domain.Ping
			if len(env.Data) > 0 {
				_ = json.Unmarshal(env.Data, &ping)
			}
			s.hub.SendPong(conn, ping.Timestamp)
		default:
			slog.Debug("Ignoring unknown viewer event", "event", env.Event)
		}
	}
}
