package producer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/tree"
)

// State of the sync loop. Transitions are driven by timer ticks and
// transport results; there is never more than one cycle in flight.
type State int32

const (
	StateIdle State = iota
	StateSyncing
	StateRetrying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateRetrying:
		return "retrying"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source provides the object graph roots for each extraction.
type Source interface {
	Roots() ([]tree.Instance, error)
}

// Loop runs the producer sync cycle on a fixed interval: extract, compute
// full-or-delta, post. The loop is single-threaded cooperative: a running
// cycle is never preempted by the timer firing again, and cancellation
// takes effect between cycles.
type Loop struct {
	source    Source
	extractor *tree.Extractor
	delta     *DeltaComputer
	transport *Transport
	clock     clockwork.Clock
	interval  time.Duration

	state    atomic.Int32
	wake     chan struct{}
	wantFull atomic.Bool
}

func NewLoop(source Source, extractor *tree.Extractor, delta *DeltaComputer, transport *Transport, clock clockwork.Clock, interval time.Duration) *Loop {
	l := &Loop{
		source:    source,
		extractor: extractor,
		delta:     delta,
		transport: transport,
		clock:     clock,
		interval:  interval,
		wake:      make(chan struct{}, 1),
	}
	transport.OnRetry = func(attempt int, err error) {
		l.state.Store(int32(StateRetrying))
	}
	return l
}

// State reports the loop's current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// RequestFullResync makes the next cycle emit a full payload and schedules
// that cycle immediately.
func (l *Loop) RequestFullResync() {
	l.wantFull.Store(true)
	l.Nudge()
}

// Nudge schedules an extra cycle ahead of the interval timer, e.g. when a
// file watcher reports a change. Coalesces with an already pending nudge.
func (l *Loop) Nudge() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes sync cycles until ctx is cancelled or the transport
// exhausts its retries, in which case the loop fail-stops and returns the
// error. It never retries silently forever.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()
	defer l.state.Store(int32(StateStopped))

	// First cycle runs immediately; it always produces a full sync.
	if err := l.cycle(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sync loop stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		case <-l.wake:
		}

		if err := l.cycle(); err != nil {
			slog.Error("Sync loop halted", "error", err)
			return err
		}
	}
}

func (l *Loop) cycle() error {
	l.state.Store(int32(StateSyncing))
	defer func() {
		if State(l.state.Load()) != StateStopped {
			l.state.Store(int32(StateIdle))
		}
	}()

	roots, err := l.source.Roots()
	if err != nil {
		// The whole graph being unreadable is transient; skip this cycle
		// and leave the relay's last-known-good snapshot untouched.
		slog.Warn("Skipping sync cycle, object graph unreadable", "error", err)
		return nil
	}

	hierarchy := l.extractor.HierarchyAll(roots)
	scripts := l.extractor.Scripts(roots)

	if l.wantFull.Swap(false) {
		l.delta.RequestFull()
	}

	now := l.clock.Now().UnixMilli()
	req, err := l.delta.Compute(hierarchy, scripts, now)
	if err != nil {
		return err
	}
	if req == nil {
		slog.Debug("No changes this cycle")
		return nil
	}

	resp, err := l.transport.Send(req)
	if err != nil {
		return err
	}

	slog.Info("Sync accepted",
		"sync_type", resp.SyncType,
		"objects", resp.Stats.Objects,
		"scripts", resp.Stats.Scripts,
		"clients_notified", resp.ClientsNotified,
	)
	return nil
}
