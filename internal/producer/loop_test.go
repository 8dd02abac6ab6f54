package producer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/domain"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/tree"
)

type stubNode struct {
	name   string
	class  string
	source string
	script bool
}

func (n stubNode) Name() string      { return n.name }
func (n stubNode) ClassName() string { return n.class }

func (n stubNode) Source() (string, bool) {
	if !n.script {
		return "", false
	}
	return n.source, true
}

func (n stubNode) Children() ([]tree.Instance, error) { return nil, nil }

type stubSource struct {
	mu    sync.Mutex
	roots []tree.Instance
	err   error
}

func (s *stubSource) Roots() ([]tree.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.roots, nil
}

func (s *stubSource) set(roots []tree.Instance, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots = roots
	s.err = err
}

// recordingRelay accepts every sync and records the decoded payloads.
type recordingRelay struct {
	mu       sync.Mutex
	payloads []domain.SyncRequest
	server   *httptest.Server
}

func newRecordingRelay(t *testing.T) *recordingRelay {
	r := &recordingRelay{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var payload domain.SyncRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))

		r.mu.Lock()
		r.payloads = append(r.payloads, payload)
		r.mu.Unlock()

		_ = json.NewEncoder(w).Encode(domain.SyncResponse{Success: true, SyncType: domain.SyncTypeFull})
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *recordingRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func (r *recordingRelay) payload(i int) domain.SyncRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payloads[i]
}

func newTestLoop(source Source, relayURL string, interval time.Duration) *Loop {
	clock := clockwork.NewRealClock()
	transport := NewTransport(relayURL, 2, time.Millisecond, clock)
	return NewLoop(source, tree.NewExtractor(0), NewDeltaComputer(), transport, clock, interval)
}

func TestLoopPostsFullThenDeltas(t *testing.T) {
	relay := newRecordingRelay(t)
	source := &stubSource{roots: []tree.Instance{
		stubNode{name: "Main", class: "Script", source: "v1", script: true},
	}}

	loop := newTestLoop(source, relay.server.URL, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// First cycle runs immediately and is always full.
	require.Eventually(t, func() bool { return relay.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	first := relay.payload(0)
	assert.True(t, first.IsFullSync)
	assert.Equal(t, "v1", first.Scripts["Main"])

	// A nudge with no changes posts nothing.
	loop.Nudge()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, relay.count())

	// A source change plus a nudge posts a delta ahead of the timer.
	source.set([]tree.Instance{
		stubNode{name: "Main", class: "Script", source: "v2", script: true},
	}, nil)
	loop.Nudge()

	require.Eventually(t, func() bool { return relay.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	second := relay.payload(1)
	assert.False(t, second.IsFullSync)
	require.NotNil(t, second.Changes)
	assert.Equal(t, "v2", second.Changes.ModifiedScripts["Main"])

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, loop.State())
}

func TestLoopSkipsCycleWhenGraphUnreadable(t *testing.T) {
	relay := newRecordingRelay(t)
	source := &stubSource{err: errors.New("graph unavailable")}

	loop := newTestLoop(source, relay.server.URL, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// The unreadable graph skips the cycle without posting or halting.
	loop.Nudge()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, relay.count())

	source.set([]tree.Instance{
		stubNode{name: "Main", class: "Script", source: "v1", script: true},
	}, nil)
	loop.Nudge()

	require.Eventually(t, func() bool { return relay.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, relay.payload(0).IsFullSync)

	cancel()
	require.NoError(t, <-done)
}

func TestEmptyProjectEmitsPresentHierarchy(t *testing.T) {
	// Validates the way the relay does: a full sync whose hierarchy field
	// is absent from the payload is rejected permanently. An empty project
	// must still pass, because [] is present, just empty.
	var accepted atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload domain.SyncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		if payload.IsFullSync && payload.Hierarchy == nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "full sync requires a hierarchy",
				"code":  "MISSING_HIERARCHY",
			})
			return
		}
		accepted.Add(1)
		_ = json.NewEncoder(w).Encode(domain.SyncResponse{Success: true, SyncType: domain.SyncTypeFull})
	}))
	defer server.Close()

	source := &stubSource{roots: []tree.Instance{}}
	loop := newTestLoop(source, server.URL, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// The first cycle must be accepted rather than fail-stopping the loop.
	require.Eventually(t, func() bool { return accepted.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestLoopFailStopsWhenRetriesExhaust(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	source := &stubSource{roots: []tree.Instance{
		stubNode{name: "Main", class: "Script", source: "v1", script: true},
	}}
	loop := newTestLoop(source, server.URL, time.Hour)

	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StateStopped, loop.State())
}

func TestRequestFullResyncForcesFullPayload(t *testing.T) {
	relay := newRecordingRelay(t)
	source := &stubSource{roots: []tree.Instance{
		stubNode{name: "Main", class: "Script", source: "v1", script: true},
	}}

	loop := newTestLoop(source, relay.server.URL, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return relay.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	// A full resync is forced even though nothing changed.
	loop.RequestFullResync()
	require.Eventually(t, func() bool { return relay.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, relay.payload(1).IsFullSync)

	cancel()
	require.NoError(t, <-done)
}
