// Package store owns the relay's single authoritative snapshot and applies
// inbound full and delta sync payloads to it.
package store

import (
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/domain"
	apperrors "github.com/FadhilAkbarC/roblox-sync-backend/internal/errors"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/metrics"
)

// ClientCounter reports the number of currently connected viewers. The
// clientCount metadata field is always sourced from here, never from the
// payload, so the producer cannot misreport the viewer count.
type ClientCounter interface {
	ClientCount() int
}

// Publisher receives the fan-out signal after every successful apply and
// returns the number of viewers notified.
type Publisher interface {
	PublishFull(snap domain.Snapshot) int
	PublishDelta(changes *domain.Changes, meta domain.Metadata) int
}

// Store holds the single current snapshot behind a mutex. Applies are
// serialized; a broadcast never observes a half-applied snapshot because
// the publisher is signaled before the lock is released.
type Store struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	clients  ClientCounter
	pub      Publisher
	snap     domain.Snapshot
	revision uint64
}

// New creates an empty store. clients and pub may not be nil.
func New(clock clockwork.Clock, clients ClientCounter, pub Publisher) *Store {
	return &Store{
		clock:   clock,
		clients: clients,
		pub:     pub,
		snap: domain.Snapshot{
			Scripts:  domain.ScriptMap{},
			Metadata: domain.Metadata{},
		},
	}
}

// Apply dispatches a sync request: full when isFullSync is set, delta when
// a changes object is present, rejected otherwise.
func (s *Store) Apply(req *domain.SyncRequest) (*domain.SyncResponse, error) {
	if req.IsFullSync {
		return s.ApplyFull(req)
	}
	if req.Changes != nil {
		return s.ApplyDelta(req)
	}
	metrics.SyncRejectionsTotal.WithLabelValues(string(apperrors.CodeInvalidPayload)).Inc()
	return nil, apperrors.Validation(apperrors.CodeInvalidPayload, "payload carries neither isFullSync nor changes")
}

// ApplyFull replaces the entire snapshot. The hierarchy must be present;
// an absent hierarchy rejects the payload without mutating state.
func (s *Store) ApplyFull(req *domain.SyncRequest) (*domain.SyncResponse, error) {
	if req.Hierarchy == nil {
		metrics.SyncRejectionsTotal.WithLabelValues(string(apperrors.CodeMissingHierarchy)).Inc()
		return nil, apperrors.Validation(apperrors.CodeMissingHierarchy, "full sync requires a hierarchy")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UnixMilli()
	lastUpdate := req.Timestamp
	if lastUpdate == 0 {
		lastUpdate = now
	}

	scripts := req.Scripts
	if scripts == nil {
		scripts = domain.ScriptMap{}
	}

	meta := req.Metadata.Clone()
	s.snap = domain.Snapshot{
		Hierarchy:  req.Hierarchy,
		Scripts:    scripts,
		LastUpdate: lastUpdate,
		Hash:       req.Hash,
		Metadata:   meta,
	}
	s.recomputeMetadata(now)
	s.revision++

	notified := s.pub.PublishFull(s.snap.Clone())
	metrics.SyncsTotal.WithLabelValues("full").Inc()

	slog.Info("Applied full sync",
		"objects", meta[domain.MetaObjectCount],
		"scripts", meta[domain.MetaScriptCount],
		"clients_notified", notified,
	)

	return s.response(domain.SyncTypeFull, notified, now), nil
}

// ApplyDelta merges a delta payload into the snapshot. Script changes are
// applied adds first, then modifications, then removals, so a name present
// in both addedScripts and removedScripts ends up removed. The hierarchy is
// replaced wholesale only when hierarchyChanged is set and a value is
// supplied.
func (s *Store) ApplyDelta(req *domain.SyncRequest) (*domain.SyncResponse, error) {
	if req.Changes == nil {
		metrics.SyncRejectionsTotal.WithLabelValues(string(apperrors.CodeInvalidPayload)).Inc()
		return nil, apperrors.Validation(apperrors.CodeInvalidPayload, "delta sync requires a changes object")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UnixMilli()
	lastUpdate := req.Timestamp
	if lastUpdate == 0 {
		lastUpdate = now
	}

	changes := req.Changes
	if changes.HierarchyChanged && changes.Hierarchy != nil {
		s.snap.Hierarchy = changes.Hierarchy
	}

	scripts := s.snap.Scripts.Clone()
	for name, source := range changes.AddedScripts {
		scripts[name] = source
	}
	for name, source := range changes.ModifiedScripts {
		scripts[name] = source
	}
	for _, name := range changes.RemovedScripts {
		delete(scripts, name)
	}
	s.snap.Scripts = scripts

	// Shallow merge: payload metadata overwrites same-named fields, then
	// the derived counts are recomputed on top.
	meta := s.snap.Metadata.Clone()
	for k, v := range req.Metadata {
		meta[k] = v
	}
	s.snap.Metadata = meta

	s.snap.LastUpdate = lastUpdate
	if req.Hash != "" {
		s.snap.Hash = req.Hash
	}
	s.recomputeMetadata(now)
	s.revision++

	notified := s.pub.PublishDelta(changes, s.snap.Metadata.Clone())
	metrics.SyncsTotal.WithLabelValues("delta").Inc()

	slog.Info("Applied delta sync",
		"hierarchy_changed", changes.HierarchyChanged,
		"added", len(changes.AddedScripts),
		"modified", len(changes.ModifiedScripts),
		"removed", len(changes.RemovedScripts),
		"clients_notified", notified,
	)

	return s.response(domain.SyncTypeDelta, notified, now), nil
}

// recomputeMetadata refreshes the derived fields. Counts are always
// recomputed from the stored state; clientCount comes from the live
// registry at apply time. Must be called with the lock held.
func (s *Store) recomputeMetadata(now int64) {
	s.snap.Metadata[domain.MetaObjectCount] = domain.CountNodes(s.snap.Hierarchy)
	s.snap.Metadata[domain.MetaScriptCount] = len(s.snap.Scripts)
	s.snap.Metadata[domain.MetaClientCount] = s.clients.ClientCount()
	s.snap.Metadata[domain.MetaLastSync] = now
}

func (s *Store) response(syncType string, notified int, now int64) *domain.SyncResponse {
	return &domain.SyncResponse{
		Success:         true,
		ClientsNotified: notified,
		Timestamp:       now,
		SyncType:        syncType,
		Stats: domain.SyncStats{
			Objects: s.snap.Metadata[domain.MetaObjectCount].(int),
			Scripts: s.snap.Metadata[domain.MetaScriptCount].(int),
		},
	}
}

// Current returns a copy of the live snapshot safe to hold outside the lock.
func (s *Store) Current() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Revision returns a counter that increments on every successful apply.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}
