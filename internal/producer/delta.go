// Package producer implements the editor-side half of the protocol: change
// extraction across sync cycles, the HTTP transport with bounded retry,
// and the fixed-interval sync loop.
package producer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/domain"
)

// DeltaComputer compares extraction results across sync cycles and decides
// between a full snapshot and a delta. The first cycle, and any cycle after
// RequestFull, always emits a full payload.
type DeltaComputer struct {
	synced        bool
	forceFull     bool
	lastScripts   domain.ScriptMap
	lastHierarchy []byte
}

func NewDeltaComputer() *DeltaComputer {
	return &DeltaComputer{}
}

// RequestFull makes the next Compute emit a full payload.
func (d *DeltaComputer) RequestFull() {
	d.forceFull = true
}

// Compute builds the sync payload for this cycle. Returns nil when a delta
// cycle found no changes, meaning there is nothing to post.
func (d *DeltaComputer) Compute(hierarchy []domain.HierarchyNode, scripts domain.ScriptMap, now int64) (*domain.SyncRequest, error) {
	hierBytes, err := json.Marshal(hierarchy)
	if err != nil {
		return nil, fmt.Errorf("marshal hierarchy: %w", err)
	}
	hash := contentHash(hierBytes, scripts)

	if !d.synced || d.forceFull {
		d.remember(hierBytes, scripts)
		return &domain.SyncRequest{
			Hierarchy:  hierarchy,
			Scripts:    scripts,
			Timestamp:  now,
			IsFullSync: true,
			Hash:       hash,
		}, nil
	}

	changes := &domain.Changes{}
	// Hierarchy changes are all-or-nothing replacements; the tree itself is
	// never structurally diffed.
	if !bytes.Equal(hierBytes, d.lastHierarchy) {
		changes.HierarchyChanged = true
		changes.Hierarchy = hierarchy
	}

	added, modified, removed := diffScripts(d.lastScripts, scripts)
	if len(added) > 0 || len(modified) > 0 || len(removed) > 0 {
		changes.ScriptsChanged = true
		changes.AddedScripts = added
		changes.ModifiedScripts = modified
		changes.RemovedScripts = removed
	}

	if changes.Empty() {
		return nil, nil
	}

	d.remember(hierBytes, scripts)
	return &domain.SyncRequest{
		Timestamp:  now,
		IsFullSync: false,
		Changes:    changes,
		Hash:       hash,
	}, nil
}

func (d *DeltaComputer) remember(hierBytes []byte, scripts domain.ScriptMap) {
	d.synced = true
	d.forceFull = false
	d.lastHierarchy = hierBytes
	d.lastScripts = scripts.Clone()
}

func diffScripts(old, current domain.ScriptMap) (added, modified domain.ScriptMap, removed []string) {
	added = domain.ScriptMap{}
	modified = domain.ScriptMap{}

	for name, source := range current {
		prev, existed := old[name]
		switch {
		case !existed:
			added[name] = source
		case prev != source:
			modified[name] = source
		}
	}
	for name := range old {
		if _, still := current[name]; !still {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)

	if len(added) == 0 {
		added = nil
	}
	if len(modified) == 0 {
		modified = nil
	}
	return added, modified, removed
}

// contentHash is an opaque fingerprint of the extracted state. The relay
// stores it verbatim; only the producer ever computes it.
func contentHash(hierBytes []byte, scripts domain.ScriptMap) string {
	h := sha256.New()
	h.Write(hierBytes)

	names := make([]string, 0, len(scripts))
	for name := range scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(scripts[name]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
