package domain

// ScriptMap maps a unique script name to its source text. Names are made
// unique at extraction time, so a map never carries colliding keys.
type ScriptMap map[string]string

// Clone returns an independent copy of the map. A nil map clones to an
// empty, non-nil map so callers can mutate the result.
func (m ScriptMap) Clone() ScriptMap {
	out := make(ScriptMap, len(m))
	for name, source := range m {
		out[name] = source
	}
	return out
}

// HierarchyNode is one node of the place tree reported by the producer.
// Children is omitted from the wire payload when empty.
type HierarchyNode struct {
	Name      string          `json:"name"`
	ClassName string          `json:"className"`
	Icon      string          `json:"icon,omitempty"`
	IsScript  bool            `json:"isScript,omitempty"`
	Children  []HierarchyNode `json:"children,omitempty"`
}

// CountNodes returns the total number of nodes in the forest, counting
// every node plus all of its descendants.
func CountNodes(nodes []HierarchyNode) int {
	count := 0
	for i := range nodes {
		count += 1 + CountNodes(nodes[i].Children)
	}
	return count
}

// Changes describes a delta sync: hierarchy replacement is all-or-nothing,
// scripts are diffed into added/modified/removed sets by name.
type Changes struct {
	HierarchyChanged bool            `json:"hierarchyChanged"`
	Hierarchy        []HierarchyNode `json:"hierarchy"`
	ScriptsChanged   bool            `json:"scriptsChanged"`
	AddedScripts     ScriptMap       `json:"addedScripts,omitempty"`
	ModifiedScripts  ScriptMap       `json:"modifiedScripts,omitempty"`
	RemovedScripts   []string        `json:"removedScripts,omitempty"`
}

// Empty reports whether the delta carries no hierarchy replacement and no
// script changes, i.e. there is nothing worth posting this cycle.
func (c *Changes) Empty() bool {
	if c == nil {
		return true
	}
	if c.HierarchyChanged {
		return false
	}
	return len(c.AddedScripts) == 0 && len(c.ModifiedScripts) == 0 && len(c.RemovedScripts) == 0
}

// Metadata is a permissive key/value bag attached to the snapshot. The
// producer may supply arbitrary fields (place name, place id, ...); the
// relay shallow-merges them and then recomputes the derived count fields,
// which are never trusted from the payload.
type Metadata map[string]any

// Derived metadata keys recomputed by the relay on every apply.
const (
	MetaObjectCount = "objectCount"
	MetaScriptCount = "scriptCount"
	MetaClientCount = "clientCount"
	MetaLastSync    = "lastSync"
)

// Clone returns an independent shallow copy. A nil map clones to an empty,
// non-nil map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Snapshot is the relay's single authoritative state. Exactly one live
// snapshot exists at any time; applies replace or merge into it in arrival
// order.
type Snapshot struct {
	Hierarchy  []HierarchyNode `json:"hierarchy"`
	Scripts    ScriptMap       `json:"scripts"`
	LastUpdate int64           `json:"lastUpdate"`
	Hash       string          `json:"hash,omitempty"`
	Metadata   Metadata        `json:"metadata"`
}

// Clone copies the snapshot deeply enough that the caller can hold it
// outside the store lock: the script and metadata maps are copied, the
// hierarchy slice is shared because applies replace it wholesale rather
// than mutating nodes in place.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Hierarchy:  s.Hierarchy,
		Scripts:    s.Scripts.Clone(),
		LastUpdate: s.LastUpdate,
		Hash:       s.Hash,
		Metadata:   s.Metadata.Clone(),
	}
}

// Sync type labels reported back to the producer.
const (
	SyncTypeFull  = "FULL"
	SyncTypeDelta = "DELTA"
)

// SyncRequest is the producer -> relay submission body. A nil Hierarchy
// means the field was absent from the payload; an empty place serializes as
// an empty array and decodes to a non-nil slice, so the hierarchy fields
// must never carry omitempty.
type SyncRequest struct {
	Hierarchy  []HierarchyNode `json:"hierarchy"`
	Scripts    ScriptMap       `json:"scripts,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
	Metadata   Metadata        `json:"metadata,omitempty"`
	IsFullSync bool            `json:"isFullSync"`
	Changes    *Changes        `json:"changes,omitempty"`
	Hash       string          `json:"hash,omitempty"`
}

// SyncStats carries the recomputed counts back to the producer.
type SyncStats struct {
	Objects int `json:"objects"`
	Scripts int `json:"scripts"`
}

// SyncResponse acknowledges an accepted sync.
type SyncResponse struct {
	Success         bool      `json:"success"`
	ClientsNotified int       `json:"clientsNotified"`
	Timestamp       int64     `json:"timestamp"`
	SyncType        string    `json:"syncType"`
	Stats           SyncStats `json:"stats"`
}
