package domain

import "encoding/json"

// Websocket event names. The relay pushes connection-ready, game-update and
// pong; viewers send request-update and ping.
const (
	EventConnectionReady = "connection-ready"
	EventGameUpdate      = "game-update"
	EventPong            = "pong"
	EventPing            = "ping"
	EventRequestUpdate   = "request-update"
)

// Update type discriminator inside a game-update message.
const (
	UpdateTypeFull  = "full"
	UpdateTypeDelta = "delta"
)

// Envelope is the framing for every message in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MarshalEnvelope wraps data in an Envelope and serializes it.
func MarshalEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// ConnectionReady is sent once, immediately after a viewer connects.
type ConnectionReady struct {
	ClientID   string `json:"clientId"`
	ServerTime int64  `json:"serverTime"`
	Message    string `json:"message"`
}

// FullUpdate carries the whole snapshot to a viewer.
type FullUpdate struct {
	Type       string          `json:"type"`
	Hierarchy  []HierarchyNode `json:"hierarchy"`
	Scripts    ScriptMap       `json:"scripts"`
	LastUpdate int64           `json:"lastUpdate"`
	Hash       string          `json:"hash,omitempty"`
	Metadata   Metadata        `json:"metadata"`
	ServerTime int64           `json:"serverTime"`
}

// NewFullUpdate builds the full-type game-update payload from a snapshot.
func NewFullUpdate(snap Snapshot, serverTime int64) FullUpdate {
	return FullUpdate{
		Type:       UpdateTypeFull,
		Hierarchy:  snap.Hierarchy,
		Scripts:    snap.Scripts,
		LastUpdate: snap.LastUpdate,
		Hash:       snap.Hash,
		Metadata:   snap.Metadata,
		ServerTime: serverTime,
	}
}

// DeltaUpdate carries only the applied changes plus refreshed metadata.
type DeltaUpdate struct {
	Type       string   `json:"type"`
	Changes    *Changes `json:"changes"`
	Metadata   Metadata `json:"metadata"`
	ServerTime int64    `json:"serverTime"`
}

// Ping is the viewer liveness probe; Pong echoes the client timestamp so
// the viewer can measure round-trip latency.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Pong struct {
	Timestamp       int64 `json:"timestamp"`
	ClientTimestamp int64 `json:"clientTimestamp"`
}
