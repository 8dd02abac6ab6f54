package hub

import (
	"time"

	"github.com/google/uuid"
)

// Transport kinds recorded on a viewer session. Upgrade and downgrade
// events update only this label; they never trigger a sync.
const (
	TransportWebsocket = "websocket"
	TransportPolling   = "polling"
)

// ViewerSession describes one connected viewer. Sessions are owned
// exclusively by the hub: created on connect, mutated on transport
// changes, destroyed on disconnect.
type ViewerSession struct {
	ID          uuid.UUID `json:"id"`
	RemoteAddr  string    `json:"remoteAddress"`
	UserAgent   string    `json:"userAgent"`
	Transport   string    `json:"transport"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Stats are process-lifetime totals, monotonic until restart.
type Stats struct {
	Connections       uint64 `json:"connections"`
	FailedConnections uint64 `json:"failedConnections"`
	Syncs             uint64 `json:"syncs"`
	CurrentClients    int    `json:"currentClients"`
}
