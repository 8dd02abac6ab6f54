// Package domain holds the data model shared by the relay and the sync
// agent: the hierarchy tree, the script map, full and delta sync payloads,
// and the websocket messages pushed to viewers.
package domain
