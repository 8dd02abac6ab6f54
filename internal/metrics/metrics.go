// Package metrics registers the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection lifecycle metrics
var (
	// ConnectionsTotal counts every viewer connection over process lifetime.
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total viewer connections accepted",
		},
	)

	// FailedConnectionsTotal counts short-lived, non-clean disconnects and
	// connections rejected by the limiter.
	FailedConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_failed_connections_total",
			Help: "Total failed viewer connections",
		},
	)

	// ConnectedClients tracks the current number of connected viewers.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_clients",
			Help: "Current number of connected viewers",
		},
	)

	// SlowClientsEvicted counts viewers disconnected because their send
	// queue overflowed during a broadcast.
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_clients_evicted_total",
			Help: "Viewers evicted due to full send queues",
		},
	)
)

// Sync metrics
var (
	// SyncsTotal counts applied syncs by type (full/delta).
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_syncs_total",
			Help: "Total applied syncs by type",
		},
		[]string{"type"},
	)

	// SyncRejectionsTotal counts rejected sync submissions by error code.
	SyncRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_sync_rejections_total",
			Help: "Rejected sync submissions by error code",
		},
		[]string{"code"},
	)

	// BroadcastDuration tracks fan-out duration per applied sync.
	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_broadcast_duration_seconds",
			Help:    "Fan-out duration per applied sync",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)
)

// HTTP metrics
var (
	// RequestErrorsTotal counts HTTP error responses by code.
	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_request_errors_total",
			Help: "HTTP error responses by error code",
		},
		[]string{"code"},
	)
)
