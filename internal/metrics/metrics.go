// Package metrics provides Prometheus metrics for cstudio.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync engine metrics
	syncOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstudio_sync_operations_total",
			Help: "Total sync engine operations",
		},
		[]string{"op", "status"},
	)

	syncOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cstudio_sync_operation_duration_seconds",
			Help:    "Sync engine operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	syncSkippedProjects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cstudio_sync_skipped_projects_total",
			Help: "Projects skipped during LoadAll because they could not be reconstructed",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cstudio_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cstudio_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// Tree metrics
	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cstudio_tree_nodes",
			Help: "Number of nodes in the active project tree",
		},
	)

	// Workspace metrics
	workspaceEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstudio_workspace_events_total",
			Help: "Filesystem events applied to the active project",
		},
		[]string{"op"},
	)

	// Preview metrics
	previewClientsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cstudio_preview_clients_active",
			Help: "Number of connected preview websocket clients",
		},
	)

	previewBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstudio_preview_broadcasts_total",
			Help: "Total preview messages broadcast",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSyncOp records a sync engine operation.
func RecordSyncOp(op string, duration time.Duration, err error) {
	syncOpDuration.WithLabelValues(op).Observe(duration.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	syncOpsTotal.WithLabelValues(op, status).Inc()
}

// RecordSkippedProject counts a project LoadAll could not reconstruct.
func RecordSkippedProject() {
	syncSkippedProjects.Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// SetTreeSize sets the node count of the active project.
func SetTreeSize(n int) {
	treeSize.Set(float64(n))
}

// RecordWorkspaceEvent counts an applied filesystem event.
func RecordWorkspaceEvent(op string) {
	workspaceEventsTotal.WithLabelValues(op).Inc()
}

// PreviewClientConnected adjusts the connected client gauge.
func PreviewClientConnected(delta int) {
	previewClientsActive.Add(float64(delta))
}

// RecordPreviewBroadcast counts a broadcast message by type.
func RecordPreviewBroadcast(msgType string) {
	previewBroadcastsTotal.WithLabelValues(msgType).Inc()
}
