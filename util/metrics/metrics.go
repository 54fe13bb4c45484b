package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks the number of live subscriber connections
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetcore_connections_active",
			Help: "Number of live subscriber connections in the gate",
		},
	)

	// ConnectionsEvicted counts connections removed by the heartbeat loop
	ConnectionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetcore_connections_evicted_total",
			Help: "Total connections force-closed after missing liveness probes",
		},
	)

	// BroadcastsSent counts successful per-connection event deliveries
	BroadcastsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_broadcasts_sent_total",
			Help: "Total events delivered to subscribers, by channel",
		},
		[]string{"channel"},
	)

	// BroadcastsDropped counts per-connection deliveries that failed
	BroadcastsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_broadcasts_dropped_total",
			Help: "Total events that failed to deliver and closed the connection, by channel",
		},
		[]string{"channel"},
	)

	// CacheWriteFailures counts safety cache writes that were swallowed.
	// The write path never propagates these to the telemetry producer,
	// so the counter is the only way they become visible.
	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_cache_write_failures_total",
			Help: "Total safety cache writes that failed, by operation",
		},
		[]string{"operation"},
	)

	// AlertsActive tracks the number of unresolved alerts
	AlertsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetcore_alerts_active",
			Help: "Number of currently active (unresolved) alerts",
		},
	)

	// AlertsCreated counts alerts raised by the threshold evaluator
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_alerts_created_total",
			Help: "Total alerts created, by severity",
		},
		[]string{"severity"},
	)

	// IngestMessages counts telemetry messages consumed from MQTT
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_ingest_messages_total",
			Help: "Total telemetry messages ingested, by topic kind and status",
		},
		[]string{"kind", "status"},
	)

	// FirehoseEvents counts events published to the Kafka firehose
	FirehoseEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_firehose_events_total",
			Help: "Total events published to the firehose, by kind and status",
		},
		[]string{"kind", "status"},
	)

	// ArchiveWrites counts alert archive operations
	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetcore_archive_writes_total",
			Help: "Total alert archive writes, by operation and status",
		},
		[]string{"operation", "status"},
	)
)

// RecordBroadcast records delivery results for one broadcast
func RecordBroadcast(channel string, sent, dropped int) {
	if sent > 0 {
		BroadcastsSent.WithLabelValues(channel).Add(float64(sent))
	}
	if dropped > 0 {
		BroadcastsDropped.WithLabelValues(channel).Add(float64(dropped))
	}
}

// RecordCacheWriteFailure increments the swallowed-write counter for
// the named cache operation
func RecordCacheWriteFailure(operation string) {
	CacheWriteFailures.WithLabelValues(operation).Inc()
}

// RecordAlertCreated increments the alert creation counter
func RecordAlertCreated(severity string) {
	AlertsCreated.WithLabelValues(severity).Inc()
}

// SetActiveAlerts sets the active alert gauge
func SetActiveAlerts(n int) {
	AlertsActive.Set(float64(n))
}

// SetActiveConnections sets the live connection gauge
func SetActiveConnections(n int) {
	ConnectionsActive.Set(float64(n))
}

// RecordIngest increments the ingest counter for the given message
// kind ("telemetry") and status ("ok", "invalid")
func RecordIngest(kind, status string) {
	IngestMessages.WithLabelValues(kind, status).Inc()
}

// RecordFirehose increments the firehose counter
func RecordFirehose(kind, status string) {
	FirehoseEvents.WithLabelValues(kind, status).Inc()
}

// RecordArchive increments the archive counter
func RecordArchive(operation, status string) {
	ArchiveWrites.WithLabelValues(operation, status).Inc()
}
