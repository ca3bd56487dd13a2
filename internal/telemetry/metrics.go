package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors for Vortex's domain: connections, mutations by
// opcode, notify deliveries, loop-analyzer rejections, journal rotations
// and append latency, worker queue depth, and peer-mirror connectivity —
// mirroring the breadth of the teacher's metrics.go but renamed away from
// its WebSocket/Kafka vocabulary.
var (
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vortex_connections_total",
		Help: "Total accepted connections.",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vortex_connections_active",
		Help: "Currently open connections.",
	})

	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vortex_connections_rejected_total",
		Help: "Connections rejected on accept, by scope (capacity, rate).",
	}, []string{"scope"})

	MutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vortex_mutations_total",
		Help: "Parsed client requests by opcode (add, remove, read, read_remove, watch, watch_once).",
	}, []string{"opcode"})

	ParseErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vortex_parse_errors_total",
		Help: "Request lines the scanner could not classify.",
	})

	NotifyDeliveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vortex_notify_deliveries_total",
		Help: "Notification frames delivered to subscribers.",
	})

	NotifyDeliveryFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vortex_notify_delivery_failures_total",
		Help: "Notification frames that failed to write to a subscriber's socket.",
	})

	LoopRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vortex_loop_rejections_total",
		Help: "Republish edges rejected by the Loop Analyzer.",
	})

	JournalAppendLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vortex_journal_append_latency_seconds",
		Help:    "Latency of a single journal append (write + flush).",
		Buckets: prometheus.DefBuckets,
	})

	JournalRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vortex_journal_rotations_total",
		Help: "Completed journal rotations.",
	})

	JournalRetainedSegments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vortex_journal_retained_segments",
		Help: "Rotated segments currently retained on disk.",
	})

	WorkerQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vortex_worker_queue_depth",
		Help: "Pending tasks queued on a worker shard.",
	}, []string{"shard"})

	WorkerTasksDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vortex_worker_tasks_dropped_total",
		Help: "Tasks dropped because their shard's queue was full.",
	})

	PeerConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vortex_peer_connected",
		Help: "Whether the peer mirror link is currently connected (1) or not (0).",
	})

	PeerMirrorFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vortex_peer_mirror_failures_total",
		Help: "Mutations that failed to mirror to the peer.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ConnectionsActive,
		ConnectionsRejected,
		MutationsTotal,
		ParseErrorsTotal,
		NotifyDeliveriesTotal,
		NotifyDeliveryFailuresTotal,
		LoopRejectionsTotal,
		JournalAppendLatencySeconds,
		JournalRotationsTotal,
		JournalRetainedSegments,
		WorkerQueueDepth,
		WorkerTasksDroppedTotal,
		PeerConnected,
		PeerMirrorFailuresTotal,
	)
}

// Handler returns the Prometheus scrape handler, served by cmd/vortex on
// the configured metrics address.
func Handler() http.Handler {
	return promhttp.Handler()
}
