// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	EventsReceived     *prometheus.CounterVec
	EventsDuplicate    prometheus.Counter
	EventsForwarded    prometheus.Counter
	EventsMuted        *prometheus.CounterVec
	EndpointHealth     *prometheus.GaugeVec
	EndpointLatency    *prometheus.GaugeVec
	EndpointReconnects *prometheus.CounterVec
	PipelineDown       prometheus.Gauge

	// Tracker metrics
	TrackedSlot          prometheus.Gauge
	SlotDuration         prometheus.Gauge
	TrackerRefreshErrors prometheus.Counter

	// Queue metrics
	QueueSize      prometheus.Gauge
	QueueEvictions *prometheus.CounterVec

	// Executor metrics
	Admissions     *prometheus.CounterVec
	Dispatches     *prometheus.CounterVec
	Outcomes       *prometheus.CounterVec
	InFlight       prometheus.Gauge
	StaleWaits     prometheus.Counter
	RouteFallbacks prometheus.Counter
	TimeToLand     prometheus.Histogram

	// Submission metrics
	TipLamports    prometheus.Histogram
	Congestion     prometheus.Gauge
	RPCCallLatency *prometheus.HistogramVec

	// Decision metrics
	EventsDecoded      prometheus.Counter
	EvaluationRejects  *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram

	// Journal metrics
	JournalWrites *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_sniper"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Feed metrics
		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_received_total",
			Help:      "Events received per endpoint before deduplication",
		}, []string{"endpoint"}),
		EventsDuplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_duplicate_total",
			Help:      "Events dropped by the dedup window",
		}),
		EventsForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_forwarded_total",
			Help:      "Unique events emitted downstream",
		}),
		EventsMuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_muted_total",
			Help:      "Events discarded because their endpoint is dead",
		}, []string{"endpoint"}),
		EndpointHealth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "endpoint_health",
			Help:      "Endpoint health: 0 healthy, 1 degraded, 2 dead",
		}, []string{"endpoint"}),
		EndpointLatency: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "endpoint_latency_seconds",
			Help:      "Rolling ping round-trip per endpoint",
		}, []string{"endpoint"}),
		EndpointReconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "endpoint_reconnects_total",
			Help:      "Reconnect attempts per endpoint",
		}, []string{"endpoint"}),
		PipelineDown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "pipeline_down",
			Help:      "1 while zero endpoints are healthy",
		}),

		// Tracker metrics
		TrackedSlot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "slot",
			Help:      "Latest tracked slot",
		}),
		SlotDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "slot_duration_seconds",
			Help:      "Estimated slot duration",
		}),
		TrackerRefreshErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "refresh_errors_total",
			Help:      "Failed blockhash refreshes",
		}),

		// Queue metrics
		QueueSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "size",
			Help:      "Entries waiting for dispatch",
		}),
		QueueEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "evictions_total",
			Help:      "Entries evicted by reason",
		}, []string{"reason"}),

		// Executor metrics
		Admissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "admissions_total",
			Help:      "Admission attempts by result",
		}, []string{"result"}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "dispatches_total",
			Help:      "Transactions dispatched by route",
		}, []string{"route"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "outcomes_total",
			Help:      "Terminal outcomes by kind",
		}, []string{"kind"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "in_flight",
			Help:      "Assets currently queued, dispatched or confirming",
		}),
		StaleWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "stale_waits_total",
			Help:      "Dispatches that waited for a fresh blockhash",
		}),
		RouteFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "route_fallbacks_total",
			Help:      "Bundle submissions that fell back to direct broadcast",
		}),
		TimeToLand: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "time_to_land_seconds",
			Help:      "Candidate creation to confirmation",
			Buckets:   []float64{0.1, 0.2, 0.4, 0.8, 1.2, 1.6, 2.4, 3.2, 5},
		}),

		// Submission metrics
		TipLamports: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "tip_lamports",
			Help:      "Bundle tips paid",
			Buckets:   prometheus.ExponentialBuckets(1000, 2, 8),
		}),
		Congestion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "congestion_factor",
			Help:      "Current network congestion estimate",
		}),
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method"}),

		// Decision metrics
		EventsDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "creates_decoded_total",
			Help:      "Asset-creation events decoded",
		}),
		EvaluationRejects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "rejects_total",
			Help:      "Candidates rejected by evaluator",
		}, []string{"evaluator"}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "evaluation_seconds",
			Help:      "Time spent in evaluators per event",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),

		// Journal metrics
		JournalWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "writes_total",
			Help:      "Outcome journal writes by driver and status",
		}, []string{"driver", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordEventReceived counts a raw event from an endpoint.
func RecordEventReceived(endpoint string) {
	DefaultMetrics.EventsReceived.WithLabelValues(endpoint).Inc()
}

// RecordDuplicate counts an event suppressed by the dedup window.
func RecordDuplicate() {
	DefaultMetrics.EventsDuplicate.Inc()
}

// RecordForwarded counts a unique event emitted downstream.
func RecordForwarded() {
	DefaultMetrics.EventsForwarded.Inc()
}

// RecordMuted counts an event dropped from a dead endpoint.
func RecordMuted(endpoint string) {
	DefaultMetrics.EventsMuted.WithLabelValues(endpoint).Inc()
}

// SetEndpointHealth publishes an endpoint's health level.
func SetEndpointHealth(endpoint string, level int) {
	DefaultMetrics.EndpointHealth.WithLabelValues(endpoint).Set(float64(level))
}

// SetEndpointLatency publishes an endpoint's rolling latency.
func SetEndpointLatency(endpoint string, seconds float64) {
	DefaultMetrics.EndpointLatency.WithLabelValues(endpoint).Set(seconds)
}

// RecordReconnect counts a reconnect attempt.
func RecordReconnect(endpoint string) {
	DefaultMetrics.EndpointReconnects.WithLabelValues(endpoint).Inc()
}

// SetPipelineDown publishes the degraded-mode flag.
func SetPipelineDown(down bool) {
	v := 0.0
	if down {
		v = 1
	}
	DefaultMetrics.PipelineDown.Set(v)
}

// UpdateSlot publishes the tracked slot and slot duration estimate.
func UpdateSlot(slot int64, slotSeconds float64) {
	DefaultMetrics.TrackedSlot.Set(float64(slot))
	DefaultMetrics.SlotDuration.Set(slotSeconds)
}

// RecordTrackerError counts a failed refresh.
func RecordTrackerError() {
	DefaultMetrics.TrackerRefreshErrors.Inc()
}

// SetQueueSize publishes the queue length.
func SetQueueSize(n int) {
	DefaultMetrics.QueueSize.Set(float64(n))
}

// RecordQueueEviction counts an eviction ("capacity" or "expired").
func RecordQueueEviction(reason string) {
	DefaultMetrics.QueueEvictions.WithLabelValues(reason).Inc()
}

// RecordAdmission counts an admission attempt by result.
func RecordAdmission(result string) {
	DefaultMetrics.Admissions.WithLabelValues(result).Inc()
}

// RecordDispatch counts a dispatch on a route.
func RecordDispatch(route string) {
	DefaultMetrics.Dispatches.WithLabelValues(route).Inc()
}

// RecordOutcome counts a terminal outcome.
func RecordOutcome(kind string) {
	DefaultMetrics.Outcomes.WithLabelValues(kind).Inc()
}

// SetInFlight publishes the in-flight asset count.
func SetInFlight(n int) {
	DefaultMetrics.InFlight.Set(float64(n))
}

// RecordStaleWait counts a dispatch that had to wait for a fresh blockhash.
func RecordStaleWait() {
	DefaultMetrics.StaleWaits.Inc()
}

// RecordFallback counts a bundle-to-direct fallback.
func RecordFallback() {
	DefaultMetrics.RouteFallbacks.Inc()
}

// RecordTimeToLand observes creation-to-confirmation latency.
func RecordTimeToLand(seconds float64) {
	DefaultMetrics.TimeToLand.Observe(seconds)
}

// RecordTip observes a bundle tip.
func RecordTip(lamports uint64) {
	DefaultMetrics.TipLamports.Observe(float64(lamports))
}

// SetCongestion publishes the congestion factor.
func SetCongestion(factor float64) {
	DefaultMetrics.Congestion.Set(factor)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDecoded counts a decoded asset-creation event.
func RecordDecoded() {
	DefaultMetrics.EventsDecoded.Inc()
}

// RecordReject counts an evaluator rejection.
func RecordReject(evaluator string) {
	DefaultMetrics.EvaluationRejects.WithLabelValues(evaluator).Inc()
}

// RecordEvaluation observes time spent evaluating one event.
func RecordEvaluation(seconds float64) {
	DefaultMetrics.EvaluationDuration.Observe(seconds)
}

// RecordJournalWrite counts a journal write.
func RecordJournalWrite(driver string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.JournalWrites.WithLabelValues(driver, status).Inc()
}
