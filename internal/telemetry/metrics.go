package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the web client.
type Metrics struct {
	RequestTotal          *prometheus.CounterVec
	EngineCallDurationMs  *prometheus.HistogramVec
	StreamEventTotal      *prometheus.CounterVec
	ProgressCallbackTotal *prometheus.CounterVec
	StreamsInFlight       prometheus.Gauge
	StaleEntriesSwept     prometheus.Counter
	RateLimitHitTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "btw_request_total",
			Help: "Total number of API requests handled, by endpoint and status.",
		}, []string{"endpoint", "status"}),

		EngineCallDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "btw_engine_call_duration_ms",
			Help:    "Engine call duration in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		}, []string{"operation", "outcome"}),

		StreamEventTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "btw_stream_event_total",
			Help: "Total SSE events written to chat streams, by event kind.",
		}, []string{"type"}),

		ProgressCallbackTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "btw_progress_callback_total",
			Help: "Total engine progress callbacks received, by delivery outcome.",
		}, []string{"outcome"}),

		StreamsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "btw_streams_in_flight",
			Help: "Number of chat streams currently open.",
		}),

		StaleEntriesSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "btw_stale_entries_swept_total",
			Help: "Total stream registry entries reclaimed by the staleness sweeper.",
		}),

		RateLimitHitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "btw_rate_limit_hit_total",
			Help: "Total requests rejected by rate limiting.",
		}, []string{"dimension"}),
	}
}

// RecordRequest records a completed API request.
func (m *Metrics) RecordRequest(endpoint, status string) {
	m.RequestTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordEngineCall records the duration of one engine call.
func (m *Metrics) RecordEngineCall(operation, outcome string, durationMs float64) {
	m.EngineCallDurationMs.WithLabelValues(operation, outcome).Observe(durationMs)
}

// RecordStreamEvent records one SSE event written to a client.
func (m *Metrics) RecordStreamEvent(kind string) {
	m.StreamEventTotal.WithLabelValues(kind).Inc()
}

// RecordProgressCallback records a webhook delivery outcome
// ("delivered" or "unmatched").
func (m *Metrics) RecordProgressCallback(outcome string) {
	m.ProgressCallbackTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimitHit records a rejected request.
func (m *Metrics) RecordRateLimitHit(dimension string) {
	m.RateLimitHitTotal.WithLabelValues(dimension).Inc()
}
