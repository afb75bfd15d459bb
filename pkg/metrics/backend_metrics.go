// Package metrics provides Prometheus metrics for the external engines and
// generation backends the minutes pipeline calls out to.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backend call metrics
var (
	// backendCallsTotal records the total number of calls to external collaborators.
	// Labels:
	//   - backend: Backend name (e.g., "go-whisper", "ollama", "openai")
	//   - kind: Call kind (e.g., "transcribe", "generate", "health")
	//   - status: Call status (e.g., "success", "failed", "retry")
	backendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_backend_calls_total",
			Help: "Total number of calls made to transcription engines and generation backends",
		},
		[]string{"backend", "kind", "status"},
	)

	// backendCallDuration records the latency of calls to external collaborators.
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 300s
	backendCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minutes_backend_call_duration_seconds",
			Help:    "Duration of transcription engine and generation backend calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"backend", "kind"},
	)

	// degradationEventsTotal records primary/fallback engine switches.
	// Labels:
	//   - from: Engine name switched away from
	//   - to: Engine name switched to
	degradationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_engine_degradation_events_total",
			Help: "Total number of transcription engine switches between primary and fallback",
		},
		[]string{"from", "to"},
	)
)

func init() {
	prometheus.MustRegister(backendCallsTotal)
	prometheus.MustRegister(backendCallDuration)
	prometheus.MustRegister(degradationEventsTotal)
}

// RecordBackendCall records one call outcome.
// Parameters:
//   - backend: Backend name
//   - kind: Call kind ("transcribe", "generate", "health")
//   - status: "success", "failed" or "retry"
func RecordBackendCall(backend, kind, status string) {
	backendCallsTotal.WithLabelValues(backend, kind, status).Inc()
}

// RecordBackendDuration records the duration of one call in seconds.
func RecordBackendDuration(backend, kind string, durationSeconds float64) {
	backendCallDuration.WithLabelValues(backend, kind).Observe(durationSeconds)
}

// RecordDegradationEvent records an engine switch.
func RecordDegradationEvent(from, to string) {
	degradationEventsTotal.WithLabelValues(from, to).Inc()
}
