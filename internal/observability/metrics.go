package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay metrics
	relayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_relay_requests_total",
		Help: "Total number of transcription relay requests",
	}, []string{"code"})

	relayLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_transcribe_relay_latency_seconds",
		Help:    "End-to-end relay request latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	})

	uploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_transcribe_upload_bytes",
		Help:    "Size of uploaded audio artifacts in bytes",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8), // 16KiB .. 256MiB
	})

	// Provider metrics
	providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_provider_requests_total",
		Help: "Total number of transcription provider calls",
	}, []string{"provider", "status"})

	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_transcribe_provider_latency_seconds",
		Help:    "Transcription provider latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"provider"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_transcribe_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Recorder metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_transcribe_recorder_active_sessions",
		Help: "Number of capture sessions in progress",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcribe_recorder_sessions_total",
		Help: "Total number of capture sessions by outcome",
	}, []string{"outcome"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_transcribe_recorder_session_duration_seconds",
		Help:    "Duration of capture sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	capturedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_transcribe_recorder_captured_bytes_total",
		Help: "Total encoded audio bytes captured",
	})
)

// RequestMetrics tracks metrics for a single relay request
type RequestMetrics struct {
	startTime time.Time
}

// NewRequestMetrics starts tracking a relay request
func NewRequestMetrics() *RequestMetrics {
	return &RequestMetrics{startTime: time.Now()}
}

// RecordUpload records the size of the uploaded artifact
func (m *RequestMetrics) RecordUpload(size int64) {
	uploadBytes.Observe(float64(size))
}

// RecordDone records the response status and total latency
func (m *RequestMetrics) RecordDone(statusCode int) {
	relayLatency.Observe(time.Since(m.startTime).Seconds())
	relayRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProviderCall records one provider call outcome
func RecordProviderCall(provider string, latency time.Duration, success bool) {
	providerLatency.WithLabelValues(provider).Observe(latency.Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	providerRequests.WithLabelValues(provider, status).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// SessionMetrics tracks metrics for a single capture session
type SessionMetrics struct {
	startTime time.Time
}

// NewSessionMetrics records the start of a capture session
func NewSessionMetrics() *SessionMetrics {
	activeSessions.Inc()
	return &SessionMetrics{startTime: time.Now()}
}

// RecordChunk records captured encoded bytes
func (m *SessionMetrics) RecordChunk(n int) {
	capturedBytes.Add(float64(n))
}

// RecordEnd records the end of the session with its outcome ("done" or an error stage)
func (m *SessionMetrics) RecordEnd(outcome string) {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
	sessionsTotal.WithLabelValues(outcome).Inc()
}
