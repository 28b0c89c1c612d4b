package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions     prometheus.Gauge
	connectionsTotal   prometheus.Counter
	messagesTotal      *prometheus.CounterVec
	authTotal          *prometheus.CounterVec
	audioBytesTotal    prometheus.Counter
	bufferOverflows    prometheus.Counter
	transcriptionTotal *prometheus.CounterVec
	providerDuration   prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "dicteo_active_sessions",
					Help: "Current live dictation session count.",
				},
			),
			connectionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "dicteo_connections_total",
					Help: "Total accepted WebSocket connections.",
				},
			),
			messagesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dicteo_messages_total",
					Help: "Total inbound messages by type.",
				},
				[]string{"type"},
			),
			authTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dicteo_auth_total",
					Help: "Total authentication attempts by outcome.",
				},
				[]string{"outcome"},
			),
			audioBytesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "dicteo_audio_bytes_total",
					Help: "Total audio bytes buffered across sessions.",
				},
			),
			bufferOverflows: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "dicteo_buffer_overflows_total",
					Help: "Total audio buffers discarded for exceeding the size cap.",
				},
			),
			transcriptionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dicteo_transcriptions_total",
					Help: "Total transcription requests by outcome.",
				},
				[]string{"outcome"},
			),
			providerDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "dicteo_provider_duration_seconds",
					Help:    "Transcription provider round-trip duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.connectionsTotal,
			m.messagesTotal,
			m.authTotal,
			m.audioBytesTotal,
			m.bufferOverflows,
			m.transcriptionTotal,
			m.providerDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// SetActiveSessions sets the live session gauge
func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

// RecordConnection counts an accepted connection
func RecordConnection() {
	getMetrics().connectionsTotal.Inc()
}

// RecordMessage counts an inbound message by type
func RecordMessage(msgType string) {
	getMetrics().messagesTotal.WithLabelValues(msgType).Inc()
}

// RecordAuth counts an authentication attempt
func RecordAuth(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	getMetrics().authTotal.WithLabelValues(outcome).Inc()
}

// RecordAudioBytes counts buffered audio bytes
func RecordAudioBytes(n int) {
	getMetrics().audioBytesTotal.Add(float64(n))
}

// RecordBufferOverflow counts a discarded over-cap buffer
func RecordBufferOverflow() {
	getMetrics().bufferOverflows.Inc()
}

// RecordTranscription records one provider call
func RecordTranscription(duration time.Duration, success bool) {
	m := getMetrics()
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.transcriptionTotal.WithLabelValues(outcome).Inc()
	m.providerDuration.Observe(duration.Seconds())
}
