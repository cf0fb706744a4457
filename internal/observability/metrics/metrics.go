// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_speech_interaction"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Connection metrics
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge

	// Recognition metrics
	RecognitionStarts   prometheus.Counter
	RecognitionStops    prometheus.Counter
	RecognitionResults  prometheus.Counter
	RecognitionErrors   *prometheus.CounterVec
	RecognitionTimeouts prometheus.Counter
	ListenDuration      prometheus.Histogram

	// Synthesis metrics
	Utterances        prometheus.Counter
	UtterancesSpoken  prometheus.Counter
	SynthesisErrors   *prometheus.CounterVec
	SynthesisDuration prometheus.Histogram

	// Capability metrics
	CapabilityUnavailable *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions opened",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open voice sessions",
		}),

		RecognitionStarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_starts_total",
			Help:      "Total number of recognition sessions started",
		}),
		RecognitionStops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_stops_total",
			Help:      "Total number of recognition sessions stopped by the caller",
		}),
		RecognitionResults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_results_total",
			Help:      "Total number of recognition result events appended to a transcript",
		}),
		RecognitionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Total number of recognition errors by platform code",
		}, []string{"code"}),
		RecognitionTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_timeouts_total",
			Help:      "Total number of recognition sessions stopped by the listen timeout",
		}),
		ListenDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listen_duration_seconds",
			Help:      "Time spent in the listening state per recognition session",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),

		Utterances: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Total number of utterances handed to the synthesizer",
		}),
		UtterancesSpoken: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_spoken_total",
			Help:      "Total number of utterances that finished speaking",
		}),
		SynthesisErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_errors_total",
			Help:      "Total number of synthesis errors by platform code",
		}, []string{"code"}),
		SynthesisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Time from speak to utterance end",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		CapabilityUnavailable: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_unavailable_total",
			Help:      "Total number of operations rejected because a capability is missing",
		}, []string{"capability"}),

		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received from clients",
		}),
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received from clients",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionOpen records a new voice session.
func (m *Metrics) RecordSessionOpen() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClose records a voice session ending.
func (m *Metrics) RecordSessionClose() {
	m.SessionsActive.Dec()
}

// RecordListenStart records a recognition session start.
func (m *Metrics) RecordListenStart() {
	m.RecognitionStarts.Inc()
}

// RecordListenStop records an explicit stop by the caller.
func (m *Metrics) RecordListenStop() {
	m.RecognitionStops.Inc()
}

// RecordListenEnd records the time a recognition session spent listening.
func (m *Metrics) RecordListenEnd(durationSeconds float64) {
	m.ListenDuration.Observe(durationSeconds)
}

// RecordResult records a recognition result appended to the transcript.
func (m *Metrics) RecordResult() {
	m.RecognitionResults.Inc()
}

// RecordRecognitionError records a recognition error.
func (m *Metrics) RecordRecognitionError(code string) {
	m.RecognitionErrors.WithLabelValues(code).Inc()
}

// RecordListenTimeout records a session stopped by the listen timeout.
func (m *Metrics) RecordListenTimeout() {
	m.RecognitionTimeouts.Inc()
}

// RecordUtterance records an utterance handed to the synthesizer.
func (m *Metrics) RecordUtterance() {
	m.Utterances.Inc()
}

// RecordUtteranceEnd records an utterance that finished speaking.
func (m *Metrics) RecordUtteranceEnd(durationSeconds float64) {
	m.UtterancesSpoken.Inc()
	m.SynthesisDuration.Observe(durationSeconds)
}

// RecordSynthesisError records a synthesis error.
func (m *Metrics) RecordSynthesisError(code string) {
	m.SynthesisErrors.WithLabelValues(code).Inc()
}

// RecordCapabilityUnavailable records an operation rejected for a missing capability.
func (m *Metrics) RecordCapabilityUnavailable(capability string) {
	m.CapabilityUnavailable.WithLabelValues(capability).Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
