// Package metrics exports live session activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-voicechat/pkg/voice"
)

// Metrics holds all Prometheus metrics for the voice session. It
// implements voice.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	Status          *prometheus.GaugeVec

	// Media metrics
	AudioBytesTotal *prometheus.CounterVec
	FramesTotal     prometheus.Counter

	// Turn metrics
	FirstAudioLatency prometheus.Histogram
	TurnLatency       prometheus.Histogram
	InterruptsTotal   prometheus.Counter
	StoppedSources    prometheus.Counter

	// Dropped work from superseded sessions
	StaleEventsTotal *prometheus.CounterVec

	mu      sync.Mutex
	started time.Time
}

// New creates a Metrics instance with every metric registered on its own
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicechat"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions (0 or 1)",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Connect attempts by outcome",
		}, []string{"provider", "status"}),
		SessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"provider"}),
		Status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "1 for the current session status",
		}, []string{"status"}),
		AudioBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "PCM bytes streamed, by direction",
		}, []string{"direction"}),
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Camera frames sent to the model",
		}),
		FirstAudioLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_seconds",
			Help:      "Time from user speech to first response audio",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5},
		}),
		TurnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "Time from user speech to turn completion",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		InterruptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_total",
			Help:      "Model turns interrupted by the user",
		}),
		StoppedSources: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupted_sources_total",
			Help:      "Scheduled audio chunks stopped by interruptions",
		}),
		StaleEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_total",
			Help:      "Events dropped because their session was superseded",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionDuration,
		m.Status,
		m.AudioBytesTotal,
		m.FramesTotal,
		m.FirstAudioLatency,
		m.TurnLatency,
		m.InterruptsTotal,
		m.StoppedSources,
		m.StaleEventsTotal,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionStarted(p voice.Provider) {
	m.mu.Lock()
	m.started = time.Now()
	m.mu.Unlock()
	m.SessionsActive.Set(1)
	m.SessionsTotal.WithLabelValues(string(p), "ok").Inc()
}

func (m *Metrics) SessionFailed(p voice.Provider, err error) {
	m.SessionsTotal.WithLabelValues(string(p), "error").Inc()
}

func (m *Metrics) SessionEnded(p voice.Provider) {
	m.mu.Lock()
	started := m.started
	m.started = time.Time{}
	m.mu.Unlock()

	m.SessionsActive.Set(0)
	if !started.IsZero() {
		m.SessionDuration.WithLabelValues(string(p)).Observe(time.Since(started).Seconds())
	}
}

var statuses = []voice.Status{
	voice.StatusIdle,
	voice.StatusConnecting,
	voice.StatusListening,
	voice.StatusSpeaking,
	voice.StatusError,
}

func (m *Metrics) StatusChanged(s voice.Status) {
	for _, st := range statuses {
		v := 0.0
		if st == s {
			v = 1
		}
		m.Status.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) AudioSent(n int) {
	m.AudioBytesTotal.WithLabelValues("out").Add(float64(n))
}

func (m *Metrics) AudioReceived(n int) {
	m.AudioBytesTotal.WithLabelValues("in").Add(float64(n))
}

func (m *Metrics) FrameSent(int) {
	m.FramesTotal.Inc()
}

func (m *Metrics) Interrupted(stopped int) {
	m.InterruptsTotal.Inc()
	m.StoppedSources.Add(float64(stopped))
}

func (m *Metrics) StaleEvent(kind string) {
	m.StaleEventsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) TurnCompleted(t voice.Metrics) {
	if t.FirstAudioLatency > 0 {
		m.FirstAudioLatency.Observe(t.FirstAudioLatency.Seconds())
	}
	if t.TotalLatency > 0 {
		m.TurnLatency.Observe(t.TotalLatency.Seconds())
	}
}

var _ voice.Observer = (*Metrics)(nil)
