package voice

import (
	"sync"
	"time"
)

// Metrics tracks latency and volume for one conversation turn.
// Latencies are measured from the first input transcript of the turn,
// the earliest sign that the user spoke.
type Metrics struct {
	// Timestamps for key events
	TurnStartTime    time.Time `json:"turn_start_time"`
	FirstAudioTime   time.Time `json:"first_audio_time"`
	ResponseDoneTime time.Time `json:"response_done_time"`

	// Computed latencies (from turn start)
	FirstAudioLatency time.Duration `json:"first_audio_latency"`
	TotalLatency      time.Duration `json:"total_latency"`

	// Counts for this conversation turn
	AudioChunksIn  int  `json:"audio_chunks_in"`  // chunks received from the model
	AudioChunksOut int  `json:"audio_chunks_out"` // microphone chunks sent
	FramesOut      int  `json:"frames_out"`       // camera frames sent
	Interrupted    bool `json:"interrupted"`
}

// Observer receives session lifecycle and traffic notifications, for
// example to export metrics. Methods must not block.
type Observer interface {
	SessionStarted(provider Provider)
	SessionFailed(provider Provider, err error)
	SessionEnded(provider Provider)
	StatusChanged(status Status)
	AudioSent(bytes int)
	AudioReceived(bytes int)
	FrameSent(bytes int)
	Interrupted(stopped int)
	StaleEvent(kind string)
	TurnCompleted(m Metrics)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) SessionStarted(Provider)       {}
func (NopObserver) SessionFailed(Provider, error) {}
func (NopObserver) SessionEnded(Provider)         {}
func (NopObserver) StatusChanged(Status)          {}
func (NopObserver) AudioSent(int)                 {}
func (NopObserver) AudioReceived(int)             {}
func (NopObserver) FrameSent(int)                 {}
func (NopObserver) Interrupted(int)               {}
func (NopObserver) StaleEvent(string)             {}
func (NopObserver) TurnCompleted(Metrics)         {}

// MetricsCollector collects per-turn metrics. It is goroutine-safe: the
// capture and sampler goroutines count outbound traffic while the session
// actor marks turn events.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics // Recent turns for averaging

	onUpdate func(Metrics)
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]Metrics, 0, 100),
	}
}

// OnUpdate sets a callback that fires whenever a turn completes.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkTurnStart records the start of a turn. Only the first call per turn
// counts.
func (m *MetricsCollector) MarkTurnStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.TurnStartTime.IsZero() {
		m.current.TurnStartTime = time.Now()
	}
}

// MarkFirstAudio records when the first response audio arrived.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		if !m.current.TurnStartTime.IsZero() {
			m.current.FirstAudioLatency = m.current.FirstAudioTime.Sub(m.current.TurnStartTime)
		}
	}
}

// MarkInterrupted flags the current turn as interrupted.
func (m *MetricsCollector) MarkInterrupted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Interrupted = true
}

// MarkResponseDone closes the current turn, archives it and returns it.
func (m *MetricsCollector) MarkResponseDone() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current.ResponseDoneTime = time.Now()
	if !m.current.TurnStartTime.IsZero() {
		m.current.TotalLatency = m.current.ResponseDoneTime.Sub(m.current.TurnStartTime)
	}

	done := m.current
	m.history = append(m.history, done)
	if len(m.history) > 100 {
		m.history = m.history[1:]
	}
	m.current = Metrics{}

	if m.onUpdate != nil {
		go m.onUpdate(done)
	}
	return done
}

// IncrementAudioIn increments the count of audio chunks received.
func (m *MetricsCollector) IncrementAudioIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksIn++
}

// IncrementAudioOut increments the count of audio chunks sent.
func (m *MetricsCollector) IncrementAudioOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioChunksOut++
}

// IncrementFramesOut increments the count of frames sent.
func (m *MetricsCollector) IncrementFramesOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.FramesOut++
}

// Reset discards the in-progress turn.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{}
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns completed turns, oldest first.
func (m *MetricsCollector) History() []Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Metrics(nil), m.history...)
}

// Average returns average latencies over recent turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg Metrics
	var n time.Duration
	for _, h := range m.history {
		if h.TurnStartTime.IsZero() {
			continue
		}
		avg.FirstAudioLatency += h.FirstAudioLatency
		avg.TotalLatency += h.TotalLatency
		n++
	}
	if n == 0 {
		return Metrics{}
	}
	avg.FirstAudioLatency /= n
	avg.TotalLatency /= n
	return avg
}

// FormatLatency returns a formatted string of the turn's latencies.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.FirstAudioLatency) + " first audio | " +
		formatDuration(m.TotalLatency) + " total"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
