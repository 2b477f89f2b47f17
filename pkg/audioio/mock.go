package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It generates synthetic audio (silence or sine wave).
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Frame
	stopCh   chan struct{}

	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		streamCh:  make(chan Frame, 10),
		stopCh:    make(chan struct{}),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan Frame, 10)

	go m.generateLoop(ctx, m.stopCh, m.streamCh)

	m.logger.Debug("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, stopCh chan struct{}, out chan Frame) {
	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			frame := m.generateFrame()
			m.mu.Lock()
			if !m.running {
				m.mu.Unlock()
				return
			}
			select {
			case out <- frame:
				m.framesRead.Add(1)
				m.samplesRead.Add(int64(len(frame.Samples)))
			default:
				m.overruns.Add(1)
			}
			m.mu.Unlock()
		}
	}
}

func (m *MockSource) generateFrame() Frame {
	n := m.cfg.BufferSize()
	ch := max(m.cfg.Channels, 1)
	samples := make([]float32, n*ch)

	if m.frequency > 0 {
		for i := 0; i < n; i++ {
			s := float32(m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
			for c := 0; c < ch; c++ {
				samples[i*ch+c] = s
			}
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return Frame{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: ch}
}

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	close(m.streamCh)
	return nil
}

// Read reads the next frame.
func (m *MockSource) Read(ctx context.Context) (Frame, error) {
	return readFrame(ctx, m.Stream())
}

// Stream returns the frame channel.
func (m *MockSource) Stream() <-chan Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		FramesRead:  m.framesRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSpeaker drains its timeline in real time and discards the samples.
// It gives the timeline a clock without any audio hardware.
type MockSpeaker struct {
	cfg      Config
	logger   *slog.Logger
	timeline *Timeline

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}

	rendered atomic.Int64
}

// NewMockSpeaker creates a new mock speaker.
func NewMockSpeaker(cfg Config, logger *slog.Logger) *MockSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSpeaker{
		cfg:      cfg,
		logger:   logger,
		timeline: NewTimeline(cfg.SampleRate),
	}
}

// Start begins draining the timeline every BufferDuration.
func (m *MockSpeaker) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})

	go m.drainLoop(ctx, m.stopCh)
	return nil
}

func (m *MockSpeaker) drainLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	buf := make([]int16, m.cfg.BufferSize())
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.timeline.Render(buf)
			m.rendered.Add(int64(len(buf)))
		}
	}
}

// Timeline returns the playback graph.
func (m *MockSpeaker) Timeline() *Timeline {
	return m.timeline
}

// Config returns the audio configuration.
func (m *MockSpeaker) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSpeaker) Name() string {
	return "mock"
}

// Close stops draining and closes the timeline.
func (m *MockSpeaker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.running {
		m.running = false
		close(m.stopCh)
	}
	return m.timeline.Close()
}

// Stats returns speaker statistics.
func (m *MockSpeaker) Stats() SpeakerStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SpeakerStats{
		SamplesRendered: m.rendered.Load(),
		Running:         running,
		Backend:         "mock",
	}
}

var _ SpeakerWithStats = (*MockSpeaker)(nil)

func readFrame(ctx context.Context, ch <-chan Frame) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-ch:
		if !ok {
			return Frame{}, io.EOF
		}
		return f, nil
	}
}
