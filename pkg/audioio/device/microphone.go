package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
)

// Microphone captures float32 frames from a miniaudio capture device.
// Device callbacks are accumulated into BufferSize frames before delivery.
type Microphone struct {
	cfg    audioio.Config
	logger *slog.Logger

	mu       sync.Mutex
	mctx     *malgo.AllocatedContext
	dev      *malgo.Device
	running  bool
	closed   bool
	streamCh chan audioio.Frame
	pending  []float32

	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newMicrophone(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
	return NewMicrophone(cfg, logger)
}

// NewMicrophone opens the capture device named by cfg.Device, or the
// system default.
func NewMicrophone(cfg audioio.Config, logger *slog.Logger) (*Microphone, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, func(msg string) {
		logger.Debug("malgo", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("device: init context: %w", err)
	}
	return &Microphone{
		cfg:      cfg,
		logger:   logger.With("component", "microphone"),
		mctx:     mctx,
		streamCh: make(chan audioio.Frame, 8),
	}, nil
}

// Start opens and starts the capture device.
func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatF32
	dc.Capture.Channels = uint32(m.cfg.Channels)
	dc.SampleRate = uint32(m.cfg.SampleRate)
	dc.PeriodSizeInMilliseconds = 20
	if m.cfg.Device != "" {
		info, err := findDevice(m.mctx, malgo.Capture, m.cfg.Device)
		if err != nil {
			return err
		}
		dc.Capture.DeviceID = info.ID.Pointer()
	}

	m.streamCh = make(chan audioio.Frame, 8)
	m.pending = m.pending[:0]

	dev, err := malgo.InitDevice(m.mctx.Context, dc, malgo.DeviceCallbacks{Data: m.onData})
	if err != nil {
		return fmt.Errorf("device: init capture: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("device: start capture: %w", err)
	}
	m.dev = dev
	m.running = true

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			m.Stop()
		}()
	}

	m.logger.Info("microphone started", "sample_rate", m.cfg.SampleRate, "device", m.cfg.Device)
	return nil
}

func (m *Microphone) onData(_, input []byte, _ uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}

	for i := 0; i+4 <= len(input); i += 4 {
		m.pending = append(m.pending, math.Float32frombits(binary.LittleEndian.Uint32(input[i:])))
	}

	size := m.cfg.BufferSize() * m.cfg.Channels
	for len(m.pending) >= size {
		samples := make([]float32, size)
		copy(samples, m.pending[:size])
		m.pending = append(m.pending[:0], m.pending[size:]...)

		frame := audioio.Frame{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
		select {
		case m.streamCh <- frame:
			m.framesRead.Add(1)
			m.samplesRead.Add(int64(size))
		default:
			m.overruns.Add(1)
		}
	}
}

// Stop halts capture and closes the stream.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	dev := m.dev
	m.dev = nil
	close(m.streamCh)
	m.mu.Unlock()

	// Uninit waits for the callback thread, so it must run unlocked.
	if dev != nil {
		_ = dev.Stop()
		dev.Uninit()
	}
	m.logger.Info("microphone stopped")
	return nil
}

// Read reads the next frame.
func (m *Microphone) Read(ctx context.Context) (audioio.Frame, error) {
	select {
	case <-ctx.Done():
		return audioio.Frame{}, ctx.Err()
	case f, ok := <-m.Stream():
		if !ok {
			return audioio.Frame{}, io.EOF
		}
		return f, nil
	}
}

// Stream returns the frame channel.
func (m *Microphone) Stream() <-chan audioio.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the audio configuration.
func (m *Microphone) Config() audioio.Config {
	return m.cfg
}

// Name returns "malgo".
func (m *Microphone) Name() string {
	return string(audioio.BackendMalgo)
}

// Close stops capture and releases the context.
func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.Stop()
	_ = m.mctx.Uninit()
	m.mctx.Free()
	return err
}

// Stats returns capture statistics.
func (m *Microphone) Stats() audioio.SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return audioio.SourceStats{
		FramesRead:  m.framesRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     m.Name(),
	}
}

var _ audioio.SourceWithStats = (*Microphone)(nil)
