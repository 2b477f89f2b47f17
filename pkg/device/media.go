package device

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/camera"
	"github.com/teslashibe/go-voicechat/pkg/protocol"
	"github.com/teslashibe/go-voicechat/pkg/voice"
)

// Devices returns session media backed by whichever device is active
// when the session connects.
func (h *Hub) Devices(input, output audioio.Config) voice.Devices {
	return voice.Devices{
		Microphone: func(ctx context.Context) (audioio.Source, error) {
			d := h.Active()
			if d == nil {
				return nil, ErrNoDevice
			}
			src := audioio.NewPushSource(input, "device:"+d.ID, h.logger)
			d.attachMic(src)
			h.sendAudioConfig(d, true, input.SampleRate)
			return src, nil
		},
		Camera: func(ctx context.Context) (camera.Source, error) {
			d := h.Active()
			if d == nil {
				return nil, ErrNoDevice
			}
			h.sendCameraConfig(d, true)
			return &cameraView{FrameStore: d.frames, stop: func() { h.sendCameraConfig(d, false) }}, nil
		},
		Speaker: func(ctx context.Context) (audioio.Speaker, error) {
			d := h.Active()
			if d == nil {
				return nil, ErrNoDevice
			}
			cfg := output
			if rate := d.Hello().SampleRate; rate > 0 {
				cfg.SampleRate = rate
			}
			return NewSpeaker(d, cfg, h.logger), nil
		},
	}
}

func (h *Hub) sendAudioConfig(d *Device, enabled bool, rate int) {
	msg, err := protocol.NewConfigMessage(nil, &protocol.AudioConfig{
		MicEnabled:     enabled,
		SpeakerEnabled: true,
		MicSampleRate:  rate,
	})
	if err == nil {
		h.send(d, msg)
	}
}

func (h *Hub) sendCameraConfig(d *Device, enabled bool) {
	msg, err := protocol.NewConfigMessage(&protocol.CameraConfig{Enabled: enabled}, nil)
	if err == nil {
		h.send(d, msg)
	}
}

// cameraView lends a device's frame store to one session. Closing it
// turns the device camera off but keeps the store.
type cameraView struct {
	*camera.FrameStore
	once sync.Once
	stop func()
}

func (v *cameraView) Close() error {
	v.once.Do(v.stop)
	return nil
}

// Speaker plays a timeline on a remote device. Every render quantum it
// mixes the timeline and, while anything is scheduled, ships the PCM as a
// speak message. The device plays messages in arrival order.
type Speaker struct {
	dev      *Device
	cfg      audioio.Config
	logger   *slog.Logger
	timeline *audioio.Timeline

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}

	sent atomic.Int64
}

// NewSpeaker creates a speaker that streams to d.
func NewSpeaker(d *Device, cfg audioio.Config, logger *slog.Logger) *Speaker {
	if cfg.BufferDuration <= 0 {
		cfg.BufferDuration = 20 * time.Millisecond
	}
	return &Speaker{
		dev:      d,
		cfg:      cfg,
		logger:   logger,
		timeline: audioio.NewTimeline(cfg.SampleRate),
	}
}

// Start begins pacing the timeline in real time.
func (s *Speaker) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	go s.pump(ctx, s.stopCh)
	return nil
}

func (s *Speaker) pump(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(s.cfg.BufferDuration)
	defer ticker.Stop()

	buf := make([]int16, s.cfg.BufferSize())
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.Tick(buf)
		}
	}
}

// Tick renders one quantum into buf and sends it if anything was
// scheduled. The pump calls it once per BufferDuration.
func (s *Speaker) Tick(buf []int16) {
	busy := s.timeline.Pending() > 0
	s.timeline.Render(buf)
	if !busy {
		return
	}
	msg, err := protocol.NewSpeakMessage(audioio.SamplesToBytes(buf), s.cfg.SampleRate)
	if err != nil {
		return
	}
	if err := s.dev.Send(msg); err != nil {
		s.logger.Debug("speak send failed", "device", s.dev.ID, "error", err)
		return
	}
	s.sent.Add(1)
}

// Timeline returns the playback graph.
func (s *Speaker) Timeline() *audioio.Timeline { return s.timeline }

// Config returns the output configuration.
func (s *Speaker) Config() audioio.Config { return s.cfg }

// Name returns the device name.
func (s *Speaker) Name() string { return "device:" + s.dev.ID }

// Sent returns the number of speak messages sent.
func (s *Speaker) Sent() int64 { return s.sent.Load() }

// Close stops pacing and closes the timeline.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.running {
		close(s.stopCh)
		s.running = false
	}
	return s.timeline.Close()
}

var _ audioio.Speaker = (*Speaker)(nil)
