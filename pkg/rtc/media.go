package rtc

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pion/webrtc/v3/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/camera"
	"github.com/teslashibe/go-voicechat/pkg/voice"
)

// Devices returns session media backed by the peer that is active when
// the session connects.
func (s *Server) Devices(input audioio.Config) voice.Devices {
	return voice.Devices{
		Microphone: func(ctx context.Context) (audioio.Source, error) {
			p := s.Active()
			if p == nil {
				return nil, ErrNoPeer
			}
			src := audioio.NewPushSource(input, "webrtc:"+p.ID, s.logger)
			p.attachMic(src)
			return src, nil
		},
		Camera: func(ctx context.Context) (camera.Source, error) {
			p := s.Active()
			if p == nil {
				return nil, ErrNoPeer
			}
			return frameView{p.frames}, nil
		},
		Speaker: func(ctx context.Context) (audioio.Speaker, error) {
			p := s.Active()
			if p == nil {
				return nil, ErrNoPeer
			}
			enc, err := opus.NewEncoder(SampleRate, 1, opus.AppVoIP)
			if err != nil {
				return nil, err
			}
			return newSpeaker(p.ID, p.track, enc, s.logger), nil
		},
	}
}

// frameView lends a peer's frame store to one session without letting the
// session close it.
type frameView struct{ *camera.FrameStore }

func (frameView) Close() error { return nil }

// Speaker renders a timeline in 20ms quanta, encodes each busy quantum to
// Opus and writes it to the peer's track. Idle quanta are skipped.
type Speaker struct {
	name     string
	track    sampleWriter
	enc      encoder
	logger   *slog.Logger
	timeline *audioio.Timeline

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}

	written atomic.Int64
}

func newSpeaker(name string, track sampleWriter, enc encoder, logger *slog.Logger) *Speaker {
	return &Speaker{
		name:     "webrtc:" + name,
		track:    track,
		enc:      enc,
		logger:   logger,
		timeline: audioio.NewTimeline(SampleRate),
	}
}

// Start begins pacing the timeline.
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
	go s.pace(ctx, s.stopCh)
	return nil
}

func (s *Speaker) pace(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	pcm := make([]int16, FrameSamples)
	packet := make([]byte, 4000)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.Tick(pcm, packet)
		}
	}
}

// Tick renders one frame into pcm and, if anything was scheduled, encodes
// it into packet and writes it to the track.
func (s *Speaker) Tick(pcm []int16, packet []byte) {
	busy := s.timeline.Pending() > 0
	s.timeline.Render(pcm)
	if !busy {
		return
	}
	n, err := s.enc.Encode(pcm, packet)
	if err != nil {
		s.logger.Debug("opus encode error", "speaker", s.name, "error", err)
		return
	}
	if n == 0 {
		return
	}
	data := append([]byte(nil), packet[:n]...)
	if err := s.track.WriteSample(media.Sample{Data: data, Duration: FrameDuration}); err != nil {
		s.logger.Debug("write sample", "speaker", s.name, "error", err)
		return
	}
	s.written.Add(1)
}

// Timeline returns the playback graph.
func (s *Speaker) Timeline() *audioio.Timeline { return s.timeline }

// Config returns the output format.
func (s *Speaker) Config() audioio.Config {
	return audioio.Config{SampleRate: SampleRate, Channels: 1, BufferDuration: FrameDuration}
}

// Name returns the peer name.
func (s *Speaker) Name() string { return s.name }

// Written returns the number of Opus frames written.
func (s *Speaker) Written() int64 { return s.written.Load() }

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

// RegisterRoutes registers the signalling endpoint.
func (s *Server) RegisterRoutes(api fiber.Router) {
	api.Post("/rtc/offer", func(c *fiber.Ctx) error {
		var offer SessionDescription
		if err := c.BodyParser(&offer); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		answer, err := s.HandleOffer(c.UserContext(), offer)
		if err == ErrInvalidOffer {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(answer)
	})

	api.Get("/rtc/peer", func(c *fiber.Ctx) error {
		p := s.Active()
		if p == nil {
			return c.JSON(fiber.Map{"connected": false})
		}
		return c.JSON(fiber.Map{"connected": true, "id": p.ID, "since": p.Connected})
	})
}
