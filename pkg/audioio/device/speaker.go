package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedContext(rate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if otoErr == nil {
			<-ready
			otoRate = rate
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("device: init oto: %w", otoErr)
	}
	if otoRate != rate {
		return nil, fmt.Errorf("device: output already opened at %d Hz, requested %d Hz", otoRate, rate)
	}
	return otoCtx, nil
}

// Speaker plays a Timeline through the default output device. oto pulls
// from the timeline continuously, so the timeline clock follows the
// sound card.
type Speaker struct {
	cfg      audioio.Config
	logger   *slog.Logger
	timeline *audioio.Timeline

	mu      sync.Mutex
	player  *oto.Player
	running bool
	closed  bool

	rendered atomic.Int64
}

func newSpeaker(cfg audioio.Config, logger *slog.Logger) (audioio.Speaker, error) {
	return NewSpeaker(cfg, logger)
}

// NewSpeaker creates a speaker at cfg.SampleRate.
func NewSpeaker(cfg audioio.Config, logger *slog.Logger) (*Speaker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Channels != 1 {
		return nil, fmt.Errorf("device: speaker supports mono only, got %d channels", cfg.Channels)
	}
	return &Speaker{
		cfg:      cfg,
		logger:   logger.With("component", "speaker"),
		timeline: audioio.NewTimeline(cfg.SampleRate),
	}, nil
}

// Start begins playback.
func (s *Speaker) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	octx, err := sharedContext(s.cfg.SampleRate)
	if err != nil {
		return err
	}

	s.player = octx.NewPlayer(countingReader{r: s.timeline, n: &s.rendered})
	s.player.SetBufferSize(s.cfg.BufferBytes() * 2)
	s.player.Play()
	s.running = true

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			s.Close()
		}()
	}

	s.logger.Info("speaker started", "sample_rate", s.cfg.SampleRate)
	return nil
}

// Timeline returns the playback graph.
func (s *Speaker) Timeline() *audioio.Timeline {
	return s.timeline
}

// Config returns the output configuration.
func (s *Speaker) Config() audioio.Config {
	return s.cfg
}

// Name returns "oto".
func (s *Speaker) Name() string {
	return "oto"
}

// Close stops playback and closes the timeline.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.running = false

	err := s.timeline.Close()
	if s.player != nil {
		if cerr := s.player.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.player = nil
	}
	return err
}

// Stats returns playback statistics.
func (s *Speaker) Stats() audioio.SpeakerStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return audioio.SpeakerStats{
		SamplesRendered: s.rendered.Load() / 2,
		Running:         running,
		Backend:         s.Name(),
	}
}

var _ audioio.SpeakerWithStats = (*Speaker)(nil)

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
