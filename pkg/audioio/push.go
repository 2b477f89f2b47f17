package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// PushSource is a Source fed by an external producer, such as a remote
// device connection or a WebRTC track. Frames pushed while the source is
// stopped, or while the reader lags, are dropped.
type PushSource struct {
	cfg    Config
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Frame

	framesRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewPushSource creates a push-fed source. Pushed frames are resampled
// to cfg.SampleRate mono.
func NewPushSource(cfg Config, name string, logger *slog.Logger) *PushSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushSource{
		cfg:      cfg,
		name:     name,
		logger:   logger,
		streamCh: make(chan Frame, 32),
	}
}

// Push delivers a frame to readers. It never blocks.
func (p *PushSource) Push(f Frame) {
	f = ResampleFrame(f, p.cfg.SampleRate)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	select {
	case p.streamCh <- f:
		p.framesRead.Add(1)
		p.samplesRead.Add(int64(len(f.Samples)))
	default:
		p.overruns.Add(1)
	}
}

// Start begins accepting frames.
func (p *PushSource) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}
	p.running = true
	p.streamCh = make(chan Frame, 32)

	if done := ctx.Done(); done != nil {
		go func(ch chan Frame) {
			<-done
			p.stopStream(ch)
		}(p.streamCh)
	}
	return nil
}

// Stop halts delivery and closes the stream.
func (p *PushSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false
	close(p.streamCh)
	return nil
}

// stopStream stops the source only if ch is still the live stream, so a
// stale context cannot stop a restarted source.
func (p *PushSource) stopStream(ch chan Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && p.streamCh == ch {
		p.running = false
		close(p.streamCh)
	}
}

// Read reads the next frame.
func (p *PushSource) Read(ctx context.Context) (Frame, error) {
	return readFrame(ctx, p.Stream())
}

// Stream returns the frame channel.
func (p *PushSource) Stream() <-chan Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamCh
}

// Config returns the audio configuration.
func (p *PushSource) Config() Config {
	return p.cfg
}

// Name returns the producer name.
func (p *PushSource) Name() string {
	return p.name
}

// Close stops the source for good.
func (p *PushSource) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.Stop()
}

// Stats returns source statistics.
func (p *PushSource) Stats() SourceStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return SourceStats{
		FramesRead:  p.framesRead.Load(),
		SamplesRead: p.samplesRead.Load(),
		Overruns:    p.overruns.Load(),
		Running:     running,
		Backend:     p.name,
	}
}

var _ SourceWithStats = (*PushSource)(nil)
