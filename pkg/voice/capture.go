package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
)

// AudioSender accepts outbound audio.
type AudioSender interface {
	SendAudio(ctx context.Context, m Media) error
}

// Capture streams microphone frames to the remote. Per frame it publishes
// the RMS level, converts to PCM16 at Rate and sends it, in capture order,
// without waiting for any acknowledgement.
type Capture struct {
	Source audioio.Source
	Sender AudioSender
	Rate   int

	// Valid is checked before every frame; capture stops once it reports
	// false.
	Valid func() bool

	// OnLevel receives the RMS level of each frame.
	OnLevel func(level float64)

	// OnSent is called after each successful send with the payload size.
	OnSent func(bytes int)

	Logger *slog.Logger
}

// Run starts the source and pumps frames until ctx ends, the source is
// exhausted, or the session is superseded.
func (c *Capture) Run(ctx context.Context) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := c.Source.Start(ctx); err != nil {
		return err
	}

	var sendFailed bool
	for {
		frame, err := c.Source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if c.Valid != nil && !c.Valid() {
			return nil
		}

		frame = audioio.ResampleFrame(frame, c.Rate)
		if c.OnLevel != nil {
			c.OnLevel(audioio.Level(frame.Samples))
		}

		m := AudioMedia(audioio.ChunkFromFrame(frame))
		if err := c.Sender.SendAudio(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// A broken stream surfaces as an error event; log once.
			if !sendFailed {
				logger.Warn("audio send failed", "error", err)
				sendFailed = true
			}
			continue
		}
		sendFailed = false
		if c.OnSent != nil {
			c.OnSent(len(m.Data))
		}
	}
}
