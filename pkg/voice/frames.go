package voice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/camera"
)

// ImageSender accepts outbound image frames.
type ImageSender interface {
	SendImage(ctx context.Context, m Media) error
}

// FrameSampler sends a downscaled JPEG of the latest camera frame at a
// fixed interval.
type FrameSampler struct {
	Source camera.Source
	Sender ImageSender

	// Config is read on every tick so size, quality and interval can
	// change while the session runs.
	Config func() camera.Config

	// Valid is checked before capture and again before sending; a frame
	// captured for a superseded session is discarded.
	Valid func() bool

	// OnFrame receives every frame that was sent.
	OnFrame func(jpeg []byte)

	Logger *slog.Logger
}

// Run samples frames until ctx ends or the session is superseded.
func (f *FrameSampler) Run(ctx context.Context) {
	timer := time.NewTimer(f.config().Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if f.Valid != nil && !f.Valid() {
				return
			}
			if _, err := f.Sample(ctx); err != nil && ctx.Err() == nil {
				f.logger().Debug("frame sample failed", "error", err)
			}
			timer.Reset(f.config().Interval)
		}
	}
}

// Sample captures, encodes and sends one frame. It reports whether a
// frame was sent. A missing frame is not an error.
func (f *FrameSampler) Sample(ctx context.Context) (bool, error) {
	if f.Valid != nil && !f.Valid() {
		return false, nil
	}

	img, err := f.Source.Frame(ctx)
	if errors.Is(err, camera.ErrNoFrame) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	data, err := camera.Encode(img, f.config())
	if err != nil {
		return false, err
	}

	if f.Valid != nil && !f.Valid() {
		return false, nil
	}
	if err := f.Sender.SendImage(ctx, ImageMedia(data)); err != nil {
		return false, err
	}
	if f.OnFrame != nil {
		f.OnFrame(data)
	}
	return true, nil
}

func (f *FrameSampler) config() camera.Config {
	if f.Config == nil {
		return camera.DefaultConfig()
	}
	return f.Config()
}

func (f *FrameSampler) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}
