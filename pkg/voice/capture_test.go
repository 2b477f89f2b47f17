package voice

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/camera"
)

func TestCaptureSendsPCM(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.SampleRate = 48000
	cfg.BufferDuration = 10 * time.Millisecond
	src := audioio.NewMockSource(cfg, nil, audioio.WithSineWave(440, 0.5))
	defer src.Close()

	remote := NewMockRemote()
	var levels atomic.Int64

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := &Capture{
		Source:  src,
		Sender:  remote,
		Rate:    16000,
		OnLevel: func(l float64) { levels.Add(1) },
	}
	go func() { done <- c.Run(ctx) }()

	waitFor(t, func() bool { return len(remote.SentAudio()) >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	sent := remote.SentAudio()
	for _, m := range sent {
		if m.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("unexpected mime %q", m.MIMEType)
		}
		// 10ms at 16kHz mono PCM16.
		if len(m.Data) != 320 {
			t.Errorf("expected 320 bytes, got %d", len(m.Data))
		}
	}
	if levels.Load() < int64(len(sent)) {
		t.Errorf("expected a level per frame, got %d levels for %d frames", levels.Load(), len(sent))
	}
}

func TestCaptureStopsWhenInvalid(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond
	src := audioio.NewMockSource(cfg, nil)
	defer src.Close()

	remote := NewMockRemote()
	var valid atomic.Bool
	valid.Store(true)

	done := make(chan error, 1)
	c := &Capture{Source: src, Sender: remote, Rate: 16000, Valid: valid.Load}
	go func() { done <- c.Run(context.Background()) }()

	waitFor(t, func() bool { return len(remote.SentAudio()) >= 1 })
	valid.Store(false)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not stop after token invalidation")
	}
}

func TestCaptureKeepsGoingOnSendError(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond
	src := audioio.NewMockSource(cfg, nil)
	defer src.Close()

	remote := NewMockRemote()
	remote.SendErr = errors.New("broken pipe")

	var frames atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := &Capture{
		Source:  src,
		Sender:  remote,
		Rate:    16000,
		OnLevel: func(float64) { frames.Add(1) },
	}
	go func() { done <- c.Run(ctx) }()

	waitFor(t, func() bool { return frames.Load() >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected nil after cancel, got %v", err)
	}
}

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func TestFrameSamplerSample(t *testing.T) {
	remote := NewMockRemote()
	var hooked int
	f := &FrameSampler{
		Source:  &camera.StaticSource{Image: solidImage(640, 480)},
		Sender:  remote,
		OnFrame: func([]byte) { hooked++ },
	}

	sent, err := f.Sample(context.Background())
	if err != nil || !sent {
		t.Fatalf("expected a frame sent, got sent=%v err=%v", sent, err)
	}
	images := remote.SentImages()
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	if images[0].MIMEType != "image/jpeg" {
		t.Errorf("unexpected mime %q", images[0].MIMEType)
	}
	if hooked != 1 {
		t.Errorf("expected frame hook once, got %d", hooked)
	}
}

func TestFrameSamplerNoFrame(t *testing.T) {
	remote := NewMockRemote()
	f := &FrameSampler{Source: &camera.StaticSource{}, Sender: remote}

	sent, err := f.Sample(context.Background())
	if err != nil {
		t.Errorf("missing frame should not be an error, got %v", err)
	}
	if sent {
		t.Error("expected nothing sent")
	}
}

func TestFrameSamplerSkipsWhenInvalid(t *testing.T) {
	remote := NewMockRemote()
	f := &FrameSampler{
		Source: &camera.StaticSource{Image: solidImage(320, 240)},
		Sender: remote,
		Valid:  func() bool { return false },
	}

	if sent, _ := f.Sample(context.Background()); sent {
		t.Error("expected no frame for a stale session")
	}
	if len(remote.SentImages()) != 0 {
		t.Error("expected no images sent")
	}
}

func TestFrameSamplerRunUsesInterval(t *testing.T) {
	remote := NewMockRemote()
	cfg := camera.DefaultConfig()
	cfg.Interval = 100 * time.Millisecond

	f := &FrameSampler{
		Source: &camera.StaticSource{Image: solidImage(320, 240)},
		Sender: remote,
		Config: func() camera.Config { return cfg },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return len(remote.SentImages()) >= 2 })
	cancel()
	<-done
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
