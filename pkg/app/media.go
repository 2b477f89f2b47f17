package app

import (
	"context"
	"image"
	"image/color"
	"log/slog"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/camera"
	"github.com/teslashibe/go-voicechat/pkg/device"
	"github.com/teslashibe/go-voicechat/pkg/rtc"
	"github.com/teslashibe/go-voicechat/pkg/voice"
)

// media builds the session devices for the configured backend.
func (a *App) media() (voice.Devices, error) {
	cfg := a.config
	in, out := AudioConfigs(cfg)

	switch cfg.Media {
	case config.MediaDevice:
		a.devices = device.NewHub(a.logger)
		return a.devices.Devices(in, out), nil
	case config.MediaWebRTC:
		a.rtc = rtc.NewServer(cfg.Server.ICEServers, a.logger)
		return a.rtc.Devices(in), nil
	case config.MediaMock:
		return MockDevices(in, out, a.logger), nil
	case config.MediaLocal:
		return LocalDevices(in, out, cfg.Camera.Device, a.logger), nil
	}
	return voice.Devices{}, &config.ConfigError{Field: "media", Message: "unknown media backend " + cfg.Media}
}

// LocalDevices opens this machine's microphone, speaker and camera
// through the registered audio and camera drivers.
func LocalDevices(in, out audioio.Config, cameraDevice int, logger *slog.Logger) voice.Devices {
	return voice.Devices{
		Microphone: func(ctx context.Context) (audioio.Source, error) {
			return audioio.NewSource(in, logger)
		},
		Speaker: func(ctx context.Context) (audioio.Speaker, error) {
			return audioio.NewSpeaker(out, logger)
		},
		Camera: func(ctx context.Context) (camera.Source, error) {
			return camera.Open(cameraDevice)
		},
	}
}

// MockDevices returns a sine-wave microphone, a speaker that drains in
// real time, and a camera showing a test pattern.
func MockDevices(in, out audioio.Config, logger *slog.Logger) voice.Devices {
	pattern := testPattern(640, 480)
	return voice.Devices{
		Microphone: func(ctx context.Context) (audioio.Source, error) {
			return audioio.NewMockSource(in, logger, audioio.WithSineWave(220, 0.2)), nil
		},
		Speaker: func(ctx context.Context) (audioio.Speaker, error) {
			return audioio.NewMockSpeaker(out, logger), nil
		},
		Camera: func(ctx context.Context) (camera.Source, error) {
			return &camera.StaticSource{Image: pattern}, nil
		},
	}
}

func testPattern(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 160, A: 255})
		}
	}
	return img
}
