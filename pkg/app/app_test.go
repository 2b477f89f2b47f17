package app

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/pkg/voice"
)

func testConfig(media string) *config.Config {
	cfg := config.Default()
	cfg.Voice.Provider = config.ProviderMock
	cfg.Media = media
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Shutdown)
	return a
}

func get(t *testing.T, a *App, path string) int {
	t.Helper()
	resp, err := a.Web().App().Test(httptest.NewRequest("GET", path, nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestNewValidates(t *testing.T) {
	cfg := testConfig(config.MediaMock)
	cfg.Voice.Provider = "bogus"
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected validation error")
	}
}

func TestVoiceConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Voice.Provider = config.ProviderGeminiWS
	cfg.Voice.Auth = "oauth"
	cfg.Voice.Mode = "audio+video"
	cfg.Voice.Voice = "Kore"
	cfg.Voice.ConnectTimeout = 3 * time.Second
	cfg.Audio.InputRate = 16000
	cfg.Audio.OutputRate = 24000

	vc, err := VoiceConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if vc.Provider != voice.ProviderGeminiWS || !vc.UseOAuth {
		t.Errorf("unexpected auth %+v", vc)
	}
	if vc.Mode != voice.ModeAudioVideo || vc.Voice != "Kore" || vc.ConnectTimeout != 3*time.Second {
		t.Errorf("unexpected config %+v", vc)
	}
}

func TestAudioConfigs(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.InputDevice = "USB Mic"
	cfg.Audio.FrameSize = 100 * time.Millisecond
	in, out := AudioConfigs(cfg)
	if in.SampleRate != 16000 || in.BufferDuration != 100*time.Millisecond || in.Device != "USB Mic" {
		t.Errorf("unexpected input %+v", in)
	}
	if out.SampleRate != 24000 {
		t.Errorf("unexpected output %+v", out)
	}
}

func TestMockSessionConnects(t *testing.T) {
	a := newApp(t, testConfig(config.MediaMock))

	if get(t, a, "/api/status") != 200 {
		t.Fatal("status endpoint not mounted")
	}
	if a.Chat() == nil {
		t.Fatal("expected echo chat with mock provider")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Session().SetMode(ctx, voice.ModeAudioVideo); err != nil {
		t.Fatal(err)
	}
	if err := a.Session().Connect(ctx); err != nil {
		t.Fatalf("connect with mock media: %v", err)
	}
	if err := a.Session().Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDeviceBackendRoutes(t *testing.T) {
	a := newApp(t, testConfig(config.MediaDevice))
	if get(t, a, "/api/devices/") != 200 {
		t.Error("device API not mounted")
	}
	// No device is connected, so connecting fails fast.
	if err := a.Session().Connect(context.Background()); err == nil {
		t.Error("expected connect to fail without a device")
	}
	if a.Session().Status() != voice.StatusError {
		t.Errorf("status = %s", a.Session().Status())
	}
}

func TestWebRTCBackendRoutes(t *testing.T) {
	a := newApp(t, testConfig(config.MediaWebRTC))
	if get(t, a, "/api/rtc/peer") != 200 {
		t.Error("rtc API not mounted")
	}
}

func TestChatDisabled(t *testing.T) {
	cfg := testConfig(config.MediaMock)
	cfg.Chat.Enabled = false
	a := newApp(t, cfg)
	if a.Chat() != nil {
		t.Error("chat should be disabled")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	a := newApp(t, testConfig(config.MediaMock))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
