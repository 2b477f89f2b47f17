package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/pkg/voice"
)

func TestTurnPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newTurnPrinter(&buf)

	p.update(voice.State{Status: voice.StatusConnecting})
	p.update(voice.State{Status: voice.StatusListening})
	p.update(voice.State{Status: voice.StatusListening, InputTranscript: "hello", Language: "en"})
	p.update(voice.State{Status: voice.StatusSpeaking, InputTranscript: "hello", OutputTranscript: "hi there"})
	p.update(voice.State{Status: voice.StatusListening})

	out := buf.String()
	for _, want := range []string{"connecting", "listening", "speaking", "You (en): hello", "Gemini: hi there"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "hi there"); n != 1 {
		t.Errorf("turn printed %d times, want 1", n)
	}

	p.flush()
	if strings.Count(buf.String(), "hi there") != 1 {
		t.Error("flush reprinted a finished turn")
	}
}

func TestTurnPrinterFlush(t *testing.T) {
	var buf bytes.Buffer
	p := newTurnPrinter(&buf)
	p.update(voice.State{Status: voice.StatusListening, InputTranscript: "unfinished"})
	p.flush()
	if !strings.Contains(buf.String(), "You: unfinished") {
		t.Errorf("flush = %q", buf.String())
	}
}

func TestTurnPrinterError(t *testing.T) {
	var buf bytes.Buffer
	p := newTurnPrinter(&buf)
	p.update(voice.State{Status: voice.StatusError, Error: "dial failed"})
	if !strings.Contains(buf.String(), "dial failed") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	configPath, logLevel = "", "error"
	defer func() { logLevel = "" }()

	cfg, err := loadConfig(overrides{provider: config.ProviderMock, media: config.MediaMock, mode: "audio+video", addr: ":9999"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Voice.Provider != config.ProviderMock || cfg.Media != config.MediaMock {
		t.Errorf("provider=%q media=%q", cfg.Voice.Provider, cfg.Media)
	}
	if cfg.Voice.Mode != "audio+video" || cfg.Server.Addr != ":9999" {
		t.Errorf("mode=%q addr=%q", cfg.Voice.Mode, cfg.Server.Addr)
	}

	if _, err := loadConfig(overrides{provider: config.ProviderMock, media: "bogus"}); err == nil {
		t.Error("expected error for unknown media")
	}
}

func TestDevicesCommand(t *testing.T) {
	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"devices", "--backend", "mock"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Mock microphone") || !strings.Contains(out, "capture") {
		t.Errorf("output = %q", out)
	}
}

func TestTalkRejectsRemoteMedia(t *testing.T) {
	cfg := config.Default()
	cfg.Voice.Provider = config.ProviderMock
	cfg.Media = config.MediaDevice
	var buf bytes.Buffer
	if err := talk(t.Context(), cfg, &buf); err == nil {
		t.Error("expected error for device media")
	}
}
