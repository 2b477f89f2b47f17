// Package app wires configuration, media, the live session and the
// dashboard into one runnable service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/camera"
	"github.com/teslashibe/go-voicechat/pkg/chat"
	"github.com/teslashibe/go-voicechat/pkg/device"
	"github.com/teslashibe/go-voicechat/pkg/metrics"
	"github.com/teslashibe/go-voicechat/pkg/rtc"
	"github.com/teslashibe/go-voicechat/pkg/voice"
	_ "github.com/teslashibe/go-voicechat/pkg/voice/bundled"
	"github.com/teslashibe/go-voicechat/pkg/web"
)

// App is the main application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config *config.Config
	logger *slog.Logger

	session *voice.Session
	metrics *metrics.Metrics
	chat    *chat.Conversation
	web     *web.Server

	// Remote media backends, when selected.
	devices *device.Hub
	rtc     *rtc.Server
}

// New creates an application. cfg must already be validated.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{config: cfg, logger: log.Or(logger)}, nil
}

// Init builds every component. Call it once before Run.
func (a *App) Init(ctx context.Context) error {
	cfg := a.config

	a.web = web.NewServer(web.Config{
		Addr:        cfg.Server.Addr,
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
		Debug:       log.ParseLevel(cfg.Log.Level) == slog.LevelDebug,
	}, a.logger)
	// Everything from here on is mirrored to the dashboard log.
	a.logger = slog.New(a.web.LogHandler(a.logger.Handler()))

	vc, err := VoiceConfig(cfg)
	if err != nil {
		return err
	}

	devs, err := a.media()
	if err != nil {
		return fmt.Errorf("media: %w", err)
	}

	a.metrics = metrics.New("voicechat")
	a.session, err = voice.NewSession(vc, devs,
		voice.WithLogger(a.logger),
		voice.WithObserver(a.metrics),
		voice.WithCameraManager(camera.NewManager(CameraConfig(cfg))),
		voice.WithFrameHook(a.web.SendCameraFrame),
	)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if cfg.Chat.Enabled {
		gen, err := a.chatGenerator(ctx)
		if err != nil {
			a.logger.Warn("text chat disabled", "error", err)
		} else {
			a.chat = chat.NewConversation(gen, a.logger)
		}
	}

	a.web.Mount(web.Services{
		Session: a.session,
		Chat:    a.chat,
		Metrics: a.metrics,
		Devices: a.devices,
		RTC:     a.rtc,
	})
	return nil
}

func (a *App) chatGenerator(ctx context.Context) (chat.Generator, error) {
	cfg := a.config
	if cfg.Voice.Provider == config.ProviderMock {
		return chat.Echo{}, nil
	}
	prompt := cfg.Chat.SystemPrompt
	if prompt == "" {
		prompt = cfg.Voice.SystemPrompt
	}
	return chat.NewGenAI(ctx, chat.GenAIConfig{
		APIKey:       cfg.Voice.APIKey,
		Model:        cfg.Chat.Model,
		SystemPrompt: prompt,
	})
}

// Run serves the dashboard until ctx ends or the listener fails. It does
// not connect the session; clients do that through the API.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.web.Start(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown closes the session and stops the server.
func (a *App) Shutdown() {
	if a.session != nil {
		a.session.Shutdown()
	}
	if a.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.web.Shutdown(ctx); err != nil {
			a.logger.Warn("web shutdown", "error", err)
		}
	}
}

// Session returns the live session.
func (a *App) Session() *voice.Session { return a.session }

// Chat returns the text conversation, or nil when chat is disabled.
func (a *App) Chat() *chat.Conversation { return a.chat }

// Web returns the dashboard server.
func (a *App) Web() *web.Server { return a.web }

// VoiceConfig maps application configuration to the session's.
func VoiceConfig(cfg *config.Config) (voice.Config, error) {
	mode, err := voice.ParseMode(cfg.Voice.Mode)
	if err != nil {
		return voice.Config{}, err
	}
	vc := voice.DefaultConfig()
	vc.Provider = voice.Provider(cfg.Voice.Provider)
	vc.APIKey = cfg.Voice.APIKey
	vc.UseOAuth = cfg.Voice.Auth == "oauth"
	vc.Endpoint = cfg.Voice.Endpoint
	vc.Model = cfg.Voice.Model
	vc.Voice = cfg.Voice.Voice
	vc.SystemPrompt = cfg.Voice.SystemPrompt
	vc.Mode = mode
	vc.ConnectTimeout = cfg.Voice.ConnectTimeout
	vc.InputSampleRate = cfg.Audio.InputRate
	vc.OutputSampleRate = cfg.Audio.OutputRate
	return vc, vc.Validate()
}

// CameraConfig maps application configuration to frame sampling settings.
func CameraConfig(cfg *config.Config) camera.Config {
	cc := camera.DefaultConfig()
	cc.Device = cfg.Camera.Device
	cc.Width = cfg.Camera.Width
	cc.Height = cfg.Camera.Height
	cc.Quality = cfg.Camera.Quality
	cc.Interval = cfg.Camera.Interval
	return cc
}

// AudioConfigs returns the capture and playback configurations.
func AudioConfigs(cfg *config.Config) (input, output audioio.Config) {
	input = audioio.DefaultConfig()
	input.SampleRate = cfg.Audio.InputRate
	if cfg.Audio.FrameSize > 0 {
		input.BufferDuration = cfg.Audio.FrameSize
	}
	input.Device = cfg.Audio.InputDevice

	output = audioio.DefaultOutputConfig()
	output.SampleRate = cfg.Audio.OutputRate
	output.Device = cfg.Audio.OutputDevice
	return input, output
}
