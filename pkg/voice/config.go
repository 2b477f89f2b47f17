package voice

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
)

// Provider identifies the remote streaming implementation.
type Provider string

const (
	// ProviderGemini uses the Gemini Live API through google.golang.org/genai.
	ProviderGemini Provider = "gemini"

	// ProviderGeminiWS speaks the Gemini Live websocket protocol directly.
	ProviderGeminiWS Provider = "gemini-ws"

	// ProviderMock is an in-process remote for tests and demos.
	ProviderMock Provider = "mock"
)

// Mode selects which media the session captures.
type Mode string

const (
	ModeAudio      Mode = "audio"
	ModeAudioVideo Mode = "audio+video"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAudio || m == ModeAudioVideo
}

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("voice: unknown mode %q", s)
	}
	return m, nil
}

// Config holds the parameters of a live session.
type Config struct {
	// Provider selection
	Provider Provider

	// Authentication. UseOAuth authenticates the websocket provider with
	// Application Default Credentials instead of an API key.
	APIKey   string
	UseOAuth bool

	// Endpoint overrides the provider's default URL.
	Endpoint string

	// Model settings
	Model        string
	Voice        string
	SystemPrompt string

	// Audio settings
	InputSampleRate  int // Outbound PCM rate (default: 16000)
	OutputSampleRate int // Inbound PCM rate (default: 24000)

	// Mode is the capture mode used by the next Connect.
	Mode Mode

	// ConnectTimeout bounds device acquisition plus the remote handshake.
	// Zero disables the bound.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a Config with defaults for Gemini Live.
func DefaultConfig() Config {
	return Config{
		Provider:         ProviderGemini,
		Model:            "gemini-2.5-flash-native-audio-preview-09-2025",
		Voice:            "Puck",
		InputSampleRate:  audioio.InputSampleRate,
		OutputSampleRate: audioio.OutputSampleRate,
		Mode:             ModeAudio,
		ConnectTimeout:   15 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return errors.New("voice: provider required")
	}
	if c.Provider != ProviderMock && !c.UseOAuth && c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.UseOAuth && c.Provider == ProviderGemini {
		return errors.New("voice: oauth is only supported by the gemini-ws provider")
	}
	if c.Model == "" && c.Provider != ProviderMock {
		return errors.New("voice: model required")
	}
	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		return errors.New("voice: sample rates must be positive")
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("voice: unknown mode %q", c.Mode)
	}
	if c.ConnectTimeout < 0 {
		return errors.New("voice: connect timeout cannot be negative")
	}
	return nil
}

// WithProvider returns a copy with the provider set.
func (c Config) WithProvider(p Provider) Config {
	c.Provider = p
	return c
}

// WithAPIKey returns a copy with the API key set.
func (c Config) WithAPIKey(key string) Config {
	c.APIKey = key
	return c
}

// WithSystemPrompt returns a copy with the system prompt set.
func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}

// WithMode returns a copy with the capture mode set.
func (c Config) WithMode(m Mode) Config {
	c.Mode = m
	return c
}
