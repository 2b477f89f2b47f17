// Package config loads go-voicechat configuration from a YAML file,
// a .env file, and environment variables, in that order of precedence
// (later sources win).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "voicechat.yaml"

// Providers understood by the voice layer.
const (
	ProviderGemini   = "gemini"
	ProviderGeminiWS = "gemini-ws"
	ProviderMock     = "mock"
)

// Media backends.
const (
	MediaLocal  = "local"
	MediaDevice = "device"
	MediaWebRTC = "webrtc"
	MediaMock   = "mock"
)

// Config is the full application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Voice  VoiceConfig  `yaml:"voice"`
	Audio  AudioConfig  `yaml:"audio"`
	Camera CameraConfig `yaml:"camera"`
	Chat   ChatConfig   `yaml:"chat"`
	Log    LogConfig    `yaml:"log"`

	// Media selects where microphone, camera and speaker live.
	Media string `yaml:"media"`
}

// ServerConfig configures the dashboard and control API.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	StaticDir   string   `yaml:"static_dir"`

	// ICEServers are STUN/TURN URLs for the webrtc media backend.
	ICEServers []string `yaml:"ice_servers"`
}

// VoiceConfig configures the live session.
type VoiceConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	Voice          string        `yaml:"voice"`
	SystemPrompt   string        `yaml:"system_prompt"`
	Mode           string        `yaml:"mode"`
	Endpoint       string        `yaml:"endpoint"`
	Auth           string        `yaml:"auth"` // "apikey" or "oauth"
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// APIKey normally comes from GOOGLE_API_KEY or GEMINI_API_KEY.
	APIKey string `yaml:"api_key"`
}

// AudioConfig configures capture and playback.
type AudioConfig struct {
	InputRate    int           `yaml:"input_rate"`
	OutputRate   int           `yaml:"output_rate"`
	FrameSize    time.Duration `yaml:"frame_size"`
	InputDevice  string        `yaml:"input_device"`
	OutputDevice string        `yaml:"output_device"`
}

// CameraConfig configures the frame sampler and local camera.
type CameraConfig struct {
	Device   int           `yaml:"device"`
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	Quality  int           `yaml:"quality"`
	Interval time.Duration `yaml:"interval"`
}

// ChatConfig configures the text chat.
type ChatConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8181",
			CORSOrigins: []string{"*"},
			ICEServers:  []string{"stun:stun.l.google.com:19302"},
		},
		Voice: VoiceConfig{
			Provider:       ProviderGemini,
			Model:          "gemini-2.5-flash-native-audio-preview-09-2025",
			Voice:          "Puck",
			SystemPrompt:   "You are a helpful, friendly voice assistant. Keep answers short. Start every reply with the language code of the user's speech in brackets, for example [EN].",
			Mode:           "audio",
			Auth:           "apikey",
			ConnectTimeout: 15 * time.Second,
		},
		Audio: AudioConfig{
			InputRate:  16000,
			OutputRate: 24000,
			FrameSize:  256 * time.Millisecond,
		},
		Camera: CameraConfig{
			Width:    320,
			Height:   240,
			Quality:  50,
			Interval: 500 * time.Millisecond,
		},
		Chat: ChatConfig{
			Enabled: true,
			Model:   "gemini-2.5-flash",
		},
		Log:   LogConfig{Level: "info"},
		Media: MediaLocal,
	}
}

// Load reads configuration with Read and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads configuration from path (DefaultPath when empty), then .env,
// then the environment, without validating. A missing default file is not
// an error; a missing explicit file is.
func Read(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := cfg.ReadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ReadFile merges YAML from path over the current values.
func (c *Config) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies environment variable overrides.
func (c *Config) ApplyEnv() {
	if key := firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY"); key != "" {
		c.Voice.APIKey = key
	}
	if v := os.Getenv("VOICECHAT_PROVIDER"); v != "" {
		c.Voice.Provider = v
	}
	if v := os.Getenv("VOICECHAT_MODEL"); v != "" {
		c.Voice.Model = v
	}
	if v := os.Getenv("VOICECHAT_MODE"); v != "" {
		c.Voice.Mode = v
	}
	if v := os.Getenv("VOICECHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("VOICECHAT_MEDIA"); v != "" {
		c.Media = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// NeedsAPIKey reports whether the configured provider authenticates with
// an API key.
func (c *Config) NeedsAPIKey() bool {
	switch c.Voice.Provider {
	case ProviderMock:
		return false
	case ProviderGeminiWS:
		return c.Voice.Auth != "oauth"
	default:
		return true
	}
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	switch c.Voice.Provider {
	case ProviderGemini, ProviderGeminiWS, ProviderMock:
	default:
		return &ConfigError{Field: "voice.provider", Message: fmt.Sprintf("unknown provider %q", c.Voice.Provider)}
	}
	if c.NeedsAPIKey() && c.Voice.APIKey == "" {
		return &ConfigError{Field: "voice.api_key", Message: "GOOGLE_API_KEY (or GEMINI_API_KEY) environment variable is required"}
	}
	switch c.Voice.Mode {
	case "audio", "audio+video":
	default:
		return &ConfigError{Field: "voice.mode", Message: fmt.Sprintf("mode must be audio or audio+video, got %q", c.Voice.Mode)}
	}
	switch c.Media {
	case MediaLocal, MediaDevice, MediaWebRTC, MediaMock:
	default:
		return &ConfigError{Field: "media", Message: fmt.Sprintf("unknown media backend %q", c.Media)}
	}
	if c.Audio.InputRate <= 0 || c.Audio.OutputRate <= 0 {
		return &ConfigError{Field: "audio", Message: "sample rates must be positive"}
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return &ConfigError{Field: "camera", Message: "frame size must be positive"}
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		return &ConfigError{Field: "camera.quality", Message: "quality must be between 1 and 100"}
	}
	if c.Camera.Interval <= 0 {
		return &ConfigError{Field: "camera.interval", Message: "interval must be positive"}
	}
	if c.Voice.ConnectTimeout < 0 {
		return &ConfigError{Field: "voice.connect_timeout", Message: "connect timeout cannot be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
