package camera

import "time"

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLow     = "low"
	PresetDetail  = "detail"
	PresetFast    = "fast"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     LowBandwidthConfig(),
		PresetDetail:  DetailConfig(),
		PresetFast:    FastConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, PresetLow, PresetDetail, PresetFast}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LowBandwidthConfig halves resolution and sends a frame per second.
func LowBandwidthConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 160
	cfg.Height = 120
	cfg.Quality = 40
	cfg.Interval = time.Second
	return cfg
}

// DetailConfig sends VGA frames for reading text or small objects.
func DetailConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	cfg.Quality = 70
	return cfg
}

// FastConfig samples four frames a second.
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.Interval = 250 * time.Millisecond
	return cfg
}
