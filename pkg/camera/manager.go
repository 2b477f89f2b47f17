package camera

import (
	"fmt"
	"sync"
	"time"
)

// Manager holds the current sampling configuration and handles updates.
// The frame sampler reads it on every tick, so changes apply without
// reconnecting.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// Callback when config changes
	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and stores cfg.
func (m *Manager) SetConfig(cfg Config) error {
	if errors := cfg.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}
	return nil
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values, as decoded from JSON. A
// "preset" key replaces the base configuration before other fields apply.
// "interval_ms" sets the interval in milliseconds.
func (m *Manager) UpdateConfig(params map[string]any) error {
	cfg := m.GetConfig()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		device := cfg.Device
		cfg = *preset
		cfg.Device = device
	}

	for key, value := range params {
		v, ok := toInt(value)
		if !ok {
			continue
		}
		switch key {
		case "width":
			cfg.Width = v
		case "height":
			cfg.Height = v
		case "quality":
			cfg.Quality = v
		case "interval_ms":
			cfg.Interval = time.Duration(v) * time.Millisecond
		}
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the configuration with the interval in
// milliseconds, for API responses.
func (m *Manager) GetConfigJSON() map[string]any {
	cfg := m.GetConfig()
	return map[string]any{
		"width":       cfg.Width,
		"height":      cfg.Height,
		"quality":     cfg.Quality,
		"interval_ms": cfg.Interval.Milliseconds(),
		"presets":     PresetNames(),
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	default:
		return 0, false
	}
}
