package audioio

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// DeviceInfo describes a capture or playback device.
type DeviceInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	Capture   bool   `json:"capture"`
}

// Driver constructs sources and speakers for one hardware backend.
type Driver struct {
	NewSource  func(cfg Config, logger *slog.Logger) (Source, error)
	NewSpeaker func(cfg Config, logger *slog.Logger) (Speaker, error)
	Devices    func() ([]DeviceInfo, error)
}

var (
	driversMu sync.RWMutex
	drivers   = map[Backend]Driver{}
)

// RegisterBackend makes a hardware backend available to NewSource and
// NewSpeaker. It is typically called from a driver package's init.
func RegisterBackend(b Backend, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[b] = d
}

// AvailableBackends returns the registered backends plus mock.
func AvailableBackends() []Backend {
	driversMu.RLock()
	defer driversMu.RUnlock()

	backends := []Backend{BackendMock}
	for b := range drivers {
		backends = append(backends, b)
	}
	sort.Slice(backends[1:], func(i, j int) bool { return backends[i+1] < backends[j+1] })
	return backends
}

func resolve(b Backend) (Backend, Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()

	if b == BackendAuto {
		if d, ok := drivers[BackendMalgo]; ok {
			return BackendMalgo, d, true
		}
		return BackendMock, Driver{}, false
	}
	d, ok := drivers[b]
	return b, d, ok
}

// NewSource creates a new audio source with the given configuration.
// If cfg.Backend is BackendAuto, the best registered backend is selected.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend, d, ok := resolve(cfg.Backend)
	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	if backend == BackendMock {
		return NewMockSource(cfg, logger), nil
	}
	if !ok || d.NewSource == nil {
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
	return d.NewSource(cfg, logger)
}

// NewSpeaker creates a new speaker with the given configuration.
// If cfg.Backend is BackendAuto, the best registered backend is selected.
func NewSpeaker(cfg Config, logger *slog.Logger) (Speaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend, d, ok := resolve(cfg.Backend)
	logger.Info("creating speaker",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	if backend == BackendMock {
		return NewMockSpeaker(cfg, logger), nil
	}
	if !ok || d.NewSpeaker == nil {
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
	return d.NewSpeaker(cfg, logger)
}

// ListDevices returns the devices of a backend.
func ListDevices(b Backend) ([]DeviceInfo, error) {
	backend, d, ok := resolve(b)
	if backend == BackendMock {
		return []DeviceInfo{
			{ID: "mock-in", Name: "Mock microphone", IsDefault: true, Capture: true},
			{ID: "mock-out", Name: "Mock speaker", IsDefault: true},
		}, nil
	}
	if !ok || d.Devices == nil {
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
	return d.Devices()
}
