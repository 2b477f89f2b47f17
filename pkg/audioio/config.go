// Package audioio provides audio capture, PCM conversion and scheduled
// playback.
//
// Capture backends deliver float32 frames through Source. Playback is
// modelled as a Timeline: a sample-clocked graph onto which audio chunks
// are scheduled at absolute output times. A Speaker drains the timeline
// into a device, a remote peer, or nowhere (mock).
//
// Hardware backends live in audioio/device and register themselves with
// RegisterBackend, so this package stays free of cgo.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects the first registered hardware backend, falling
	// back to mock.
	BackendAuto Backend = "auto"
	// BackendMalgo uses miniaudio (via malgo) for capture and oto for
	// playback.
	BackendMalgo Backend = "malgo"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Standard rates for the live session.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of capture frames and render quanta.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is a backend-specific device name. Empty selects the
	// system default.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns the capture configuration: 16 kHz mono with
// 256ms frames (4096 samples).
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     InputSampleRate,
		Channels:       1,
		BufferDuration: 256 * time.Millisecond,
	}
}

// DefaultOutputConfig returns the playback configuration: 24 kHz mono
// rendered in 20ms quanta.
func DefaultOutputConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     OutputSampleRate,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per buffer (per channel).
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
