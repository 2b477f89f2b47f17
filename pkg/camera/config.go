// Package camera provides the frames sent to the model during an
// audio+video session: sources that yield the latest camera image, and the
// downscale + JPEG encoding applied before each frame is sent.
package camera

import (
	"fmt"
	"time"
)

// Limits for runtime-configurable values.
const (
	MinWidth    = 80
	MaxWidth    = 1920
	MinHeight   = 60
	MaxHeight   = 1080
	MinInterval = 100 * time.Millisecond
	MaxInterval = 10 * time.Second
)

// Config controls how frames are sampled and encoded.
type Config struct {
	Width    int           `json:"width"`    // Encoded frame width in pixels
	Height   int           `json:"height"`   // Encoded frame height in pixels
	Quality  int           `json:"quality"`  // JPEG quality 1-100
	Interval time.Duration `json:"interval"` // Time between sampled frames

	// Device is the local capture device index (OpenCV backend only).
	Device int `json:"device"`
}

// DefaultConfig returns the live-session configuration: 320x240 JPEG at
// quality 50, one frame every 500ms.
func DefaultConfig() Config {
	return Config{
		Width:    320,
		Height:   240,
		Quality:  50,
		Interval: 500 * time.Millisecond,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.Interval < MinInterval || c.Interval > MaxInterval {
		errors = append(errors, fmt.Sprintf("interval must be between %v and %v", MinInterval, MaxInterval))
	}
	return errors
}
