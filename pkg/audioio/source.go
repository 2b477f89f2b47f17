package audioio

import (
	"context"
	"io"
	"time"
)

// Frame is a block of captured float32 samples in [-1, 1].
type Frame struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the frame duration.
func (f Frame) Duration() time.Duration {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return SamplesToDuration(int64(len(f.Samples)/ch), f.SampleRate)
}

// Mono returns the frame downmixed to a single channel.
func (f Frame) Mono() Frame {
	if f.Channels <= 1 {
		return f
	}
	n := len(f.Samples) / f.Channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < f.Channels; c++ {
			sum += f.Samples[i*f.Channels+c]
		}
		out[i] = sum / float32(f.Channels)
	}
	return Frame{Samples: out, SampleRate: f.SampleRate, Channels: 1}
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture.
	// After calling Start, frames are available via Read or Stream.
	Start(ctx context.Context) error

	// Stop halts audio capture.
	// It is safe to call Stop multiple times.
	Stop() error

	// Read reads the next frame, blocking if necessary.
	// Returns io.EOF when the source is stopped.
	Read(ctx context.Context) (Frame, error)

	// Stream returns a channel that receives frames.
	// The channel is closed when the source is stopped.
	Stream() <-chan Frame

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "malgo", "device", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// FramesRead is the total number of frames delivered.
	FramesRead int64 `json:"frames_read"`

	// SamplesRead is the total number of samples delivered.
	SamplesRead int64 `json:"samples_read"`

	// Overruns is the number of frames dropped because the reader lagged.
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
