package audioio

import (
	"context"
	"io"
)

// Speaker drains a Timeline into an output: a sound card, a remote peer,
// or nowhere. The Timeline is the scheduling surface; the Speaker only
// decides how fast, and where, rendered samples go.
type Speaker interface {
	// Start begins draining the timeline.
	Start(ctx context.Context) error

	// Timeline returns the playback graph this speaker drains.
	Timeline() *Timeline

	// Config returns the output configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close stops output and closes the timeline.
	// It is safe to call Close multiple times.
	io.Closer
}

// SpeakerStats contains statistics about a speaker.
type SpeakerStats struct {
	// SamplesRendered is the total number of samples drained.
	SamplesRendered int64 `json:"samples_rendered"`

	// Running indicates if the speaker is currently draining.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SpeakerWithStats extends Speaker with statistics.
type SpeakerWithStats interface {
	Speaker
	Stats() SpeakerStats
}
