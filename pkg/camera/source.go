package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// ErrNoFrame is returned when a source has not produced a frame yet.
var ErrNoFrame = errors.New("camera: no frame available")

// Source yields the latest camera image.
type Source interface {
	// Frame returns the most recent image. It may block briefly while a
	// device grabs a frame.
	Frame(ctx context.Context) (image.Image, error)

	// Close releases the device.
	Close() error
}

// StaticSource always returns the same image.
type StaticSource struct {
	Image image.Image
}

// Frame returns the static image.
func (s *StaticSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Image == nil {
		return nil, ErrNoFrame
	}
	return s.Image, nil
}

// Close is a no-op.
func (s *StaticSource) Close() error { return nil }

// FrameStore is a Source fed with JPEG frames pushed by a remote producer,
// such as a device streaming its camera over websocket.
type FrameStore struct {
	mu      sync.RWMutex
	latest  []byte
	updated time.Time
	closed  bool
}

// NewFrameStore creates an empty store.
func NewFrameStore() *FrameStore {
	return &FrameStore{}
}

// Update stores a JPEG frame.
func (s *FrameStore) Update(jpegData []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.latest = jpegData
	s.updated = time.Now()
}

// Latest returns the raw JPEG and when it arrived.
func (s *FrameStore) Latest() ([]byte, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.updated
}

// Frame decodes the latest JPEG.
func (s *FrameStore) Frame(ctx context.Context) (image.Image, error) {
	data, _ := s.Latest()
	if len(data) == 0 {
		return nil, ErrNoFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("camera: decode frame: %w", err)
	}
	return img, nil
}

// Close drops the stored frame and ignores later updates.
func (s *FrameStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.latest = nil
	return nil
}
