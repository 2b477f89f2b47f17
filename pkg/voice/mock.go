package voice

import (
	"context"
	"sync"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
)

func init() {
	Register(ProviderMock, func(ctx context.Context, cfg Config) (Remote, error) {
		return NewMockRemote(WithEcho()), nil
	})
}

// MockRemote is an in-memory Remote for tests and device checks. It
// records every send and emits whatever is pushed with Push.
type MockRemote struct {
	mu     sync.Mutex
	events chan Event
	audio  []Media
	images []Media
	closed bool
	echo   bool

	// SendErr, when set, is returned from every send.
	SendErr error
}

// MockRemoteOption configures a MockRemote.
type MockRemoteOption func(*MockRemote)

// WithEcho plays every received audio chunk back as model audio.
func WithEcho() MockRemoteOption {
	return func(m *MockRemote) { m.echo = true }
}

// WithoutOpen suppresses the initial EventOpen.
func WithoutOpen() MockRemoteOption {
	return func(m *MockRemote) {
		select {
		case <-m.events:
		default:
		}
	}
}

// NewMockRemote creates a mock that has already queued EventOpen.
func NewMockRemote(opts ...MockRemoteOption) *MockRemote {
	m := &MockRemote{events: make(chan Event, 256)}
	m.events <- Event{Type: EventOpen}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Push delivers ev to the session. Pushes after Close are dropped.
func (m *MockRemote) Push(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- ev
	if ev.Type == EventClose {
		m.closed = true
		close(m.events)
	}
}

// SendAudio records m.
func (m *MockRemote) SendAudio(ctx context.Context, media Media) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	if m.SendErr != nil {
		return m.SendErr
	}
	m.audio = append(m.audio, media)
	if m.echo {
		select {
		case m.events <- Event{
			Type:       EventAudio,
			Audio:      media.Data,
			SampleRate: audioio.ParsePCMRate(media.MIMEType, audioio.InputSampleRate),
		}:
		default:
		}
	}
	return nil
}

// SendImage records m.
func (m *MockRemote) SendImage(ctx context.Context, media Media) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	if m.SendErr != nil {
		return m.SendErr
	}
	m.images = append(m.images, media)
	return nil
}

// Events implements Remote.
func (m *MockRemote) Events() <-chan Event {
	return m.events
}

// Close closes the event stream without emitting EventClose.
func (m *MockRemote) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

// Closed reports whether Close was called.
func (m *MockRemote) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SentAudio returns recorded audio sends.
func (m *MockRemote) SentAudio() []Media {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Media(nil), m.audio...)
}

// SentImages returns recorded image sends.
func (m *MockRemote) SentImages() []Media {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Media(nil), m.images...)
}
