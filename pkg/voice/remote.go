package voice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/camera"
)

// Common errors.
var (
	ErrNotConnected  = errors.New("voice: session not connected")
	ErrMissingAPIKey = errors.New("voice: missing API key")
	ErrSuperseded    = errors.New("voice: connect superseded")
	ErrClosed        = errors.New("voice: session shut down")
	ErrNoCamera      = errors.New("voice: no camera configured for audio+video mode")
	ErrOpenTimeout   = errors.New("voice: remote did not open before the connect timeout")
)

// Media is a tagged blob sent to the remote.
type Media struct {
	MIMEType string
	Data     []byte
}

// AudioMedia wraps a PCM16 chunk, tagged "audio/pcm;rate=N".
func AudioMedia(chunk audioio.AudioChunk) Media {
	return Media{MIMEType: audioio.PCMMIMEType(chunk.SampleRate), Data: chunk.Bytes()}
}

// ImageMedia wraps a JPEG frame, tagged "image/jpeg".
func ImageMedia(jpeg []byte) Media {
	return Media{MIMEType: camera.MIMEType, Data: jpeg}
}

// EventType enumerates inbound remote events.
type EventType int

const (
	EventOpen EventType = iota
	EventInputTranscript
	EventOutputTranscript
	EventTurnComplete
	EventAudio
	EventInterrupted
	EventError
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventInputTranscript:
		return "input_transcript"
	case EventOutputTranscript:
		return "output_transcript"
	case EventTurnComplete:
		return "turn_complete"
	case EventAudio:
		return "audio"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one inbound message from the remote.
type Event struct {
	Type EventType

	// Text is the transcript delta for transcript events.
	Text string

	// Audio is decoded PCM16LE for EventAudio, at SampleRate.
	Audio      []byte
	SampleRate int

	// Err is set for EventError.
	Err error
}

// Remote is a bidirectional streaming connection to the model.
//
// SendAudio and SendImage may be called concurrently. Events delivers
// inbound messages in arrival order and is closed after EventClose.
type Remote interface {
	// SendAudio sends PCM16 audio tagged with its rate.
	SendAudio(ctx context.Context, m Media) error

	// SendImage sends an encoded image frame.
	SendImage(ctx context.Context, m Media) error

	// Events returns the inbound event stream.
	Events() <-chan Event

	// Close ends the stream. It is safe to call more than once.
	Close() error
}

// DialFunc opens a Remote. The returned remote emits EventOpen once it is
// ready to accept media.
type DialFunc func(ctx context.Context, cfg Config) (Remote, error)

var (
	providersMu sync.RWMutex
	providers   = map[Provider]DialFunc{}
)

// Register makes a provider available to Dial.
// This is called by provider implementations in init().
func Register(p Provider, fn DialFunc) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[p] = fn
}

// Providers returns the registered providers, sorted.
func Providers() []Provider {
	providersMu.RLock()
	defer providersMu.RUnlock()

	out := make([]Provider, 0, len(providers))
	for p := range providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dial opens a Remote with the provider named in cfg.
func Dial(ctx context.Context, cfg Config) (Remote, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	providersMu.RLock()
	fn, ok := providers[cfg.Provider]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("voice: provider %q not registered", cfg.Provider)
	}
	return fn(ctx, cfg)
}
