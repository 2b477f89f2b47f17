package bundled

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/teslashibe/go-voicechat/internal/httpc"
	"github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/voice"
)

func init() {
	voice.Register(voice.ProviderGemini, func(ctx context.Context, cfg voice.Config) (voice.Remote, error) {
		return DialGenAI(ctx, cfg, nil)
	})
}

// GenAI is a voice.Remote backed by the Live API of the Google GenAI SDK.
type GenAI struct {
	cfg     voice.Config
	logger  *slog.Logger
	session *genai.Session

	sendMu sync.Mutex

	events    chan voice.Event
	done      chan struct{}
	closeOnce sync.Once
}

// DialGenAI opens a Live session. The SDK performs the setup exchange, so
// EventOpen is emitted as soon as the connection is up.
func DialGenAI(ctx context.Context, cfg voice.Config, logger *slog.Logger) (*GenAI, error) {
	logger = log.Component(log.Or(logger), "genai")

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.Client,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("voice/genai: client: %w", err)
	}

	session, err := client.Live.Connect(ctx, cfg.Model, liveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("voice/genai: connect: %w", err)
	}

	g := &GenAI{
		cfg:     cfg,
		logger:  logger,
		session: session,
		events:  make(chan voice.Event, 64),
		done:    make(chan struct{}),
	}
	g.events <- voice.Event{Type: voice.EventOpen}
	go g.receiveLoop()

	logger.Debug("connected", "model", cfg.Model)
	return g, nil
}

func liveConfig(cfg voice.Config) *genai.LiveConnectConfig {
	voiceName := cfg.Voice
	if voiceName == "" {
		voiceName = geminiDefaultVoice
	}
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceName},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.SystemPrompt != "" {
		lc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemPrompt}}}
	}
	return lc
}

// SendAudio implements voice.Remote.
func (g *GenAI) SendAudio(ctx context.Context, m voice.Media) error {
	return g.send(genai.LiveRealtimeInput{Audio: &genai.Blob{MIMEType: m.MIMEType, Data: m.Data}})
}

// SendImage implements voice.Remote.
func (g *GenAI) SendImage(ctx context.Context, m voice.Media) error {
	return g.send(genai.LiveRealtimeInput{Video: &genai.Blob{MIMEType: m.MIMEType, Data: m.Data}})
}

func (g *GenAI) send(in genai.LiveRealtimeInput) error {
	select {
	case <-g.done:
		return voice.ErrNotConnected
	default:
	}
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	return g.session.SendRealtimeInput(in)
}

// Events implements voice.Remote.
func (g *GenAI) Events() <-chan voice.Event {
	return g.events
}

// Close implements voice.Remote.
func (g *GenAI) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		err = g.session.Close()
	})
	return err
}

func (g *GenAI) emit(ev voice.Event) bool {
	select {
	case g.events <- ev:
		return true
	case <-g.done:
		return false
	}
}

func (g *GenAI) receiveLoop() {
	defer close(g.events)

	for {
		msg, err := g.session.Receive()
		if err != nil {
			select {
			case <-g.done:
				return
			default:
			}
			g.emit(endEvent(err))
			return
		}
		if msg.GoAway != nil {
			g.logger.Warn("server going away")
		}
		if sc := msg.ServerContent; sc != nil {
			for _, ev := range g.translate(sc) {
				if !g.emit(ev) {
					return
				}
			}
		}
	}
}

// endEvent maps the error that ended the receive loop. A normal or
// going-away close frame ends the session cleanly; anything else is a
// stream error.
func endEvent(err error) voice.Event {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
		return voice.Event{Type: voice.EventClose}
	}
	return voice.Event{Type: voice.EventError, Err: fmt.Errorf("voice/genai: %w", err)}
}

// translate maps one server content message to session events, in the
// order transcripts, audio, interruption, turn completion.
func (g *GenAI) translate(sc *genai.LiveServerContent) []voice.Event {
	var evs []voice.Event
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		evs = append(evs, voice.Event{Type: voice.EventInputTranscript, Text: t.Text})
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		evs = append(evs, voice.Event{Type: voice.EventOutputTranscript, Text: t.Text})
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || !audioio.IsPCM(part.InlineData.MIMEType) {
				continue
			}
			if len(part.InlineData.Data) == 0 {
				continue
			}
			evs = append(evs, voice.Event{
				Type:       voice.EventAudio,
				Audio:      part.InlineData.Data,
				SampleRate: audioio.ParsePCMRate(part.InlineData.MIMEType, g.cfg.OutputSampleRate),
			})
		}
	}
	if sc.Interrupted {
		evs = append(evs, voice.Event{Type: voice.EventInterrupted})
	}
	if sc.TurnComplete {
		evs = append(evs, voice.Event{Type: voice.EventTurnComplete})
	}
	return evs
}

var _ voice.Remote = (*GenAI)(nil)
