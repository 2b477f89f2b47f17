package bundled

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2/google"

	"github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/voice"
)

const (
	// Gemini Live API WebSocket endpoint
	geminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// OAuth scope for Application Default Credentials.
	geminiOAuthScope = "https://www.googleapis.com/auth/generative-language"

	geminiDefaultVoice = "Puck"
)

func init() {
	voice.Register(voice.ProviderGeminiWS, func(ctx context.Context, cfg voice.Config) (voice.Remote, error) {
		return DialGemini(ctx, cfg, nil)
	})
}

// Gemini speaks the Gemini Live websocket protocol directly. It emits
// EventOpen when the server acknowledges the setup message.
type Gemini struct {
	cfg    voice.Config
	logger *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	events    chan voice.Event
	done      chan struct{}
	closeOnce sync.Once
}

// DialGemini connects to Gemini Live and sends the session setup.
func DialGemini(ctx context.Context, cfg voice.Config, logger *slog.Logger) (*Gemini, error) {
	logger = log.Component(log.Or(logger), "gemini-ws")

	endpoint, header, err := geminiAuth(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voice/gemini: connect: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("voice/gemini: connect: %w", err)
	}

	g := &Gemini{
		cfg:    cfg,
		logger: logger,
		ws:     ws,
		events: make(chan voice.Event, 64),
		done:   make(chan struct{}),
	}

	if err := g.send(ctx, newSetup(cfg)); err != nil {
		ws.Close()
		return nil, fmt.Errorf("voice/gemini: send setup: %w", err)
	}

	go g.readLoop()
	logger.Debug("connected", "model", cfg.Model)
	return g, nil
}

// geminiAuth builds the endpoint URL and headers. An API key goes in the
// query string; otherwise a bearer token comes from Application Default
// Credentials.
func geminiAuth(ctx context.Context, cfg voice.Config) (string, http.Header, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = geminiLiveURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("voice/gemini: bad endpoint: %w", err)
	}

	header := make(http.Header)
	switch {
	case cfg.APIKey != "":
		q := u.Query()
		q.Set("key", cfg.APIKey)
		u.RawQuery = q.Encode()
	case cfg.UseOAuth:
		ts, err := google.DefaultTokenSource(ctx, geminiOAuthScope)
		if err != nil {
			return "", nil, fmt.Errorf("voice/gemini: default credentials: %w", err)
		}
		tok, err := ts.Token()
		if err != nil {
			return "", nil, fmt.Errorf("voice/gemini: token: %w", err)
		}
		header.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	default:
		return "", nil, voice.ErrMissingAPIKey
	}
	return u.String(), header, nil
}

// Wire messages. Only the fields this client uses are modeled.

type wsSetupMessage struct {
	Setup wsSetup `json:"setup"`
}

type wsSetup struct {
	Model                    string             `json:"model"`
	GenerationConfig         wsGenerationConfig `json:"generationConfig"`
	SystemInstruction        *wsContent         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}          `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}          `json:"outputAudioTranscription,omitempty"`
}

type wsGenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *wsSpeechConf `json:"speechConfig,omitempty"`
}

type wsSpeechConf struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type wsContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []wsPart `json:"parts"`
}

type wsPart struct {
	Text       string  `json:"text,omitempty"`
	InlineData *wsBlob `json:"inlineData,omitempty"`
}

type wsBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type wsRealtimeMessage struct {
	RealtimeInput wsRealtimeInput `json:"realtimeInput"`
}

type wsRealtimeInput struct {
	Audio *wsBlob `json:"audio,omitempty"`
	Video *wsBlob `json:"video,omitempty"`
}

type wsServerMessage struct {
	SetupComplete *struct{}        `json:"setupComplete,omitempty"`
	ServerContent *wsServerContent `json:"serverContent,omitempty"`
	GoAway        *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway,omitempty"`
}

type wsServerContent struct {
	ModelTurn           *wsContent       `json:"modelTurn,omitempty"`
	TurnComplete        bool             `json:"turnComplete,omitempty"`
	Interrupted         bool             `json:"interrupted,omitempty"`
	InputTranscription  *wsTranscription `json:"inputTranscription,omitempty"`
	OutputTranscription *wsTranscription `json:"outputTranscription,omitempty"`
}

type wsTranscription struct {
	Text string `json:"text"`
}

func newSetup(cfg voice.Config) wsSetupMessage {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	voiceName := cfg.Voice
	if voiceName == "" {
		voiceName = geminiDefaultVoice
	}

	speech := &wsSpeechConf{}
	speech.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voiceName

	setup := wsSetup{
		Model: model,
		GenerationConfig: wsGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speech,
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if cfg.SystemPrompt != "" {
		setup.SystemInstruction = &wsContent{Parts: []wsPart{{Text: cfg.SystemPrompt}}}
	}
	return wsSetupMessage{Setup: setup}
}

// SendAudio implements voice.Remote.
func (g *Gemini) SendAudio(ctx context.Context, m voice.Media) error {
	return g.send(ctx, wsRealtimeMessage{RealtimeInput: wsRealtimeInput{Audio: blobOf(m)}})
}

// SendImage implements voice.Remote.
func (g *Gemini) SendImage(ctx context.Context, m voice.Media) error {
	return g.send(ctx, wsRealtimeMessage{RealtimeInput: wsRealtimeInput{Video: blobOf(m)}})
}

func blobOf(m voice.Media) *wsBlob {
	return &wsBlob{MIMEType: m.MIMEType, Data: base64.StdEncoding.EncodeToString(m.Data)}
}

// send writes a JSON message over WebSocket.
func (g *Gemini) send(ctx context.Context, v any) error {
	select {
	case <-g.done:
		return voice.ErrNotConnected
	default:
	}

	g.wsMu.Lock()
	defer g.wsMu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		g.ws.SetWriteDeadline(dl)
	} else {
		g.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	return g.ws.WriteJSON(v)
}

// Events implements voice.Remote.
func (g *Gemini) Events() <-chan voice.Event {
	return g.events
}

// Close implements voice.Remote.
func (g *Gemini) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		g.wsMu.Lock()
		g.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		g.wsMu.Unlock()
		err = g.ws.Close()
	})
	return err
}

func (g *Gemini) emit(ev voice.Event) bool {
	select {
	case g.events <- ev:
		return true
	case <-g.done:
		return false
	}
}

// readLoop decodes server messages until the socket ends. It owns the
// events channel.
func (g *Gemini) readLoop() {
	defer close(g.events)

	for {
		_, data, err := g.ws.ReadMessage()
		if err != nil {
			select {
			case <-g.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.emit(voice.Event{Type: voice.EventClose})
				return
			}
			g.emit(voice.Event{Type: voice.EventError, Err: closeReason(err)})
			return
		}

		var msg wsServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Debug("failed to parse message", "error", err)
			continue
		}
		if !g.dispatch(&msg) {
			return
		}
	}
}

// closeReason turns a websocket close frame into a readable error. The
// server reports setup problems (bad key, unknown model) this way.
func closeReason(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Text != "" {
		return fmt.Errorf("voice/gemini: %s (code %d)", ce.Text, ce.Code)
	}
	return fmt.Errorf("voice/gemini: %w", err)
}

func (g *Gemini) dispatch(msg *wsServerMessage) bool {
	if msg.SetupComplete != nil {
		return g.emit(voice.Event{Type: voice.EventOpen})
	}
	if msg.GoAway != nil {
		g.logger.Warn("server going away", "time_left", msg.GoAway.TimeLeft)
	}

	sc := msg.ServerContent
	if sc == nil {
		return true
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		if !g.emit(voice.Event{Type: voice.EventInputTranscript, Text: sc.InputTranscription.Text}) {
			return false
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		if !g.emit(voice.Event{Type: voice.EventOutputTranscript, Text: sc.OutputTranscription.Text}) {
			return false
		}
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData == nil || !audioio.IsPCM(part.InlineData.MIMEType) {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil || len(pcm) == 0 {
				continue
			}
			ev := voice.Event{
				Type:       voice.EventAudio,
				Audio:      pcm,
				SampleRate: audioio.ParsePCMRate(part.InlineData.MIMEType, g.cfg.OutputSampleRate),
			}
			if !g.emit(ev) {
				return false
			}
		}
	}
	if sc.Interrupted {
		if !g.emit(voice.Event{Type: voice.EventInterrupted}) {
			return false
		}
	}
	if sc.TurnComplete {
		return g.emit(voice.Event{Type: voice.EventTurnComplete})
	}
	return true
}

var _ voice.Remote = (*Gemini)(nil)
