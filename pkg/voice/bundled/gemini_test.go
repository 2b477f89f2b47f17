package bundled

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-voicechat/pkg/voice"
)

// fakeLive is a minimal Gemini Live server. It checks the setup message,
// acknowledges it and then runs script.
type fakeLive struct {
	t      *testing.T
	setup  chan wsSetupMessage
	inputs chan wsRealtimeMessage
	script func(ws *websocket.Conn)
}

func (f *fakeLive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != "test-key" {
		http.Error(w, "bad key", http.StatusForbidden)
		return
	}
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer ws.Close()

	var setup wsSetupMessage
	if err := ws.ReadJSON(&setup); err != nil {
		f.t.Errorf("read setup: %v", err)
		return
	}
	f.setup <- setup
	ws.WriteJSON(map[string]any{"setupComplete": map[string]any{}})

	go func() {
		for {
			var in wsRealtimeMessage
			if err := ws.ReadJSON(&in); err != nil {
				return
			}
			f.inputs <- in
		}
	}()

	if f.script != nil {
		f.script(ws)
	}
	time.Sleep(200 * time.Millisecond)
}

func newFakeLive(t *testing.T, script func(ws *websocket.Conn)) (*fakeLive, voice.Config) {
	f := &fakeLive{
		t:      t,
		setup:  make(chan wsSetupMessage, 1),
		inputs: make(chan wsRealtimeMessage, 16),
		script: script,
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg := voice.DefaultConfig().WithProvider(voice.ProviderGeminiWS).WithAPIKey("test-key")
	cfg.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.SystemPrompt = "Be brief."
	return f, cfg
}

func nextEvent(t *testing.T, ch <-chan voice.Event) voice.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return voice.Event{}
}

func TestGeminiSetupAndOpen(t *testing.T) {
	f, cfg := newFakeLive(t, nil)
	g, err := DialGemini(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	setup := <-f.setup
	if setup.Setup.Model != "models/"+cfg.Model {
		t.Errorf("unexpected model %q", setup.Setup.Model)
	}
	if got := setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Puck" {
		t.Errorf("unexpected voice %q", got)
	}
	if setup.Setup.SystemInstruction == nil || setup.Setup.SystemInstruction.Parts[0].Text != "Be brief." {
		t.Error("expected system instruction")
	}
	if setup.Setup.InputAudioTranscription == nil || setup.Setup.OutputAudioTranscription == nil {
		t.Error("expected transcription enabled")
	}

	if ev := nextEvent(t, g.Events()); ev.Type != voice.EventOpen {
		t.Errorf("expected open, got %s", ev.Type)
	}
}

func TestGeminiSendsMedia(t *testing.T) {
	f, cfg := newFakeLive(t, nil)
	g, err := DialGemini(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	nextEvent(t, g.Events())

	ctx := context.Background()
	if err := g.SendAudio(ctx, voice.Media{MIMEType: "audio/pcm;rate=16000", Data: []byte{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if err := g.SendImage(ctx, voice.ImageMedia([]byte{0xff, 0xd8})); err != nil {
		t.Fatal(err)
	}

	audio := <-f.inputs
	if audio.RealtimeInput.Audio == nil || audio.RealtimeInput.Audio.MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("unexpected audio input %+v", audio.RealtimeInput)
	}
	if audio.RealtimeInput.Audio.Data != base64.StdEncoding.EncodeToString([]byte{1, 2}) {
		t.Errorf("unexpected audio payload %q", audio.RealtimeInput.Audio.Data)
	}
	image := <-f.inputs
	if image.RealtimeInput.Video == nil || image.RealtimeInput.Video.MIMEType != "image/jpeg" {
		t.Errorf("unexpected video input %+v", image.RealtimeInput)
	}
}

func TestGeminiServerContent(t *testing.T) {
	pcm := []byte{0x10, 0x00, 0x20, 0x00}
	_, cfg := newFakeLive(t, func(ws *websocket.Conn) {
		msgs := []string{
			`{"serverContent":{"inputTranscription":{"text":"[FR] Bonjour"}}}`,
			`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` +
				base64.StdEncoding.EncodeToString(pcm) + `"}}]},"outputTranscription":{"text":"Salut"}}}`,
			`{"serverContent":{"interrupted":true}}`,
			`{"serverContent":{"turnComplete":true}}`,
		}
		for _, m := range msgs {
			ws.WriteMessage(websocket.TextMessage, []byte(m))
		}
	})

	g, err := DialGemini(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	want := []voice.EventType{
		voice.EventOpen,
		voice.EventInputTranscript,
		voice.EventOutputTranscript,
		voice.EventAudio,
		voice.EventInterrupted,
		voice.EventTurnComplete,
	}
	for _, w := range want {
		ev := nextEvent(t, g.Events())
		if ev.Type != w {
			t.Fatalf("expected %s, got %s", w, ev.Type)
		}
		switch ev.Type {
		case voice.EventInputTranscript:
			if ev.Text != "[FR] Bonjour" {
				t.Errorf("unexpected input text %q", ev.Text)
			}
		case voice.EventAudio:
			if ev.SampleRate != 24000 || string(ev.Audio) != string(pcm) {
				t.Errorf("unexpected audio event rate=%d len=%d", ev.SampleRate, len(ev.Audio))
			}
		}
	}
}

func TestGeminiCloseFrameIsError(t *testing.T) {
	_, cfg := newFakeLive(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "API key not valid"))
	})

	g, err := DialGemini(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	nextEvent(t, g.Events())
	ev := nextEvent(t, g.Events())
	if ev.Type != voice.EventError {
		t.Fatalf("expected error event, got %s", ev.Type)
	}
	if !strings.Contains(ev.Err.Error(), "API key not valid") {
		t.Errorf("expected close reason in error, got %v", ev.Err)
	}
}

func TestGeminiNormalCloseIsClose(t *testing.T) {
	_, cfg := newFakeLive(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	g, err := DialGemini(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	nextEvent(t, g.Events())
	if ev := nextEvent(t, g.Events()); ev.Type != voice.EventClose {
		t.Errorf("expected close event, got %s", ev.Type)
	}
}

func TestGeminiCloseStopsEvents(t *testing.T) {
	_, cfg := newFakeLive(t, nil)
	g, err := DialGemini(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	nextEvent(t, g.Events())

	g.Close()
	g.Close()

	select {
	case _, ok := <-g.Events():
		if ok {
			t.Error("expected no events after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event stream not closed")
	}
	if err := g.SendAudio(context.Background(), voice.Media{}); err != voice.ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestGeminiRejectedKey(t *testing.T) {
	_, cfg := newFakeLive(t, nil)
	cfg.APIKey = "wrong"
	if _, err := DialGemini(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected handshake failure")
	}
}

func TestSetupJSONShape(t *testing.T) {
	data, err := json.Marshal(newSetup(voice.DefaultConfig()))
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"responseModalities":["AUDIO"]`, `"inputAudioTranscription":{}`, `"voiceName":"Puck"`} {
		if !strings.Contains(s, want) {
			t.Errorf("setup JSON missing %s: %s", want, s)
		}
	}
	if strings.Contains(s, "systemInstruction") {
		t.Error("empty prompt should omit systemInstruction")
	}
}
