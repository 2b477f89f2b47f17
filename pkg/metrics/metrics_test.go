package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teslashibe/go-voicechat/pkg/voice"
)

func TestSessionLifecycle(t *testing.T) {
	m := New("test")

	m.SessionStarted(voice.ProviderMock)
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("expected 1 active, got %v", got)
	}
	m.SessionEnded(voice.ProviderMock)
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("expected 0 active, got %v", got)
	}
	m.SessionFailed(voice.ProviderMock, errors.New("boom"))

	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("mock", "ok")); got != 1 {
		t.Errorf("expected 1 ok session, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("mock", "error")); got != 1 {
		t.Errorf("expected 1 failed session, got %v", got)
	}
}

func TestStatusIsOneHot(t *testing.T) {
	m := New("test")
	m.StatusChanged(voice.StatusListening)
	m.StatusChanged(voice.StatusSpeaking)

	if got := testutil.ToFloat64(m.Status.WithLabelValues("speaking")); got != 1 {
		t.Errorf("expected speaking=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.Status.WithLabelValues("listening")); got != 0 {
		t.Errorf("expected listening=0, got %v", got)
	}
}

func TestTrafficAndTurns(t *testing.T) {
	m := New("test")
	m.AudioSent(100)
	m.AudioSent(50)
	m.AudioReceived(10)
	m.FrameSent(2000)
	m.Interrupted(3)
	m.StaleEvent("audio")
	m.TurnCompleted(voice.Metrics{FirstAudioLatency: 300 * time.Millisecond, TotalLatency: 2 * time.Second})

	if got := testutil.ToFloat64(m.AudioBytesTotal.WithLabelValues("out")); got != 150 {
		t.Errorf("expected 150 bytes out, got %v", got)
	}
	if got := testutil.ToFloat64(m.StoppedSources); got != 3 {
		t.Errorf("expected 3 stopped sources, got %v", got)
	}
	if got := testutil.ToFloat64(m.StaleEventsTotal.WithLabelValues("audio")); got != 1 {
		t.Errorf("expected 1 stale event, got %v", got)
	}
	if n := testutil.CollectAndCount(m.TurnLatency); n != 1 {
		t.Errorf("expected turn latency collected, got %d", n)
	}
}

func TestHandler(t *testing.T) {
	m := New("test")
	m.FrameSent(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "test_frames_sent_total 1") {
		t.Errorf("expected frames counter in output:\n%s", body)
	}
}
