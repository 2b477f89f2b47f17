package voice

import (
	"context"
	"testing"
)

func TestMockRemoteOpensAndRecords(t *testing.T) {
	m := NewMockRemote()
	if ev := <-m.Events(); ev.Type != EventOpen {
		t.Fatalf("expected open first, got %s", ev.Type)
	}

	ctx := context.Background()
	if err := m.SendImage(ctx, ImageMedia([]byte{0xff, 0xd8})); err != nil {
		t.Fatal(err)
	}
	if len(m.SentImages()) != 1 {
		t.Errorf("expected 1 image recorded")
	}

	m.Close()
	if err := m.SendAudio(ctx, Media{}); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
	if _, ok := <-m.Events(); ok {
		t.Error("expected closed event stream")
	}
}

func TestMockRemoteEcho(t *testing.T) {
	m := NewMockRemote(WithEcho(), WithoutOpen())
	data := []byte{1, 0, 2, 0}
	if err := m.SendAudio(context.Background(), Media{MIMEType: "audio/pcm;rate=16000", Data: data}); err != nil {
		t.Fatal(err)
	}

	ev := <-m.Events()
	if ev.Type != EventAudio || ev.SampleRate != 16000 || len(ev.Audio) != 4 {
		t.Errorf("unexpected echo %+v", ev)
	}
}

func TestDialMockProvider(t *testing.T) {
	cfg := DefaultConfig().WithProvider(ProviderMock)
	r, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, ok := r.(*MockRemote); !ok {
		t.Errorf("expected *MockRemote, got %T", r)
	}
}
