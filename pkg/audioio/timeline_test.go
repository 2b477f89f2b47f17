package audioio

import (
	"testing"
	"time"
)

func constChunk(n int, v int16) AudioChunk {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return AudioChunk{Samples: s, SampleRate: 24000, Channels: 1}
}

func TestTimeline_BackToBack(t *testing.T) {
	tl := NewTimeline(24000)

	a := constChunk(100, 1)
	b := constChunk(100, 2)
	if _, err := tl.Schedule(a, 0, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Schedule(b, a.Duration(), nil); err != nil {
		t.Fatal(err)
	}

	out := make([]int16, 250)
	tl.Render(out)

	for i, s := range out {
		var want int16
		switch {
		case i < 100:
			want = 1
		case i < 200:
			want = 2
		}
		if s != want {
			t.Fatalf("sample %d: expected %d, got %d", i, want, s)
		}
	}
}

func TestTimeline_SnapsRoundingGap(t *testing.T) {
	tl := NewTimeline(24000)

	// 7 samples at 24kHz is not a whole number of nanoseconds.
	c := constChunk(7, 1)
	at := time.Duration(0)
	for i := 0; i < 50; i++ {
		if _, err := tl.Schedule(c, at, nil); err != nil {
			t.Fatal(err)
		}
		at += c.Duration()
	}

	out := make([]int16, 350)
	tl.Render(out)
	for i, s := range out {
		if s != 1 {
			t.Fatalf("sample %d: expected 1 (no gap or overlap), got %d", i, s)
		}
	}
}

func TestTimeline_OnEndedOnce(t *testing.T) {
	tl := NewTimeline(24000)

	calls := 0
	if _, err := tl.Schedule(constChunk(10, 1), 0, func() { calls++ }); err != nil {
		t.Fatal(err)
	}

	buf := make([]int16, 5)
	tl.Render(buf)
	if calls != 0 {
		t.Fatalf("expected no callback mid-voice, got %d", calls)
	}
	tl.Render(buf)
	tl.Render(buf)
	if calls != 1 {
		t.Errorf("expected exactly 1 callback, got %d", calls)
	}
	if tl.Pending() != 0 {
		t.Errorf("expected no pending voices, got %d", tl.Pending())
	}
}

func TestTimeline_StopSilencesWithoutCallback(t *testing.T) {
	tl := NewTimeline(24000)

	called := false
	v, err := tl.Schedule(constChunk(100, 5), 10*time.Millisecond, func() { called = true })
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := v.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	out := make([]int16, 1000)
	tl.Render(out)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d: expected silence, got %d", i, s)
		}
	}
	if called {
		t.Error("stopped voice fired onEnded")
	}
}

func TestTimeline_PastStartPlaysNow(t *testing.T) {
	tl := NewTimeline(24000)
	tl.Render(make([]int16, 240)) // clock at 10ms

	v, err := tl.Schedule(constChunk(10, 1), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.Start() != 10*time.Millisecond {
		t.Errorf("expected start at 10ms, got %v", v.Start())
	}
}

func TestTimeline_ResamplesInput(t *testing.T) {
	tl := NewTimeline(24000)
	c := AudioChunk{Samples: make([]int16, 160), SampleRate: 16000, Channels: 1} // 10ms

	if _, err := tl.Schedule(c, 0, nil); err != nil {
		t.Fatal(err)
	}
	calls := 0
	if _, err := tl.Schedule(constChunk(1, 0), c.Duration(), func() { calls++ }); err != nil {
		t.Fatal(err)
	}
	tl.Render(make([]int16, 241))
	if calls != 1 {
		t.Errorf("expected second voice to end at sample 241, calls=%d", calls)
	}
}

func TestTimeline_ReadAndClose(t *testing.T) {
	tl := NewTimeline(24000)
	if _, err := tl.Schedule(constChunk(2, 0x0102), 0, nil); err != nil {
		t.Fatal(err)
	}

	p := make([]byte, 6)
	n, err := tl.Read(p)
	if err != nil || n != 6 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	if p[0] != 0x02 || p[1] != 0x01 || p[4] != 0 {
		t.Errorf("unexpected bytes %v", p)
	}

	tl.Close()
	if _, err := tl.Read(p); err == nil {
		t.Error("expected EOF after close")
	}
	if _, err := tl.Schedule(constChunk(1, 0), 0, nil); err != ErrTimelineClosed {
		t.Errorf("expected ErrTimelineClosed, got %v", err)
	}
}
