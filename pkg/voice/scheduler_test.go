package voice

import (
	"testing"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
)

// fakeOutput records schedule calls against a manually set clock.
type fakeOutput struct {
	now     time.Duration
	starts  []time.Duration
	ends    []func()
	stopped int
}

type fakeHandle struct{ out *fakeOutput }

func (h fakeHandle) Stop() error {
	h.out.stopped++
	return nil
}

func (o *fakeOutput) Now() time.Duration { return o.now }

func (o *fakeOutput) Schedule(chunk audioio.AudioChunk, at time.Duration, onEnded func()) (Handle, error) {
	o.starts = append(o.starts, at)
	o.ends = append(o.ends, onEnded)
	return fakeHandle{o}, nil
}

func chunkOf(d time.Duration, rate int) audioio.AudioChunk {
	return audioio.AudioChunk{
		Samples:    make([]int16, audioio.DurationToSamples(d, rate)),
		SampleRate: rate,
		Channels:   1,
	}
}

func TestSchedulerBackToBack(t *testing.T) {
	out := &fakeOutput{now: 100 * time.Millisecond}
	s := NewScheduler(out)

	for i := 0; i < 3; i++ {
		if _, _, err := s.Enqueue(chunkOf(40*time.Millisecond, 24000), nil); err != nil {
			t.Fatal(err)
		}
	}

	want := []time.Duration{100 * time.Millisecond, 140 * time.Millisecond, 180 * time.Millisecond}
	for i, w := range want {
		if out.starts[i] != w {
			t.Errorf("chunk %d: expected start %v, got %v", i, w, out.starts[i])
		}
	}
	if s.NextStart() != 220*time.Millisecond {
		t.Errorf("expected cursor 220ms, got %v", s.NextStart())
	}
	if s.Active() != 3 {
		t.Errorf("expected 3 active, got %d", s.Active())
	}
}

func TestSchedulerNoOverlapAfterUnderrun(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	s.Enqueue(chunkOf(20*time.Millisecond, 24000), nil)

	// Clock moves past the cursor: next chunk starts now, not in the past.
	out.now = 500 * time.Millisecond
	_, start, _ := s.Enqueue(chunkOf(20*time.Millisecond, 24000), nil)
	if start != 500*time.Millisecond {
		t.Errorf("expected start at now (500ms), got %v", start)
	}

	// Each start is at or after the previous start plus its duration.
	for i := 1; i < len(out.starts); i++ {
		if out.starts[i] < out.starts[i-1]+20*time.Millisecond {
			t.Errorf("chunk %d overlaps: %v < %v", i, out.starts[i], out.starts[i-1]+20*time.Millisecond)
		}
	}
}

func TestSchedulerFinish(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	var ended []uint64
	record := func(id uint64) { ended = append(ended, id) }
	a, _, _ := s.Enqueue(chunkOf(10*time.Millisecond, 24000), record)
	b, _, _ := s.Enqueue(chunkOf(10*time.Millisecond, 24000), record)

	out.ends[0]()
	if len(ended) != 1 || ended[0] != a {
		t.Fatalf("expected ended callback with %d, got %v", a, ended)
	}

	if s.Finish(a) {
		t.Error("set should not be empty after first finish")
	}
	if s.Finish(a) {
		t.Error("finishing twice must be a no-op")
	}
	if !s.Finish(b) {
		t.Error("expected empty set after last finish")
	}
	if s.Active() != 0 {
		t.Errorf("expected 0 active, got %d", s.Active())
	}
}

func TestSchedulerInterrupt(t *testing.T) {
	out := &fakeOutput{now: time.Second}
	s := NewScheduler(out)

	for i := 0; i < 4; i++ {
		s.Enqueue(chunkOf(50*time.Millisecond, 24000), nil)
	}
	if n := s.Interrupt(); n != 4 {
		t.Errorf("expected 4 stopped, got %d", n)
	}
	if out.stopped != 4 {
		t.Errorf("expected 4 Stop calls, got %d", out.stopped)
	}
	if s.Active() != 0 {
		t.Errorf("expected empty set, got %d", s.Active())
	}
	if s.NextStart() != 0 {
		t.Errorf("expected cursor reset, got %v", s.NextStart())
	}

	// Next chunk plays at the current clock.
	_, start, _ := s.Enqueue(chunkOf(50*time.Millisecond, 24000), nil)
	if start != time.Second {
		t.Errorf("expected start at now after interrupt, got %v", start)
	}
}

func TestSchedulerOnTimeline(t *testing.T) {
	tl := audioio.NewTimeline(24000)
	s := NewScheduler(TimelineOutput(tl))

	ended := make(chan uint64, 4)
	for i := 0; i < 2; i++ {
		if _, _, err := s.Enqueue(chunkOf(10*time.Millisecond, 24000), func(id uint64) { ended <- id }); err != nil {
			t.Fatal(err)
		}
	}

	// 20ms at 24kHz.
	tl.Render(make([]int16, 480))
	if len(ended) != 2 {
		t.Fatalf("expected 2 ended callbacks, got %d", len(ended))
	}
	if s.Finish(<-ended) {
		t.Error("set should not drain on first finish")
	}
	if !s.Finish(<-ended) {
		t.Error("expected set drained on last finish")
	}
}
