package audioio

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrTimelineClosed is returned when scheduling onto a closed timeline.
var ErrTimelineClosed = errors.New("audioio: timeline closed")

// Timeline is a sample-clocked playback graph. Chunks are scheduled at
// absolute output times; Render (or Read) mixes whatever is due and
// advances the clock. The clock only moves when something renders, so a
// Speaker that drains the timeline in real time defines "now".
//
// A voice that plays to its end fires its onEnded callback exactly once,
// outside the timeline lock. A stopped voice never fires.
type Timeline struct {
	rate int

	mu     sync.Mutex
	pos    int64 // samples rendered
	tail   int64 // end of the latest scheduled voice
	voices []*Voice
	nextID uint64
	closed bool
}

// Voice is one scheduled chunk on a Timeline.
type Voice struct {
	t       *Timeline
	id      uint64
	start   int64
	samples []int16
	onEnded func()
}

// NewTimeline creates a mono timeline at the given output rate.
func NewTimeline(sampleRate int) *Timeline {
	return &Timeline{rate: sampleRate}
}

// SampleRate returns the output rate.
func (t *Timeline) SampleRate() int {
	return t.rate
}

// Now returns the output clock: the duration rendered so far.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return SamplesToDuration(t.pos, t.rate)
}

// Pending returns the number of scheduled or playing voices.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Schedule places chunk on the timeline starting at at. Times already in
// the past start immediately. A start within one sample of the previous
// voice's end is snapped to it so back-to-back chunks stay seamless
// despite duration rounding.
func (t *Timeline) Schedule(chunk AudioChunk, at time.Duration, onEnded func()) (*Voice, error) {
	samples := chunk.Samples
	if chunk.Channels > 1 {
		f := Frame{Samples: DecodePCM16(samples), SampleRate: chunk.SampleRate, Channels: chunk.Channels}.Mono()
		samples = EncodePCM16(f.Samples)
	}
	if chunk.SampleRate > 0 && chunk.SampleRate != t.rate {
		samples = Resample(samples, chunk.SampleRate, t.rate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTimelineClosed
	}

	start := DurationToSamples(at, t.rate)
	if d := start - t.tail; d >= -1 && d <= 1 && t.tail >= t.pos {
		start = t.tail
	}
	if start < t.pos {
		start = t.pos
	}

	t.nextID++
	v := &Voice{
		t:       t,
		id:      t.nextID,
		start:   start,
		samples: samples,
		onEnded: onEnded,
	}
	t.voices = append(t.voices, v)
	if end := v.end(); end > t.tail {
		t.tail = end
	}
	return v, nil
}

// Start returns the voice's start time on the output clock.
func (v *Voice) Start() time.Duration {
	return SamplesToDuration(v.start, v.t.rate)
}

// Stop removes the voice without firing its onEnded callback.
// Stopping an ended or already stopped voice is a no-op.
func (v *Voice) Stop() error {
	t := v.t
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, other := range t.voices {
		if other == v {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			break
		}
	}
	t.recomputeTail()
	return nil
}

func (v *Voice) end() int64 {
	return v.start + int64(len(v.samples))
}

// Render mixes the next len(dst) samples into dst and advances the clock.
func (t *Timeline) Render(dst []int16) {
	t.mu.Lock()
	n := int64(len(dst))
	from, to := t.pos, t.pos+n

	mix := make([]int32, n)
	var ended []func()
	kept := t.voices[:0]
	for _, v := range t.voices {
		lo := max(v.start, from)
		hi := min(v.end(), to)
		for p := lo; p < hi; p++ {
			mix[p-from] += int32(v.samples[p-v.start])
		}
		if v.end() <= to {
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(t.voices); i++ {
		t.voices[i] = nil
	}
	t.voices = kept
	t.pos = to
	t.mu.Unlock()

	for i, s := range mix {
		switch {
		case s > 32767:
			dst[i] = 32767
		case s < -32768:
			dst[i] = -32768
		default:
			dst[i] = int16(s)
		}
	}

	for _, fn := range ended {
		fn()
	}
}

// Read renders len(p)/2 samples as little-endian PCM16, so a Timeline can
// feed any io.Reader based player. It returns io.EOF once closed.
func (t *Timeline) Read(p []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, io.EOF
	}

	buf := make([]int16, len(p)/2)
	t.Render(buf)
	for i, s := range buf {
		p[i*2] = byte(s)
		p[i*2+1] = byte(s >> 8)
	}
	return len(buf) * 2, nil
}

// Close drops every voice without firing callbacks. Further Schedule
// calls fail.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.voices = nil
	return nil
}

func (t *Timeline) recomputeTail() {
	t.tail = t.pos
	for _, v := range t.voices {
		if end := v.end(); end > t.tail {
			t.tail = end
		}
	}
}
