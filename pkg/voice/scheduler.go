package voice

import (
	"time"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
)

// Handle is a scheduled playback source.
type Handle interface {
	Stop() error
}

// Output is a clocked playback graph.
type Output interface {
	// Now returns the output clock.
	Now() time.Duration

	// Schedule plays chunk starting at at. onEnded fires once if the
	// chunk plays to its end; it does not fire for stopped handles.
	Schedule(chunk audioio.AudioChunk, at time.Duration, onEnded func()) (Handle, error)
}

// TimelineOutput adapts an audioio.Timeline to Output.
func TimelineOutput(t *audioio.Timeline) Output {
	return timelineOutput{t}
}

type timelineOutput struct {
	t *audioio.Timeline
}

func (o timelineOutput) Now() time.Duration { return o.t.Now() }

func (o timelineOutput) Schedule(chunk audioio.AudioChunk, at time.Duration, onEnded func()) (Handle, error) {
	v, err := o.t.Schedule(chunk, at, onEnded)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Scheduler plays inbound chunks back to back without gaps or overlap.
// It is not safe for concurrent use; the session actor owns it.
type Scheduler struct {
	out       Output
	nextStart time.Duration
	active    map[uint64]Handle
	seq       uint64
}

// NewScheduler creates a scheduler over out.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{
		out:    out,
		active: make(map[uint64]Handle),
	}
}

// Enqueue schedules chunk at max(cursor, now) and advances the cursor by
// the chunk's duration. ended is called with the returned id when the
// chunk plays to its end, from whatever goroutine renders the output.
func (s *Scheduler) Enqueue(chunk audioio.AudioChunk, ended func(id uint64)) (uint64, time.Duration, error) {
	start := max(s.nextStart, s.out.Now())

	s.seq++
	id := s.seq
	h, err := s.out.Schedule(chunk, start, func() {
		if ended != nil {
			ended(id)
		}
	})
	if err != nil {
		return 0, 0, err
	}

	s.active[id] = h
	s.nextStart = start + chunk.Duration()
	return id, start, nil
}

// Finish removes id from the active set. It reports whether the set is
// now empty; removing an unknown id is a no-op that reports false.
func (s *Scheduler) Finish(id uint64) bool {
	if _, ok := s.active[id]; !ok {
		return false
	}
	delete(s.active, id)
	return len(s.active) == 0
}

// Interrupt stops every active source, clears the set and resets the
// cursor. Stop failures are ignored. It returns the number of sources
// stopped.
func (s *Scheduler) Interrupt() int {
	n := len(s.active)
	for id, h := range s.active {
		_ = h.Stop()
		delete(s.active, id)
	}
	s.nextStart = 0
	return n
}

// Active returns the number of scheduled or playing sources.
func (s *Scheduler) Active() int {
	return len(s.active)
}

// NextStart returns the playback cursor.
func (s *Scheduler) NextStart() time.Duration {
	return s.nextStart
}
