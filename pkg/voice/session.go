package voice

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
	"github.com/teslashibe/go-voicechat/pkg/camera"
)

// Devices opens the media a session needs. Each function is called once
// per Connect; the session closes what it opened on teardown.
type Devices struct {
	Microphone func(ctx context.Context) (audioio.Source, error)
	Speaker    func(ctx context.Context) (audioio.Speaker, error)

	// Camera is only opened in audio+video mode. It may be nil when no
	// camera exists, in which case audio+video connects fail.
	Camera func(ctx context.Context) (camera.Source, error)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithObserver sets the observer notified of session activity.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithDialer overrides provider lookup.
func WithDialer(fn DialFunc) Option {
	return func(s *Session) { s.dial = fn }
}

// WithCameraManager supplies runtime frame-sampling settings.
func WithCameraManager(m *camera.Manager) Option {
	return func(s *Session) { s.camera = m }
}

// WithFrameHook receives each JPEG frame sent to the remote.
func WithFrameHook(fn func(jpeg []byte)) Option {
	return func(s *Session) { s.onFrame = fn }
}

// Session is one live conversation endpoint. It can be connected, closed
// and reconnected any number of times until Shutdown.
type Session struct {
	cfg      Config
	devices  Devices
	dial     DialFunc
	camera   *camera.Manager
	observer Observer
	logger   *slog.Logger
	metrics  *MetricsCollector
	onFrame  func([]byte)

	guard Guard

	inbox    chan any
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once

	// Owned by the actor goroutine.
	mode       Mode
	status     Status
	live       *live
	transcript Transcript
	level      float64
	lastErr    error
	dirty      bool

	stateMu   sync.RWMutex
	state     State
	listeners []func(State)
}

// live holds the resources of one connected session.
type live struct {
	token   Token
	mode    Mode
	ctx     context.Context
	cancel  context.CancelFunc
	remote  Remote
	mic     audioio.Source
	cam     camera.Source
	speaker audioio.Speaker
	sched   *Scheduler
	started bool

	openTimer *time.Timer
}

// Actor messages.
type (
	callMsg struct {
		fn   func()
		done chan struct{}
	}
	eventMsg struct {
		token Token
		ev    Event
	}
	endedMsg struct {
		token Token
		id    uint64
	}
	levelMsg struct {
		token Token
		level float64
	}
	openTimeoutMsg struct {
		token Token
	}
)

// NewSession creates a session and starts its actor goroutine.
func NewSession(cfg Config, devices Devices, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if devices.Microphone == nil || devices.Speaker == nil {
		return nil, fmt.Errorf("voice: microphone and speaker are required")
	}

	s := &Session{
		cfg:      cfg,
		devices:  devices,
		dial:     Dial,
		observer: NopObserver{},
		metrics:  NewMetricsCollector(),
		inbox:    make(chan any, 256),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		mode:     cfg.Mode,
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "voice", "provider", cfg.Provider)
	if s.camera == nil {
		s.camera = camera.NewManager(camera.DefaultConfig())
	}

	s.state = s.snapshot()
	go s.run()
	return s, nil
}

// Connect tears down any current session and opens a new one: it mints a
// fresh token, opens the microphone, speaker and (in audio+video mode)
// camera, then dials the remote. Capture starts when the remote reports
// open. A later Connect or Close supersedes this one; a superseded Connect
// releases what it opened and returns ErrSuperseded.
func (s *Session) Connect(ctx context.Context) error {
	return s.connect(ctx, "")
}

// ConnectMode is Connect in the given mode. The mode switch and the
// reconnect happen together, so a live session is torn down once.
func (s *Session) ConnectMode(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("voice: unknown mode %q", mode)
	}
	return s.connect(ctx, mode)
}

func (s *Session) connect(ctx context.Context, next Mode) error {
	var (
		token Token
		mode  Mode
	)
	if err := s.call(ctx, func() {
		if next != "" {
			s.mode = next
		}
		s.teardown()
		s.transcript.Reset()
		s.metrics.Reset()
		s.lastErr = nil
		token = s.guard.Mint()
		mode = s.mode
		s.setStatus(StatusConnecting)
	}); err != nil {
		return err
	}

	s.logger.Info("connecting", "session", token.String(), "mode", mode)
	started := time.Now()
	l, openErr := s.open(ctx, token, mode)

	var result error
	if err := s.call(context.Background(), func() {
		if !s.guard.Valid(token) {
			if l != nil {
				l.release(s.logger)
			}
			result = ErrSuperseded
			return
		}
		if openErr != nil {
			s.guard.Invalidate()
			s.lastErr = openErr
			s.setStatus(StatusError)
			s.observer.SessionFailed(s.cfg.Provider, openErr)
			result = openErr
			return
		}
		s.live = l
		s.observer.SessionStarted(s.cfg.Provider)
		if s.cfg.ConnectTimeout > 0 && s.status == StatusConnecting {
			// The remote may dial fine and never report open.
			left := max(s.cfg.ConnectTimeout-time.Since(started), 0)
			l.openTimer = time.AfterFunc(left, func() { s.postAsync(openTimeoutMsg{token: token}) })
		}
		go s.pump(l)
	}); err != nil {
		if l != nil {
			l.release(s.logger)
		}
		return err
	}

	if result != nil && result != ErrSuperseded {
		s.logger.Error("connect failed", "session", token.String(), "error", result)
	}
	return result
}

// open acquires devices and dials the remote. It runs outside the actor.
func (s *Session) open(ctx context.Context, token Token, mode Mode) (*live, error) {
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}

	liveCtx, liveCancel := context.WithCancel(context.Background())
	l := &live{token: token, mode: mode, ctx: liveCtx, cancel: liveCancel}

	fail := func(what string, err error) (*live, error) {
		l.release(s.logger)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("voice: %s: connect timed out: %w", what, err)
		}
		return nil, fmt.Errorf("voice: %s: %w", what, err)
	}

	var err error
	if l.mic, err = s.devices.Microphone(ctx); err != nil {
		return fail("open microphone", err)
	}
	if mode == ModeAudioVideo {
		if s.devices.Camera == nil {
			return fail("open camera", ErrNoCamera)
		}
		if l.cam, err = s.devices.Camera(ctx); err != nil {
			return fail("open camera", err)
		}
	}
	if l.speaker, err = s.devices.Speaker(ctx); err != nil {
		return fail("open speaker", err)
	}
	if err = l.speaker.Start(liveCtx); err != nil {
		return fail("start speaker", err)
	}
	l.sched = NewScheduler(TimelineOutput(l.speaker.Timeline()))

	if l.remote, err = s.dial(ctx, s.cfg); err != nil {
		return fail("dial", err)
	}
	return l, nil
}

// release stops everything a live session opened. Errors are logged and
// otherwise ignored.
func (l *live) release(logger *slog.Logger) {
	if l.openTimer != nil {
		l.openTimer.Stop()
	}
	l.cancel()
	if l.sched != nil {
		l.sched.Interrupt()
	}
	closeQuietly(logger, "remote", l.remote)
	closeQuietly(logger, "microphone", l.mic)
	closeQuietly(logger, "camera", l.cam)
	closeQuietly(logger, "speaker", l.speaker)
}

func closeQuietly(logger *slog.Logger, what string, c interface{ Close() error }) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Debug("close failed", "what", what, "error", err)
	}
}

// Close ends the current session, if any. It is idempotent.
func (s *Session) Close() error {
	err := s.call(context.Background(), func() {
		if s.live != nil || s.status != StatusIdle {
			s.logger.Info("session closed")
		}
		s.teardown()
		s.setStatus(StatusIdle)
	})
	if err == ErrClosed {
		return nil
	}
	return err
}

// SetMode switches the capture mode. When a session is connecting or
// live, it reconnects so capture is renegotiated.
func (s *Session) SetMode(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("voice: unknown mode %q", mode)
	}

	var reconnect bool
	if err := s.call(ctx, func() {
		if s.mode == mode {
			return
		}
		s.mode = mode
		s.dirty = true
		reconnect = s.status == StatusConnecting || s.status == StatusListening || s.status == StatusSpeaking
	}); err != nil {
		return err
	}
	if reconnect {
		return s.Connect(ctx)
	}
	return nil
}

// Shutdown closes the session and stops the actor. The session cannot be
// used afterwards.
func (s *Session) Shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.done
}

// State returns the latest snapshot.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Status returns the current status.
func (s *Session) Status() Status { return s.State().Status }

// Transcript returns the current turn's input and output text.
func (s *Session) Transcript() (input, output string) {
	st := s.State()
	return st.InputTranscript, st.OutputTranscript
}

// Language returns the last detected language code.
func (s *Session) Language() string { return s.State().Language }

// Level returns the latest microphone RMS level.
func (s *Session) Level() float64 { return s.State().Level }

// Mode returns the capture mode for the next connect.
func (s *Session) Mode() Mode { return s.State().Mode }

// Metrics returns the per-turn metrics collector.
func (s *Session) Metrics() *MetricsCollector { return s.metrics }

// Camera returns the frame-sampling settings.
func (s *Session) Camera() *camera.Manager { return s.camera }

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// OnStateChange registers fn to receive every new snapshot. fn runs on
// the actor goroutine and must not block or call back into the session.
func (s *Session) OnStateChange(fn func(State)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// call runs fn on the actor and waits for it.
func (s *Session) call(ctx context.Context, fn func()) error {
	m := callMsg{fn: fn, done: make(chan struct{})}
	select {
	case s.inbox <- m:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	select {
	case <-m.done:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// post delivers a message unless the actor has stopped.
func (s *Session) post(m any) {
	select {
	case s.inbox <- m:
	case <-s.done:
	}
}

// postAsync never blocks the caller. Render goroutines use it so audio
// output cannot stall behind a busy actor.
func (s *Session) postAsync(m any) {
	select {
	case s.inbox <- m:
	default:
		go s.post(m)
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			s.teardown()
			s.setStatus(StatusIdle)
			s.publish()
			return
		case m := <-s.inbox:
			s.handle(m)
			s.publish()
		}
	}
}

func (s *Session) handle(m any) {
	switch m := m.(type) {
	case callMsg:
		m.fn()
		// Callers read State right after returning.
		s.publish()
		close(m.done)
	case eventMsg:
		s.handleEvent(m)
	case endedMsg:
		if !s.current(m.token) {
			s.observer.StaleEvent("playback_ended")
			return
		}
		if s.live.sched.Finish(m.id) && s.status == StatusSpeaking {
			s.setStatus(StatusListening)
		}
		s.dirty = true
	case levelMsg:
		if s.current(m.token) {
			s.level = m.level
			s.dirty = true
		}
	case openTimeoutMsg:
		if !s.current(m.token) || s.status != StatusConnecting {
			return
		}
		s.lastErr = ErrOpenTimeout
		s.logger.Error("connect failed", "session", m.token.String(), "error", ErrOpenTimeout)
		s.teardown()
		s.setStatus(StatusError)
		s.observer.SessionFailed(s.cfg.Provider, ErrOpenTimeout)
	}
}

// current reports whether token belongs to the live session.
func (s *Session) current(token Token) bool {
	return s.guard.Valid(token) && s.live != nil && s.live.token == token
}

func (s *Session) handleEvent(m eventMsg) {
	if !s.current(m.token) {
		s.observer.StaleEvent(m.ev.Type.String())
		return
	}
	l := s.live
	ev := m.ev

	switch ev.Type {
	case EventOpen:
		if s.status == StatusConnecting {
			s.setStatus(StatusListening)
		}
		s.startMedia(l)
		s.logger.Info("session open", "session", l.token.String(), "mode", l.mode)

	case EventInputTranscript:
		s.metrics.MarkTurnStart()
		s.transcript.AppendInput(ev.Text)
		s.dirty = true

	case EventOutputTranscript:
		s.transcript.AppendOutput(ev.Text)
		s.dirty = true

	case EventTurnComplete:
		s.transcript.Complete()
		turn := s.metrics.MarkResponseDone()
		s.observer.TurnCompleted(turn)
		s.logger.Debug("turn complete", "latency", turn.FormatLatency())
		s.dirty = true

	case EventAudio:
		s.playAudio(l, ev)

	case EventInterrupted:
		stopped := l.sched.Interrupt()
		s.metrics.MarkInterrupted()
		s.observer.Interrupted(stopped)
		s.setStatus(StatusListening)
		s.logger.Debug("interrupted", "stopped", stopped)

	case EventError:
		s.lastErr = ev.Err
		s.logger.Error("stream error", "session", l.token.String(), "error", ev.Err)
		s.teardown()
		s.setStatus(StatusError)

	case EventClose:
		s.logger.Info("remote closed", "session", l.token.String())
		s.teardown()
		s.setStatus(StatusIdle)
	}
}

// playAudio decodes an inbound chunk and schedules it. Decoding happens
// here on the actor, so an interruption cannot interleave with it.
func (s *Session) playAudio(l *live, ev Event) {
	rate := ev.SampleRate
	if rate <= 0 {
		rate = s.cfg.OutputSampleRate
	}
	chunk := audioio.ChunkFromBytes(ev.Audio, rate)
	if len(chunk.Samples) == 0 {
		return
	}

	token := l.token
	if _, _, err := l.sched.Enqueue(chunk, func(id uint64) {
		s.postAsync(endedMsg{token: token, id: id})
	}); err != nil {
		s.logger.Warn("schedule audio failed", "error", err)
		return
	}

	s.metrics.IncrementAudioIn()
	s.metrics.MarkFirstAudio()
	s.observer.AudioReceived(len(ev.Audio))
	if s.status == StatusListening {
		s.setStatus(StatusSpeaking)
	}
	s.dirty = true
}

// startMedia launches capture (and frame sampling in audio+video mode).
func (s *Session) startMedia(l *live) {
	if l.started {
		return
	}
	l.started = true
	token := l.token
	valid := func() bool { return s.guard.Valid(token) }

	capture := &Capture{
		Source: l.mic,
		Sender: l.remote,
		Rate:   s.cfg.InputSampleRate,
		Valid:  valid,
		OnLevel: func(level float64) {
			s.postAsync(levelMsg{token: token, level: level})
		},
		OnSent: func(n int) {
			s.metrics.IncrementAudioOut()
			s.observer.AudioSent(n)
		},
		Logger: s.logger,
	}
	go func() {
		if err := capture.Run(l.ctx); err != nil {
			s.logger.Error("capture stopped", "error", err)
		}
	}()

	if l.mode == ModeAudioVideo && l.cam != nil {
		sampler := &FrameSampler{
			Source: l.cam,
			Sender: l.remote,
			Config: s.camera.GetConfig,
			Valid:  valid,
			OnFrame: func(jpeg []byte) {
				s.metrics.IncrementFramesOut()
				s.observer.FrameSent(len(jpeg))
				if s.onFrame != nil {
					s.onFrame(jpeg)
				}
			},
			Logger: s.logger,
		}
		go sampler.Run(l.ctx)
	}
}

// pump forwards remote events to the actor, tagged with the session token.
func (s *Session) pump(l *live) {
	for ev := range l.remote.Events() {
		select {
		case s.inbox <- eventMsg{token: l.token, ev: ev}:
		case <-s.done:
			return
		}
	}
}

// teardown invalidates the token and releases the live session. Safe to
// call with nothing live.
func (s *Session) teardown() {
	s.guard.Invalidate()
	if s.live != nil {
		l := s.live
		s.live = nil
		l.release(s.logger)
		s.observer.SessionEnded(s.cfg.Provider)
	}
	s.level = 0
	s.dirty = true
}

func (s *Session) setStatus(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	s.dirty = true
	s.observer.StatusChanged(st)
}

func (s *Session) snapshot() State {
	st := State{
		Provider:         string(s.cfg.Provider),
		Status:           s.status,
		Mode:             s.mode,
		InputTranscript:  s.transcript.Input(),
		OutputTranscript: s.transcript.Output(),
		Language:         s.transcript.Language(),
		Level:            s.level,
	}
	if s.live != nil {
		st.SessionID = s.live.token.String()
		st.Playing = s.live.sched.Active()
	}
	if s.status == StatusError && s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

// publish stores a new snapshot and notifies listeners if anything
// changed.
func (s *Session) publish() {
	if !s.dirty {
		return
	}
	s.dirty = false

	st := s.snapshot()
	s.stateMu.Lock()
	s.state = st
	listeners := slices.Clone(s.listeners)
	s.stateMu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}
