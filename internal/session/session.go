package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/cachescope/internal/opener"
)

// DefaultDebounce is the quiet period after the last Selection change
// before its validity is checked.
const DefaultDebounce = 250 * time.Millisecond

// ErrAlreadyRunning is returned by Run when the session was already run or
// stopped.
var ErrAlreadyRunning = errors.New("session: already running or stopped")

// Session is the single-writer event loop for one open dialog.
//
// Thread-safety model:
//   - SetPath, SetEncrypted, SetIndexed, Trigger, Browse, Status, Stop:
//     safe from any goroutine except the Run goroutine itself
//   - Run(): must be called from exactly one goroutine
//
// Trigger, Browse and Status block until the Run loop has handled them.
// Calling them from an Observer or Handoff callback deadlocks.
type Session struct {
	opener     Opener
	handoff    Handoff
	observer   Observer
	clock      Clock
	exec       Executor
	validator  func(path string, indexed bool) bool
	picker     Picker
	browseRoot string
	ids        IDGenerator
	debounce   time.Duration

	queue   *eventQueue
	running atomic.Bool

	// Owned by the Run goroutine.
	sel        Selection
	gen        uint64      // bumped on every debounce reset
	stopTimer  func() bool // cancels the pending deadline, nil if none
	seq        int64       // last sequence number handed to a check
	validity   Validity    // last published result
	gate       GateState
	attempt    *OpenAttempt
	attemptCtx context.Context
}

// Option configures a Session.
type Option func(*Session)

// WithDebounce sets the debounce window.
//
// Default: 250ms (DefaultDebounce). A non-positive value checks on the
// next loop turn.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) {
		s.debounce = d
	}
}

// WithClock replaces the wall clock, e.g. with testutil.FakeClock.
func WithClock(c Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithExecutor sets where checks and opens run. Default: NewPool(DefaultPoolSize).
func WithExecutor(e Executor) Option {
	return func(s *Session) {
		s.exec = e
	}
}

// WithValidator replaces opener.IsPlausible.
func WithValidator(fn func(path string, indexed bool) bool) Option {
	return func(s *Session) {
		s.validator = fn
	}
}

// WithPicker enables Browse. root is the initial path offered to the picker.
func WithPicker(p Picker, root string) Option {
	return func(s *Session) {
		s.picker = p
		s.browseRoot = root
	}
}

// WithObserver receives state change notifications.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observer = o
	}
}

// WithIDGenerator sets the attempt ID source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) {
		s.ids = g
	}
}

// WithSelection sets the initial Selection. Default: empty path, plain,
// directory-backed.
func WithSelection(sel Selection) Option {
	return func(s *Session) {
		s.sel = sel
	}
}

// New creates a Session that opens through op and hands results to h.
func New(op Opener, h Handoff, opts ...Option) *Session {
	s := &Session{
		opener:    op,
		handoff:   h,
		observer:  NopObserver{},
		clock:     SystemClock,
		validator: opener.IsPlausible,
		ids:       UUIDv7Generator{},
		debounce:  DefaultDebounce,
		queue:     newEventQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exec == nil {
		s.exec = NewPool(DefaultPoolSize)
	}
	return s
}

// SetPath changes the selected path. Setting the current value is a no-op
// and does not reset the debounce. Returns false if the session has stopped.
func (s *Session) SetPath(path string) bool {
	return s.edit(func(sel *Selection) bool {
		if sel.Path == path {
			return false
		}
		sel.Path = path
		return true
	})
}

// SetEncrypted changes the encrypted flag.
func (s *Session) SetEncrypted(encrypted bool) bool {
	return s.edit(func(sel *Selection) bool {
		if sel.Encrypted == encrypted {
			return false
		}
		sel.Encrypted = encrypted
		return true
	})
}

// SetIndexed changes the indexed flag.
func (s *Session) SetIndexed(indexed bool) bool {
	return s.edit(func(sel *Selection) bool {
		if sel.Indexed == indexed {
			return false
		}
		sel.Indexed = indexed
		return true
	})
}

func (s *Session) edit(fn func(*Selection) bool) bool {
	return s.queue.Enqueue(event{typ: eventEdit, edit: fn})
}

// Trigger asks to open the current Selection. It reports whether the gate
// accepted the request; a request outside GateTriggerable is dropped.
// The open itself completes later through the Handoff.
func (s *Session) Trigger() bool {
	_, ok := s.TriggerAttempt()
	return ok
}

// TriggerAttempt is Trigger, also returning the accepted attempt so the
// caller can match it to the Handoff call that resolves it.
func (s *Session) TriggerAttempt() (OpenAttempt, bool) {
	reply := make(chan triggerReply, 1)
	if !s.queue.Enqueue(event{typ: eventTrigger, reply: reply}) {
		return OpenAttempt{}, false
	}
	r := <-reply
	return r.attempt, r.ok
}

// Browse shows the Picker and sets the path to the chosen one. Cancelling
// the Picker clears the path. It returns once the choice has been applied.
func (s *Session) Browse() {
	done := make(chan struct{})
	if !s.queue.Enqueue(event{typ: eventBrowse, done: done}) {
		return
	}
	<-done
}

// Status returns the session state after every event enqueued before the
// call has been processed. ok is false if the session stopped first.
func (s *Session) Status() (st Status, ok bool) {
	reply := make(chan Status, 1)
	if !s.queue.Enqueue(event{typ: eventBarrier, status: reply}) {
		return Status{}, false
	}
	st, ok = <-reply
	return st, ok
}

// Stop shuts the session down. Events not yet processed are discarded and
// an in-flight open is discarded when it resolves.
func (s *Session) Stop() {
	s.queue.Close()
	if s.running.CompareAndSwap(false, true) {
		// Run never started; release anyone blocked on a queued event.
		s.drain()
	}
}

// Run processes events until ctx is cancelled or Stop is called.
// It returns ctx.Err() on cancellation and nil on Stop.
//
// CRITICAL: Must be called from exactly ONE goroutine. That goroutine is
// the interaction context for every Observer and Handoff callback.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	// Opens outlive the session's context; late results are discarded instead.
	s.attemptCtx = context.WithoutCancel(ctx)

	slog.Debug("session starting", "debounce", s.debounce)

	// The initial Selection is checked like any edit.
	s.resetDeadline()

	for {
		if s.queue.IsClosed() {
			slog.Debug("session stopping: stopped")
			s.shutdown()
			return nil
		}

		if ev, ok := s.queue.TryDequeue(); ok {
			s.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("session stopping: context cancelled")
			s.queue.Close()
			s.shutdown()
			return ctx.Err()

		case <-s.queue.Wait():
			// Signal received (or queue closed) - loop back.
		}
	}
}

// process routes an event to its handler.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (s *Session) process(ev event) {
	switch ev.typ {
	case eventEdit:
		if ev.edit(&s.sel) {
			s.resetDeadline()
		}
	case eventDeadline:
		s.onDeadline(ev.gen)
	case eventValidity:
		s.onValidity(ev.validity)
	case eventTrigger:
		attempt, ok := s.onTrigger()
		ev.reply <- triggerReply{attempt: attempt, ok: ok}
	case eventResolved:
		s.onResolved(ev.attempt, ev.result)
	case eventBrowse:
		s.onBrowse()
		close(ev.done)
	case eventBarrier:
		ev.status <- s.status()
	default:
		slog.Error("unknown session event", "type", int(ev.typ))
	}
}

// resetDeadline restarts the debounce window.
func (s *Session) resetDeadline() {
	if s.stopTimer != nil {
		s.stopTimer()
	}
	s.gen++
	gen := s.gen
	s.stopTimer = s.clock.AfterFunc(s.debounce, func() {
		s.queue.Enqueue(event{typ: eventDeadline, gen: gen})
	})
}

func (s *Session) onDeadline(gen uint64) {
	if gen != s.gen {
		// Superseded by a later reset whose timer could not be stopped in time.
		return
	}
	s.stopTimer = nil

	s.seq++
	seq, snap := s.seq, s.sel
	validate := s.validator

	slog.Debug("checking selection", "seq", seq, "path", snap.Path, "indexed", snap.Indexed)

	s.exec.Go(func() {
		v := Validity{Seq: seq, Selection: snap, Valid: safeValidate(validate, snap)}
		s.queue.Enqueue(event{typ: eventValidity, validity: v})
	})
}

func safeValidate(fn func(string, bool) bool, sel Selection) (valid bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic checking selection", "path", sel.Path, "panic", r)
			valid = false
		}
	}()
	return fn(sel.Path, sel.Indexed)
}

func (s *Session) onValidity(v Validity) {
	if v.Seq <= s.validity.Seq {
		slog.Debug("stale validity dropped", "seq", v.Seq, "published", s.validity.Seq)
		return
	}
	s.validity = v

	if s.gate != GateInFlight {
		s.setGate(gateFor(v.Valid))
	}
	s.observer.ValidityChanged(v)
}

func gateFor(valid bool) GateState {
	if valid {
		return GateTriggerable
	}
	return GateIdle
}

func (s *Session) setGate(to GateState) {
	if s.gate == to {
		return
	}
	from := s.gate
	s.gate = to
	slog.Debug("gate changed", "from", from, "to", to)
	s.observer.GateChanged(from, to)
}

func (s *Session) onTrigger() (OpenAttempt, bool) {
	if s.gate != GateTriggerable {
		slog.Debug("open trigger dropped", "gate", s.gate)
		return OpenAttempt{}, false
	}

	attempt := OpenAttempt{
		ID:        s.ids.Generate(),
		Selection: s.sel,
		Started:   time.Now(),
	}
	s.attempt = &attempt
	s.setGate(GateInFlight)

	slog.Info("open attempt started",
		"attempt", attempt.ID,
		"variant", attempt.Selection.Variant(),
		"path", attempt.Selection.Path,
	)
	s.observer.AttemptStarted(attempt)

	ctx := s.attemptCtx
	s.exec.Go(func() {
		res := s.runOpen(ctx, attempt)
		if !s.queue.Enqueue(event{typ: eventResolved, attempt: attempt, result: res}) {
			s.discard(attempt, res)
		}
	})
	return attempt, true
}

// runOpen calls the Opener, converting a panic into a construction failure.
func (s *Session) runOpen(ctx context.Context, attempt OpenAttempt) (res opener.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = opener.Result{Err: &opener.OpenFailure{
				Kind:    opener.KindConstruction,
				Variant: attempt.Selection.Variant(),
				Path:    attempt.Selection.Path,
				Err:     fmt.Errorf("panic opening: %v", r),
			}}
		}
	}()
	return s.opener.Open(ctx, attempt.Selection)
}

func (s *Session) onResolved(attempt OpenAttempt, res opener.Result) {
	s.attempt = nil
	s.setGate(gateFor(s.validity.Valid))

	elapsed := time.Since(attempt.Started)
	if res.OK() {
		slog.Info("cache opened", "attempt", attempt.ID, "path", attempt.Selection.Path, "elapsed", elapsed)
		s.handoff.Opened(attempt, res.Handle)
		return
	}

	slog.Warn("cache open failed", "attempt", attempt.ID, "path", attempt.Selection.Path, "elapsed", elapsed, "error", res.Err)
	s.handoff.Failed(attempt, opener.UserMessage, res.Err)
}

// discard drops a result that arrived after the session stopped.
func (s *Session) discard(attempt OpenAttempt, res opener.Result) {
	if res.Handle != nil {
		if err := res.Handle.Close(); err != nil {
			slog.Warn("error closing discarded store", "attempt", attempt.ID, "error", err)
		}
	}
	slog.Info("open result discarded", "attempt", attempt.ID, "ok", res.OK())
	s.observer.AttemptDiscarded(attempt, res)
}

func (s *Session) onBrowse() {
	if s.picker == nil {
		slog.Debug("browse ignored: no picker")
		return
	}
	path, ok := s.picker.Choose(s.browseRoot, BrowseTitle)
	if !ok {
		path = ""
	}
	if s.sel.Path != path {
		s.sel.Path = path
		s.resetDeadline()
	}
}

func (s *Session) status() Status {
	st := Status{
		Selection: s.sel,
		Validity:  s.validity,
		Gate:      s.gate,
	}
	if s.attempt != nil {
		a := *s.attempt
		st.Attempt = &a
	}
	return st
}

// shutdown cancels the debounce and discards whatever is still queued.
// The queue must already be closed.
func (s *Session) shutdown() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	s.drain()
}

func (s *Session) drain() {
	for {
		ev, ok := s.queue.TryDequeue()
		if !ok {
			return
		}
		switch ev.typ {
		case eventResolved:
			s.discard(ev.attempt, ev.result)
		case eventTrigger:
			ev.reply <- triggerReply{}
		case eventBrowse:
			close(ev.done)
		case eventBarrier:
			close(ev.status)
		}
	}
}
