// Package appstate holds what outlives an open dialog: the store that is
// currently open and the outcome of the last open attempt.
//
// State implements session.Handoff. It takes ownership of every handle it
// is given and closes the previous one when a new store replaces it.
package appstate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/cachescope/internal/cachestore"
	"github.com/roach88/cachescope/internal/session"
)

// Open is the store currently being browsed.
type Open struct {
	Handle   cachestore.Handle
	Attempt  session.OpenAttempt
	OpenedAt time.Time
}

// Outcome reports how one attempt resolved. Exactly one of Opened or Err
// is meaningful.
type Outcome struct {
	Attempt session.OpenAttempt
	Opened  bool
	Message string // user-facing, empty on success
	Err     error
}

// DefaultOutcomeBuffer is how many unread outcomes State keeps.
const DefaultOutcomeBuffer = 8

// State is safe for concurrent use.
type State struct {
	mu       sync.Mutex
	open     *Open
	last     *Outcome
	outcomes chan Outcome
	now      func() time.Time
}

// New creates an empty State.
func New() *State {
	return &State{
		outcomes: make(chan Outcome, DefaultOutcomeBuffer),
		now:      time.Now,
	}
}

var _ session.Handoff = (*State)(nil)

// Opened makes h the current store, closing the one it replaces.
func (s *State) Opened(attempt session.OpenAttempt, h cachestore.Handle) {
	open := &Open{Handle: h, Attempt: attempt, OpenedAt: s.now()}

	s.mu.Lock()
	prev := s.open
	s.open = open
	s.mu.Unlock()

	if prev != nil {
		closeOpen(prev)
	}
	s.publish(Outcome{Attempt: attempt, Opened: true})
}

// Failed records a failed attempt. The current store, if any, stays open.
func (s *State) Failed(attempt session.OpenAttempt, message string, err error) {
	s.publish(Outcome{Attempt: attempt, Message: message, Err: err})
}

func (s *State) publish(o Outcome) {
	s.mu.Lock()
	s.last = &o
	s.mu.Unlock()

	select {
	case s.outcomes <- o:
	default:
		slog.Warn("outcome dropped: no reader", "attempt", o.Attempt.ID)
	}
}

// Outcomes delivers attempt outcomes in the order they resolved.
func (s *State) Outcomes() <-chan Outcome {
	return s.outcomes
}

// Current returns the open store, if any.
func (s *State) Current() (Open, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return Open{}, false
	}
	return *s.open, true
}

// Last returns the most recent outcome, if any.
func (s *State) Last() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

// Clear closes the current store, if any, and forgets it.
func (s *State) Clear() error {
	s.mu.Lock()
	prev := s.open
	s.open = nil
	s.mu.Unlock()

	if prev == nil {
		return nil
	}
	return prev.Handle.Close()
}

// Close releases the current store. It is Clear under the io.Closer name.
func (s *State) Close() error {
	return s.Clear()
}

func closeOpen(o *Open) {
	if err := o.Handle.Close(); err != nil {
		slog.Warn("error closing replaced store", "attempt", o.Attempt.ID, "error", err)
	}
}
