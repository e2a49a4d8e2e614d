package session

import (
	"sync"

	"github.com/roach88/cachescope/internal/opener"
)

// eventType distinguishes between event kinds.
type eventType int

const (
	// eventEdit mutates the Selection.
	eventEdit eventType = iota + 1
	// eventDeadline reports a debounce timer expiry.
	eventDeadline
	// eventValidity carries a finished plausibility check.
	eventValidity
	// eventTrigger asks the gate to start an open.
	eventTrigger
	// eventResolved carries a finished open attempt.
	eventResolved
	// eventBrowse asks the Picker for a path.
	eventBrowse
	// eventBarrier reports Status once every earlier event is processed.
	eventBarrier
)

// event is one unit of work for the Run loop. Only the fields for its type
// are set.
type event struct {
	typ eventType

	edit     func(*Selection) bool // eventEdit; reports whether it changed anything
	gen      uint64                // eventDeadline
	validity Validity              // eventValidity
	attempt  OpenAttempt           // eventResolved
	result   opener.Result         // eventResolved

	reply  chan triggerReply // eventTrigger
	done   chan struct{}     // eventBrowse
	status chan Status       // eventBarrier
}

// triggerReply answers an eventTrigger. attempt is set only when accepted.
type triggerReply struct {
	attempt OpenAttempt
	ok      bool
}

// eventQueue is a thread-safe unbounded FIFO queue for events.
//
// Any goroutine may enqueue; only the Run loop dequeues. The signal channel
// enables context-aware waiting in the loop.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
// Returns (event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the backing array does not pin handles and channels.
	q.events[0] = event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// IsClosed reports whether Close has been called.
func (q *eventQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further events and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
