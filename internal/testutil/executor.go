package testutil

import "sync"

// ManualExecutor queues submitted work until the test runs it.
//
// This lets a test control the completion order of background work, e.g. to
// deliver an older result after a newer one.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualExecutor struct {
	mu      sync.Mutex
	pending []func()
	signal  chan struct{}
}

// NewManualExecutor creates an executor with no queued work.
func NewManualExecutor() *ManualExecutor {
	return &ManualExecutor{signal: make(chan struct{}, 1)}
}

// Go queues fn. It never runs fn itself.
func (e *ManualExecutor) Go(fn func()) {
	e.mu.Lock()
	e.pending = append(e.pending, fn)
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of queued functions.
func (e *ManualExecutor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Queued returns a channel signalled after Go is called.
func (e *ManualExecutor) Queued() <-chan struct{} {
	return e.signal
}

// Run runs and removes the queued function at index i.
// Panics if i is out of range.
func (e *ManualExecutor) Run(i int) {
	e.mu.Lock()
	fn := e.pending[i]
	e.pending = append(e.pending[:i], e.pending[i+1:]...)
	e.mu.Unlock()
	fn()
}

// RunAll runs queued functions in submission order until none remain,
// including any queued while running.
func (e *ManualExecutor) RunAll() {
	for e.Len() > 0 {
		e.Run(0)
	}
}
