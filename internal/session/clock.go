package session

import "time"

// Clock schedules debounce deadlines.
type Clock interface {
	// AfterFunc calls fn on its own goroutine after d. The returned function
	// cancels the call and reports whether it was still pending.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}
