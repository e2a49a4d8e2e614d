package session

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/cachescope/internal/cachestore"
	"github.com/roach88/cachescope/internal/opener"
)

// Selection is re-exported so session callers need only this package.
type Selection = opener.Selection

// GateState is the state of the open gate.
type GateState int

const (
	// GateIdle means the current Selection is not (yet) known to be plausible.
	GateIdle GateState = iota
	// GateTriggerable means an open may be triggered.
	GateTriggerable
	// GateInFlight means an open attempt is outstanding.
	GateInFlight
)

func (g GateState) String() string {
	switch g {
	case GateIdle:
		return "idle"
	case GateTriggerable:
		return "triggerable"
	case GateInFlight:
		return "in-flight"
	default:
		return fmt.Sprintf("GateState(%d)", int(g))
	}
}

// Validity is one debounced plausibility result.
type Validity struct {
	// Seq increases with every debounce expiry. Publications are strictly
	// increasing in Seq.
	Seq int64

	// Selection is the snapshot taken when the deadline expired.
	Selection Selection

	// Valid is opener.IsPlausible(Selection.Path, Selection.Indexed).
	Valid bool
}

// OpenAttempt records one open started by an accepted trigger.
type OpenAttempt struct {
	ID        string
	Selection Selection
	Started   time.Time
}

// Status is a consistent snapshot of session state.
type Status struct {
	Selection Selection
	Validity  Validity // zero until the first publication
	Gate      GateState
	Attempt   *OpenAttempt // nil unless Gate is GateInFlight
}

// Opener runs one blocking open. *opener.Pipeline implements it.
type Opener interface {
	Open(ctx context.Context, sel Selection) opener.Result
}

// Handoff receives the outcome of each attempt on the interaction goroutine.
//
// On Opened the receiver takes ownership of h; the session keeps no
// reference to it.
type Handoff interface {
	Opened(attempt OpenAttempt, h cachestore.Handle)
	Failed(attempt OpenAttempt, message string, err error)
}

// Picker asks the user for a path. It is called on the interaction
// goroutine and may block. ok is false if the user cancelled.
type Picker interface {
	Choose(initialPath, title string) (path string, ok bool)
}

// BrowseTitle is the title passed to the Picker.
const BrowseTitle = "Browse for cache"

// Observer is notified of state changes on the interaction goroutine,
// except AttemptDiscarded, which may run on an executor goroutine after the
// session has stopped. Implementations must not call blocking Session
// methods (Trigger, Browse, Status) from these callbacks.
type Observer interface {
	ValidityChanged(v Validity)
	GateChanged(from, to GateState)
	AttemptStarted(a OpenAttempt)
	AttemptDiscarded(a OpenAttempt, res opener.Result)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) ValidityChanged(Validity)                    {}
func (NopObserver) GateChanged(GateState, GateState)            {}
func (NopObserver) AttemptStarted(OpenAttempt)                  {}
func (NopObserver) AttemptDiscarded(OpenAttempt, opener.Result) {}
