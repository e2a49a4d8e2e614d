package opener

import (
	"errors"
	"fmt"

	"github.com/roach88/cachescope/internal/cachestore"
)

// UserMessage is the single message shown for every open failure.
const UserMessage = "Couldn't open this cache"

// FailureKind categorizes open failures.
type FailureKind string

const (
	// KindConstruction indicates the store could not be opened as the
	// selected variant (wrong format, corruption, permissions, passphrase).
	KindConstruction FailureKind = "CONSTRUCTION_FAILURE"

	// KindEmptyStore indicates the store opened but holds no keys.
	KindEmptyStore FailureKind = "EMPTY_STORE"
)

// OpenFailure is the only error an Open resolves to.
type OpenFailure struct {
	Kind    FailureKind
	Variant cachestore.Variant
	Path    string
	Err     error // underlying cause; nil for KindEmptyStore
}

// Error implements the error interface.
func (e *OpenFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Variant, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Variant, e.Path)
}

func (e *OpenFailure) Unwrap() error {
	return e.Err
}

// IsEmptyStore returns true if err is an empty-store failure.
// Uses errors.As to handle wrapped errors.
func IsEmptyStore(err error) bool {
	var of *OpenFailure
	if errors.As(err, &of) {
		return of.Kind == KindEmptyStore
	}
	return false
}

// IsConstructionFailure returns true if err is a construction failure.
// Uses errors.As to handle wrapped errors.
func IsConstructionFailure(err error) bool {
	var of *OpenFailure
	if errors.As(err, &of) {
		return of.Kind == KindConstruction
	}
	return false
}
