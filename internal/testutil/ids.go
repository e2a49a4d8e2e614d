package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs returns "attempt-1", "attempt-2", ... for deterministic tests.
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix means "attempt".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "attempt"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
