package testutil

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/roach88/cachescope/internal/cachestore"
)

// FakeHandle is an in-memory cachestore.Handle that records Close calls.
//
// Thread-safety: FakeHandle is safe for concurrent use via internal mutex.
type FakeHandle struct {
	mu       sync.Mutex
	keys     []string
	values   map[string][]byte
	keysErr  error
	closes   int
	closeErr error
}

// NewFakeHandle creates a handle holding keys; each key's value is the key.
func NewFakeHandle(keys ...string) *FakeHandle {
	values := make(map[string][]byte, len(keys))
	for _, k := range keys {
		values[k] = []byte(k)
	}
	return &FakeHandle{keys: keys, values: values}
}

// WithKeysError makes enumeration yield err after the stored keys.
func (h *FakeHandle) WithKeysError(err error) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keysErr = err
	return h
}

// WithCloseError makes Close return err.
func (h *FakeHandle) WithCloseError(err error) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeErr = err
	return h
}

// Keys implements cachestore.Handle.
func (h *FakeHandle) Keys(_ context.Context) iter.Seq2[string, error] {
	h.mu.Lock()
	keys := append([]string(nil), h.keys...)
	keysErr := h.keysErr
	h.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
		if keysErr != nil {
			yield("", keysErr)
		}
	}
}

// Get implements cachestore.Handle.
func (h *FakeHandle) Get(_ context.Context, key string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.values[key]
	if !ok {
		return nil, cachestore.ErrNotFound
	}
	return v, nil
}

// Close implements cachestore.Handle.
func (h *FakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return h.closeErr
}

// Closed reports whether Close has been called at least once.
func (h *FakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes > 0
}

// CloseCount returns how many times Close has been called.
func (h *FakeHandle) CloseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// ErrFakeCorrupt is a stand-in construction error.
var ErrFakeCorrupt = errors.New("fake: corrupt store")
