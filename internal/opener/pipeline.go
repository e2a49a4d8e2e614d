// Package opener turns a store selection into an opened, non-empty handle.
//
// Pipeline.Open is blocking: it constructs the selected variant and peeks at
// its first key. Callers on an interactive goroutine run it on a background
// executor (see package session). Every failure, including a panic inside a
// store implementation, resolves to an *OpenFailure; a handle is never
// leaked on a failure path.
package opener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/cachescope/internal/cachestore"
)

// Selection is what the user asked to open.
type Selection struct {
	Path      string
	Encrypted bool
	Indexed   bool
}

// Variant returns the store variant the selection maps to.
func (s Selection) Variant() cachestore.Variant {
	return cachestore.Select(s.Encrypted, s.Indexed)
}

// Result holds exactly one of Handle or Err.
type Result struct {
	Handle cachestore.Handle
	Err    error
}

// OK reports whether the open succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

var errNilHandle = errors.New("constructor returned no handle")

// Pipeline opens stores through a constructor table.
type Pipeline struct {
	constructors cachestore.Constructors
}

// New creates a Pipeline over the given constructors.
func New(constructors cachestore.Constructors) *Pipeline {
	return &Pipeline{constructors: constructors}
}

// Open constructs the selected variant and checks it has at least one key.
func (p *Pipeline) Open(ctx context.Context, sel Selection) Result {
	variant := sel.Variant()
	fail := func(kind FailureKind, err error) Result {
		return Result{Err: &OpenFailure{Kind: kind, Variant: variant, Path: sel.Path, Err: err}}
	}

	h, err := p.construct(ctx, variant, sel.Path)
	if err != nil {
		if h != nil {
			discard(h, variant, sel.Path)
		}
		slog.Debug("store construction failed", "variant", variant, "path", sel.Path, "error", err)
		return fail(KindConstruction, err)
	}

	nonEmpty, err := hasKeys(ctx, h)
	if err != nil {
		discard(h, variant, sel.Path)
		slog.Debug("store enumeration failed", "variant", variant, "path", sel.Path, "error", err)
		return fail(KindConstruction, err)
	}
	if !nonEmpty {
		discard(h, variant, sel.Path)
		return fail(KindEmptyStore, nil)
	}

	return Result{Handle: h}
}

// construct runs the variant's constructor, converting panics to errors.
func (p *Pipeline) construct(ctx context.Context, v cachestore.Variant, path string) (h cachestore.Handle, err error) {
	fn := p.constructors.For(v)
	if fn == nil {
		return nil, fmt.Errorf("no constructor for %s", v)
	}

	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("panic opening %s: %v", v, r)
		}
	}()

	h, err = fn(ctx, path)
	if err == nil && h == nil {
		err = errNilHandle
	}
	return h, err
}

// hasKeys reports whether the first element of the key enumeration is a key.
func hasKeys(ctx context.Context, h cachestore.Handle) (found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = false, fmt.Errorf("panic enumerating keys: %v", r)
		}
	}()

	for _, err := range h.Keys(ctx) {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// discard closes a handle that will not be handed off.
func discard(h cachestore.Handle, v cachestore.Variant, path string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic closing discarded store", "variant", v, "path", path, "panic", r)
		}
	}()
	if err := h.Close(); err != nil {
		slog.Warn("error closing discarded store", "variant", v, "path", path, "error", err)
	}
}
