package cachestore

import (
	"context"
	"iter"
	"log/slog"
)

// Handle is an opened cache store.
//
// The party that receives a Handle owns it and must Close it.
type Handle interface {
	// Keys enumerates every live key. Enumeration is lazy; callers may stop
	// early. An enumeration error is yielded once, as the final element.
	Keys(ctx context.Context) iter.Seq2[string, error]

	// Get returns the raw (decrypted) value for key. Returns ErrNotFound if
	// the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Close releases the underlying database.
	Close() error
}

// Constructor opens the store at path as one specific variant.
type Constructor func(ctx context.Context, path string) (Handle, error)

// Constructors holds one constructor per variant.
type Constructors struct {
	PlainDirectory     Constructor
	EncryptedDirectory Constructor
	PlainIndexed       Constructor
	EncryptedIndexed   Constructor
}

// For returns the constructor registered for v, or nil if none is.
func (c Constructors) For(v Variant) Constructor {
	switch v {
	case PlainDirectory:
		return c.PlainDirectory
	case EncryptedDirectory:
		return c.EncryptedDirectory
	case PlainIndexed:
		return c.PlainIndexed
	case EncryptedIndexed:
		return c.EncryptedIndexed
	}
	return nil
}

// Options configures the real store constructors.
type Options struct {
	// Passphrase returns the passphrase for encrypted variants. It is called
	// on every open so the value may change during a session.
	Passphrase func() string

	// Attempts bounds how many times an open is tried when the store is
	// locked by a writer. Zero means DefaultOpenAttempts.
	Attempts uint

	// Logger receives retry and Badger diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOpenAttempts is the open attempt budget when Options.Attempts is zero.
const DefaultOpenAttempts = 3

func (o Options) attempts() uint {
	if o.Attempts == 0 {
		return DefaultOpenAttempts
	}
	return o.Attempts
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) passphrase() string {
	if o.Passphrase == nil {
		return ""
	}
	return o.Passphrase()
}

// NewConstructors returns the four real constructors sharing opts.
func NewConstructors(opts Options) Constructors {
	return Constructors{
		PlainDirectory: func(ctx context.Context, path string) (Handle, error) {
			d, err := OpenDirectory(ctx, path, opts)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		EncryptedDirectory: func(ctx context.Context, path string) (Handle, error) {
			d, err := OpenEncryptedDirectory(ctx, path, opts)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		PlainIndexed: func(ctx context.Context, path string) (Handle, error) {
			ix, err := OpenIndexed(ctx, path, opts)
			if err != nil {
				return nil, err
			}
			return ix, nil
		},
		EncryptedIndexed: func(ctx context.Context, path string) (Handle, error) {
			ix, err := OpenEncryptedIndexed(ctx, path, opts)
			if err != nil {
				return nil, err
			}
			return ix, nil
		},
	}
}
