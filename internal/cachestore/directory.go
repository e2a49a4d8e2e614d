package cachestore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// indexCacheSize is required by Badger whenever encryption is enabled.
const indexCacheSize = 16 << 20

// Directory is a read-only Badger directory cache.
type Directory struct {
	db   *badger.DB
	path string
}

// OpenDirectory opens a plain directory cache.
func OpenDirectory(ctx context.Context, path string, opts Options) (*Directory, error) {
	return openDirectory(ctx, path, nil, opts)
}

// OpenEncryptedDirectory opens a directory cache written with block
// encryption. Badger rejects a key that does not match the store.
func OpenEncryptedDirectory(ctx context.Context, path string, opts Options) (*Directory, error) {
	passphrase := opts.passphrase()
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	return openDirectory(ctx, path, deriveKey(passphrase, directorySalt), opts)
}

func openDirectory(ctx context.Context, path string, key []byte, opts Options) (*Directory, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	dbOpts := badgerOptions(abs, key, opts.logger()).WithReadOnly(true)

	var db *badger.DB
	err = openWithRetry(ctx, opts.logger(), "open directory", opts.attempts(), isDirectoryLocked, func() error {
		var err error
		db, err = badger.Open(dbOpts)
		return err
	})
	if err != nil {
		if key == nil && errors.Is(err, badger.ErrEncryptionKeyMismatch) {
			return nil, fmt.Errorf("%s: %w", abs, ErrEncrypted)
		}
		if key != nil && errors.Is(err, badger.ErrEncryptionKeyMismatch) {
			return nil, fmt.Errorf("%s: %w", abs, ErrWrongPassphrase)
		}
		return nil, fmt.Errorf("failed to open %s: %w", abs, err)
	}

	return &Directory{db: db, path: abs}, nil
}

// badgerOptions returns the options shared by readers and the seeder.
func badgerOptions(dir string, key []byte, logger *slog.Logger) badger.Options {
	o := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger: logger})
	if key != nil {
		o = o.WithEncryptionKey(key).WithIndexCacheSize(indexCacheSize)
	}
	return o
}

// Path returns the absolute path of the opened directory.
func (d *Directory) Path() string {
	return d.path
}

// Keys enumerates unexpired keys in lexicographic order.
func (d *Directory) Keys(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		err := d.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.PrefetchValues = false
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				if !yield(string(it.Item().KeyCopy(nil)), nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", fmt.Errorf("iterate keys: %w", err))
		}
	}
}

// Get returns the value for key.
func (d *Directory) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return val, nil
}

// Close closes the Badger database.
func (d *Directory) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// badgerLogger routes Badger's printf-style logging onto slog. Badger's info
// output is chatty, so it is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(badgerMessage(f, v), "component", "badger")
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(badgerMessage(f, v), "component", "badger")
}

func (l badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debug(badgerMessage(f, v), "component", "badger")
}

func (l badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debug(badgerMessage(f, v), "component", "badger")
}

func badgerMessage(f string, v []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(f, v...))
}
