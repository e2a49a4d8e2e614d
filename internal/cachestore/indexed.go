package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Table names of the indexed cache format.
const (
	elementTable = "CacheElement"
	metaTable    = "CacheMeta"
)

// Meta rows of an encrypted indexed store.
const (
	metaSalt   = "salt"
	metaCanary = "canary"
)

// Indexed is a read-only single-file SQLite cache.
//
// A zero-length file or a database with no tables is a valid, empty cache.
type Indexed struct {
	db     *sql.DB
	path   string
	empty  bool
	sealer *sealer // nil for plain stores
	now    func() time.Time
}

// OpenIndexed opens a plain indexed cache.
func OpenIndexed(ctx context.Context, path string, opts Options) (*Indexed, error) {
	return openIndexed(ctx, path, false, opts)
}

// OpenEncryptedIndexed opens an encrypted indexed cache. The passphrase is
// verified against the store's canary before the handle is returned.
func OpenEncryptedIndexed(ctx context.Context, path string, opts Options) (*Indexed, error) {
	return openIndexed(ctx, path, true, opts)
}

func openIndexed(ctx context.Context, path string, encrypted bool, opts Options) (*Indexed, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	db, err := sql.Open("sqlite3", readOnlyDSN(abs))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection is enough for a reader and keeps query_only applied.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var tables map[string]bool
	err = openWithRetry(ctx, opts.logger(), "open indexed", opts.attempts(), isSQLiteBusy, func() error {
		if err := applyReadPragmas(ctx, db); err != nil {
			return err
		}
		var err error
		tables, err = listTables(ctx, db)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read %s: %w", abs, err)
	}

	ix := &Indexed{db: db, path: abs, now: time.Now}

	switch {
	case len(tables) == 0:
		ix.empty = true
	case !tables[elementTable]:
		db.Close()
		return nil, fmt.Errorf("%s: %w", abs, ErrNotACache)
	}

	hasCanary := false
	if tables[metaTable] {
		hasCanary, err = ix.hasMeta(ctx, metaCanary)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
	}

	switch {
	case !encrypted && hasCanary:
		db.Close()
		return nil, fmt.Errorf("%s: %w", abs, ErrEncrypted)
	case encrypted && !ix.empty && !hasCanary:
		db.Close()
		return nil, fmt.Errorf("%s: %w", abs, ErrNotEncrypted)
	case encrypted:
		passphrase := opts.passphrase()
		if passphrase == "" {
			db.Close()
			return nil, ErrNoPassphrase
		}
		if !ix.empty {
			if err := ix.unlock(ctx, passphrase); err != nil {
				db.Close()
				return nil, err
			}
		}
	}

	return ix, nil
}

// readOnlyDSN builds a SQLite URI that never creates or writes the file.
func readOnlyDSN(abs string) string {
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "mode=ro&_busy_timeout=5000",
	}
	return u.String()
}

// applyReadPragmas sets connection configuration for a reader.
func applyReadPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA query_only = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// listTables returns the set of user tables. This is the first statement
// that reads the file header, so a non-database file fails here.
func listTables(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[name] = true
	}
	return tables, rows.Err()
}

func (ix *Indexed) hasMeta(ctx context.Context, name string) (bool, error) {
	var n int
	err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+metaTable+" WHERE Name = ?", name).Scan(&n)
	return n > 0, err
}

func (ix *Indexed) meta(ctx context.Context, name string) ([]byte, error) {
	var v []byte
	err := ix.db.QueryRowContext(ctx, "SELECT Value FROM "+metaTable+" WHERE Name = ?", name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("missing %s metadata", name)
	}
	return v, err
}

// unlock derives the value key and proves it against the canary.
func (ix *Indexed) unlock(ctx context.Context, passphrase string) error {
	salt, err := ix.meta(ctx, metaSalt)
	if err != nil {
		return err
	}
	canary, err := ix.meta(ctx, metaCanary)
	if err != nil {
		return err
	}

	s, err := newSealer(deriveKey(passphrase, salt))
	if err != nil {
		return err
	}
	if _, err := s.open(canary, []byte(metaCanary)); err != nil {
		return ErrWrongPassphrase
	}
	ix.sealer = s
	return nil
}

// Path returns the absolute path of the opened file.
func (ix *Indexed) Path() string {
	return ix.path
}

// Keys enumerates unexpired keys in key order.
func (ix *Indexed) Keys(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if ix.empty {
			return
		}

		rows, err := ix.db.QueryContext(ctx,
			"SELECT Key FROM "+elementTable+" WHERE Expiration = 0 OR Expiration > ? ORDER BY Key ASC",
			ix.now().UnixNano(),
		)
		if err != nil {
			yield("", fmt.Errorf("query keys: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				yield("", fmt.Errorf("scan key: %w", err))
				return
			}
			if !yield(key, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield("", fmt.Errorf("iterate keys: %w", err))
		}
	}
}

// Get returns the value for key, decrypting it for encrypted stores.
func (ix *Indexed) Get(ctx context.Context, key string) ([]byte, error) {
	if ix.empty {
		return nil, ErrNotFound
	}

	var value []byte
	err := ix.db.QueryRowContext(ctx,
		"SELECT Value FROM "+elementTable+" WHERE Key = ? AND (Expiration = 0 OR Expiration > ?)",
		key, ix.now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}

	if ix.sealer == nil {
		return value, nil
	}
	plain, err := ix.sealer.open(value, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("decrypt %q: %w", key, err)
	}
	return plain, nil
}

// Close closes the database connection.
func (ix *Indexed) Close() error {
	if ix.db == nil {
		return nil
	}
	return ix.db.Close()
}
