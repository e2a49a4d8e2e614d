package cachestore

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Entry is one key/value pair written by the Seed functions.
type Entry struct {
	Key      string
	Value    []byte
	TypeName string        // optional; indexed stores only
	TTL      time.Duration // zero means no expiry
}

const elementSchema = `
CREATE TABLE IF NOT EXISTS CacheElement (
	Key        TEXT PRIMARY KEY,
	TypeName   TEXT,
	Value      BLOB NOT NULL,
	Expiration INTEGER NOT NULL DEFAULT 0,
	CreatedAt  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cacheelement_expiration ON CacheElement(Expiration);
`

const metaSchema = `
CREATE TABLE IF NOT EXISTS CacheMeta (
	Name  TEXT PRIMARY KEY,
	Value BLOB NOT NULL
);
`

// SeedIndexed writes entries into an indexed cache at path, creating the
// file if needed. A non-empty passphrase produces an encrypted store; seeding
// an existing encrypted file requires the same passphrase.
func SeedIndexed(path string, entries []Entry, passphrase string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	// Rollback journal, not WAL: readers open with mode=ro and cannot create
	// the -shm file a WAL database needs.
	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = FULL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(elementSchema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var s *sealer
	if passphrase != "" {
		s, err = seedMeta(db, passphrase)
		if err != nil {
			return err
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, e := range entries {
		value := e.Value
		if s != nil {
			value, err = s.seal(e.Value, []byte(e.Key))
			if err != nil {
				return err
			}
		}
		var expiration int64
		if e.TTL > 0 {
			expiration = now.Add(e.TTL).UnixNano()
		}
		_, err = tx.Exec(
			`INSERT INTO CacheElement (Key, TypeName, Value, Expiration, CreatedAt)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(Key) DO UPDATE SET TypeName = excluded.TypeName, Value = excluded.Value,
			 Expiration = excluded.Expiration, CreatedAt = excluded.CreatedAt`,
			e.Key, e.TypeName, value, expiration, now.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert %q: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// seedMeta creates the salt and canary rows, or verifies the passphrase
// against existing ones.
func seedMeta(db *sql.DB, passphrase string) (*sealer, error) {
	if _, err := db.Exec(metaSchema); err != nil {
		return nil, fmt.Errorf("failed to execute meta schema: %w", err)
	}

	var salt []byte
	err := db.QueryRow("SELECT Value FROM CacheMeta WHERE Name = ?", metaSalt).Scan(&salt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if salt, err = newSalt(); err != nil {
			return nil, err
		}
		s, err := newSealer(deriveKey(passphrase, salt))
		if err != nil {
			return nil, err
		}
		canary, err := s.seal(canaryPlaintext, []byte(metaCanary))
		if err != nil {
			return nil, err
		}
		if _, err := db.Exec("INSERT INTO CacheMeta (Name, Value) VALUES (?, ?), (?, ?)",
			metaSalt, salt, metaCanary, canary); err != nil {
			return nil, fmt.Errorf("write metadata: %w", err)
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read salt: %w", err)
	}

	var canary []byte
	if err := db.QueryRow("SELECT Value FROM CacheMeta WHERE Name = ?", metaCanary).Scan(&canary); err != nil {
		return nil, fmt.Errorf("read canary: %w", err)
	}
	s, err := newSealer(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	if _, err := s.open(canary, []byte(metaCanary)); err != nil {
		return nil, ErrWrongPassphrase
	}
	return s, nil
}

// SeedDirectory writes entries into a directory cache at dir, creating it if
// needed. A non-empty passphrase enables block encryption.
func SeedDirectory(dir string, entries []Entry, passphrase string) error {
	var key []byte
	if passphrase != "" {
		key = deriveKey(passphrase, directorySalt)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := badgerOptions(dir, key, quiet).WithValueLogFileSize(1 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dir, err)
	}

	err = db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			be := badger.NewEntry([]byte(e.Key), e.Value)
			if e.TTL > 0 {
				be = be.WithTTL(e.TTL)
			}
			if err := txn.SetEntry(be); err != nil {
				return fmt.Errorf("set %q: %w", e.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}
	return db.Close()
}
