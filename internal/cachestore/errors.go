package cachestore

import "errors"

// Sentinel errors.
var (
	// ErrNotFound is returned by Get when a key does not exist or has expired.
	ErrNotFound = errors.New("cachestore: not found")

	// ErrNotACache is returned when an indexed file is a database but has no
	// CacheElement table.
	ErrNotACache = errors.New("cachestore: database is not a cache")

	// ErrEncrypted is returned when a plain reader opens an encrypted store.
	ErrEncrypted = errors.New("cachestore: store is encrypted")

	// ErrNotEncrypted is returned when an encrypted reader opens a plain
	// indexed store.
	ErrNotEncrypted = errors.New("cachestore: store is not encrypted")

	// ErrNoPassphrase is returned when an encrypted variant is opened without
	// a passphrase.
	ErrNoPassphrase = errors.New("cachestore: passphrase required")

	// ErrWrongPassphrase is returned when the passphrase does not open the
	// store's canary.
	ErrWrongPassphrase = errors.New("cachestore: wrong passphrase")
)
