package cachestore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRW(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	return db
}

func seedDirectory(t *testing.T, pass string, entries ...Entry) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, SeedDirectory(dir, entries, pass))
	return dir
}

func TestOpenDirectory_ListsKeys(t *testing.T) {
	dir := seedDirectory(t, "",
		Entry{Key: "user:2", Value: []byte("bob")},
		Entry{Key: "user:1", Value: []byte("alice")},
	)

	d, err := OpenDirectory(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, []string{"user:1", "user:2"}, collectKeys(t, d))

	v, err := d.Get(context.Background(), "user:2")
	require.NoError(t, err)
	assert.Equal(t, []byte("bob"), v)

	_, err = d.Get(context.Background(), "user:3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenDirectory_EmptyDirectoryFails(t *testing.T) {
	// Read-only Badger refuses a directory without a manifest.
	_, err := OpenDirectory(context.Background(), t.TempDir(), Options{})
	assert.Error(t, err)
}

func TestOpenDirectory_NoEntries(t *testing.T) {
	dir := seedDirectory(t, "")

	d, err := OpenDirectory(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer d.Close()

	assert.Empty(t, collectKeys(t, d))
}

func TestOpenDirectory_CancelledContext(t *testing.T) {
	dir := seedDirectory(t, "", Entry{Key: "k", Value: []byte("v")})
	d, err := OpenDirectory(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range d.Keys(ctx) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestOpenEncryptedDirectory_RoundTrip(t *testing.T) {
	dir := seedDirectory(t, "hunter2", Entry{Key: "secret", Value: []byte("payload")})

	d, err := OpenEncryptedDirectory(context.Background(), dir, passphrase("hunter2"))
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, []string{"secret"}, collectKeys(t, d))
	v, err := d.Get(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v)
}

func TestOpenEncryptedDirectory_Rejections(t *testing.T) {
	encrypted := seedDirectory(t, "hunter2", Entry{Key: "k", Value: []byte("v")})

	_, err := OpenEncryptedDirectory(context.Background(), encrypted, passphrase("wrong"))
	assert.Error(t, err, "wrong passphrase")

	_, err = OpenEncryptedDirectory(context.Background(), encrypted, Options{})
	assert.ErrorIs(t, err, ErrNoPassphrase)

	_, err = OpenDirectory(context.Background(), encrypted, Options{})
	assert.Error(t, err, "plain reader on encrypted directory")
}

func TestOpenDirectory_SQLiteFileIsNotADirectory(t *testing.T) {
	path := seedIndexed(t, "", Entry{Key: "k", Value: []byte("v")})

	_, err := OpenDirectory(context.Background(), path, Options{})
	assert.Error(t, err)
}

func TestOpenDirectory_AllowsConcurrentReaders(t *testing.T) {
	dir := seedDirectory(t, "", Entry{Key: "k", Value: []byte("v")})

	first, err := OpenDirectory(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer first.Close()

	second, err := OpenDirectory(context.Background(), dir, Options{})
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, collectKeys(t, first), collectKeys(t, second))
}

func TestOpenDirectory_LockedByWriterExhaustsRetries(t *testing.T) {
	dir := seedDirectory(t, "", Entry{Key: "k", Value: []byte("v")})

	writer, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	require.NoError(t, err)
	defer writer.Close()

	_, err = OpenDirectory(context.Background(), dir, Options{Attempts: 2})
	require.Error(t, err)
	assert.True(t, isDirectoryLocked(err), "unexpected error: %v", err)
}

func TestNewConstructors_OpenEachVariant(t *testing.T) {
	paths := map[Variant]string{
		PlainDirectory:     seedDirectory(t, "", Entry{Key: "k", Value: []byte("v")}),
		EncryptedDirectory: seedDirectory(t, "pw", Entry{Key: "k", Value: []byte("v")}),
		PlainIndexed:       seedIndexed(t, "", Entry{Key: "k", Value: []byte("v")}),
		EncryptedIndexed:   seedIndexed(t, "pw", Entry{Key: "k", Value: []byte("v")}),
	}
	c := NewConstructors(passphrase("pw"))

	for _, v := range Variants {
		t.Run(v.String(), func(t *testing.T) {
			h, err := c.For(v)(context.Background(), paths[v])
			require.NoError(t, err)
			defer h.Close()
			assert.Equal(t, []string{"k"}, collectKeys(t, h))
		})
	}
}

func TestNewConstructors_FailureReturnsNilHandle(t *testing.T) {
	c := NewConstructors(Options{Attempts: 1})
	missing := filepath.Join(t.TempDir(), "missing")

	for _, v := range Variants {
		h, err := c.For(v)(context.Background(), missing)
		assert.Error(t, err, v.String())
		assert.Nil(t, h, v.String())
	}
	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr), "readers must not create the store")
}
