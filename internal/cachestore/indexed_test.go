package cachestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passphrase(p string) Options {
	return Options{Passphrase: func() string { return p }}
}

func collectKeys(t *testing.T, h Handle) []string {
	t.Helper()
	var keys []string
	for k, err := range h.Keys(context.Background()) {
		require.NoError(t, err)
		keys = append(keys, k)
	}
	return keys
}

func seedIndexed(t *testing.T, pass string, entries ...Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blobs.db")
	require.NoError(t, SeedIndexed(path, entries, pass))
	return path
}

func TestOpenIndexed_ListsKeys(t *testing.T) {
	path := seedIndexed(t, "",
		Entry{Key: "gamma", Value: []byte("3")},
		Entry{Key: "alpha", Value: []byte("1")},
		Entry{Key: "beta", Value: []byte("2")},
	)

	ix, err := OpenIndexed(context.Background(), path, Options{})
	require.NoError(t, err)
	defer ix.Close()

	if diff := cmp.Diff([]string{"alpha", "beta", "gamma"}, collectKeys(t, ix)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	v, err := ix.Get(context.Background(), "beta")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	_, err = ix.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenIndexed_DoesNotModifyFile(t *testing.T) {
	path := seedIndexed(t, "", Entry{Key: "k", Value: []byte("v")})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ix, err := OpenIndexed(context.Background(), path, Options{})
	require.NoError(t, err)
	_ = collectKeys(t, ix)
	require.NoError(t, ix.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = os.Stat(path + "-journal")
	assert.True(t, os.IsNotExist(err), "reader left a journal behind")
}

func TestOpenIndexed_ZeroLengthFileIsEmptyCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	ix, err := OpenIndexed(context.Background(), path, Options{})
	require.NoError(t, err)
	defer ix.Close()

	assert.Empty(t, collectKeys(t, ix))
	_, err = ix.Get(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenIndexed_CorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not a database ", 512)), 0o644))

	_, err := OpenIndexed(context.Background(), path, Options{})
	assert.Error(t, err)
}

func TestOpenIndexed_MissingFileFails(t *testing.T) {
	_, err := OpenIndexed(context.Background(), filepath.Join(t.TempDir(), "nope.db"), Options{})
	assert.Error(t, err)
}

func TestOpenIndexed_ForeignDatabaseIsNotACache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	db := openRW(t, path)
	_, err := db.Exec("CREATE TABLE widgets (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenIndexed(context.Background(), path, Options{})
	assert.ErrorIs(t, err, ErrNotACache)
}

func TestOpenIndexed_ExcludesExpired(t *testing.T) {
	path := seedIndexed(t, "",
		Entry{Key: "live", Value: []byte("1")},
		Entry{Key: "soon", Value: []byte("2"), TTL: time.Hour},
	)

	ix, err := OpenIndexed(context.Background(), path, Options{})
	require.NoError(t, err)
	defer ix.Close()

	assert.Equal(t, []string{"live", "soon"}, collectKeys(t, ix))

	ix.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, []string{"live"}, collectKeys(t, ix))
	_, err = ix.Get(context.Background(), "soon")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenIndexed_KeysStopsEarly(t *testing.T) {
	path := seedIndexed(t, "",
		Entry{Key: "a", Value: []byte("1")},
		Entry{Key: "b", Value: []byte("2")},
	)
	ix, err := OpenIndexed(context.Background(), path, Options{})
	require.NoError(t, err)
	defer ix.Close()

	n := 0
	for _, err := range ix.Keys(context.Background()) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)

	// The connection must be free again after an early stop.
	assert.Len(t, collectKeys(t, ix), 2)
}

func TestOpenEncryptedIndexed_RoundTrip(t *testing.T) {
	path := seedIndexed(t, "hunter2", Entry{Key: "secret", Value: []byte("payload")})

	ix, err := OpenEncryptedIndexed(context.Background(), path, passphrase("hunter2"))
	require.NoError(t, err)
	defer ix.Close()

	assert.Equal(t, []string{"secret"}, collectKeys(t, ix))
	v, err := ix.Get(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v)
}

func TestOpenEncryptedIndexed_WrongPassphrase(t *testing.T) {
	path := seedIndexed(t, "hunter2", Entry{Key: "secret", Value: []byte("payload")})

	_, err := OpenEncryptedIndexed(context.Background(), path, passphrase("wrong"))
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestOpenEncryptedIndexed_NoPassphrase(t *testing.T) {
	path := seedIndexed(t, "hunter2", Entry{Key: "secret", Value: []byte("payload")})

	_, err := OpenEncryptedIndexed(context.Background(), path, Options{})
	assert.ErrorIs(t, err, ErrNoPassphrase)
}

func TestOpenIndexed_VariantMismatch(t *testing.T) {
	encrypted := seedIndexed(t, "hunter2", Entry{Key: "k", Value: []byte("v")})
	plain := seedIndexed(t, "", Entry{Key: "k", Value: []byte("v")})

	_, err := OpenIndexed(context.Background(), encrypted, Options{})
	assert.ErrorIs(t, err, ErrEncrypted)

	_, err = OpenEncryptedIndexed(context.Background(), plain, passphrase("hunter2"))
	assert.ErrorIs(t, err, ErrNotEncrypted)
}

func TestSeedIndexed_ReseedRequiresSamePassphrase(t *testing.T) {
	path := seedIndexed(t, "hunter2", Entry{Key: "a", Value: []byte("1")})

	require.NoError(t, SeedIndexed(path, []Entry{{Key: "b", Value: []byte("2")}}, "hunter2"))
	assert.ErrorIs(t, SeedIndexed(path, []Entry{{Key: "c", Value: []byte("3")}}, "other"), ErrWrongPassphrase)

	ix, err := OpenEncryptedIndexed(context.Background(), path, passphrase("hunter2"))
	require.NoError(t, err)
	defer ix.Close()
	assert.Equal(t, []string{"a", "b"}, collectKeys(t, ix))
}

func TestReadOnlyDSN(t *testing.T) {
	assert.Equal(t, "file:///tmp/my%20cache.db?mode=ro&_busy_timeout=5000", readOnlyDSN("/tmp/my cache.db"))
}
