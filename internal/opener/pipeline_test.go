package opener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cachescope/internal/cachestore"
	"github.com/roach88/cachescope/internal/testutil"
)

// recordingConstructors returns a table whose every entry records the
// variant it was called for and delegates to fn.
func recordingConstructors(fn cachestore.Constructor) (cachestore.Constructors, *[]cachestore.Variant) {
	var mu sync.Mutex
	var calls []cachestore.Variant
	mk := func(v cachestore.Variant) cachestore.Constructor {
		return func(ctx context.Context, path string) (cachestore.Handle, error) {
			mu.Lock()
			calls = append(calls, v)
			mu.Unlock()
			return fn(ctx, path)
		}
	}
	return cachestore.Constructors{
		PlainDirectory:     mk(cachestore.PlainDirectory),
		EncryptedDirectory: mk(cachestore.EncryptedDirectory),
		PlainIndexed:       mk(cachestore.PlainIndexed),
		EncryptedIndexed:   mk(cachestore.EncryptedIndexed),
	}, &calls
}

func returning(h cachestore.Handle, err error) cachestore.Constructor {
	return func(context.Context, string) (cachestore.Handle, error) { return h, err }
}

func TestOpen_Success(t *testing.T) {
	h := testutil.NewFakeHandle("k1", "k2")
	c, calls := recordingConstructors(returning(h, nil))

	res := New(c).Open(context.Background(), Selection{Path: "/x"})

	require.True(t, res.OK())
	assert.Same(t, h, res.Handle)
	assert.False(t, h.Closed(), "successful handle is handed off open")
	assert.Equal(t, []cachestore.Variant{cachestore.PlainDirectory}, *calls)
}

func TestOpen_DispatchesSelectedVariant(t *testing.T) {
	for _, encrypted := range []bool{false, true} {
		for _, indexed := range []bool{false, true} {
			c, calls := recordingConstructors(returning(testutil.NewFakeHandle("k"), nil))
			sel := Selection{Path: "/x", Encrypted: encrypted, Indexed: indexed}

			res := New(c).Open(context.Background(), sel)

			require.True(t, res.OK())
			assert.Equal(t, []cachestore.Variant{cachestore.Select(encrypted, indexed)}, *calls)
		}
	}
}

func TestOpen_EmptyStoreClosesHandle(t *testing.T) {
	h := testutil.NewFakeHandle()
	c, _ := recordingConstructors(returning(h, nil))

	res := New(c).Open(context.Background(), Selection{Path: "/x", Indexed: true})

	require.False(t, res.OK())
	assert.Nil(t, res.Handle)
	assert.True(t, IsEmptyStore(res.Err))
	assert.False(t, IsConstructionFailure(res.Err))
	assert.Equal(t, 1, h.CloseCount())
}

func TestOpen_EmptyStoreCloseErrorStillEmptyFailure(t *testing.T) {
	h := testutil.NewFakeHandle().WithCloseError(errors.New("close failed"))
	c, _ := recordingConstructors(returning(h, nil))

	res := New(c).Open(context.Background(), Selection{Path: "/x"})

	assert.True(t, IsEmptyStore(res.Err))
	assert.True(t, h.Closed())
}

func TestOpen_ConstructionError(t *testing.T) {
	c, _ := recordingConstructors(returning(nil, testutil.ErrFakeCorrupt))

	res := New(c).Open(context.Background(), Selection{Path: "/x", Encrypted: true})

	require.False(t, res.OK())
	assert.True(t, IsConstructionFailure(res.Err))
	assert.ErrorIs(t, res.Err, testutil.ErrFakeCorrupt)

	var of *OpenFailure
	require.True(t, errors.As(res.Err, &of))
	assert.Equal(t, cachestore.EncryptedDirectory, of.Variant)
	assert.Equal(t, "/x", of.Path)
}

func TestOpen_ConstructionErrorWithHandleClosesIt(t *testing.T) {
	h := testutil.NewFakeHandle("k")
	c, _ := recordingConstructors(returning(h, testutil.ErrFakeCorrupt))

	res := New(c).Open(context.Background(), Selection{Path: "/x"})

	assert.True(t, IsConstructionFailure(res.Err))
	assert.Nil(t, res.Handle)
	assert.True(t, h.Closed())
}

func TestOpen_ConstructorPanicIsRecovered(t *testing.T) {
	c, _ := recordingConstructors(func(context.Context, string) (cachestore.Handle, error) {
		panic("bad format")
	})

	res := New(c).Open(context.Background(), Selection{Path: "/x"})

	assert.True(t, IsConstructionFailure(res.Err))
	assert.Contains(t, res.Err.Error(), "bad format")
}

func TestOpen_NilHandleIsConstructionFailure(t *testing.T) {
	c, _ := recordingConstructors(returning(nil, nil))

	res := New(c).Open(context.Background(), Selection{Path: "/x"})

	assert.True(t, IsConstructionFailure(res.Err))
	assert.ErrorIs(t, res.Err, errNilHandle)
}

func TestOpen_MissingConstructor(t *testing.T) {
	res := New(cachestore.Constructors{}).Open(context.Background(), Selection{Path: "/x"})
	assert.True(t, IsConstructionFailure(res.Err))
}

func TestOpen_EnumerationErrorClosesHandle(t *testing.T) {
	boom := errors.New("io error")
	h := testutil.NewFakeHandle().WithKeysError(boom)
	c, _ := recordingConstructors(returning(h, nil))

	res := New(c).Open(context.Background(), Selection{Path: "/x"})

	assert.True(t, IsConstructionFailure(res.Err))
	assert.ErrorIs(t, res.Err, boom)
	assert.True(t, h.Closed())
}

func TestOpen_CorruptIndexedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("garbage ", 1024)), 0o644))

	res := New(cachestore.NewConstructors(cachestore.Options{})).Open(
		context.Background(), Selection{Path: path, Indexed: true})

	require.False(t, res.OK())
	assert.True(t, IsConstructionFailure(res.Err))
}

func TestOpen_RealEmptyIndexedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	res := New(cachestore.NewConstructors(cachestore.Options{})).Open(
		context.Background(), Selection{Path: path, Indexed: true})

	assert.True(t, IsEmptyStore(res.Err))
}

func TestOpen_RealSeededIndexedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, cachestore.SeedIndexed(path, []cachestore.Entry{{Key: "k", Value: []byte("v")}}, ""))

	res := New(cachestore.NewConstructors(cachestore.Options{})).Open(
		context.Background(), Selection{Path: path, Indexed: true})

	require.True(t, res.OK())
	defer res.Handle.Close()
	v, err := res.Handle.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestOpenFailure_Error(t *testing.T) {
	err := &OpenFailure{Kind: KindEmptyStore, Variant: cachestore.PlainIndexed, Path: "/c.db"}
	assert.Equal(t, "EMPTY_STORE: plain-indexed /c.db", err.Error())

	err = &OpenFailure{Kind: KindConstruction, Variant: cachestore.PlainDirectory, Path: "/d", Err: errors.New("boom")}
	assert.Equal(t, "CONSTRUCTION_FAILURE: plain-directory /d: boom", err.Error())
}
