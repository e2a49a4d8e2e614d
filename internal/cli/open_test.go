package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cachescope/internal/cachestore"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func seedIndexedFixture(t *testing.T, pass string, entries ...cachestore.Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blobs.db")
	require.NoError(t, cachestore.SeedIndexed(path, entries, pass))
	return path
}

func seedDirectoryFixture(t *testing.T, pass string, entries ...cachestore.Entry) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, cachestore.SeedDirectory(dir, entries, pass))
	return dir
}

func entry(k, v string) cachestore.Entry {
	return cachestore.Entry{Key: k, Value: []byte(v)}
}

func TestOpen_PlainIndexed(t *testing.T) {
	path := seedIndexedFixture(t, "", entry("gamma", "3"), entry("alpha", "1"), entry("beta", "2"))

	out, err := runCLI(t, "open", "--indexed", path)
	require.NoError(t, err)

	newGoldie(t).Assert(t, "open_plain_indexed", []byte(out))
}

func TestOpen_PlainDirectoryWithPrefix(t *testing.T) {
	dir := seedDirectoryFixture(t, "", entry("user:1", "alice"), entry("user:2", "bob"), entry("session:9", "x"))

	out, err := runCLI(t, "open", dir, "--prefix", "user:")
	require.NoError(t, err)
	assert.Equal(t, "user:1\nuser:2\n2 keys\n", out)
}

func TestOpen_EncryptedVariants(t *testing.T) {
	t.Setenv(testPassphraseEnv, "hunter2")

	indexed := seedIndexedFixture(t, "hunter2", entry("secret", "payload"))
	out, err := runCLI(t, "open", "--indexed", "--encrypted", indexed)
	require.NoError(t, err)
	assert.Equal(t, "secret\n1 key\n", out)

	dir := seedDirectoryFixture(t, "hunter2", entry("secret", "payload"))
	out, err = runCLI(t, "open", "--encrypted", dir)
	require.NoError(t, err)
	assert.Equal(t, "secret\n1 key\n", out)
}

func TestOpen_WrongPassphraseFails(t *testing.T) {
	path := seedIndexedFixture(t, "hunter2", entry("secret", "payload"))
	t.Setenv(testPassphraseEnv, "wrong")

	out, err := runCLI(t, "open", "--indexed", "--encrypted", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "Error [E202]: Couldn't open this cache\n", out)
	assert.ErrorIs(t, err, cachestore.ErrWrongPassphrase)
}

func TestOpen_WrongVariantFails(t *testing.T) {
	path := seedIndexedFixture(t, "", entry("k", "v"))

	// A plausible directory that is not a directory store.
	_, err := runCLI(t, "open", filepath.Dir(path))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestOpen_EmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	out, err := runCLI(t, "open", "--indexed", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	newGoldie(t).Assert(t, "open_empty_store", []byte(out))
}

func TestOpen_NotPlausible(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.db")

	out, err := runCLI(t, "open", "--indexed", missing)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E201]")
	assert.Contains(t, out, "is not an existing file")
}

func TestOpen_JSON(t *testing.T) {
	path := seedIndexedFixture(t, "", entry("a", "1"), entry("b", "2"))

	out, err := runCLI(t, "--format", "json", "open", "--indexed", path, "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Status    string     `json:"status"`
		Data      OpenResult `json:"data"`
		AttemptID string     `json:"attempt_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.AttemptID)
	assert.Equal(t, "plain-indexed", resp.Data.Variant)
	assert.Equal(t, path, resp.Data.Path)
	assert.Equal(t, []string{"a"}, resp.Data.Keys)
	assert.Equal(t, 1, resp.Data.Count)
}

func TestOpen_JSONFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	out, err := runCLI(t, "--format", "json", "open", "--indexed", path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeOpenFailed, resp.Error.Code)
	assert.Equal(t, "Couldn't open this cache", resp.Error.Message)
	assert.Contains(t, resp.Error.Details, "EMPTY_STORE")
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, "check", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "could be a cache")

	out, err = runCLI(t, "check", "--indexed", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "is not a cache")

	out, err = runCLI(t, "--format", "json", "check", dir)
	require.NoError(t, err)
	var resp struct {
		Data CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, CheckResult{Path: dir, Plausible: true}, resp.Data)
}
