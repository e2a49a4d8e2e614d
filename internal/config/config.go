// Package config loads the cachescope configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cachescope/internal/cachestore"
	"github.com/roach88/cachescope/internal/session"
)

// DefaultPassphraseEnv names the environment variable holding the store
// passphrase.
const DefaultPassphraseEnv = "CACHESCOPE_PASSPHRASE"

// Config is the on-disk configuration. Missing fields keep their defaults.
type Config struct {
	// Debounce is the quiet period before a Selection is checked.
	Debounce time.Duration `yaml:"debounce"`

	// BrowseRoot is the directory the path picker starts in.
	BrowseRoot string `yaml:"browse_root"`

	// PassphraseEnv is read when an encrypted store is opened. The
	// passphrase itself is never stored in the file.
	PassphraseEnv string `yaml:"passphrase_env"`

	// OpenAttempts bounds retries while a store is locked by a writer.
	OpenAttempts uint `yaml:"open_attempts"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	root, err := os.UserCacheDir()
	if err != nil {
		root = ""
	}
	return Config{
		Debounce:      session.DefaultDebounce,
		BrowseRoot:    root,
		PassphraseEnv: DefaultPassphraseEnv,
		OpenAttempts:  cachestore.DefaultOpenAttempts,
		LogLevel:      "info",
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/cachescope/config.yaml (or the
// platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "cachescope", "config.yaml"), nil
}

// Load reads the file at path. A missing file yields Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default() and validates the result.
// Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", c.Debounce)
	}
	if c.OpenAttempts < 1 {
		return fmt.Errorf("open_attempts must be at least 1")
	}
	if c.PassphraseEnv == "" {
		return fmt.Errorf("passphrase_env is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log_level %q (must be debug, info, warn, or error)", name)
	}
}

// Passphrase reads the passphrase from the configured environment variable.
func (c Config) Passphrase() string {
	return os.Getenv(c.PassphraseEnv)
}

// StoreOptions builds the options every store constructor shares.
func (c Config) StoreOptions(logger *slog.Logger) cachestore.Options {
	return cachestore.Options{
		Passphrase: c.Passphrase,
		Attempts:   c.OpenAttempts,
		Logger:     logger,
	}
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// Write stores the configuration at path, creating parent directories.
// The file is replaced atomically.
func (c Config) Write(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
