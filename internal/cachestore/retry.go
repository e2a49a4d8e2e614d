package cachestore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/mattn/go-sqlite3"
)

const (
	initialRetryDelay = 50 * time.Millisecond
	maxRetryDelay     = 500 * time.Millisecond
)

// openWithRetry runs fn until it succeeds, fails with a non-retryable error,
// or exhausts attempts.
func openWithRetry(ctx context.Context, logger *slog.Logger, operation string, attempts uint, retryable func(error) bool, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(initialRetryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("store locked, retrying",
				"operation", operation,
				"attempt", n+1,
				"max_attempts", attempts,
				"error", err,
			)
		}),
		retry.LastErrorOnly(true),
	)
}

// isSQLiteBusy reports whether err is SQLite lock contention.
func isSQLiteBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// isDirectoryLocked reports whether err is Badger refusing its directory lock.
// Badger does not export a sentinel for this.
func isDirectoryLocked(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Cannot acquire directory lock")
}
