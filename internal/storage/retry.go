package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsRetriable reports whether err is a transient Postgres conflict that a
// fresh attempt can resolve once the competing transaction finishes.
func IsRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001": // serialization_failure
		return true
	case "40P01": // deadlock_detected
		return true
	default:
		return false
	}
}

// WithRetry executes fn, retrying up to maxRetries times on serialization or
// deadlock errors. Retries use jittered exponential backoff starting at
// baseDelay. The last error is returned when retries are exhausted.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	if baseDelay <= 0 {
		baseDelay = 5 * time.Millisecond
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsRetriable(err) || attempt == maxRetries {
			return err
		}
		jitter := time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // math/rand is fine for backoff jitter
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
}
