package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// retriable reports whether err is a transient Postgres conflict worth
// replaying: serialization_failure (40001) or deadlock_detected (40P01).
// These surface when a trigger pass races task completions on the open-task
// dedup index; the batch insert conflicts away rows it already wrote, so
// the caller's statement is safe to run again.
func retriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// WithRetry runs fn, replaying it after a transient conflict up to
// maxRetries extra attempts. The delay between attempts doubles each time
// with jitter added on top. The last error, transient or not, is returned
// unchanged.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !retriable(err) || attempt == maxRetries {
			return err
		}
		jitter := time.Duration(rand.Int64N(int64(delay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
}
