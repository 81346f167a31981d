package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"gauge-tracking-backend/internal/pair"
)

const (
	maxAttempts = 3
	baseBackoff = 50 * time.Millisecond
)

// errStaleRead signals that a row changed between the unlocked snapshot read
// and lock acquisition; the whole operation is retried from scratch.
var errStaleRead = errors.New("row changed before lock was acquired")

// IsTransient reports whether err is a retryable persistence failure: a
// deadlock, a serialization failure, or a lock-wait timeout. Domain
// validation failures are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errStaleRead) {
		return true
	}
	var de *pair.DomainError
	if errors.As(err, &de) || pair.IsNotFound(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization failure, deadlock, lock not available
			return true
		}
	}
	// SQLite surfaces writer contention as a plain busy error.
	return strings.Contains(err.Error(), "database is locked")
}

// withRetry runs op, retrying transient persistence failures with doubling
// backoff. Anything else is surfaced on the first attempt.
func withRetry(ctx context.Context, name string, op func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := baseBackoff << (attempt - 2)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = op()
		if err == nil || !IsTransient(err) {
			return err
		}
		log.Printf("%s: transient persistence failure (attempt %d/%d): %v", name, attempt, maxAttempts, err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxAttempts, err)
}
