package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"cdv-engine/internal/domain"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxRetries is used when a service is built without an explicit limit.
const DefaultMaxRetries = 3

var transientMarkers = []string{
	"40001", // serialization_failure
	"40P01", // deadlock_detected
	"could not serialize access",
	"deadlock detected",
	"database is locked",
	"SQLITE_BUSY",
}

// IsTransient reports whether err is a lost race or a storage hiccup that is
// safe to retry by re-running the whole unit of work.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrConflict) {
		return true
	}
	msg := err.Error()
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Do runs op, retrying transient failures up to maxRetries times with
// exponential backoff. Any other error is returned immediately.
func Do(ctx context.Context, maxRetries uint64, op func() error) error {
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.MaxInterval = 500 * time.Millisecond
	eb.MaxElapsedTime = 5 * time.Second

	b := backoff.WithContext(backoff.WithMaxRetries(eb, maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
