package store

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
)

// QueryWithFallback runs primary against the preferred index and, if it
// reports ErrIndexUnavailable, retries a bounded number of times with
// backoff before falling back to fallback. This is the tolerance behavior
// spec §4.1 requires of queryByIndex callers, modeled on the dolt storage
// backend's retryable/permanent split (backoff.Retry + backoff.Permanent).
func QueryWithFallback(ctx context.Context, primary func() ([]Record, error), fallback func() ([]Record, error)) ([]Record, error) {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)

	var result []Record
	err := backoff.Retry(func() error {
		recs, err := primary()
		if err == nil {
			result = recs
			return nil
		}
		if errors.Is(err, ErrIndexUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))

	if err == nil {
		return result, nil
	}
	if !errors.Is(err, ErrIndexUnavailable) {
		return nil, err
	}
	if fallback == nil {
		return nil, err
	}
	return fallback()
}
