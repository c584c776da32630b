package journal

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"time"
)

// RetryStore wraps another Store and retries transient errors with
// configurable backoff.
type RetryStore struct {
	inner      Store
	maxRetries int
	backoff    string // "exponential" or "linear"
	baseDelay  time.Duration
}

// NewRetryStore creates a Store that retries transient errors. backoff must
// be "exponential" or "linear"; anything else means exponential.
func NewRetryStore(inner Store, maxRetries int, backoff string) *RetryStore {
	if backoff != "exponential" && backoff != "linear" {
		backoff = "exponential"
	}
	return &RetryStore{
		inner:      inner,
		maxRetries: maxRetries,
		backoff:    backoff,
		baseDelay:  100 * time.Millisecond,
	}
}

func (r *RetryStore) Name() string {
	return r.inner.Name()
}

// Put buffers body so every attempt sends the full payload.
func (r *RetryStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	return r.retryOp(ctx, func() error {
		return r.inner.Put(ctx, key, bytesReader(data), opts)
	})
}

func (r *RetryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := r.retryOp(ctx, func() error {
		var e error
		rc, e = r.inner.Get(ctx, key)
		return e
	})
	return rc, err
}

func (r *RetryStore) Delete(ctx context.Context, key string) error {
	return r.retryOp(ctx, func() error {
		return r.inner.Delete(ctx, key)
	})
}

func (r *RetryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var items []ObjectInfo
	err := r.retryOp(ctx, func() error {
		var e error
		items, e = r.inner.List(ctx, prefix)
		return e
	})
	return items, err
}

// isTransient returns true if the error should be retried. Lookups of
// missing keys and create-only conflicts are final.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExists) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (r *RetryStore) retryOp(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		lastErr = op()
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.calcBackoff(attempt)):
		}
	}
	return lastErr
}

// calcBackoff computes the backoff duration for the given attempt number.
func (r *RetryStore) calcBackoff(attempt int) time.Duration {
	const maxDelay = 30 * time.Second

	var delay time.Duration
	switch r.backoff {
	case "linear":
		delay = r.baseDelay * time.Duration(attempt+1)
	default:
		delay = r.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	// Jitter: +/- 25% of the delay.
	if half := int64(delay / 2); half > 0 {
		delay += time.Duration(rand.Int63n(half)) - delay/4
	}
	if delay <= 0 {
		delay = r.baseDelay
	}
	return delay
}
