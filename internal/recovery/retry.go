// Package recovery wraps fallible operations with retries and fallbacks and
// tracks connectivity.
package recovery

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	oerrors "github.com/olekukonko/errors"

	"github.com/ads-marketplace/faultline/internal/errclass"
	"github.com/ads-marketplace/faultline/internal/logging"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

type retryOptions struct {
	log  logging.Logger
	name string
}

type RetryOption func(*retryOptions)

// WithRetryLogger logs each failed attempt under the given operation name.
func WithRetryLogger(log logging.Logger, name string) RetryOption {
	return func(o *retryOptions) {
		o.log = log
		o.name = name
	}
}

// RetryWithBackoff runs op up to maxAttempts times, sleeping baseDelay*2^i
// between attempts. Client errors (4xx other than 408 and 429) are returned
// after the first call. The last error is returned as is.
// Zero maxAttempts or baseDelay select the defaults.
func RetryWithBackoff[T any](ctx context.Context, op func(context.Context) (T, error), maxAttempts int, baseDelay time.Duration, opts ...RetryOption) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	o := retryOptions{log: logging.Nop(), name: "operation"}
	for _, opt := range opts {
		opt(&o)
	}

	var result T
	r := oerrors.NewRetry(
		oerrors.WithMaxAttempts(maxAttempts),
		oerrors.WithDelay(baseDelay),
		oerrors.WithMaxDelay(time.Duration(math.MaxInt64)),
		oerrors.WithBackoff(oerrors.ExponentialBackoff{}),
		oerrors.WithJitter(false),
		oerrors.WithContext(ctx),
		oerrors.WithRetryIf(IsRetryable),
		oerrors.WithOnRetry(func(attempt int, err error) {
			o.log.Warn("retry", "attempt failed", map[string]any{
				"operation":    o.name,
				"attempt":      attempt,
				"max_attempts": maxAttempts,
				"error":        err,
			})
		}),
	)

	err := r.Execute(func() error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	status := errclass.Normalize(err).Status
	if status >= 400 && status < 500 {
		return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
	}
	return true
}
