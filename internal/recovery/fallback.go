package recovery

import (
	"context"
	"fmt"

	"github.com/ads-marketplace/faultline/internal/logging"
)

// WithFallback runs op once and returns fallback if it fails or panics.
// Nothing escapes to the caller; the failure is only logged.
func WithFallback[T any](ctx context.Context, name string, log logging.Logger, op func(context.Context) (T, error), fallback T) (result T) {
	if log == nil {
		log = logging.Nop()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovery", "operation panicked, using fallback", map[string]any{
				"operation": name,
				"panic":     fmt.Sprint(r),
			})
			result = fallback
		}
	}()

	v, err := op(ctx)
	if err != nil {
		log.Error("recovery", "operation failed, using fallback", map[string]any{
			"operation": name,
			"error":     err,
		})
		return fallback
	}
	return v
}
