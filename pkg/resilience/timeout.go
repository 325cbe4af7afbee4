package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/errors"
)

// WithTimeout runs fn with a context that is cancelled after timeout and
// waits for it to return, so fn must honour ctx. If the deadline expired
// while the parent was still live, the returned error wraps both
// errors.ErrTimeout and context.DeadlineExceeded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(timeoutCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: parent context cancelled: %w", name, err)
	}
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		if errors.Is(err, apperrors.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%s: %w (limit: %v): %w", name, apperrors.ErrTimeout, timeout, err)
	}
	return err
}
