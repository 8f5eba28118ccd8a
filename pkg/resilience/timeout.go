package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrTimeout = errors.New("operation timed out")

// WithTimeout gives fn at most d. The result is returned as soon as the
// deadline passes even if fn ignores its context; fn's late result is
// discarded. d <= 0 means no limit.
func WithTimeout(ctx context.Context, d time.Duration, name string, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w after %v", name, ErrTimeout, d)
		}
		return fmt.Errorf("%s: %w", name, ctx.Err())
	}
}
