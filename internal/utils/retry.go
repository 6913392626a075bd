package utils

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// retryDelay is the pause after a failed attempt.
var retryDelay = func(attempt uint) time.Duration {
	return time.Duration(2*attempt) * time.Second
}

// Retry runs call until it succeeds, maxRetries attempts were made or ctx is done.
// A zero maxRetries still makes one attempt.
func Retry[T any](ctx context.Context, operation string, maxRetries uint, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxRetries == 0 {
		maxRetries = 1
	}

	var err error
	for attempt := uint(1); attempt <= maxRetries; attempt++ {
		var result T
		result, err = call(ctx)
		if err == nil {
			return result, nil
		}
		if attempt == maxRetries {
			break
		}

		slog.Debug("Retrying call", "operation", operation, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(retryDelay(attempt)):
		}
	}

	return zero, errors.WithMessage(err, fmt.Sprintf("%s failed after %d attempts", operation, maxRetries))
}
