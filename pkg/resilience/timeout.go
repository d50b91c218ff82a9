// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"time"

	"github.com/jllopis/aixi/pkg/errors"
)

// WithTimeout executes fn with a deadline derived from ctx.
// fn receives the bounded context and must honor it; if fn has not returned
// when the deadline passes, a TIMEOUT error is returned immediately.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	_, err := WithTimeoutResult(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTimeoutResult is WithTimeout for functions that return a value.
func WithTimeoutResult[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
	case res := <-done:
		if res.err == nil || ctx.Err() == nil {
			return res.value, res.err
		}
	}

	var zero T
	return zero, errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
		WithContext("timeout", d.String()).
		WithRecoverable(true)
}
