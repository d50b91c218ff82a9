// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/jllopis/aixi/pkg/resilience"
)

type resilientProvider struct {
	next    Provider
	retry   resilience.RetryConfig
	timeout time.Duration
	logger  *slog.Logger
}

// WithResilience wraps p so that each attempt is bounded by timeout and
// recoverable failures are retried according to rc.
func WithResilience(p Provider, rc resilience.RetryConfig, timeout time.Duration, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &resilientProvider{next: p, retry: rc, timeout: timeout, logger: logger}
}

func (r *resilientProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	rc := r.retry.WithOnRetry(func(attempt int, err error) {
		r.logger.WarnContext(ctx, "retrying model call",
			slog.String("model", req.Model),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	})
	return resilience.DoWithResult(ctx, rc, func() (*ChatResponse, error) {
		return resilience.WithTimeoutResult(ctx, r.timeout, func(ctx context.Context) (*ChatResponse, error) {
			return r.next.Chat(ctx, req)
		})
	})
}
