// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"net/http"
	"sync"

	"github.com/jllopis/aixi/pkg/errors"
)

// MockProvider answers every request with Response, or with Err when set.
// ChatFunc, when set, replaces both. Requests are recorded.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{Content: m.Response, Usage: mockUsage(req, m.Response)}, nil
}

// Requests returns the requests seen so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// FailingMockProvider always fails. Without Err it returns a MODEL_ERROR
// carrying Status (503 when zero), recoverable for 429 and 5xx like the real
// providers.
type FailingMockProvider struct {
	Err    error
	Status int
}

// Chat implements Provider.
func (f *FailingMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	status := f.Status
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	return nil, errors.NewModelError(http.StatusText(status), nil, req.Model).
		WithStatus(status).
		WithRecoverable(status == http.StatusTooManyRequests || status >= 500)
}

// mockUsage reports a prompt size close to what the tracker would estimate
// so token reports in tests look plausible.
func mockUsage(req ChatRequest, content string) Usage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += len(m.Content)
	}
	u := Usage{PromptTokens: max(1, prompt/4), CompletionTokens: max(1, len(content)/4)}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}
