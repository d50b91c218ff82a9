// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai provides a model client for the OpenAI chat completions API
// and for OpenAI-compatible endpoints such as DashScope.
package openai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/llm"
)

// completer is the subset of the chat completions service used here.
type completer interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Provider implements llm.Provider for OpenAI.
type Provider struct {
	completions completer
	model       string
	reqOpts     []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.reqOpts = append(p.reqOpts, option.WithBaseURL(url))
		}
	}
}

// WithAPIKey sets the API key. Without it the SDK reads OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		if key != "" {
			p.reqOpts = append(p.reqOpts, option.WithAPIKey(key))
		}
	}
}

// New creates a provider.
func New(opts ...Option) *Provider {
	p := &Provider{model: "gpt-4o-mini"}
	for _, opt := range opts {
		opt(p)
	}
	client := openai.NewClient(p.reqOpts...)
	p.completions = &client.Chat.Completions
	return p
}

// Chat implements llm.Provider. Top-k and safety levels have no equivalent in
// the API and are ignored.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	completion, err := p.completions.New(ctx, buildParams(model, req))
	if err != nil {
		return nil, modelError(ctx, err, model)
	}
	return convertResponse(completion), nil
}

func buildParams(model string, req llm.ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	return params
}

func convertMessage(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case llm.RoleAssistant:
		return openai.AssistantMessage(msg.Content)
	default:
		return openai.UserMessage(msg.Content)
	}
}

func convertResponse(completion *openai.ChatCompletion) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) > 0 {
		resp.Content = completion.Choices[0].Message.Content
	}
	return resp
}

func modelError(ctx context.Context, err error, model string) error {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		return errors.NewModelError(fmt.Sprintf("openai returned status %d", apiErr.StatusCode), err, model).
			WithStatus(apiErr.StatusCode).
			WithRecoverable(apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500)
	}
	return errors.NewModelError("openai chat completion failed", err, model).
		WithRecoverable(ctx.Err() == nil)
}

var _ llm.Provider = (*Provider)(nil)
