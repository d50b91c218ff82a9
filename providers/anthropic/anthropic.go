// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic provides an Anthropic Claude model client.
package anthropic

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/llm"
)

type messenger interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Provider implements llm.Provider for the Anthropic Messages API.
type Provider struct {
	messages  messenger
	model     string
	maxTokens int64
	reqOpts   []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithMaxTokens sets the output limit used when a request carries none.
// The API requires one on every call.
func WithMaxTokens(tokens int64) Option {
	return func(p *Provider) { p.maxTokens = tokens }
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.reqOpts = append(p.reqOpts, option.WithBaseURL(url))
		}
	}
}

// WithAPIKey sets the API key. Without it the SDK reads ANTHROPIC_API_KEY.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		if key != "" {
			p.reqOpts = append(p.reqOpts, option.WithAPIKey(key))
		}
	}
}

// New creates a provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		model:     "claude-sonnet-4-20250514",
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(p)
	}
	client := anthropic.NewClient(p.reqOpts...)
	p.messages = &client.Messages
	return p
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	message, err := p.messages.New(ctx, p.buildParams(model, req))
	if err != nil {
		return nil, modelError(ctx, err, model)
	}
	return convertResponse(message), nil
}

func (p *Provider) buildParams(model string, req llm.ChatRequest) anthropic.MessageNewParams {
	var system []string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := p.maxTokens
	if req.MaxOutputTokens > 0 {
		maxTokens = int64(req.MaxOutputTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: strings.Join(system, "\n\n")},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if req.TopK > 0 {
		params.TopK = anthropic.Int(int64(req.TopK))
	}
	return params
}

func convertResponse(message *anthropic.Message) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			resp.Content += block.Text
		}
	}
	return resp
}

func modelError(ctx context.Context, err error, model string) error {
	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		return errors.NewModelError(fmt.Sprintf("anthropic returned status %d", apiErr.StatusCode), err, model).
			WithStatus(apiErr.StatusCode).
			WithRecoverable(apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500)
	}
	return errors.NewModelError("anthropic messages call failed", err, model).
		WithRecoverable(ctx.Err() == nil)
}

var _ llm.Provider = (*Provider)(nil)
