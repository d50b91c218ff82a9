// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides a Google Gemini provider backed by either Vertex AI
// or the Gemini API.
package gemini

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/llm"
)

// generator is the subset of *genai.Models used by the provider.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements llm.Provider for Google Gemini models.
type Provider struct {
	models generator
	model  string
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// NewVertex creates a provider that talks to Vertex AI in project/location.
// Credentials come from Application Default Credentials.
func NewVertex(ctx context.Context, project, location string, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, errors.NewConfigurationError("failed to create Vertex AI client", err).
			WithContext("project", project).
			WithContext("location", location)
	}
	return newProvider(client.Models, opts...), nil
}

// NewWithAPIKey creates a provider for the Gemini API with an explicit key.
func NewWithAPIKey(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.NewConfigurationError("failed to create Gemini client", err)
	}
	return newProvider(client.Models, opts...), nil
}

func newProvider(models generator, opts ...Option) *Provider {
	p := &Provider{
		models: models,
		model:  "gemini-1.5-pro",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	contents, systemInstruction := convertMessages(req.Messages)
	config := buildConfig(req)
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	resp, err := p.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, modelError(err, model)
	}

	return convertResponse(resp), nil
}

// Close is a no-op as the genai client doesn't require explicit closing.
func (p *Provider) Close() error {
	return nil
}

func buildConfig(req llm.ChatRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP > 0 {
		config.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.TopK > 0 {
		config.TopK = genai.Ptr(float32(req.TopK))
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	config.SafetySettings = safetySettings(req.Safety)
	return config
}

var harmCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// safetySettings maps a level to one threshold applied to every harm category.
// An empty level leaves the provider defaults in place.
func safetySettings(level llm.SafetyLevel) []*genai.SafetySetting {
	var threshold genai.HarmBlockThreshold
	switch level {
	case llm.SafetyNone:
		threshold = genai.HarmBlockThresholdBlockNone
	case llm.SafetyLow:
		threshold = genai.HarmBlockThresholdBlockOnlyHigh
	case llm.SafetyMedium:
		threshold = genai.HarmBlockThresholdBlockMediumAndAbove
	case llm.SafetyHigh:
		threshold = genai.HarmBlockThresholdBlockLowAndAbove
	default:
		return nil
	}
	settings := make([]*genai.SafetySetting, 0, len(harmCategories))
	for _, c := range harmCategories {
		settings = append(settings, &genai.SafetySetting{Category: c, Threshold: threshold})
	}
	return settings
}

// convertMessages converts loop messages to Gemini contents.
func convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var systemInstruction string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			systemInstruction = msg.Content
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	return contents, systemInstruction
}

// convertResponse concatenates the text parts of the first candidate.
func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	result := &llm.ChatResponse{}
	if resp == nil {
		return result
	}

	if resp.UsageMetadata != nil {
		result.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				result.Content += part.Text
			}
		}
	}

	return result
}

// modelError wraps a genai failure as MODEL_ERROR, keeping the HTTP status
// when the API reported one.
func modelError(err error, model string) error {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewModelError(fmt.Sprintf("gemini %s: %s", apiErr.Status, apiErr.Message), err, model).
			WithStatus(apiErr.Code).
			WithRecoverable(apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500)
	}
	return errors.NewModelError("gemini generate content failed", err, model).
		WithRecoverable(!stderrors.Is(err, context.Canceled))
}

var _ llm.Provider = (*Provider)(nil)
