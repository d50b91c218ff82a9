package llm

import (
	"context"
	"strings"

	"github.com/jllopis/aixi/pkg/errors"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SafetyLevel selects how aggressively the provider filters harmful content.
type SafetyLevel string

const (
	SafetyNone   SafetyLevel = "none"
	SafetyLow    SafetyLevel = "low"
	SafetyMedium SafetyLevel = "medium"
	SafetyHigh   SafetyLevel = "high"
)

// Message is a single unit of communication.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the input for the LLM. Zero decoding values mean
// "provider default".
type ChatRequest struct {
	Model           string      `json:"model"`
	Messages        []Message   `json:"messages"`
	Temperature     float64     `json:"temperature,omitempty"`
	TopP            float64     `json:"top_p,omitempty"`
	TopK            int         `json:"top_k,omitempty"`
	MaxOutputTokens int         `json:"max_output_tokens,omitempty"`
	Safety          SafetyLevel `json:"safety,omitempty"`
}

// ChatResponse encapsulates the output from the LLM.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption. Zero values mean the provider did not report usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with LLM backends.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// UserPrompt builds the single-message conversation every caller in the loop uses.
func UserPrompt(prompt string) []Message {
	return []Message{{Role: RoleUser, Content: prompt}}
}

// Complete calls p and normalizes failures: every error is a MODEL_ERROR and
// a response without text is an error too.
func Complete(ctx context.Context, p Provider, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		if errors.HasCode(err, errors.CodeModelError) {
			return nil, err
		}
		return nil, errors.NewModelError("model call failed", err, req.Model).
			WithRecoverable(errors.AsAixiError(err).Recoverable)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, errors.NewModelError("empty response from model", nil, req.Model).
			WithRecoverable(false)
	}
	return resp, nil
}
