package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jllopis/aixi/pkg/errors"
)

// OllamaProvider implements the Provider interface for a local Ollama server.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new OllamaProvider. model is used when a request does
// not name one. Timeouts are applied per call by the caller's context.
func NewOllama(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	EvalCount       int     `json:"eval_count"`
	PromptEvalCount int     `json:"prompt_eval_count"`
}

// Chat sends a chat request to Ollama and maps the response to ChatResponse.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	oReq := ollamaRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   false,
		Options:  ollamaOptions(req),
	}

	body, err := json.Marshal(oReq)
	if err != nil {
		return nil, errors.NewModelError("failed to marshal ollama request", err, model).WithRecoverable(false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewModelError("failed to create http request", err, model).WithRecoverable(false)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewModelError("ollama api call failed", err, model).
			WithRecoverable(ctx.Err() == nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.NewModelError(
			fmt.Sprintf("ollama api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil, model).
			WithStatus(resp.StatusCode).
			WithRecoverable(retryableStatus(resp.StatusCode))
	}

	var oResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, errors.NewModelError("failed to decode ollama response", err, model).WithRecoverable(false)
	}

	return &ChatResponse{
		Content: oResp.Message.Content,
		Usage: Usage{
			PromptTokens:     oResp.PromptEvalCount,
			CompletionTokens: oResp.EvalCount,
			TotalTokens:      oResp.PromptEvalCount + oResp.EvalCount,
		},
	}, nil
}

func ollamaOptions(req ChatRequest) map[string]interface{} {
	opts := map[string]interface{}{}
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	}
	if req.TopP != 0 {
		opts["top_p"] = req.TopP
	}
	if req.TopK != 0 {
		opts["top_k"] = req.TopK
	}
	if req.MaxOutputTokens != 0 {
		opts["num_predict"] = req.MaxOutputTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// retryableStatus reports whether an HTTP status is worth retrying.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
