package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jllopis/aixi/pkg/config"
	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/llm"
	"github.com/jllopis/aixi/pkg/resilience"
	"github.com/jllopis/aixi/providers/anthropic"
	"github.com/jllopis/aixi/providers/gemini"
	"github.com/jllopis/aixi/providers/openai"
)

// newProvider builds the model client shared by selector, judge and
// consultant. Every call is bounded by the model timeout and recoverable
// failures are retried.
func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	var (
		p   llm.Provider
		err error
	)
	switch cfg.Model.Provider {
	case "vertex":
		p, err = gemini.NewVertex(ctx, cfg.Model.ProjectID, cfg.Model.Location, gemini.WithModel(cfg.Model.Name))
	case "gemini":
		p, err = gemini.NewWithAPIKey(ctx, cfg.Model.APIKey, gemini.WithModel(cfg.Model.Name))
	case "ollama":
		p = llm.NewOllama(cfg.Model.BaseURL, cfg.Model.Name)
	case "openai":
		p = openai.New(
			openai.WithAPIKey(cfg.Model.APIKey),
			openai.WithBaseURL(cfg.Model.OpenAIURL),
			openai.WithModel(cfg.Model.Name),
		)
	case "anthropic":
		p = anthropic.New(
			anthropic.WithAPIKey(cfg.Model.APIKey),
			anthropic.WithModel(cfg.Model.Name),
			anthropic.WithMaxTokens(int64(cfg.Model.MaxTokens)),
		)
	default:
		err = errors.NewConfigurationError(fmt.Sprintf("unknown model provider %q", cfg.Model.Provider), nil)
	}
	if err != nil {
		return nil, err
	}

	retry := resilience.DefaultRetryConfig().WithMaxAttempts(cfg.Model.Retries + 1)
	return llm.WithResilience(p, retry, cfg.Model.Timeout, logger), nil
}
