// Package ideator builds the action-selection prompt, queries the model and
// parses its reply into the next action.
package ideator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/history"
	"github.com/jllopis/aixi/pkg/llm"
	"github.com/jllopis/aixi/pkg/telemetry"
	"github.com/jllopis/aixi/pkg/tokens"
)

// Params are the decoding parameters of the selection call.
type Params struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	Safety          llm.SafetyLevel
}

// DefaultParams balances exploration against format compliance.
func DefaultParams() Params {
	return Params{
		Temperature:     0.7,
		TopP:            0.9,
		TopK:            40,
		MaxOutputTokens: 4096,
		Safety:          llm.SafetyMedium,
	}
}

// Selector chooses the next action from the history.
type Selector struct {
	provider llm.Provider
	model    string
	provName string
	params   Params
	tracker  *tokens.Tracker
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Selector.
type Option func(*Selector)

// WithModel sets the model name sent with every request.
func WithModel(model, provider string) Option {
	return func(s *Selector) {
		s.model = model
		s.provName = provider
	}
}

// WithParams overrides the decoding parameters.
func WithParams(p Params) Option {
	return func(s *Selector) { s.params = p }
}

// WithTokenTracker records the usage of every call.
func WithTokenTracker(t *tokens.Tracker) Option {
	return func(s *Selector) { s.tracker = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

// New returns a Selector backed by provider.
func New(provider llm.Provider, opts ...Option) *Selector {
	s := &Selector{
		provider: provider,
		params:   DefaultParams(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(telemetry.TracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Choose builds the prompt from state and toolDocs, queries the model and
// parses the reply. Model failures are MODEL_ERROR, malformed replies are
// PARSE_FAILURE. Neither is retried here.
func (s *Selector) Choose(ctx context.Context, state *history.State, toolDocs string) (history.Action, error) {
	ctx, span := s.tracer.Start(ctx, "Ideator.Choose",
		trace.WithAttributes(telemetry.CycleAttributes(state.Cycle+1, state.Len())...),
		trace.WithAttributes(telemetry.LLMAttributes(s.model, s.provName, tokens.CallIdeator)...),
	)
	defer span.End()

	prompt := BuildPrompt(state, toolDocs)
	start := time.Now()
	resp, err := llm.Complete(ctx, s.provider, llm.ChatRequest{
		Model:           s.model,
		Messages:        llm.UserPrompt(prompt),
		Temperature:     s.params.Temperature,
		TopP:            s.params.TopP,
		TopK:            s.params.TopK,
		MaxOutputTokens: s.params.MaxOutputTokens,
		Safety:          s.params.Safety,
	})
	if err != nil {
		fail(span, err)
		return history.Action{}, err
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	usage := resp.Usage
	if s.tracker != nil {
		u := s.tracker.Record(ctx, tokens.CallIdeator, prompt, resp)
		usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens}
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(usage.PromptTokens, usage.CompletionTokens, elapsed)...)

	parsed, err := ParseResponse(resp.Content)
	if err != nil {
		s.logger.WarnContext(ctx, "could not parse selector reply",
			slog.String("error", err.Error()),
			slog.String("reply", telemetry.Truncate(resp.Content, 500)),
		)
		fail(span, err)
		return history.Action{}, err
	}

	action := history.NewAction(parsed.Tool, parsed.Payload, parsed.Reasoning)
	span.SetAttributes(telemetry.ActionAttributes(action.ID, action.Tool)...)
	s.logger.DebugContext(ctx, "action chosen",
		slog.String("action_id", action.ID),
		slog.String("tool", action.Tool),
	)
	return action, nil
}

func fail(span trace.Span, err error) {
	ae := errors.AsAixiError(err)
	span.RecordError(err)
	span.SetAttributes(telemetry.ErrorAttributes(string(ae.Code), ae.Recoverable)...)
	span.SetStatus(codes.Error, ae.Message)
}

// BuildPrompt renders the selection prompt: constitution, tool documentation,
// full history, the last judge feedback when present, and the reply format.
func BuildPrompt(state *history.State, toolDocs string) string {
	parts := []string{
		"You are an autonomous AI agent operating under the LLM-AIXI framework.",
		"You must choose your next action based on your constitution, history, and available tools.",
		"",
		"=== YOUR CONSTITUTION ===",
		state.Constitution,
		"",
		"=== AVAILABLE SUBENVIRONMENTS (TOOLS) ===",
		toolDocs,
		"",
		"=== YOUR HISTORY ===",
		state.Render(),
		"",
	}

	if feedback := state.LastFeedback(); feedback != "" {
		parts = append(parts,
			"=== JUDGE'S FEEDBACK ON YOUR LAST ACTION ===",
			"Your last action was evaluated thusly: "+feedback,
			"Use this feedback to improve your next action.",
			"",
		)
	}

	parts = append(parts,
		"=== INSTRUCTIONS ===",
		"Based on your constitution, history, and any judge feedback, choose your next action.",
		"",
		"You must respond with EXACTLY this format:",
		"",
		"REASONING:",
		"[Explain your reasoning for this action, connecting it to your constitution and goals]",
		"",
		"ACTION:",
		"subenvironment: [name of subenvironment]",
		"input_body: [JSON input for the subenvironment]",
		"",
		"IMPORTANT:",
		"- Follow your constitution strictly",
		"- Learn from judge feedback",
		"- Choose actions that advance your primary objective",
		"- Ensure input_body is valid JSON for the chosen subenvironment",
		"- Be strategic and avoid redundant actions",
		"",
		"Choose your action now:",
	)
	return strings.Join(parts, "\n")
}
