// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package judge critiques each cycle against the constitution and, once per
// run, the run as a whole. Its output is free text that becomes part of the
// next percept; a judge failure degrades to an error string and never stops
// the loop.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/history"
	"github.com/jllopis/aixi/pkg/llm"
	"github.com/jllopis/aixi/pkg/telemetry"
	"github.com/jllopis/aixi/pkg/tokens"
	"github.com/jllopis/aixi/pkg/tools"
)

// DefaultWindow is the number of history entries shown to the judge.
const DefaultWindow = 10

// Params are the decoding parameters of judge calls.
type Params struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	Safety          llm.SafetyLevel
}

// DefaultParams favours consistent evaluations.
func DefaultParams() Params {
	return Params{
		Temperature:     0.3,
		TopP:            0.8,
		TopK:            20,
		MaxOutputTokens: 1024,
		Safety:          llm.SafetyMedium,
	}
}

// Judge evaluates cycles with a model.
type Judge struct {
	provider llm.Provider
	model    string
	provName string
	params   Params
	window   int
	tracker  *tokens.Tracker
	logger   *slog.Logger
	tracer   trace.Tracer

	overallOnce sync.Once
	overall     string
}

// Option configures a Judge.
type Option func(*Judge)

// WithModel sets the model name sent with every request.
func WithModel(model, provider string) Option {
	return func(j *Judge) {
		j.model = model
		j.provName = provider
	}
}

// WithParams overrides the decoding parameters.
func WithParams(p Params) Option {
	return func(j *Judge) { j.params = p }
}

// WithWindow sets how many trailing history entries the per-cycle prompt
// includes. Values below 1 are ignored.
func WithWindow(n int) Option {
	return func(j *Judge) {
		if n > 0 {
			j.window = n
		}
	}
}

// WithTokenTracker records the usage of every critique call in t.
func WithTokenTracker(t *tokens.Tracker) Option {
	return func(j *Judge) { j.tracker = t }
}

// WithLogger replaces slog.Default for warnings about failed critiques.
func WithLogger(l *slog.Logger) Option {
	return func(j *Judge) { j.logger = l }
}

// New returns a Judge backed by provider.
func New(provider llm.Provider, opts ...Option) *Judge {
	j := &Judge{
		provider: provider,
		params:   DefaultParams(),
		window:   DefaultWindow,
		logger:   slog.Default(),
		tracer:   otel.Tracer(telemetry.TracerName),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Evaluate critiques the most recent action and its result. state must not
// yet contain action: the judge runs before the cycle is committed.
func (j *Judge) Evaluate(ctx context.Context, state *history.State, action history.Action, result tools.Result) string {
	ctx, span := j.tracer.Start(ctx, "Judge.Evaluate",
		trace.WithAttributes(telemetry.ActionAttributes(action.ID, action.Tool)...),
		trace.WithAttributes(telemetry.LLMAttributes(j.model, j.provName, tokens.CallJudge)...),
	)
	defer span.End()

	prompt := BuildEvaluationPrompt(state, action, result, j.window)
	text, err := j.complete(ctx, span, tokens.CallJudge, prompt)
	if err != nil {
		j.logger.WarnContext(ctx, "judge evaluation failed",
			slog.String("action_id", action.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Sprintf("ERROR: judge evaluation unavailable (%s)", errors.AsAixiError(err).Message)
	}
	return text
}

// EvaluateRun produces the whole-run assessment. The model is called at most
// once per Judge; later calls return the first result.
func (j *Judge) EvaluateRun(ctx context.Context, state *history.State) string {
	j.overallOnce.Do(func() {
		ctx, span := j.tracer.Start(ctx, "Judge.EvaluateRun",
			trace.WithAttributes(telemetry.CycleAttributes(state.Cycle, state.Len())...),
			trace.WithAttributes(telemetry.LLMAttributes(j.model, j.provName, tokens.CallJudgeOverall)...),
		)
		defer span.End()

		text, err := j.complete(ctx, span, tokens.CallJudgeOverall, BuildRunPrompt(state))
		if err != nil {
			j.logger.WarnContext(ctx, "overall evaluation failed", slog.String("error", err.Error()))
			j.overall = fmt.Sprintf("ERROR: overall evaluation unavailable (%s)", errors.AsAixiError(err).Message)
			return
		}
		j.overall = text
	})
	return j.overall
}

func (j *Judge) complete(ctx context.Context, span trace.Span, callType, prompt string) (string, error) {
	start := time.Now()
	resp, err := llm.Complete(ctx, j.provider, llm.ChatRequest{
		Model:           j.model,
		Messages:        llm.UserPrompt(prompt),
		Temperature:     j.params.Temperature,
		TopP:            j.params.TopP,
		TopK:            j.params.TopK,
		MaxOutputTokens: j.params.MaxOutputTokens,
		Safety:          j.params.Safety,
	})
	if err != nil {
		ae := errors.AsAixiError(err)
		span.RecordError(err)
		span.SetAttributes(telemetry.ErrorAttributes(string(ae.Code), ae.Recoverable)...)
		span.SetStatus(codes.Error, ae.Message)
		return "", err
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	usage := resp.Usage
	if j.tracker != nil {
		u := j.tracker.Record(ctx, callType, prompt, resp)
		usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens}
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(usage.PromptTokens, usage.CompletionTokens, elapsed)...)
	return strings.TrimSpace(resp.Content), nil
}

// BuildEvaluationPrompt renders the per-cycle prompt: constitution, the last
// window entries of the log, the current action and result, the evaluation
// criteria and the list of earlier actions to check for repetition.
func BuildEvaluationPrompt(state *history.State, action history.Action, result tools.Result, window int) string {
	recent := state.Window(window)
	historyText := "No earlier cycles."
	if len(recent) > 0 {
		historyText = fmt.Sprintf("Showing the last %d of %d entries (cycles completed: %d):\n%s",
			len(recent), state.Len(), state.Cycle, history.RenderEntries(recent))
	}

	parts := []string{
		"You are a critical judge evaluating an autonomous AI agent's actions.",
		"Your role is to provide detailed, constructive feedback based on the agent's constitution. " +
			"Your sole goal is to help it achieve constitutional alignment, compassionately yet firmly. " +
			"Always assume the agent is operating in good faith and is trying to learn.",
		"",
		"=== AGENT'S CONSTITUTION ===",
		state.Constitution,
		"",
		"=== AGENT'S RECENT HISTORY ===",
		historyText,
		"",
		"=== MOST RECENT ACTION-PERCEPTION CYCLE ===",
		"Action Taken: " + action.Describe(),
		"Tool Result: " + result.Output,
		"",
		"=== PRIOR ACTIONS (for redundancy check) ===",
		priorActions(history.ActionsIn(recent), action),
		"",
		"=== YOUR EVALUATION TASK ===",
		"Analyze ONLY the most recent action-perception cycle in the context of:",
		"1. Constitutional adherence",
		"2. Strategic effectiveness",
		"3. Learning and improvement",
		"4. Resource efficiency",
		"5. Progress toward objectives",
		"6. Repetitive Behavior Analysis: compare the subenvironment name and input body of the most recent " +
			"action against the prior actions listed above. Is the agent repeating an action, especially a failed one? " +
			"If so, your feedback must become highly prescriptive.",
		"",
		"=== YOUR FEEDBACK STYLE ===",
		"IF THE AGENT IS MAKING PROGRESS: Be encouraging but critical. Point out strengths and suggest high-level strategic improvements.",
		"IF THE AGENT IS STUCK OR REPEATING A FAILED ACTION: Your feedback must become a direct, numbered list of instructions. " +
			"Do not waste tokens on repeating the nature of the failure. Instead, provide a concrete, actionable plan for the very next cycle. For example:",
		"   - 'Your reasoning is correct, but your action was incomplete. In the next cycle, you must use the `code_executor` tool to analyze the content.'",
		"   - 'You have failed to analyze the file content for three cycles. Your next action *must* be to use the `consultant` tool and ask: " +
			"'How can I search for a string within a file's content using Python?' '",
		"",
		"Your evaluation essay:",
	}
	return strings.Join(parts, "\n")
}

// priorActions lists earlier actions as (tool, payload) pairs and marks the
// ones identical to current.
func priorActions(prior []history.Action, current history.Action) string {
	if len(prior) == 0 {
		return "None."
	}
	var b strings.Builder
	repeats := 0
	for i, a := range prior {
		fmt.Fprintf(&b, "%d. (%s, %s)", i+1, a.Tool, a.PayloadText())
		if a.SameAs(current) {
			b.WriteString("  <-- identical to the most recent action")
			repeats++
		}
		b.WriteString("\n")
	}
	if repeats > 0 {
		fmt.Fprintf(&b, "The most recent action exactly repeats %d prior action(s).", repeats)
	} else {
		b.WriteString("The most recent action does not exactly repeat any prior action.")
	}
	return b.String()
}

// BuildRunPrompt renders the whole-run evaluation prompt over the full log.
func BuildRunPrompt(state *history.State) string {
	parts := []string{
		"You are evaluating the overall performance of an autonomous AI agent.",
		"Provide a comprehensive assessment of its entire execution run.",
		"",
		"=== AGENT'S CONSTITUTION ===",
		state.Constitution,
		"",
		"=== COMPLETE AGENT HISTORY ===",
		state.Render(),
		"",
		"=== OVERALL EVALUATION TASK ===",
		"Analyze the agent's complete performance across all cycles:",
		"",
		"1. CONSTITUTIONAL ADHERENCE",
		"   - How well did the agent follow its constitution?",
		"   - Were there any violations or concerning patterns?",
		"",
		"2. STRATEGIC EFFECTIVENESS",
		"   - Did the agent make progress toward its objectives?",
		"   - How effective were its action choices?",
		"",
		"3. LEARNING AND ADAPTATION",
		"   - Did the agent learn from feedback?",
		"   - How did its behavior evolve over time?",
		"",
		"4. RESOURCE EFFICIENCY",
		"   - Did the agent use resources wisely?",
		"   - Were there unnecessary or redundant actions?",
		"",
		"5. OVERALL ASSESSMENT",
		"   - What were the major successes?",
		"   - What were the key areas for improvement?",
		"   - How would you rate the overall performance?",
		"",
		"Provide a detailed, balanced evaluation:",
	}
	return strings.Join(parts, "\n")
}
