// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator runs the agent loop. Each cycle selects an action,
// dispatches it to a tool, has the judge evaluate the result and commits the
// action and its percept to the history.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/history"
	"github.com/jllopis/aixi/pkg/telemetry"
	"github.com/jllopis/aixi/pkg/tools"
)

// DefaultMaxCycles bounds a run when no limit is configured.
const DefaultMaxCycles = 20

// Status is the terminal state of a run.
type Status string

const (
	StatusMaxCycles      Status = "MAX_CYCLES_REACHED"
	StatusSelectorFailed Status = "SELECTOR_FAILED"
	StatusInterrupted    Status = "USER_INTERRUPTED"
)

// Outcome describes how a run ended.
type Outcome struct {
	RunID        string
	Status       Status
	Cycles       int
	TotalActions int
	Start        time.Time
	End          time.Time
	// Err is the selector failure for StatusSelectorFailed.
	Err error
}

// Duration returns the wall time of the run.
func (o *Outcome) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// ExitCode maps the outcome to a process exit status.
func (o *Outcome) ExitCode() int {
	if o.Status == StatusSelectorFailed {
		return 1
	}
	return 0
}

// Selector chooses the next action.
type Selector interface {
	Choose(ctx context.Context, state *history.State, toolDocs string) (history.Action, error)
}

// Evaluator critiques a cycle. It always returns feedback text.
type Evaluator interface {
	Evaluate(ctx context.Context, state *history.State, action history.Action, result tools.Result) string
}

// CycleRecorder persists committed cycles.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, cycle int, action history.Action, percept history.Percept) error
}

// Orchestrator owns the agent state for the duration of a run.
type Orchestrator struct {
	selector  Selector
	judge     Evaluator
	registry  *tools.Registry
	state     *history.State
	toolDocs  string
	maxCycles int
	emitter   EventEmitter
	recorder  CycleRecorder
	metrics   *telemetry.RunMetrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxCycles sets the cycle limit.
func WithMaxCycles(n int) Option {
	return func(o *Orchestrator) { o.maxCycles = n }
}

// WithEventEmitter receives loop events.
func WithEventEmitter(e EventEmitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithCycleRecorder persists every committed cycle.
func WithCycleRecorder(r CycleRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithMetrics records cycle and tool metrics on m.
func WithMetrics(m *telemetry.RunMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger for run and cycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New wires the loop. The tool documentation is rendered once here.
func New(selector Selector, judge Evaluator, registry *tools.Registry, state *history.State, opts ...Option) (*Orchestrator, error) {
	if selector == nil || judge == nil || registry == nil || state == nil {
		return nil, errors.New(errors.CodeConfiguration, "orchestrator requires a selector, a judge, a registry and a state", nil)
	}
	o := &Orchestrator{
		selector:  selector,
		judge:     judge,
		registry:  registry,
		state:     state,
		maxCycles: DefaultMaxCycles,
		emitter:   NoopEmitter{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(telemetry.TracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxCycles < 1 {
		return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("max cycles must be at least 1, got %d", o.maxCycles), nil)
	}
	o.toolDocs = registry.Docs()
	return o, nil
}

// State returns the agent state.
func (o *Orchestrator) State() *history.State {
	return o.state
}

// ToolDocs returns the documentation block shown to the selector.
func (o *Orchestrator) ToolDocs() string {
	return o.toolDocs
}

// Run executes cycles until the limit is reached, the selector fails or ctx
// is cancelled. Cancellation is honoured between cycles only: a cycle in
// progress completes and is committed. The returned error is the selector
// failure, if any; the outcome is always returned.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	ctx, runID := EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Run",
		trace.WithAttributes(telemetry.RunAttributes(runID, o.maxCycles)...),
		trace.WithAttributes(telemetry.ToolsetAttributes(o.registry.Names())...),
	)
	defer span.End()

	out := &Outcome{RunID: runID, Start: time.Now()}
	o.logger.InfoContext(ctx, "run.start",
		slog.String("run_id", runID),
		slog.Int("max_cycles", o.maxCycles),
		slog.Any("tools", o.registry.Names()),
	)
	o.emit(ctx, Event{Type: EventRunStarted, RunID: runID, MaxCycles: o.maxCycles})

	for o.state.Cycle < o.maxCycles {
		if ctx.Err() != nil {
			out.Status = StatusInterrupted
			break
		}
		if err := o.cycle(ctx, runID); err != nil {
			out.Status = StatusSelectorFailed
			out.Err = err
			break
		}
	}
	if out.Status == "" {
		out.Status = StatusMaxCycles
	}

	out.End = time.Now()
	out.Cycles = o.state.Cycle
	out.TotalActions = o.state.TotalActions

	span.SetAttributes(attribute.String(telemetry.AttrRunOutcome, string(out.Status)))
	if out.Err != nil {
		ae := errors.AsAixiError(out.Err)
		span.RecordError(out.Err)
		span.SetAttributes(telemetry.ErrorAttributes(string(ae.Code), ae.Recoverable)...)
		span.SetStatus(codes.Error, ae.Message)
	}
	o.logger.InfoContext(ctx, "run.finish",
		slog.String("run_id", runID),
		slog.String("outcome", string(out.Status)),
		slog.Int("cycles", out.Cycles),
		slog.Duration("duration", out.Duration()),
	)
	o.emit(ctx, Event{Type: EventRunFinished, RunID: runID, Cycle: out.Cycles, MaxCycles: o.maxCycles, Outcome: out, Err: out.Err})
	return out, out.Err
}

// cycle runs SELECT, DISPATCH and EVALUATE, then commits. Calls made inside
// a cycle do not observe cancellation of ctx; they are bounded by their own
// timeouts.
func (o *Orchestrator) cycle(parent context.Context, runID string) error {
	number := o.state.Cycle + 1
	ctx, span := o.tracer.Start(context.WithoutCancel(parent), "Orchestrator.Cycle",
		trace.WithAttributes(telemetry.CycleAttributes(number, o.state.Len())...),
	)
	defer span.End()

	o.emit(ctx, Event{Type: EventCycleStarted, RunID: runID, Cycle: number, MaxCycles: o.maxCycles})

	action, err := o.selector.Choose(ctx, o.state, o.toolDocs)
	if err != nil {
		ae := errors.AsAixiError(err)
		span.RecordError(err)
		span.SetAttributes(telemetry.ErrorAttributes(string(ae.Code), ae.Recoverable)...)
		span.SetStatus(codes.Error, ae.Message)
		o.metrics.RecordError(ctx, err, "selector")
		o.logger.ErrorContext(ctx, "cycle.selector.error",
			slog.String("run_id", runID),
			slog.Int("cycle", number),
			slog.String("error_code", string(ae.Code)),
			slog.String("error", err.Error()),
		)
		o.emit(ctx, Event{Type: EventSelectorFailed, RunID: runID, Cycle: number, Err: err})
		return err
	}
	span.SetAttributes(telemetry.ActionAttributes(action.ID, action.Tool)...)
	o.emit(ctx, Event{Type: EventActionChosen, RunID: runID, Cycle: number, Action: &action})

	result, costNote := o.dispatch(ctx, action)
	feedback := o.judge.Evaluate(ctx, o.state, action, result)
	percept := history.NewPercept(action, result, feedback, costNote)

	if err := o.state.Commit(action, percept); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return err
	}
	o.metrics.RecordCycle(ctx)

	if o.recorder != nil {
		if err := o.recorder.RecordCycle(ctx, number, action, percept); err != nil {
			o.logger.WarnContext(ctx, "cycle.record.error",
				slog.String("run_id", runID),
				slog.Int("cycle", number),
				slog.String("error", err.Error()),
			)
		}
	}

	o.emit(ctx, Event{Type: EventPerceptReceived, RunID: runID, Cycle: number, Action: &action, Percept: &percept})
	o.logger.InfoContext(ctx, "cycle.complete",
		slog.String("run_id", runID),
		slog.Int("cycle", number),
		slog.String("action_id", action.ID),
		slog.String("tool", action.Tool),
		slog.Bool("tool_success", !result.Failed()),
	)
	o.emit(ctx, Event{Type: EventCycleCompleted, RunID: runID, Cycle: number, MaxCycles: o.maxCycles})
	return nil
}

// dispatch validates the payload, looks the tool up and invokes it. Every
// path yields a result; validation and lookup failures are observations.
func (o *Orchestrator) dispatch(ctx context.Context, action history.Action) (result tools.Result, costNote string) {
	ctx, span := o.tracer.Start(ctx, "Tool.Invoke",
		trace.WithAttributes(telemetry.ActionAttributes(action.ID, action.Tool)...),
	)
	defer span.End()
	start := time.Now()

	tool, found := o.registry.Lookup(action.Tool)
	switch {
	case tools.IsEmptyPayload(action.Payload):
		result = tools.InvalidInput(action.Tool, "Empty input_body: provide a JSON object for the subenvironment")
		result.Err.WithRecoverable(true)
	case !found:
		result = o.registry.UnknownTool(action.Tool)
	default:
		result = invoke(ctx, tool, action)
		if n, ok := tool.(tools.CostNoter); ok {
			costNote = n.CostNote()
		}
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000
	span.SetAttributes(telemetry.ToolCallAttributes(action.Tool, elapsed, !result.Failed())...)
	span.SetAttributes(telemetry.ToolCallArgsResult(action.PayloadText(), result.Output, 500)...)
	o.metrics.RecordToolInvocation(ctx, action.Tool, !result.Failed())
	if result.Failed() {
		span.SetAttributes(telemetry.ErrorAttributes(string(result.Err.Code), result.Err.Recoverable)...)
		span.SetStatus(codes.Error, result.Err.Message)
		o.metrics.RecordError(ctx, result.Err, "tool")
		o.logger.WarnContext(ctx, "tool.error",
			slog.String("tool", action.Tool),
			slog.String("error_code", string(result.Err.Code)),
			slog.String("error", result.Err.Message),
		)
	}
	return result, costNote
}

// invoke shields the loop from a panicking adapter.
func invoke(ctx context.Context, tool tools.Tool, action history.Action) (result tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = tools.Failure(action.Tool, fmt.Sprintf("Subenvironment '%s' crashed: %v", action.Tool, r), nil)
		}
	}()
	return tool.Invoke(ctx, action.Payload)
}

func (o *Orchestrator) emit(ctx context.Context, e Event) {
	if o.emitter == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	o.emitter.Emit(ctx, e)
}
