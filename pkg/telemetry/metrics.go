// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/aixi/pkg/errors"
)

// RunMetrics holds the counters emitted by the agent loop.
// A nil *RunMetrics is valid and records nothing.
type RunMetrics struct {
	cycleCounter metric.Int64Counter
	toolCounter  metric.Int64Counter
	tokenCounter metric.Int64Counter
	errorCounter metric.Int64Counter
	breakerGauge metric.Int64Gauge
}

// NewRunMetrics creates the run meters on the global meter provider.
func NewRunMetrics() (*RunMetrics, error) {
	meter := otel.Meter(TracerName)

	cycleCounter, err := meter.Int64Counter(
		"aixi.cycles.total",
		metric.WithDescription("Completed agent cycles"),
	)
	if err != nil {
		return nil, err
	}

	toolCounter, err := meter.Int64Counter(
		"aixi.tool.invocations",
		metric.WithDescription("Tool invocations by tool and outcome"),
	)
	if err != nil {
		return nil, err
	}

	tokenCounter, err := meter.Int64Counter(
		"aixi.llm.tokens",
		metric.WithDescription("LLM tokens by call type and direction"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"aixi.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	breakerGauge, err := meter.Int64Gauge(
		"aixi.circuitbreaker.state",
		metric.WithDescription("Circuit breaker state per component (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{
		cycleCounter: cycleCounter,
		toolCounter:  toolCounter,
		tokenCounter: tokenCounter,
		errorCounter: errorCounter,
		breakerGauge: breakerGauge,
	}, nil
}

// RecordCycle counts one committed cycle.
func (m *RunMetrics) RecordCycle(ctx context.Context) {
	if m == nil {
		return
	}
	m.cycleCounter.Add(ctx, 1)
}

// RecordToolInvocation counts a tool call with its outcome.
func (m *RunMetrics) RecordToolInvocation(ctx context.Context, tool string, success bool) {
	if m == nil {
		return
	}
	m.toolCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", success),
	))
}

// RecordTokens adds prompt and completion tokens for a call type.
func (m *RunMetrics) RecordTokens(ctx context.Context, callType string, prompt, completion int) {
	if m == nil {
		return
	}
	m.tokenCounter.Add(ctx, int64(prompt), metric.WithAttributes(
		attribute.String("call_type", callType),
		attribute.String("direction", "input"),
	))
	m.tokenCounter.Add(ctx, int64(completion), metric.WithAttributes(
		attribute.String("call_type", callType),
		attribute.String("direction", "output"),
	))
}

// RecordError increments the error counter for the error's code and component.
func (m *RunMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	ae := errors.AsAixiError(err)
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", string(ae.Code)),
			attribute.String("component", component),
			attribute.String("recoverable", ae.RecoverableString()),
		),
	)
}

// RecordCircuitBreakerState records the circuit breaker state (0=open, 1=half-open, 2=closed).
func (m *RunMetrics) RecordCircuitBreakerState(ctx context.Context, component string, state int64) {
	if m == nil {
		return
	}
	m.breakerGauge.Record(ctx, state,
		metric.WithAttributes(
			attribute.String("component", component),
		),
	)
}
