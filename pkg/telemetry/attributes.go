// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration, trace-aware logging and
// run metrics for the agent loop.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// TracerName is the instrumentation scope used for every span in the loop.
const TracerName = "github.com/jllopis/aixi"

// Semantic conventions for agent loop telemetry.
const (
	// Run attributes
	AttrRunID        = "aixi.run.id"
	AttrRunMaxCycles = "aixi.run.max_cycles"
	AttrRunOutcome   = "aixi.run.outcome"
	AttrCycle        = "aixi.cycle"
	AttrHistoryLen   = "aixi.history.entries"

	// Action attributes
	AttrActionID   = "aixi.action.id"
	AttrActionTool = "aixi.action.tool"

	// Tool attributes
	AttrToolName       = "aixi.tool.name"
	AttrToolPayload    = "aixi.tool.payload"
	AttrToolResult     = "aixi.tool.result"
	AttrToolDurationMs = "aixi.tool.duration_ms"
	AttrToolSuccess    = "aixi.tool.success"
	AttrToolsCount     = "aixi.tools.count"
	AttrToolsNames     = "aixi.tools.names"

	// LLM attributes (extending standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMCallType     = "aixi.llm.call_type"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"

	// Error attributes
	AttrErrorCode        = "aixi.error.code"
	AttrErrorRecoverable = "aixi.error.recoverable"
)

// RunAttributes returns attributes for the root run span.
func RunAttributes(runID string, maxCycles int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.Int(AttrRunMaxCycles, maxCycles),
	}
}

// CycleAttributes returns attributes for a cycle span.
func CycleAttributes(cycle, historyLen int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrCycle, cycle),
		attribute.Int(AttrHistoryLen, historyLen),
	}
}

// ActionAttributes identifies the action chosen in a cycle.
func ActionAttributes(id, tool string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrActionTool, tool)}
	if id != "" {
		attrs = append(attrs, attribute.String(AttrActionID, id))
	}
	return attrs
}

// ToolCallAttributes returns attributes for a tool call span.
func ToolCallAttributes(name string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// ToolCallArgsResult returns attributes with tool payload and result (truncated for safety).
func ToolCallArgsResult(payload, result string, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	attrs := []attribute.KeyValue{}
	if payload != "" {
		attrs = append(attrs, attribute.String(AttrToolPayload, Truncate(payload, maxLen)))
	}
	if result != "" {
		attrs = append(attrs, attribute.String(AttrToolResult, Truncate(result, maxLen)))
	}
	return attrs
}

// ToolsetAttributes returns attributes describing the registered tools.
func ToolsetAttributes(names []string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int(AttrToolsCount, len(names))}
	if len(names) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrToolsNames, names))
	}
	return attrs
}

// LLMAttributes returns attributes for LLM call spans.
func LLMAttributes(model, provider, callType string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.String(AttrLLMCallType, callType),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int, durationMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrLLMTokensInput, inputTokens),
		attribute.Int(AttrLLMTokensOutput, outputTokens),
		attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens),
		attribute.Float64(AttrLLMDurationMs, durationMs),
	}
}

// ErrorAttributes describes a failure recorded on a span.
func ErrorAttributes(code string, recoverable bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorCode, code),
		attribute.Bool(AttrErrorRecoverable, recoverable),
	}
}

// Truncate shortens s to at most maxLen bytes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
