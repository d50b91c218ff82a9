// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestRunAttributes(t *testing.T) {
	attrs := RunAttributes("run-123", 20)

	assertAttributes(t, attrs, map[string]any{
		AttrRunID:        "run-123",
		AttrRunMaxCycles: 20,
	})
}

func TestCycleAttributes(t *testing.T) {
	assertAttributes(t, CycleAttributes(3, 4), map[string]any{
		AttrCycle:      3,
		AttrHistoryLen: 4,
	})
}

func TestActionAttributesSkipsEmptyID(t *testing.T) {
	attrs := ActionAttributes("", "web_search")
	if len(attrs) != 1 {
		t.Fatalf("expected one attribute, got %d", len(attrs))
	}
	assertAttributes(t, ActionAttributes("a-1", "file_system"), map[string]any{
		AttrActionID:   "a-1",
		AttrActionTool: "file_system",
	})
}

func TestToolCallAttributes(t *testing.T) {
	attrs := ToolCallAttributes("code_executor", 150.5, true)

	assertAttributes(t, attrs, map[string]any{
		AttrToolName:       "code_executor",
		AttrToolDurationMs: 150.5,
		AttrToolSuccess:    true,
	})
}

func TestToolCallArgsResultTruncates(t *testing.T) {
	long := strings.Repeat("x", 20)
	attrs := ToolCallArgsResult(long, "ok", 10)

	assertAttributes(t, attrs, map[string]any{
		AttrToolPayload: strings.Repeat("x", 10) + "...",
		AttrToolResult:  "ok",
	})
}

func TestToolsetAttributes(t *testing.T) {
	attrs := ToolsetAttributes([]string{"a", "b"})
	assertAttributes(t, attrs, map[string]any{AttrToolsCount: 2})
	if len(ToolsetAttributes(nil)) != 1 {
		t.Errorf("empty toolset should only carry the count")
	}
}

func TestLLMAttributes(t *testing.T) {
	assertAttributes(t, LLMAttributes("gemini-1.5-pro", "vertex", "judge"), map[string]any{
		AttrLLMModel:    "gemini-1.5-pro",
		AttrLLMProvider: "vertex",
		AttrLLMCallType: "judge",
	})
	assertAttributes(t, LLMUsageAttributes(100, 50, 12.5), map[string]any{
		AttrLLMTokensInput:  100,
		AttrLLMTokensOutput: 50,
		AttrLLMTokensTotal:  150,
		AttrLLMDurationMs:   12.5,
	})
}

func TestErrorAttributes(t *testing.T) {
	assertAttributes(t, ErrorAttributes("PARSE_FAILURE", false), map[string]any{
		AttrErrorCode:        "PARSE_FAILURE",
		AttrErrorRecoverable: false,
	})
}

func assertAttributes(t *testing.T, attrs []attribute.KeyValue, expected map[string]any) {
	t.Helper()

	found := make(map[string]attribute.KeyValue)
	for _, attr := range attrs {
		found[string(attr.Key)] = attr
	}

	for key, expectedVal := range expected {
		attr, ok := found[key]
		if !ok {
			t.Errorf("missing attribute %s", key)
			continue
		}

		var actualVal any
		switch attr.Value.Type() {
		case attribute.STRING:
			actualVal = attr.Value.AsString()
		case attribute.INT64:
			actualVal = int(attr.Value.AsInt64())
		case attribute.FLOAT64:
			actualVal = attr.Value.AsFloat64()
		case attribute.BOOL:
			actualVal = attr.Value.AsBool()
		}

		if actualVal != expectedVal {
			t.Errorf("attribute %s: got %v, want %v", key, actualVal, expectedVal)
		}
	}
}
