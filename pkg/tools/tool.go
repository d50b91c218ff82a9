// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools implements the adapters the agent can act through and the
// registry that dispatches actions to them by name.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/aixi/pkg/errors"
)

// Tool is the uniform adapter interface. Invoke never panics and never
// returns a Go error: failures are reported as Result values whose output
// starts with "ERROR:".
type Tool interface {
	Name() string
	Description() string
	Docs() string
	Invoke(ctx context.Context, payload json.RawMessage) Result
}

// Result is the observation produced by a tool call.
type Result struct {
	Output string            `json:"output"`
	Err    *errors.AixiError `json:"error,omitempty"`
}

// Failed reports whether the call failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Success builds a successful result.
func Success(output string) Result {
	return Result{Output: output}
}

// Successf formats a "SUCCESS: ..." result.
func Successf(format string, args ...any) Result {
	return Result{Output: "SUCCESS: " + fmt.Sprintf(format, args...)}
}

// Failure builds a TOOL_FAILURE result with an "ERROR: " prefixed message.
func Failure(tool, msg string, cause error) Result {
	return Result{
		Output: errorText(msg),
		Err:    errors.NewToolFailure(tool, msg, cause),
	}
}

// InvalidInput builds a result for a payload the adapter cannot accept.
func InvalidInput(tool, msg string) Result {
	return Result{
		Output: errorText(msg),
		Err:    errors.NewInvalidInputError(msg).WithContext("tool", tool),
	}
}

func errorText(msg string) string {
	if strings.HasPrefix(msg, "ERROR:") {
		return msg
	}
	return "ERROR: " + msg
}

// decodePayload unmarshals payload into v, reporting failures as results.
func decodePayload(tool string, payload json.RawMessage, v any) (Result, bool) {
	if err := json.Unmarshal(payload, v); err != nil {
		return InvalidInput(tool, fmt.Sprintf("Invalid JSON input: %v", err)), false
	}
	return Result{}, true
}

// IsEmptyPayload reports whether payload carries no usable input: blank text,
// JSON null, an empty object or an empty string.
func IsEmptyPayload(payload json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(payload))
	switch trimmed {
	case "", "null", "{}", `""`:
		return true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && len(obj) == 0 {
		return true
	}
	var s string
	if err := json.Unmarshal([]byte(trimmed), &s); err == nil && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}
