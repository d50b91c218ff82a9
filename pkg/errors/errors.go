// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for the agent loop.
//
// Codes separate failures that end a run (PARSE_FAILURE, MODEL_ERROR in the
// selector, CONFIGURATION_ERROR) from failures that are recorded as ordinary
// observations (TOOL_FAILURE, judge MODEL_ERROR).
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies agent errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeParseFailure indicates the selector could not extract an action from model text.
	CodeParseFailure ErrorCode = "PARSE_FAILURE"

	// CodeToolFailure indicates a tool adapter failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeModelError indicates a model provider call failed or returned empty text.
	CodeModelError ErrorCode = "MODEL_ERROR"

	// CodeConfiguration indicates missing or invalid startup configuration.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeUserInterrupt indicates the user stopped the run.
	CodeUserInterrupt ErrorCode = "USER_INTERRUPT"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// AixiError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type AixiError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	// Status carries the provider status code for MODEL_ERROR, when known.
	Status int
}

// Error implements the error interface.
func (e *AixiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AixiError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *AixiError with the same code.
func (e *AixiError) Is(target error) bool {
	t, ok := target.(*AixiError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *AixiError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		Status      int                    `json:"status,omitempty"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
		Status:      e.Status,
	})
}

// New creates a new AixiError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *AixiError {
	return &AixiError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// Sentinel returns a code-only error usable as an errors.Is target.
func Sentinel(code ErrorCode) *AixiError {
	return &AixiError{Code: code}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *AixiError) WithContext(key string, value interface{}) *AixiError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *AixiError) WithRecoverable(recoverable bool) *AixiError {
	e.Recoverable = recoverable
	return e
}

// WithStatus records a provider status code.
func (e *AixiError) WithStatus(status int) *AixiError {
	e.Status = status
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *AixiError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// AsAixiError attempts to convert an error to an AixiError.
// Returns the error as AixiError if it is one, or wraps it as internal otherwise.
func AsAixiError(err error) *AixiError {
	if err == nil {
		return nil
	}
	var ae *AixiError
	if stderrors.As(err, &ae) {
		return ae
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err (or any error it wraps) carries code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, Sentinel(code))
}

// NewParseFailure reports a selector response that could not be turned into an action.
func NewParseFailure(reason string) *AixiError {
	return New(CodeParseFailure, reason, nil).WithRecoverable(false)
}

// NewModelError wraps a provider failure.
func NewModelError(msg string, cause error, model string) *AixiError {
	return New(CodeModelError, msg, cause).
		WithContext("model", model).
		WithRecoverable(true)
}

// NewToolFailure wraps a tool adapter failure.
func NewToolFailure(tool, msg string, cause error) *AixiError {
	return New(CodeToolFailure, msg, cause).
		WithContext("tool", tool).
		WithRecoverable(true)
}

// NewConfigurationError reports invalid startup configuration.
func NewConfigurationError(msg string, cause error) *AixiError {
	return New(CodeConfiguration, msg, cause).WithRecoverable(false)
}

// NewInvalidInputError creates a new invalid input error.
func NewInvalidInputError(msg string) *AixiError {
	return New(CodeInvalidInput, msg, nil).WithRecoverable(false)
}
