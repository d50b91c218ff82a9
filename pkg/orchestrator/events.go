// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"time"

	"github.com/jllopis/aixi/pkg/history"
)

// EventType identifies a loop event.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventCycleStarted    EventType = "cycle.started"
	EventActionChosen    EventType = "cycle.action"
	EventPerceptReceived EventType = "cycle.percept"
	EventCycleCompleted  EventType = "cycle.completed"
	EventSelectorFailed  EventType = "selector.failed"
	EventRunFinished     EventType = "run.finished"
)

// Event is emitted at each step of the loop. Only the fields relevant to
// Type are set.
type Event struct {
	Type      EventType
	RunID     string
	Cycle     int
	MaxCycles int
	Timestamp time.Time
	Action    *history.Action
	Percept   *history.Percept
	Outcome   *Outcome
	Err       error
}

// EventEmitter receives loop events. Emit runs on the loop goroutine and
// should return quickly.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoopEmitter discards events.
type NoopEmitter struct{}

// Emit implements EventEmitter.
func (NoopEmitter) Emit(context.Context, Event) {}
