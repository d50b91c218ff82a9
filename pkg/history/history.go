// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package history holds the append-only log of actions and percepts that is
// fed back into every prompt.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/tools"
)

const separator = "============================================================"

// Action is a tool invocation chosen by the selector.
type Action struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Payload   json.RawMessage `json:"payload"`
	Reasoning string          `json:"reasoning,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewAction builds an Action with a fresh id and timestamp. payload is copied.
func NewAction(tool string, payload []byte, reasoning string) Action {
	return Action{
		ID:        uuid.NewString(),
		Tool:      tool,
		Payload:   clonePayload(payload),
		Reasoning: reasoning,
		Timestamp: time.Now(),
	}
}

// PayloadText returns the payload as it appears in prompts and transcripts.
func (a Action) PayloadText() string {
	return string(a.Payload)
}

// SameAs reports whether b has the same tool and byte-identical payload after
// whitespace compaction.
func (a Action) SameAs(b Action) bool {
	return a.Tool == b.Tool && compact(a.Payload) == compact(b.Payload)
}

func (a Action) clone() Action {
	a.Payload = clonePayload(a.Payload)
	return a
}

// Describe renders the action the way the judge sees it.
func (a Action) Describe() string {
	lines := []string{
		"Subenvironment: " + a.Tool,
		"Input Body: " + a.PayloadText(),
		"Timestamp: " + a.Timestamp.Format(time.RFC3339),
	}
	if a.Reasoning != "" {
		lines = append(lines, "Agent's Reasoning: "+a.Reasoning)
	}
	return strings.Join(lines, "\n")
}

// Percept is the observation that closes a cycle.
type Percept struct {
	Action        Action       `json:"action"`
	ToolResult    tools.Result `json:"tool_result"`
	JudgeFeedback string       `json:"judge_feedback"`
	CostNote      string       `json:"cost_note,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// NewPercept builds the percept for action.
func NewPercept(action Action, result tools.Result, feedback, costNote string) Percept {
	return Percept{
		Action:        action.clone(),
		ToolResult:    result,
		JudgeFeedback: feedback,
		CostNote:      costNote,
		Timestamp:     time.Now(),
	}
}

func (p Percept) clone() Percept {
	p.Action = p.Action.clone()
	if p.ToolResult.Err != nil {
		e := *p.ToolResult.Err
		if e.Context != nil {
			e.Context = make(map[string]any, len(p.ToolResult.Err.Context))
			for k, v := range p.ToolResult.Err.Context {
				e.Context[k] = v
			}
		}
		p.ToolResult.Err = &e
	}
	return p
}

// Kind distinguishes the two entry types in the log.
type Kind string

const (
	KindAction  Kind = "action"
	KindPercept Kind = "percept"
)

// Entry is one record of the log.
type Entry struct {
	Kind    Kind     `json:"kind"`
	Cycle   int      `json:"cycle"`
	Action  *Action  `json:"action,omitempty"`
	Percept *Percept `json:"percept,omitempty"`
}

// clone returns an entry that shares no memory with e.
func (e Entry) clone() Entry {
	if e.Action != nil {
		a := e.Action.clone()
		e.Action = &a
	}
	if e.Percept != nil {
		p := e.Percept.clone()
		e.Percept = &p
	}
	return e
}

// Render returns the canonical text block for the entry.
func (e Entry) Render() string {
	var b strings.Builder
	switch e.Kind {
	case KindAction:
		a := e.Action
		fmt.Fprintf(&b, "\n--- CYCLE %d ACTION ---\n", e.Cycle)
		fmt.Fprintf(&b, "Timestamp: %s\n", a.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(&b, "Subenvironment: %s\n", a.Tool)
		fmt.Fprintf(&b, "Input: %s\n", a.PayloadText())
		if a.Reasoning != "" {
			fmt.Fprintf(&b, "Reasoning: %s\n", a.Reasoning)
		}
	case KindPercept:
		p := e.Percept
		fmt.Fprintf(&b, "\n--- CYCLE %d PERCEPT ---\n", e.Cycle)
		fmt.Fprintf(&b, "Timestamp: %s\n", p.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(&b, "Tool Result: %s\n", p.ToolResult.Output)
		if p.CostNote != "" {
			fmt.Fprintf(&b, "Cost: %s\n", p.CostNote)
		}
		fmt.Fprintf(&b, "\nJudge's Evaluation: %s\n", p.JudgeFeedback)
		fmt.Fprintf(&b, "\n%s\n", separator)
	}
	return b.String()
}

// State is the agent state owned by the orchestrator loop. Entries can only
// be added through Commit, which records an action and its percept together.
type State struct {
	Cycle        int
	Constitution string
	TotalActions int
	entries      []Entry
}

// NewState returns an empty state for constitution.
func NewState(constitution string) *State {
	return &State{Constitution: constitution}
}

// Commit appends action then percept and advances the cycle counter. It
// refuses a percept that does not belong to action, leaving the log untouched.
func (s *State) Commit(action Action, percept Percept) error {
	if percept.Action.ID != action.ID {
		return errors.New(errors.CodeInternal, "percept does not reference the committed action", nil).
			WithContext("action_id", action.ID).
			WithContext("percept_action_id", percept.Action.ID)
	}
	cycle := s.Cycle + 1
	a := action.clone()
	p := percept.clone()
	p.Action = action.clone()
	s.entries = append(s.entries,
		Entry{Kind: KindAction, Cycle: cycle, Action: &a},
		Entry{Kind: KindPercept, Cycle: cycle, Percept: &p},
	)
	s.Cycle = cycle
	s.TotalActions++
	return nil
}

// Len returns the number of entries.
func (s *State) Len() int {
	return len(s.entries)
}

// Entries returns a deep copy of the log. Changes to the returned entries
// never reach the committed history.
func (s *State) Entries() []Entry {
	return cloneEntries(s.entries)
}

// Window returns the last n entries (all of them when n <= 0 or n >= Len).
func (s *State) Window(n int) []Entry {
	if n <= 0 || n >= len(s.entries) {
		return s.Entries()
	}
	return cloneEntries(s.entries[len(s.entries)-n:])
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.clone()
	}
	return out
}

// LastPercept returns the most recent percept, if any.
func (s *State) LastPercept() (Percept, bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Kind == KindPercept {
			return s.entries[i].Percept.clone(), true
		}
	}
	return Percept{}, false
}

// LastFeedback returns the judge feedback from the most recent percept.
func (s *State) LastFeedback() string {
	p, ok := s.LastPercept()
	if !ok {
		return ""
	}
	return strings.TrimSpace(p.JudgeFeedback)
}

// Render returns the full rendered history used in prompts.
func (s *State) Render() string {
	if len(s.entries) == 0 {
		return "No actions taken yet."
	}
	return fmt.Sprintf("AGENT HISTORY (Cycles completed: %d):\n%s", s.Cycle, RenderEntries(s.entries))
}

// RenderEntries concatenates the canonical blocks of entries.
func RenderEntries(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Render())
	}
	return b.String()
}

// ActionsIn returns the actions contained in entries, oldest first.
func ActionsIn(entries []Entry) []Action {
	var out []Action
	for _, e := range entries {
		if e.Kind == KindAction {
			out = append(out, *e.Action)
		}
	}
	return out
}

func clonePayload(p []byte) json.RawMessage {
	if p == nil {
		return nil
	}
	out := make(json.RawMessage, len(p))
	copy(out, p)
	return out
}

func compact(p json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, p); err != nil {
		return strings.TrimSpace(string(p))
	}
	return buf.String()
}
