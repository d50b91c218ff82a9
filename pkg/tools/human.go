// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// DefaultAnswerTimeout bounds how long query_human waits for the operator.
const DefaultAnswerTimeout = 5 * time.Minute

const humanDocs = `
QUERY HUMAN SUBENVIRONMENT

Pauses the run and asks the human operator a question. This is expensive:
use it only when no other subenvironment can resolve the problem.

INPUT FORMAT (JSON):
{
    "question": "the question for the human"
}

EXAMPLE:
{"question": "Which of the two drafts in notes/ should I keep?"}
`

// CostNoter is implemented by tools whose use carries a cost worth recording
// in the percept.
type CostNoter interface {
	CostNote() string
}

// HumanQuery asks the operator a question on the console. A single goroutine
// reads lines from the input. After a timeout, answers already typed for the
// abandoned question are dropped before the next one is asked.
type HumanQuery struct {
	in      *bufio.Reader
	out     io.Writer
	timeout time.Duration

	mu    sync.Mutex
	once  sync.Once
	lines chan humanLine
	stale bool
}

type humanLine struct {
	text string
	err  error
}

// HumanOption configures a HumanQuery.
type HumanOption func(*HumanQuery)

// WithAnswerTimeout sets how long to wait for an answer.
func WithAnswerTimeout(d time.Duration) HumanOption {
	return func(h *HumanQuery) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHumanQuery reads answers from in and writes prompts to out.
func NewHumanQuery(in io.Reader, out io.Writer, opts ...HumanOption) *HumanQuery {
	h := &HumanQuery{
		in:      bufio.NewReader(in),
		out:     out,
		timeout: DefaultAnswerTimeout,
		lines:   make(chan humanLine, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HumanQuery) Name() string { return "query_human" }

func (h *HumanQuery) Description() string {
	return "Ask the human operator a question and wait for the answer"
}

func (h *HumanQuery) Docs() string { return humanDocs }

func (h *HumanQuery) CostNote() string {
	return "High cost: this action interrupted the human operator."
}

type humanInput struct {
	Question string `json:"question"`
}

func (h *HumanQuery) Invoke(ctx context.Context, payload json.RawMessage) Result {
	var in humanInput
	if res, ok := decodePayload(h.Name(), payload, &in); !ok {
		return res
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return InvalidInput(h.Name(), "'question' field is required and cannot be empty")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rule := strings.Repeat("=", 50)
	fmt.Fprintf(h.out, "\n%s\nAGENT IS REQUESTING HUMAN INPUT\n%s\n\nAgent's Question: %s\n\nYour Response > ", rule, rule, question)

	h.once.Do(func() { go h.readLoop() })
	if h.stale {
		h.drain()
		h.stale = false
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	var response string
	select {
	case l, ok := <-h.lines:
		if !ok || (l.err != nil && l.text == "") {
			response = "User cancelled the query."
		} else {
			response = strings.TrimRight(l.text, "\r\n")
		}
	case <-timer.C:
		h.stale = true
		response = fmt.Sprintf("No response from the human operator within %s.", h.timeout)
	case <-ctx.Done():
		h.stale = true
		response = "User cancelled the query."
	}

	fmt.Fprintf(h.out, "\n%s\nHUMAN INPUT RECEIVED. AGENT IS RESUMING...\n%s\n\n", rule, rule)
	return Successf("Human responded:\n%s", response)
}

func (h *HumanQuery) readLoop() {
	for {
		line, err := h.in.ReadString('\n')
		h.lines <- humanLine{text: line, err: err}
		if err != nil {
			close(h.lines)
			return
		}
	}
}

// drain drops answers nobody was waiting for.
func (h *HumanQuery) drain() {
	for {
		select {
		case _, ok := <-h.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
