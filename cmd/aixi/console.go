package main

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/jllopis/aixi/pkg/orchestrator"
)

// console prints the per-cycle progress the operator follows on stdout.
type console struct {
	w io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) Emit(_ context.Context, e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventRunStarted:
		fmt.Fprintf(c.w, "\nStarting execution at %s\n", e.Timestamp.Format("2006-01-02T15:04:05"))
		fmt.Fprintf(c.w, "Maximum cycles: %d\n", e.MaxCycles)
	case orchestrator.EventCycleStarted:
		fmt.Fprintf(c.w, "\n%s\nCYCLE %d/%d\n%s\n", rule, e.Cycle, e.MaxCycles, rule)
		fmt.Fprintln(c.w, "Agent is choosing action...")
	case orchestrator.EventActionChosen:
		a := e.Action
		fmt.Fprintf(c.w, "\n[CYCLE %d] ACTION CHOSEN:\n", e.Cycle)
		fmt.Fprintf(c.w, "  Subenvironment: %s\n", a.Tool)
		fmt.Fprintf(c.w, "  Input: %s\n", truncate(a.PayloadText(), 100))
		if a.Reasoning != "" {
			fmt.Fprintf(c.w, "  Reasoning: %s\n", truncate(a.Reasoning, 150))
		}
		fmt.Fprintln(c.w, "Processing action...")
	case orchestrator.EventPerceptReceived:
		p := e.Percept
		fmt.Fprintf(c.w, "\n[CYCLE %d] PERCEPT RECEIVED:\n", e.Cycle)
		fmt.Fprintf(c.w, "  Tool Result: %s\n", truncate(p.ToolResult.Output, 100))
		fmt.Fprintf(c.w, "  Judge Feedback: %s\n", truncate(p.JudgeFeedback, 150))
	case orchestrator.EventCycleCompleted:
		fmt.Fprintf(c.w, "✓ Cycle %d completed successfully\n", e.Cycle)
	case orchestrator.EventSelectorFailed:
		fmt.Fprintf(c.w, "❌ Error in action selection: %v\n", e.Err)
	case orchestrator.EventRunFinished:
		if e.Outcome != nil && e.Outcome.Status == orchestrator.StatusInterrupted {
			fmt.Fprintf(c.w, "\n⚠️  Execution interrupted by user after cycle %d\n", e.Cycle)
		}
	}
}

// truncate shortens s to n bytes plus an ellipsis, keeping UTF-8 intact.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
