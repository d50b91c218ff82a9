// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript writes the flat files a run leaves behind: the final
// human-readable transcript and a JSON-lines record of every committed cycle.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/history"
	"github.com/jllopis/aixi/pkg/tokens"
)

const rule = "============================================================"

// Paths are the files produced by one run. They share the timestamped base
// name of the transcript.
type Paths struct {
	Transcript string
	Cycles     string
	Tokens     string
	Log        string
}

// PathsFor returns the file set for a run started at start, inside dir.
func PathsFor(dir string, start time.Time) Paths {
	base := filepath.Join(dir, "aixi_run_"+start.Format("20060102_150405"))
	return Paths{
		Transcript: base + ".txt",
		Cycles:     base + "_cycles.jsonl",
		Tokens:     base + "_tokens.txt",
		Log:        base + ".log",
	}
}

// Summary is the execution summary closing the transcript.
type Summary struct {
	RunID           string       `yaml:"run_id"`
	Start           time.Time    `yaml:"start"`
	End             time.Time    `yaml:"end"`
	DurationSeconds float64      `yaml:"duration_seconds"`
	Cycles          int          `yaml:"cycles_completed"`
	TotalActions    int          `yaml:"total_actions"`
	Outcome         string       `yaml:"outcome"`
	Detail          string       `yaml:"detail,omitempty"`
	Tokens          tokens.Stats `yaml:"tokens"`
}

// Render builds the transcript text: header, full history, overall
// evaluation and execution summary.
func Render(state *history.State, overall string, s Summary, generated time.Time) (string, error) {
	if s.DurationSeconds == 0 && !s.End.IsZero() {
		s.DurationSeconds = s.End.Sub(s.Start).Seconds()
	}

	var b strings.Builder
	b.WriteString("LLM-AIXI Execution History\n")
	fmt.Fprintf(&b, "Generated: %s\n", generated.Format(time.RFC3339))
	b.WriteString(rule + "\n\n")
	b.WriteString(state.Render())

	section(&b, "OVERALL PERFORMANCE EVALUATION")
	b.WriteString(overall)

	section(&b, "EXECUTION SUMMARY")
	fmt.Fprintf(&b, "Start Time: %s\n", s.Start.Format(time.RFC3339))
	fmt.Fprintf(&b, "End Time: %s\n", s.End.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %.2f seconds\n", s.DurationSeconds)
	fmt.Fprintf(&b, "Cycles Completed: %d\n", s.Cycles)
	fmt.Fprintf(&b, "Total Actions: %d\n", s.TotalActions)
	fmt.Fprintf(&b, "Outcome: %s\n", s.Outcome)
	if s.Detail != "" {
		fmt.Fprintf(&b, "Detail: %s\n", s.Detail)
	}

	b.WriteString("\nToken Usage:\n")
	fmt.Fprintf(&b, "  Total Calls: %d\n", s.Tokens.Calls)
	fmt.Fprintf(&b, "  Total Tokens: %s\n", tokens.Thousands(s.Tokens.TotalTokens))
	fmt.Fprintf(&b, "  Estimated Cost: $%.4f\n", s.Tokens.EstimatedCost)

	data, err := yaml.Marshal(s)
	if err != nil {
		return "", errors.New(errors.CodeInternal, "encode execution summary", err)
	}
	b.WriteString("\n--- summary (yaml) ---\n")
	b.Write(data)
	return b.String(), nil
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n\n%s\n%s\n%s\n", rule, title, rule)
}

// Save renders the transcript and writes it to path.
func Save(path string, state *history.State, overall string, s Summary) error {
	content, err := Render(state, overall, s, time.Now())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(errors.CodeInternal, "create histories directory", err).WithContext("path", path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.New(errors.CodeInternal, "write transcript", err).WithContext("path", path)
	}
	return nil
}
