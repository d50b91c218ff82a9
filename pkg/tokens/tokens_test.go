// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/aixi/pkg/llm"
)

func fixedTracker() *Tracker {
	tr := NewTracker(Pricing{InputPer1K: 1, OutputPer1K: 2}, nil)
	tr.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return tr
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 1},
		{"abc", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range tests {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tc.text), got, tc.want)
		}
	}
}

func TestRecordPrefersReportedUsage(t *testing.T) {
	tr := fixedTracker()
	u := tr.Record(context.Background(), CallIdeator, "prompt", &llm.ChatResponse{
		Content: "reply",
		Usage:   llm.Usage{PromptTokens: 1000, CompletionTokens: 500},
	})
	if u.Estimated {
		t.Fatalf("expected reported usage to be used")
	}
	if u.TotalTokens != 1500 {
		t.Fatalf("expected 1500 total, got %d", u.TotalTokens)
	}
	if math.Abs(u.EstimatedCost-2.0) > 1e-9 {
		t.Fatalf("expected cost 2.0, got %v", u.EstimatedCost)
	}
}

func TestRecordEstimatesWithoutUsage(t *testing.T) {
	tr := fixedTracker()
	u := tr.Record(context.Background(), CallJudge, strings.Repeat("p", 40), &llm.ChatResponse{Content: strings.Repeat("r", 8)})
	if !u.Estimated || u.PromptTokens != 10 || u.CompletionTokens != 2 {
		t.Fatalf("unexpected estimate: %+v", u)
	}
}

func reported(prompt, completion int) *llm.ChatResponse {
	return &llm.ChatResponse{Content: "ok", Usage: llm.Usage{PromptTokens: prompt, CompletionTokens: completion}}
}

func TestTotalsAndByType(t *testing.T) {
	tr := fixedTracker()
	ctx := context.Background()
	tr.Record(ctx, CallIdeator, "p", reported(100, 50))
	tr.Record(ctx, CallJudge, "p", reported(10, 5))
	tr.Record(ctx, CallIdeator, "p", reported(100, 50))

	total := tr.Total()
	if total.Calls != 3 || total.TotalTokens != 315 {
		t.Fatalf("unexpected totals: %+v", total)
	}

	byType := tr.ByType()
	want := map[string]int{CallIdeator: 2, CallJudge: 1}
	got := map[string]int{}
	for k, v := range byType {
		got[k] = v.Calls
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("calls by type mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{CallIdeator, CallJudge}, tr.Types()); diff != "" {
		t.Errorf("type order mismatch (-want +got):\n%s", diff)
	}
}

func TestReportAndSave(t *testing.T) {
	tr := fixedTracker()
	tr.Record(context.Background(), CallIdeator, "p", reported(1200, 300))

	report := tr.Report()
	for _, want := range []string{
		"LLM-AIXI Token Usage Report",
		"Total API Calls: 1",
		"Total Tokens: 1,500",
		"IDEATOR:",
		"DETAILED HISTORY:",
		"2026-01-02T03:04:05Z | ideator | Tokens: 1500 | Cost: $1.8000",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if !strings.Contains(tr.Summary(), "LLM-AIXI TOKEN USAGE REPORT") {
		t.Errorf("summary missing header")
	}

	path := filepath.Join(t.TempDir(), "run_tokens.txt")
	if err := tr.SaveReport(path); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(data) != report {
		t.Errorf("saved report differs from Report()")
	}
}

func TestThousands(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4200: "-4,200"}
	for in, want := range tests {
		if got := Thousands(in); got != want {
			t.Errorf("Thousands(%d) = %q, want %q", in, got, want)
		}
	}
}
