// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

// Package tokens tracks model token usage and estimated cost per call type.
package tokens

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/aixi/pkg/llm"
	"github.com/jllopis/aixi/pkg/telemetry"
)

// Call types used by the loop.
const (
	CallIdeator      = "ideator"
	CallJudge        = "judge"
	CallJudgeOverall = "judge_overall"
	CallConsultant   = "consultant"
)

// Pricing holds USD prices per 1K tokens.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Usage is the record of one model call.
type Usage struct {
	Timestamp        time.Time `json:"timestamp"`
	CallType         string    `json:"call_type"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCost    float64   `json:"estimated_cost"`
	Estimated        bool      `json:"estimated"`
}

// Stats aggregates usage records.
type Stats struct {
	Calls            int     `yaml:"calls"`
	PromptTokens     int     `yaml:"prompt_tokens"`
	CompletionTokens int     `yaml:"completion_tokens"`
	TotalTokens      int     `yaml:"total_tokens"`
	EstimatedCost    float64 `yaml:"estimated_cost"`
}

func (s *Stats) add(u Usage) {
	s.Calls++
	s.PromptTokens += u.PromptTokens
	s.CompletionTokens += u.CompletionTokens
	s.TotalTokens += u.TotalTokens
	s.EstimatedCost += u.EstimatedCost
}

// Tracker records usage for every model call of a run. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	pricing Pricing
	history []Usage
	types   []string
	metrics *telemetry.RunMetrics
	now     func() time.Time
}

// NewTracker creates a tracker. metrics may be nil.
func NewTracker(pricing Pricing, metrics *telemetry.RunMetrics) *Tracker {
	return &Tracker{pricing: pricing, metrics: metrics, now: time.Now}
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(text string) int {
	return max(1, len(text)/4)
}

// Cost returns the estimated USD cost for the given token counts.
func (t *Tracker) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*t.pricing.InputPer1K +
		float64(completionTokens)/1000*t.pricing.OutputPer1K
}

// Record tracks a completed call. Provider-reported usage is preferred; when
// the provider reports none, counts are estimated from the prompt and reply.
func (t *Tracker) Record(ctx context.Context, callType, prompt string, resp *llm.ChatResponse) Usage {
	var reply string
	var reported llm.Usage
	if resp != nil {
		reply = resp.Content
		reported = resp.Usage
	}
	if reported.PromptTokens > 0 || reported.CompletionTokens > 0 {
		return t.track(ctx, callType, reported.PromptTokens, reported.CompletionTokens, false)
	}
	return t.track(ctx, callType, EstimateTokens(prompt), EstimateTokens(reply), true)
}

func (t *Tracker) track(ctx context.Context, callType string, prompt, completion int, estimated bool) Usage {
	if callType == "" {
		callType = "unknown"
	}
	u := Usage{
		Timestamp:        t.now(),
		CallType:         callType,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		EstimatedCost:    t.Cost(prompt, completion),
		Estimated:        estimated,
	}

	t.mu.Lock()
	if !t.seen(callType) {
		t.types = append(t.types, callType)
	}
	t.history = append(t.history, u)
	t.mu.Unlock()

	t.metrics.RecordTokens(ctx, callType, prompt, completion)
	return u
}

// seen must be called under lock.
func (t *Tracker) seen(callType string) bool {
	for _, ct := range t.types {
		if ct == callType {
			return true
		}
	}
	return false
}

// Total aggregates every record.
func (t *Tracker) Total() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var s Stats
	for _, u := range t.history {
		s.add(u)
	}
	return s
}

// ByType aggregates records per call type.
func (t *Tracker) ByType() map[string]Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Stats, len(t.types))
	for _, u := range t.history {
		s := out[u.CallType]
		s.add(u)
		out[u.CallType] = s
	}
	return out
}

// Types returns call types in first-seen order.
func (t *Tracker) Types() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.types...)
}

// History returns a copy of all records.
func (t *Tracker) History() []Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Usage(nil), t.history...)
}

// Summary renders the console usage report.
func (t *Tracker) Summary() string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "\n%s\nLLM-AIXI TOKEN USAGE REPORT\n%s\n", rule, rule)
	t.writeTotals(&b)
	b.WriteString("\n" + rule + "\n")
	return b.String()
}

// Report renders the usage report saved next to the transcript.
func (t *Tracker) Report() string {
	var b strings.Builder
	b.WriteString("LLM-AIXI Token Usage Report\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", t.now().Format(time.RFC3339))
	t.writeTotals(&b)

	b.WriteString("\nDETAILED HISTORY:\n")
	for _, u := range t.History() {
		fmt.Fprintf(&b, "  %s | %s | Tokens: %d | Cost: $%.4f\n",
			u.Timestamp.Format(time.RFC3339), u.CallType, u.TotalTokens, u.EstimatedCost)
	}
	return b.String()
}

func (t *Tracker) writeTotals(b *strings.Builder) {
	total := t.Total()
	b.WriteString("\nTOTAL USAGE:\n")
	fmt.Fprintf(b, "  Total API Calls: %d\n", total.Calls)
	fmt.Fprintf(b, "  Total Prompt Tokens: %s\n", Thousands(total.PromptTokens))
	fmt.Fprintf(b, "  Total Completion Tokens: %s\n", Thousands(total.CompletionTokens))
	fmt.Fprintf(b, "  Total Tokens: %s\n", Thousands(total.TotalTokens))
	fmt.Fprintf(b, "  Estimated Total Cost: $%.4f\n", total.EstimatedCost)

	types := t.Types()
	if len(types) == 0 {
		return
	}
	byType := t.ByType()
	b.WriteString("\nUSAGE BY CALL TYPE:\n")
	for _, ct := range types {
		s := byType[ct]
		fmt.Fprintf(b, "  %s:\n", strings.ToUpper(ct))
		fmt.Fprintf(b, "    Calls: %d\n", s.Calls)
		fmt.Fprintf(b, "    Tokens: %s\n", Thousands(s.TotalTokens))
		fmt.Fprintf(b, "    Cost: $%.4f\n", s.EstimatedCost)
	}
}

// SaveReport writes Report to path.
func (t *Tracker) SaveReport(path string) error {
	if err := os.WriteFile(path, []byte(t.Report()), 0o644); err != nil {
		return fmt.Errorf("save token report: %w", err)
	}
	return nil
}

// Thousands formats n with comma separators.
func Thousands(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
