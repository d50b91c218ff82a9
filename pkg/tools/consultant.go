// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/aixi/pkg/llm"
)

const consultantDocs = `
CONSULTANT SUBENVIRONMENT

This subenvironment provides access to a separate LLM for consultation and brainstorming.
It is useful for getting second opinions without polluting the main reasoning history.

INPUT FORMAT (JSON):
{
    "action": "consult" | "brainstorm" | "analyze",

    // For "consult" action:
    "question": "What should I do about X?",
    "context": "optional background information",

    // For "brainstorm" action:
    "topic": "topic to brainstorm about",
    "num_ideas": 5,  // optional, 1-20, default 5

    // For "analyze" action:
    "data": "information to analyze",
    "analysis_type": "general"  // optional: general, pros_cons, summary, critique
}

EXAMPLES:
{"action": "consult", "question": "How should I approach this problem?", "context": "I'm working on..."}
{"action": "brainstorm", "topic": "ways to improve code efficiency", "num_ideas": 7}
{"action": "analyze", "data": "Here's my plan...", "analysis_type": "pros_cons"}

NOTES:
- Responses are independent of the main agent history
`

var analysisPrompts = map[string]string{
	"general":   "Please provide a general analysis of the following information:",
	"pros_cons": "Please analyze the pros and cons of the following:",
	"summary":   "Please provide a concise summary of the following:",
	"critique":  "Please provide a constructive critique of the following:",
}

var analysisTitles = map[string]string{
	"general":   "General",
	"pros_cons": "Pros_Cons",
	"summary":   "Summary",
	"critique":  "Critique",
}

// Consultant asks a separate model for advice, ideas or analysis.
type Consultant struct {
	provider llm.Provider
	model    string
	record   func(ctx context.Context, prompt string, resp *llm.ChatResponse)
}

// ConsultantOption configures a Consultant.
type ConsultantOption func(*Consultant)

// WithUsageHook is called after every successful consultation call.
func WithUsageHook(fn func(ctx context.Context, prompt string, resp *llm.ChatResponse)) ConsultantOption {
	return func(c *Consultant) { c.record = fn }
}

// NewConsultant returns a consultant backed by provider.
func NewConsultant(provider llm.Provider, model string, opts ...ConsultantOption) *Consultant {
	c := &Consultant{provider: provider, model: model}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consultant) Name() string { return "consultant" }

func (c *Consultant) Description() string {
	return "LLM consultation for second opinions and brainstorming"
}

func (c *Consultant) Docs() string { return consultantDocs }

type consultantInput struct {
	Action       string `json:"action"`
	Question     string `json:"question"`
	Context      string `json:"context"`
	Topic        string `json:"topic"`
	NumIdeas     *int   `json:"num_ideas"`
	Data         string `json:"data"`
	AnalysisType string `json:"analysis_type"`
}

func (c *Consultant) Invoke(ctx context.Context, payload json.RawMessage) Result {
	var in consultantInput
	if res, ok := decodePayload(c.Name(), payload, &in); !ok {
		return res
	}
	switch in.Action {
	case "consult":
		return c.consult(ctx, in.Question, in.Context)
	case "brainstorm":
		n := 5
		if in.NumIdeas != nil {
			n = *in.NumIdeas
		}
		return c.brainstorm(ctx, in.Topic, n)
	case "analyze":
		kind := in.AnalysisType
		if kind == "" {
			kind = "general"
		}
		return c.analyze(ctx, in.Data, kind)
	default:
		return InvalidInput(c.Name(), fmt.Sprintf("Unknown action '%s'. Available: consult, brainstorm, analyze", in.Action))
	}
}

func (c *Consultant) consult(ctx context.Context, question, background string) Result {
	question = strings.TrimSpace(question)
	if question == "" {
		return InvalidInput(c.Name(), "Question cannot be empty")
	}

	var b strings.Builder
	b.WriteString("You are a helpful AI consultant. You are being asked for advice or a second opinion.\n")
	b.WriteString("Please provide thoughtful, accurate, and helpful guidance.\n\n")
	if bg := strings.TrimSpace(background); bg != "" {
		fmt.Fprintf(&b, "CONTEXT:\n%s\n\n", bg)
	}
	fmt.Fprintf(&b, "QUESTION:\n%s\n\nPlease provide a clear, helpful response:", question)

	text, res, ok := c.ask(ctx, b.String(), "Consultation failed")
	if !ok {
		return res
	}
	return Successf("Consultation completed.\n\nRESPONSE:\n%s", text)
}

func (c *Consultant) brainstorm(ctx context.Context, topic string, n int) Result {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return InvalidInput(c.Name(), "Topic cannot be empty")
	}
	if n < 1 || n > 20 {
		return InvalidInput(c.Name(), "Number of ideas must be between 1 and 20")
	}

	prompt := fmt.Sprintf(`You are a creative brainstorming assistant. Please generate %d creative and practical ideas related to the following topic:

TOPIC: %s

Please provide %d distinct ideas, each with a brief explanation. Format your response as a numbered list.`, n, topic, n)

	text, res, ok := c.ask(ctx, prompt, "Brainstorming failed")
	if !ok {
		return res
	}
	return Successf("Brainstorming completed for '%s'.\n\nIDEAS:\n%s", topic, text)
}

func (c *Consultant) analyze(ctx context.Context, data, kind string) Result {
	data = strings.TrimSpace(data)
	if data == "" {
		return InvalidInput(c.Name(), "Data to analyze cannot be empty")
	}
	intro, ok := analysisPrompts[kind]
	if !ok {
		return InvalidInput(c.Name(), fmt.Sprintf("Unknown analysis type '%s'. Available: general, pros_cons, summary, critique", kind))
	}

	prompt := fmt.Sprintf("%s\n\nDATA TO ANALYZE:\n%s\n\nPlease provide a thorough and insightful analysis:", intro, data)
	text, res, ok := c.ask(ctx, prompt, "Analysis failed")
	if !ok {
		return res
	}
	return Successf("%s analysis completed.\n\nANALYSIS:\n%s", analysisTitles[kind], text)
}

func (c *Consultant) ask(ctx context.Context, prompt, failure string) (string, Result, bool) {
	resp, err := llm.Complete(ctx, c.provider, llm.ChatRequest{
		Model:           c.model,
		Messages:        llm.UserPrompt(prompt),
		Temperature:     0.8,
		TopP:            0.9,
		TopK:            40,
		MaxOutputTokens: 2048,
		Safety:          llm.SafetyMedium,
	})
	if err != nil {
		return "", Failure(c.Name(), fmt.Sprintf("%s: %v", failure, err), err), false
	}
	if c.record != nil {
		c.record(ctx, prompt, resp)
	}
	return resp.Content, Result{}, true
}
