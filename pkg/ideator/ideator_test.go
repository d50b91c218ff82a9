package ideator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/history"
	"github.com/jllopis/aixi/pkg/llm"
	"github.com/jllopis/aixi/pkg/tokens"
	"github.com/jllopis/aixi/pkg/tools"
)

const listReply = "REASONING:\nLook around.\n\nACTION:\nsubenvironment: file_system\ninput_body: {\"action\": \"list_files\", \"path\": \".\"}"

func TestChooseBuildsActionAndTracksTokens(t *testing.T) {
	provider := llm.NewScriptedMockProvider(listReply)
	tracker := tokens.NewTracker(tokens.Pricing{}, nil)
	s := New(provider, WithModel("gemini-1.5-pro", "vertex"), WithTokenTracker(tracker))

	state := history.NewState("Explore carefully.")
	action, err := s.Choose(context.Background(), state, "TOOL DOCS")
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	if action.Tool != "file_system" || action.ID == "" || action.Reasoning != "Look around." {
		t.Errorf("unexpected action %+v", action)
	}
	if !json.Valid(action.Payload) {
		t.Errorf("payload is not valid JSON: %s", action.Payload)
	}

	req := provider.LastRequest()
	want := DefaultParams()
	if req.Temperature != want.Temperature || req.TopP != want.TopP || req.TopK != want.TopK ||
		req.MaxOutputTokens != want.MaxOutputTokens || req.Safety != llm.SafetyMedium {
		t.Errorf("unexpected decoding parameters %+v", req)
	}
	if req.Model != "gemini-1.5-pro" {
		t.Errorf("unexpected model %q", req.Model)
	}
	if got := tracker.ByType()[tokens.CallIdeator].Calls; got != 1 {
		t.Errorf("expected one ideator call tracked, got %d", got)
	}
}

func TestChooseParseFailure(t *testing.T) {
	s := New(llm.NewScriptedMockProvider("I refuse to follow the format."))
	_, err := s.Choose(context.Background(), history.NewState("c"), "docs")
	if !errors.HasCode(err, errors.CodeParseFailure) {
		t.Fatalf("expected PARSE_FAILURE, got %v", err)
	}
}

func TestChooseModelFailure(t *testing.T) {
	tests := []struct {
		name       string
		provider   llm.Provider
		wantStatus int
	}{
		{name: "empty reply", provider: &llm.MockProvider{Response: "   "}},
		{name: "provider unavailable", provider: &llm.FailingMockProvider{}, wantStatus: 503},
		{name: "rate limited", provider: &llm.FailingMockProvider{Status: 429}, wantStatus: 429},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.provider).Choose(context.Background(), history.NewState("c"), "docs")
			if !errors.HasCode(err, errors.CodeModelError) {
				t.Fatalf("expected MODEL_ERROR, got %v", err)
			}
			if got := errors.AsAixiError(err).Status; got != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, got)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	state := history.NewState("Be useful.")

	prompt := BuildPrompt(state, "DOCS BLOCK")
	for _, want := range []string{
		"=== YOUR CONSTITUTION ===\nBe useful.",
		"=== AVAILABLE SUBENVIRONMENTS (TOOLS) ===\nDOCS BLOCK",
		"=== YOUR HISTORY ===\nNo actions taken yet.",
		"REASONING:",
		"subenvironment: [name of subenvironment]",
		"Choose your action now:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "JUDGE'S FEEDBACK") {
		t.Errorf("empty history should not include a feedback section")
	}

	action := history.NewAction("web_search", []byte(`{"query": "aixi"}`), "why not")
	percept := history.NewPercept(action, tools.Success("SUCCESS: found it"), "Good start.", "")
	if err := state.Commit(action, percept); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	prompt = BuildPrompt(state, "DOCS BLOCK")
	for _, want := range []string{
		"AGENT HISTORY (Cycles completed: 1):",
		"Input: {\"query\": \"aixi\"}",
		"Tool Result: SUCCESS: found it",
		"Your last action was evaluated thusly: Good start.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Index(prompt, "=== YOUR HISTORY ===") > strings.Index(prompt, "=== JUDGE'S FEEDBACK") {
		t.Errorf("feedback must follow the history")
	}
}
