package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/aixi/pkg/config"
	"github.com/jllopis/aixi/pkg/history"
	"github.com/jllopis/aixi/pkg/orchestrator"
	"github.com/jllopis/aixi/pkg/tools"
	"github.com/jllopis/aixi/pkg/transcript"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "exactly10!", n: 10, want: "exactly10!"},
		{in: "abcdefghijk", n: 5, want: "abcde..."},
		{in: "añb", n: 2, want: "a..."},
	}
	for _, tc := range tests {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestConsoleEmit(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(&buf)
	ctx := context.Background()

	action := history.NewAction("web_search", []byte(`{"query":"`+strings.Repeat("q", 200)+`"}`), "curious")
	percept := history.NewPercept(action, tools.Success("SUCCESS: found"), "Keep going.", "")

	c.Emit(ctx, orchestrator.Event{Type: orchestrator.EventCycleStarted, Cycle: 2, MaxCycles: 5})
	c.Emit(ctx, orchestrator.Event{Type: orchestrator.EventActionChosen, Cycle: 2, Action: &action})
	c.Emit(ctx, orchestrator.Event{Type: orchestrator.EventPerceptReceived, Cycle: 2, Action: &action, Percept: &percept})
	c.Emit(ctx, orchestrator.Event{Type: orchestrator.EventCycleCompleted, Cycle: 2})
	c.Emit(ctx, orchestrator.Event{Type: orchestrator.EventRunFinished, Cycle: 2,
		Outcome: &orchestrator.Outcome{Status: orchestrator.StatusInterrupted}})

	out := buf.String()
	for _, want := range []string{
		"CYCLE 2/5",
		"[CYCLE 2] ACTION CHOSEN:",
		"  Subenvironment: web_search",
		"  Reasoning: curious",
		"  Tool Result: SUCCESS: found",
		"  Judge Feedback: Keep going.",
		"✓ Cycle 2 completed successfully",
		"Execution interrupted by user after cycle 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "  Input: "+truncate(action.PayloadText(), 100)+"\n") {
		t.Errorf("input must be truncated to 100 characters")
	}
}

func TestRunFailsOnConfiguration(t *testing.T) {
	t.Setenv(config.ConfigFileEnv, "")
	t.Setenv("AIXI_MODEL_PROVIDER", "vertex")
	t.Setenv("VERTEX_PROJECT_ID", "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), strings.NewReader(""), &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "CONFIGURATION_ERROR") {
		t.Errorf("expected configuration error, got %q", stderr.String())
	}
}

// fakeOllama answers selector, judge and overall prompts.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		prompt := req.Messages[0].Content

		var reply string
		switch {
		case strings.Contains(prompt, "Choose your action now:"):
			reply = "REASONING:\nRecord a note.\n\nACTION:\nsubenvironment: file_system\n" +
				`input_body: {"action": "write_file", "path": "notes.txt", "content": "hello"}`
		case strings.Contains(prompt, "Your evaluation essay:"):
			reply = "Good use of the file system."
		default:
			reply = "Overall the agent behaved well."
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"role": "assistant", "content": reply},
			"done":              true,
			"prompt_eval_count": 100,
			"eval_count":        20,
		})
	}))
}

func TestRunEndToEnd(t *testing.T) {
	srv := fakeOllama(t)
	defer srv.Close()

	root := t.TempDir()
	constitution := filepath.Join(root, "constitution.txt")
	if err := os.WriteFile(constitution, []byte("Keep notes."), 0o644); err != nil {
		t.Fatal(err)
	}
	hist := filepath.Join(root, "Histories")
	work := filepath.Join(root, "Working Directory")

	t.Setenv(config.ConfigFileEnv, "")
	t.Setenv("AIXI_MODEL_PROVIDER", "ollama")
	t.Setenv("AIXI_OLLAMA_URL", srv.URL)
	t.Setenv("VERTEX_MODEL", "llama3.1")
	t.Setenv("AIXI_MAX_CYCLES", "2")
	t.Setenv("AIXI_WORKING_DIR", work)
	t.Setenv("AIXI_HISTORIES_DIR", hist)
	t.Setenv("AIXI_CONSTITUTION_PATH", constitution)
	t.Setenv("AIXI_LOG_FORMAT", "json")
	t.Setenv("AIXI_LOG_LEVEL", "error")
	t.Setenv("AIXI_TELEMETRY_EXPORTER", "none")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), strings.NewReader(""), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstdout:\n%s\nstderr:\n%s", code, stdout.String(), stderr.String())
	}

	if data, err := os.ReadFile(filepath.Join(work, "notes.txt")); err != nil || string(data) != "hello" {
		t.Errorf("tool did not write the note: %q %v", data, err)
	}

	matches, err := filepath.Glob(filepath.Join(hist, "aixi_run_*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	var transcriptPath string
	for _, m := range matches {
		if !strings.HasSuffix(m, "_tokens.txt") {
			transcriptPath = m
		}
	}
	if transcriptPath == "" {
		t.Fatalf("no transcript in %v", matches)
	}
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		"AGENT HISTORY (Cycles completed: 2):",
		"Judge's Evaluation: Good use of the file system.",
		"Overall the agent behaved well.",
		"Outcome: MAX_CYCLES_REACHED",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("transcript missing %q", want)
		}
	}

	records, err := transcript.ReadCycles(strings.TrimSuffix(transcriptPath, ".txt") + "_cycles.jsonl")
	if err != nil {
		t.Fatalf("ReadCycles: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 cycle records, got %d", len(records))
	}
	if !strings.Contains(stdout.String(), "_cycles.jsonl (2 cycles)") {
		t.Errorf("cycle record count not printed:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "LLM-AIXI TOKEN USAGE REPORT") {
		t.Errorf("token summary not printed")
	}
}
