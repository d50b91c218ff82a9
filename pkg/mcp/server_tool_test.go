package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	aerrors "github.com/jllopis/aixi/pkg/errors"
)

type stubCaller struct {
	tools    []mcp.Tool
	listErr  error
	lastName string
	lastArgs map[string]any
	result   *mcp.CallToolResult
	err      error
}

func (s *stubCaller) ListTools(context.Context) ([]mcp.Tool, error) {
	return s.tools, s.listErr
}

func (s *stubCaller) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.lastName = name
	s.lastArgs = args
	return s.result, s.err
}

func echoTool() mcp.Tool {
	return mcp.Tool{
		Name:        "echo",
		Description: "Echoes its input",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"text": map[string]any{"type": "string"}},
			Required:   []string{"text"},
		},
	}
}

func newStubTool(t *testing.T, caller *stubCaller) *ServerTool {
	t.Helper()
	st, err := NewServerTool(context.Background(), "notes", caller)
	if err != nil {
		t.Fatalf("NewServerTool error: %v", err)
	}
	return st
}

func TestServerToolNameAndDocs(t *testing.T) {
	st := newStubTool(t, &stubCaller{tools: []mcp.Tool{echoTool()}})

	if st.Name() != "mcp_notes" {
		t.Errorf("unexpected name %q", st.Name())
	}
	docs := st.Docs()
	for _, want := range []string{"MCP SUBENVIRONMENT (notes)", "- echo: Echoes its input", `"required":["text"]`} {
		if !strings.Contains(docs, want) {
			t.Errorf("docs missing %q:\n%s", want, docs)
		}
	}
}

func TestServerToolInvoke(t *testing.T) {
	caller := &stubCaller{
		tools: []mcp.Tool{echoTool()},
		result: &mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "hello"}},
		},
	}
	st := newStubTool(t, caller)

	res := st.Invoke(context.Background(), json.RawMessage(`{"tool": "echo", "arguments": {"text": "hello"}}`))
	if res.Failed() {
		t.Fatalf("unexpected failure: %s", res.Output)
	}
	if caller.lastName != "echo" || caller.lastArgs["text"] != "hello" {
		t.Errorf("unexpected call %s %v", caller.lastName, caller.lastArgs)
	}
	if res.Output != "SUCCESS: MCP tool 'echo' returned:\nhello" {
		t.Errorf("unexpected output %q", res.Output)
	}
}

func TestServerToolRejectsBadPayloads(t *testing.T) {
	st := newStubTool(t, &stubCaller{tools: []mcp.Tool{echoTool()}})

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"invalid json", `{`, "ERROR: Invalid JSON input"},
		{"no tool", `{"arguments": {}}`, "ERROR: 'tool' field is required"},
		{"unknown tool", `{"tool": "nope"}`, "ERROR: Unknown MCP tool 'nope'. Available: echo"},
		{"missing argument", `{"tool": "echo", "arguments": {}}`, "ERROR: Missing required arguments for 'echo': text"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := st.Invoke(context.Background(), json.RawMessage(tc.payload))
			if !strings.HasPrefix(res.Output, tc.want) {
				t.Errorf("got %q, want prefix %q", res.Output, tc.want)
			}
			if !aerrors.HasCode(res.Err, aerrors.CodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", res.Err)
			}
		})
	}
}

func TestServerToolReportsFailures(t *testing.T) {
	caller := &stubCaller{tools: []mcp.Tool{echoTool()}, err: errors.New("broken pipe")}
	st := newStubTool(t, caller)

	res := st.Invoke(context.Background(), json.RawMessage(`{"tool": "echo", "arguments": {"text": "x"}}`))
	if !aerrors.HasCode(res.Err, aerrors.CodeToolFailure) {
		t.Fatalf("expected TOOL_FAILURE, got %v", res.Err)
	}
	if !strings.Contains(res.Output, "broken pipe") {
		t.Errorf("unexpected output %q", res.Output)
	}

	caller.err = nil
	caller.result = &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "no such note"}},
	}
	res = st.Invoke(context.Background(), json.RawMessage(`{"tool": "echo", "arguments": {"text": "x"}}`))
	if res.Output != "ERROR: MCP tool 'echo' returned error: no such note" {
		t.Errorf("unexpected output %q", res.Output)
	}
}

func TestNewServerToolListError(t *testing.T) {
	_, err := NewServerTool(context.Background(), "notes", &stubCaller{listErr: errors.New("down")})
	if err == nil {
		t.Fatal("expected error when tools cannot be listed")
	}
}
