package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/aixi/pkg/config"
	"github.com/jllopis/aixi/pkg/tools"
)

// ToolCaller is the part of Client a ServerTool needs.
type ToolCaller interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ServerTool exposes every tool of one MCP server as a single loop tool named
// mcp_<server>. The payload selects the server tool and its arguments.
type ServerTool struct {
	server string
	caller ToolCaller
	tools  []mcp.Tool
}

// NewServerTool discovers the server's tools for the documentation block.
func NewServerTool(ctx context.Context, server string, caller ToolCaller) (*ServerTool, error) {
	if server == "" {
		return nil, stderrors.New("mcp server name is required")
	}
	if caller == nil {
		return nil, stderrors.New("tool caller is required")
	}
	list, err := caller.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools of mcp server %q: %w", server, err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return &ServerTool{server: server, caller: caller, tools: list}, nil
}

func (s *ServerTool) Name() string { return "mcp_" + s.server }

func (s *ServerTool) Description() string {
	return fmt.Sprintf("Tools exposed by the MCP server '%s'", s.server)
}

func (s *ServerTool) Docs() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MCP SUBENVIRONMENT (%s)\n\n", s.server)
	b.WriteString("INPUT FORMAT (JSON):\n{\n    \"tool\": \"tool name from the list below\",\n    \"arguments\": { ... }\n}\n\nTOOLS:\n")
	if len(s.tools) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, t := range s.tools {
		fmt.Fprintf(&b, "- %s", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, ": %s", t.Description)
		}
		b.WriteString("\n")
		if schema := schemaText(t); schema != "" {
			fmt.Fprintf(&b, "  arguments schema: %s\n", schema)
		}
	}
	if len(s.tools) > 0 {
		fmt.Fprintf(&b, "\nEXAMPLE:\n{\"tool\": \"%s\", \"arguments\": {}}\n", s.tools[0].Name)
	}
	return b.String()
}

func schemaText(t mcp.Tool) string {
	if t.RawInputSchema != nil {
		return string(t.RawInputSchema)
	}
	if len(t.InputSchema.Properties) == 0 && len(t.InputSchema.Required) == 0 {
		return ""
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return ""
	}
	return string(data)
}

type serverToolInput struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

func (s *ServerTool) Invoke(ctx context.Context, payload json.RawMessage) tools.Result {
	var in serverToolInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return tools.InvalidInput(s.Name(), fmt.Sprintf("Invalid JSON input: %v", err))
	}
	if in.Tool == "" {
		return tools.InvalidInput(s.Name(), "'tool' field is required")
	}
	def, ok := s.lookup(in.Tool)
	if !ok {
		return tools.InvalidInput(s.Name(), fmt.Sprintf("Unknown MCP tool '%s'. Available: %s", in.Tool, strings.Join(s.toolNames(), ", ")))
	}
	if in.Arguments == nil {
		in.Arguments = map[string]any{}
	}
	if missing := missingRequired(def, in.Arguments); len(missing) > 0 {
		return tools.InvalidInput(s.Name(), fmt.Sprintf("Missing required arguments for '%s': %s", in.Tool, strings.Join(missing, ", ")))
	}

	res, err := s.caller.CallTool(ctx, in.Tool, in.Arguments)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			r := tools.Failure(s.Name(), fmt.Sprintf("MCP tool '%s' timed out", in.Tool), err)
			r.Err.WithRecoverable(true)
			return r
		}
		return tools.Failure(s.Name(), fmt.Sprintf("MCP tool '%s' failed: %v", in.Tool, err), err)
	}
	return s.toResult(in.Tool, res)
}

func (s *ServerTool) toResult(name string, res *mcp.CallToolResult) tools.Result {
	if res == nil {
		return tools.Failure(s.Name(), fmt.Sprintf("MCP tool '%s' returned no result", name), nil)
	}
	text := extractTextContent(res.Content)
	if res.IsError {
		return tools.Failure(s.Name(), fmt.Sprintf("MCP tool '%s' returned error: %s", name, text), nil)
	}
	if text == "" && res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			text = string(data)
		}
	}
	if text == "" {
		return tools.Successf("MCP tool '%s' completed with no output.", name)
	}
	return tools.Successf("MCP tool '%s' returned:\n%s", name, text)
}

func (s *ServerTool) lookup(name string) (mcp.Tool, bool) {
	for _, t := range s.tools {
		if t.Name == name {
			return t, true
		}
	}
	return mcp.Tool{}, false
}

func (s *ServerTool) toolNames() []string {
	names := make([]string, 0, len(s.tools))
	for _, t := range s.tools {
		names = append(names, t.Name)
	}
	return names
}

func missingRequired(t mcp.Tool, args map[string]any) []string {
	if t.InputSchema.Type != "" && t.InputSchema.Type != "object" {
		return nil
	}
	var missing []string
	for _, key := range t.InputSchema.Required {
		if _, ok := args[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Servers holds the connections opened for the configured MCP servers.
type Servers struct {
	tools   []*ServerTool
	clients []*Client
}

// Open connects to every configured server in name order. On failure the
// connections opened so far are closed.
func Open(ctx context.Context, servers map[string]config.MCPServerConfig, opts ...ClientOption) (*Servers, error) {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &Servers{}
	for _, name := range names {
		cfg := servers[name]
		c, err := NewStdioClient(ctx, cfg.Command, cfg.Args, cfg.Env, opts...)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("start mcp server %q: %w", name, err)
		}
		out.clients = append(out.clients, c)

		st, err := NewServerTool(ctx, name, c)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.tools = append(out.tools, st)
	}
	return out, nil
}

// Tools returns one tool per server.
func (s *Servers) Tools() []tools.Tool {
	out := make([]tools.Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	return out
}

// Close shuts down every server connection.
func (s *Servers) Close() error {
	var errs []error
	for _, c := range s.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

var _ tools.Tool = (*ServerTool)(nil)
