// Package mcp connects to Model Context Protocol servers over stdio and
// exposes each server as one loop tool.
package mcp

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/aixi/pkg/resilience"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 1
	defaultBackoff = 200 * time.Millisecond
)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and base backoff for transport errors.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.retry = c.retry.WithMaxAttempts(retries + 1)
		}
		if backoff > 0 {
			c.retry = c.retry.WithInitialDelay(backoff)
		}
	}
}

// session is the part of an initialized mcp-go client used here.
type session interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Client wraps an mcp-go client with timeouts, retries and a tool list that
// is fetched once per connection.
type Client struct {
	mcpClient session
	timeout   time.Duration
	retry     resilience.RetryConfig

	mu    sync.Mutex
	tools []mcp.Tool
}

// NewClient wraps an already initialized MCP client.
func NewClient(c session, opts ...ClientOption) *Client {
	cl := &Client{
		mcpClient: c,
		timeout:   defaultTimeout,
		retry: resilience.DefaultRetryConfig().
			WithMaxAttempts(defaultRetries + 1).
			WithInitialDelay(defaultBackoff).
			WithIsRecoverable(transportRecoverable),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// NewStdioClient starts command as a subprocess and performs the MCP handshake.
// env entries are added to the subprocess environment.
func NewStdioClient(ctx context.Context, command string, args []string, env map[string]string, opts ...ClientOption) (*Client, error) {
	stdioClient, err := client.NewStdioMCPClient(command, envList(env), args...)
	if err != nil {
		return nil, err
	}

	if err := stdioClient.Start(ctx); err != nil {
		stdioClient.Close()
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "aixi",
		Version: "0.1.0",
	}
	if _, err := stdioClient.Initialize(initCtx, initRequest); err != nil {
		stdioClient.Close()
		return nil, err
	}

	return NewClient(stdioClient, opts...), nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// ListTools returns the server's tools. The first successful answer is kept
// for the lifetime of the client.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.Lock()
	if c.tools != nil {
		out := append([]mcp.Tool(nil), c.tools...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	var res *mcp.ListToolsResult
	err := c.do(ctx, func(reqCtx context.Context) error {
		var err error
		res, err = c.mcpClient.ListTools(reqCtx, mcp.ListToolsRequest{})
		return err
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tools = append([]mcp.Tool{}, res.Tools...)
	c.mu.Unlock()
	return res.Tools, nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var res *mcp.CallToolResult
	err := c.do(ctx, func(reqCtx context.Context) error {
		var err error
		res, err = c.mcpClient.CallTool(reqCtx, req)
		return err
	})
	return res, err
}

// Close terminates the connection and the server subprocess.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

// do runs fn with a per-attempt timeout, retrying transport errors.
func (c *Client) do(ctx context.Context, fn func(context.Context) error) error {
	return c.retry.Do(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(reqCtx)
	})
}

// transportRecoverable retries any failure except cancellation and timeouts.
// mcp-go reports transport errors as plain errors.
func transportRecoverable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
