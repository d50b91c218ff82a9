package main

import (
	"context"
	"io"

	"github.com/jllopis/aixi/pkg/config"
	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/llm"
	"github.com/jllopis/aixi/pkg/mcp"
	"github.com/jllopis/aixi/pkg/resilience"
	"github.com/jllopis/aixi/pkg/telemetry"
	"github.com/jllopis/aixi/pkg/tokens"
	"github.com/jllopis/aixi/pkg/tools"
)

type toolDeps struct {
	provider llm.Provider
	tracker  *tokens.Tracker
	metrics  *telemetry.RunMetrics
	stdin    io.Reader
	stdout   io.Writer
}

// buildRegistry assembles the tool table in the order shown to the selector.
// The returned func releases MCP server connections.
func buildRegistry(ctx context.Context, cfg *config.Config, deps toolDeps) (*tools.Registry, func(), error) {
	noop := func() {}

	fs, err := tools.NewFileSystem(cfg.Agent.WorkingDir)
	if err != nil {
		return nil, noop, errors.NewConfigurationError("prepare working directory", err)
	}

	list := []tools.Tool{
		fs,
		tools.NewCodeExecutor(fs.Root(), cfg.Tools.Python, cfg.Tools.CodeTimeout),
		tools.NewWebSearch(cfg.Tools.SearchURL, cfg.Tools.SearchTimeout,
			tools.WithSearchMetrics(deps.metrics),
			tools.WithSearchBreaker(resilience.CircuitBreakerConfig{
				FailureThreshold: cfg.Tools.SearchFailures,
				Timeout:          cfg.Tools.SearchCooldown,
			}),
		),
		tools.NewConsultant(deps.provider, cfg.Model.Name,
			tools.WithUsageHook(func(ctx context.Context, prompt string, resp *llm.ChatResponse) {
				deps.tracker.Record(ctx, tokens.CallConsultant, prompt, resp)
			}),
		),
	}
	if cfg.Tools.HumanEnabled {
		list = append(list, tools.NewHumanQuery(deps.stdin, deps.stdout, tools.WithAnswerTimeout(cfg.Tools.HumanTimeout)))
	}

	closeFn := noop
	if len(cfg.MCP.Servers) > 0 {
		servers, err := mcp.Open(ctx, cfg.MCP.Servers,
			mcp.WithTimeout(cfg.MCP.Timeout),
			mcp.WithRetry(cfg.MCP.Retries, 0),
		)
		if err != nil {
			return nil, noop, errors.NewConfigurationError("connect to MCP servers", err)
		}
		list = append(list, servers.Tools()...)
		closeFn = func() { _ = servers.Close() }
	}

	reg, err := tools.NewRegistry(list...)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	return reg, closeFn, nil
}
