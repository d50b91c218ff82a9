// Command aixi runs the constitution-guided agent loop. It takes no flags or
// subcommands; configuration comes from the environment and the optional
// YAML file named by AIXI_CONFIG_FILE.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jllopis/aixi/pkg/config"
	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/history"
	"github.com/jllopis/aixi/pkg/ideator"
	"github.com/jllopis/aixi/pkg/judge"
	"github.com/jllopis/aixi/pkg/orchestrator"
	"github.com/jllopis/aixi/pkg/telemetry"
	"github.com/jllopis/aixi/pkg/tokens"
	"github.com/jllopis/aixi/pkg/transcript"
)

const version = "0.1.0"

var rule = strings.Repeat("=", 60)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one agent run and returns the process exit code.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, "LLM-AIXI Agent Starting...")
	fmt.Fprintln(stdout, rule)

	fmt.Fprintln(stdout, "Loading configuration...")
	cfg, err := loadConfig()
	if err != nil {
		printError(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "✓ Configuration loaded (provider: %s, model: %s)\n", cfg.Model.Provider, cfg.Model.Name)

	constitution, err := cfg.LoadConstitution()
	if err != nil {
		printError(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "✓ Constitution loaded (%d characters)\n", len(constitution))

	paths := transcript.PathsFor(cfg.Agent.HistoriesDir, time.Now())
	runLog, err := telemetry.ConfigureSlog(stderr, cfg.Log.Level, cfg.Log.Format, paths.Log)
	if err != nil {
		printError(stderr, errors.New(errors.CodeConfiguration, "open run log", err))
		return 1
	}
	defer runLog.Close()
	logger := runLog.Logger

	shutdown, err := telemetry.InitWithConfig("aixi", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		printError(stderr, errors.New(errors.CodeConfiguration, "initialize telemetry", err))
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.NewRunMetrics()
	if err != nil {
		logger.Warn("run metrics disabled", slog.String("error", err.Error()))
		metrics = nil
	}
	tracker := tokens.NewTracker(tokens.Pricing{
		InputPer1K:  cfg.Pricing.InputPer1K,
		OutputPer1K: cfg.Pricing.OutputPer1K,
	}, metrics)

	fmt.Fprintln(stdout, "Initializing components...")
	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	registry, closeTools, err := buildRegistry(ctx, cfg, toolDeps{
		provider: provider,
		tracker:  tracker,
		metrics:  metrics,
		stdin:    stdin,
		stdout:   stdout,
	})
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer closeTools()

	selector := ideator.New(provider,
		ideator.WithModel(cfg.Model.Name, cfg.Model.Provider),
		ideator.WithParams(selectorParams(cfg)),
		ideator.WithTokenTracker(tracker),
		ideator.WithLogger(logger),
	)
	evaluator := judge.New(provider,
		judge.WithModel(cfg.Model.Name, cfg.Model.Provider),
		judge.WithParams(judgeParams(cfg)),
		judge.WithWindow(cfg.Agent.JudgeWindow),
		judge.WithTokenTracker(tracker),
		judge.WithLogger(logger),
	)

	state := history.NewState(constitution)
	runCtx, runID := orchestrator.EnsureRunID(ctx)
	loop, err := orchestrator.New(selector, evaluator, registry, state,
		orchestrator.WithMaxCycles(cfg.Agent.MaxCycles),
		orchestrator.WithEventEmitter(newConsole(stdout)),
		orchestrator.WithCycleRecorder(transcript.NewCycleLog(paths.Cycles, runID)),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, "✓ All components initialized")
	fmt.Fprintf(stdout, "✓ Tool documentation loaded (%d characters)\n", len(loop.ToolDocs()))

	out, _ := loop.Run(runCtx)

	fmt.Fprintf(stdout, "\nExecution completed at %s\n", out.End.Format(time.RFC3339))
	fmt.Fprintf(stdout, "Duration: %.2f seconds\n", out.Duration().Seconds())
	fmt.Fprintf(stdout, "Cycles completed: %d\n", out.Cycles)

	// The run context may already be cancelled; the closing calls still run.
	finish := context.WithoutCancel(runCtx)
	fmt.Fprintln(stdout, "\nGetting overall performance evaluation...")
	overall := evaluator.EvaluateRun(finish, state)

	fmt.Fprint(stdout, tracker.Summary())

	summary := transcript.Summary{
		RunID:        out.RunID,
		Start:        out.Start,
		End:          out.End,
		Cycles:       out.Cycles,
		TotalActions: out.TotalActions,
		Outcome:      string(out.Status),
		Tokens:       tracker.Total(),
	}
	if out.Err != nil {
		summary.Detail = out.Err.Error()
	}

	fmt.Fprintln(stdout, "\nSaving execution history...")
	if err := transcript.Save(paths.Transcript, state, overall, summary); err != nil {
		printError(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "✓ History saved to: %s\n", paths.Transcript)
	if err := tracker.SaveReport(paths.Tokens); err != nil {
		logger.Warn("token report not saved", slog.String("error", err.Error()))
	} else {
		fmt.Fprintf(stdout, "✓ Token report saved to: %s\n", paths.Tokens)
	}
	if records, err := transcript.ReadCycles(paths.Cycles); err != nil {
		logger.Warn("cycle records unreadable", slog.String("path", paths.Cycles), slog.String("error", err.Error()))
	} else {
		fmt.Fprintf(stdout, "✓ Cycle records saved to: %s (%d cycles)\n", paths.Cycles, len(records))
	}

	if out.Status == orchestrator.StatusSelectorFailed {
		fmt.Fprintf(stdout, "\nLLM-AIXI execution stopped: %s\n", out.Status)
	} else {
		fmt.Fprintln(stdout, "\nLLM-AIXI execution completed successfully!")
	}
	fmt.Fprintf(stdout, "Check the history file for complete details: %s\n", paths.Transcript)
	return out.ExitCode()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// selectorParams applies the configured temperature and token cap to the
// selector defaults.
func selectorParams(cfg *config.Config) ideator.Params {
	p := ideator.DefaultParams()
	if cfg.Model.Temperature > 0 {
		p.Temperature = cfg.Model.Temperature
	}
	p.MaxOutputTokens = capTokens(p.MaxOutputTokens, cfg.Model.MaxTokens)
	return p
}

func judgeParams(cfg *config.Config) judge.Params {
	p := judge.DefaultParams()
	p.MaxOutputTokens = capTokens(p.MaxOutputTokens, cfg.Model.MaxTokens)
	return p
}

func capTokens(want, limit int) int {
	if limit > 0 && limit < want {
		return limit
	}
	return want
}

func printError(w io.Writer, err error) {
	ae := errors.AsAixiError(err)
	fmt.Fprintf(w, "Fatal error [%s]: %s\n", ae.Code, ae.Message)
	if ae.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", ae.Err)
	}
	if hint := hintFor(ae); hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", hint)
	}
}

func hintFor(ae *errors.AixiError) string {
	switch ae.Code {
	case errors.CodeConfiguration:
		return "check the environment variables or the file named by " + config.ConfigFileEnv
	case errors.CodeModelError:
		return "verify the model provider credentials and network access"
	}
	return ""
}
