// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/otel/trace"
)

// ConfigureSlog installs the run logger as the global slog logger. Console
// records go to output at level; an empty format selects text on a terminal
// and JSON otherwise. Every record is also written to the run log at path.
func ConfigureSlog(output io.Writer, level, format, path string) (*RunLogger, error) {
	console := NewHandler(output, level, ResolveFormat(output, format))
	runLog, err := NewRunLogger(console, path)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(runLog.Logger)
	return runLog, nil
}

// ResolveFormat returns format unchanged unless it is empty, in which case it
// picks "text" for terminals and "json" for everything else.
func ResolveFormat(output io.Writer, format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" {
		return format
	}
	if f, ok := output.(*os.File); ok {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			return "text"
		}
	}
	return "json"
}

// NewHandler builds a trace-aware handler writing text or JSON.
func NewHandler(output io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		base = slog.NewJSONHandler(output, opts)
	default:
		base = slog.NewTextHandler(output, opts)
	}
	return &traceHandler{next: base}
}

// RunLogger fans records out to the console and to a per-run JSON log file.
type RunLogger struct {
	*slog.Logger
	file *os.File
}

// NewRunLogger opens path for appending and returns a logger that writes every
// record to both console and the file. The file always receives debug level.
func NewRunLogger(console slog.Handler, path string) (*RunLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	fileHandler := NewHandler(f, "debug", "json")
	return &RunLogger{
		Logger: slog.New(slogmulti.Fanout(console, fileHandler)),
		file:   f,
	}, nil
}

// Close flushes and closes the run log file.
func (l *RunLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

type traceHandler struct {
	next slog.Handler
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, record slog.Record) error {
	traceID, spanID := spanIDsFromContext(ctx)
	if traceID != "" && !recordHasAttr(record, "trace_id") {
		record.AddAttrs(slog.String("trace_id", traceID))
	}
	if spanID != "" && !recordHasAttr(record, "span_id") {
		record.AddAttrs(slog.String("span_id", spanID))
	}
	return h.next.Handle(ctx, record)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{next: h.next.WithGroup(name)}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func spanIDsFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

func recordHasAttr(record slog.Record, key string) bool {
	found := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			found = true
			return false
		}
		return true
	})
	return found
}
