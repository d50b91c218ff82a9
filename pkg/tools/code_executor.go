// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const codeExecutorDocs = `
CODE EXECUTOR SUBENVIRONMENT

This subenvironment runs short programs with security restrictions.

INPUT FORMAT (JSON):
{
    "code": "code to execute",
    "language": "python",  // optional: "python" (default) or "go"
    "method": "safe",      // optional, python only: "safe" (default) or "subprocess"
    "timeout": 10          // optional: timeout in seconds (1-60, default 10)
}

PYTHON METHODS:
- "safe": rejects dangerous patterns (os, sys, subprocess, open, eval, ...) before running
- "subprocess": runs the code unchecked in a separate process

GO:
- Interpreted in-process; only these packages can be imported:
  bytes, encoding/base64, encoding/json, errors, fmt, math, math/rand, regexp,
  sort, strconv, strings, time, unicode
- Either a full "package main" program or plain statements

EXAMPLES:
{"code": "print('Hello, world!')"}
{"code": "import math\nprint(math.sqrt(16))", "timeout": 5}
{"code": "import \"fmt\"\nfmt.Println(6 * 7)", "language": "go"}

NOTES:
- Code runs in the Working Directory
- Both stdout and stderr are captured
- A non-zero exit code is reported as EXIT CODE
`

var dangerousPythonPatterns = []string{
	"import os", "import sys", "import subprocess", "import shutil",
	"from os", "from sys", "from subprocess", "from shutil",
	"__import__", "eval(", "exec(", "compile(",
	"open(", "file(", "input(", "raw_input(",
	"globals()", "locals()", "vars()", "dir()",
	"getattr(", "setattr(", "delattr(", "hasattr(",
}

var allowedGoPackages = map[string]bool{
	"bytes":           true,
	"encoding/base64": true,
	"encoding/json":   true,
	"errors":          true,
	"fmt":             true,
	"math":            true,
	"math/rand":       true,
	"regexp":          true,
	"sort":            true,
	"strconv":         true,
	"strings":         true,
	"time":            true,
	"unicode":         true,
}

// CodeExecutor runs Python in a subprocess and Go in an embedded interpreter.
type CodeExecutor struct {
	workDir        string
	python         string
	defaultTimeout time.Duration
}

// NewCodeExecutor returns an executor running in workDir with the given
// python binary and default timeout.
func NewCodeExecutor(workDir, python string, defaultTimeout time.Duration) *CodeExecutor {
	if python == "" {
		python = "python3"
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &CodeExecutor{workDir: workDir, python: python, defaultTimeout: defaultTimeout}
}

func (c *CodeExecutor) Name() string { return "code_executor" }

func (c *CodeExecutor) Description() string {
	return "Safe Python code execution with security restrictions"
}

func (c *CodeExecutor) Docs() string { return codeExecutorDocs }

type codeInput struct {
	Code     string   `json:"code"`
	Language string   `json:"language"`
	Method   string   `json:"method"`
	Timeout  *float64 `json:"timeout"`
}

func (c *CodeExecutor) Invoke(ctx context.Context, payload json.RawMessage) Result {
	var in codeInput
	if res, ok := decodePayload(c.Name(), payload, &in); !ok {
		return res
	}

	code := strings.TrimSpace(in.Code)
	if code == "" {
		return InvalidInput(c.Name(), "'code' field is required and cannot be empty")
	}

	timeout := c.defaultTimeout
	if in.Timeout != nil {
		if *in.Timeout < 1 || *in.Timeout > 60 {
			return InvalidInput(c.Name(), "'timeout' must be a number between 1 and 60 seconds")
		}
		timeout = time.Duration(*in.Timeout * float64(time.Second))
	}

	switch strings.ToLower(in.Language) {
	case "", "python":
		method := in.Method
		if method == "" {
			method = "safe"
		}
		switch method {
		case "safe":
			if pattern, found := dangerousPattern(code); found {
				return Failure(c.Name(), fmt.Sprintf("Potentially dangerous code pattern detected: '%s'", pattern), nil)
			}
		case "subprocess":
		default:
			return InvalidInput(c.Name(), fmt.Sprintf("Unknown execution method '%s'. Use 'safe' or 'subprocess'", method))
		}
		return c.runPython(ctx, code, timeout)
	case "go":
		return c.runGo(ctx, code, timeout)
	default:
		return InvalidInput(c.Name(), fmt.Sprintf("Unknown language '%s'. Use 'python' or 'go'", in.Language))
	}
}

func dangerousPattern(code string) (string, bool) {
	lower := strings.ToLower(code)
	for _, p := range dangerousPythonPatterns {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

func (c *CodeExecutor) runPython(ctx context.Context, code string, timeout time.Duration) Result {
	f, err := os.CreateTemp("", "aixi-*.py")
	if err != nil {
		return Failure(c.Name(), fmt.Sprintf("Failed to execute code in subprocess: %v", err), err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		return Failure(c.Name(), fmt.Sprintf("Failed to execute code in subprocess: %v", err), err)
	}
	f.Close()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.python, f.Name())
	cmd.Dir = c.workDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if runCtx.Err() != nil {
		return c.timedOut(timeout, runCtx.Err())
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			return Failure(c.Name(), fmt.Sprintf("Failed to execute code in subprocess: %v", err), err)
		}
		exitCode = exitErr.ExitCode()
	}
	return Success(formatExecution(stdout.String(), stderr.String(), exitCode))
}

func (c *CodeExecutor) runGo(ctx context.Context, code string, timeout time.Duration) Result {
	if forbidden := forbiddenImports(code); len(forbidden) > 0 {
		return Failure(c.Name(), fmt.Sprintf("Forbidden imports: %s (allowed: %s)",
			strings.Join(forbidden, ", "), strings.Join(allowedGoList(), ", ")), nil)
	}

	var stdout, stderr bytes.Buffer
	i := interp.New(interp.Options{Stdout: &stdout, Stderr: &stderr})
	if err := i.Use(allowedSymbols()); err != nil {
		return Failure(c.Name(), fmt.Sprintf("Failed to prepare interpreter: %v", err), err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := i.EvalWithContext(runCtx, wrapGoSource(code))
	if runCtx.Err() != nil {
		return c.timedOut(timeout, runCtx.Err())
	}

	exitCode := 0
	if err != nil {
		exitCode = 1
		if stderr.Len() > 0 && !strings.HasSuffix(stderr.String(), "\n") {
			stderr.WriteString("\n")
		}
		stderr.WriteString(err.Error())
	}
	return Success(formatExecution(stdout.String(), stderr.String(), exitCode))
}

func (c *CodeExecutor) timedOut(timeout time.Duration, cause error) Result {
	r := Failure(c.Name(), fmt.Sprintf("Code execution timed out after %g seconds", timeout.Seconds()), cause)
	r.Err.WithRecoverable(true)
	return r
}

func formatExecution(stdout, stderr string, exitCode int) string {
	var parts []string
	if stdout != "" {
		parts = append(parts, "STDOUT:\n"+stdout)
	}
	if stderr != "" {
		parts = append(parts, "STDERR:\n"+stderr)
	}
	if exitCode != 0 {
		parts = append(parts, fmt.Sprintf("EXIT CODE: %d", exitCode))
	}
	if len(parts) == 0 {
		parts = append(parts, "Code executed successfully with no output.")
	}
	return "SUCCESS: " + strings.Join(parts, "\n\n")
}

var packageClause = regexp.MustCompile(`(?m)^\s*package\s+\w+`)

// wrapGoSource turns plain statements into a main package: leading imports
// stay at file level and the rest becomes the body of main.
func wrapGoSource(code string) string {
	if packageClause.MatchString(code) {
		return code
	}
	lines := strings.Split(code, "\n")
	var header []string
	inBlock := false
	i := 0
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		switch {
		case inBlock:
			header = append(header, lines[i])
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
			}
			continue
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
			header = append(header, lines[i])
			continue
		case strings.HasPrefix(trimmed, "import "), trimmed == "":
			header = append(header, lines[i])
			continue
		}
		break
	}
	return "package main\n\n" + strings.Join(header, "\n") + "\n\nfunc main() {\n" +
		strings.Join(lines[i:], "\n") + "\n}\n"
}

var importSpec = regexp.MustCompile(`^(?:import\s+)?(?:[\w.]+\s+)?"([^"]+)"`)

// forbiddenImports returns the imported packages outside the allow-list.
func forbiddenImports(code string) []string {
	var forbidden []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
			continue
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
			continue
		case !inBlock && !strings.HasPrefix(trimmed, "import "):
			continue
		}
		m := importSpec.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		if !allowedGoPackages[m[1]] {
			forbidden = append(forbidden, m[1])
		}
	}
	return forbidden
}

// allowedSymbols filters the interpreter's stdlib exports to the allow-list.
// Keys have the form "path/name", e.g. "encoding/json/json".
func allowedSymbols() interp.Exports {
	out := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if allowedGoPackages[key[:idx]] {
			out[key] = syms
		}
	}
	return out
}

func allowedGoList() []string {
	out := make([]string, 0, len(allowedGoPackages))
	for p := range allowedGoPackages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
