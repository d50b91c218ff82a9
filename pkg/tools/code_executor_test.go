// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"encoding/json"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func newExecutor(t *testing.T) *CodeExecutor {
	t.Helper()
	return NewCodeExecutor(t.TempDir(), "python3", 10*time.Second)
}

func TestCodeExecutorGo(t *testing.T) {
	ce := newExecutor(t)

	res := invoke(t, ce, `{"language": "go", "code": "import \"fmt\"\nfmt.Println(6 * 7)"}`)
	if res.Failed() {
		t.Fatalf("unexpected failure: %s", res.Output)
	}
	if res.Output != "SUCCESS: STDOUT:\n42\n" {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestCodeExecutorGoMainProgram(t *testing.T) {
	ce := newExecutor(t)

	code := `package main

import (
	"fmt"
	"strings"
)

func main() {
	fmt.Println(strings.ToUpper("aixi"))
}`
	res := invoke(t, ce, `{"language": "go", "code": `+quote(code)+`}`)
	if res.Output != "SUCCESS: STDOUT:\nAIXI\n" {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestCodeExecutorGoForbiddenImport(t *testing.T) {
	ce := newExecutor(t)

	res := invoke(t, ce, `{"language": "go", "code": "import \"os\"\nos.Exit(1)"}`)
	if !strings.HasPrefix(res.Output, "ERROR: Forbidden imports: os") {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestCodeExecutorGoCompileError(t *testing.T) {
	ce := newExecutor(t)

	res := invoke(t, ce, `{"language": "go", "code": "undefinedThing()"}`)
	if res.Failed() {
		t.Fatalf("interpreter errors are reported as output, got failure %s", res.Output)
	}
	if !strings.Contains(res.Output, "STDERR:") || !strings.HasSuffix(res.Output, "EXIT CODE: 1") {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestCodeExecutorGoTimeout(t *testing.T) {
	ce := newExecutor(t)

	res := invoke(t, ce, `{"language": "go", "code": "for {}", "timeout": 1}`)
	if res.Output != "ERROR: Code execution timed out after 1 seconds" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if !res.Err.Recoverable {
		t.Errorf("timeouts should be recoverable")
	}
}

func TestCodeExecutorFractionalTimeout(t *testing.T) {
	ce := newExecutor(t)

	code := "import (\n\t\"fmt\"\n\t\"time\"\n)\ntime.Sleep(1200 * time.Millisecond)\nfmt.Println(\"done\")"
	res := invoke(t, ce, `{"language": "go", "code": `+quote(code)+`, "timeout": 1.9}`)
	if res.Output != "SUCCESS: STDOUT:\ndone\n" {
		t.Fatalf("1.9s budget should cover a 1.2s run, got %q", res.Output)
	}

	start := time.Now()
	res = invoke(t, ce, `{"language": "go", "code": "for {}", "timeout": 1.5}`)
	if res.Output != "ERROR: Code execution timed out after 1.5 seconds" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if elapsed := time.Since(start); elapsed < 1400*time.Millisecond {
		t.Errorf("timed out after %s, want about 1.5s", elapsed)
	}
}

func TestCodeExecutorValidation(t *testing.T) {
	ce := newExecutor(t)

	tests := []struct {
		payload string
		want    string
	}{
		{`{"code": "  "}`, "ERROR: 'code' field is required and cannot be empty"},
		{`{"code": "print(1)", "timeout": 0}`, "ERROR: 'timeout' must be a number between 1 and 60 seconds"},
		{`{"code": "print(1)", "timeout": 61}`, "ERROR: 'timeout' must be a number between 1 and 60 seconds"},
		{`{"code": "print(1)", "method": "docker"}`, "ERROR: Unknown execution method 'docker'. Use 'safe' or 'subprocess'"},
		{`{"code": "print(1)", "language": "ruby"}`, "ERROR: Unknown language 'ruby'. Use 'python' or 'go'"},
		{`{"code": "import os\nprint(os.getcwd())"}`, "ERROR: Potentially dangerous code pattern detected: 'import os'"},
		{`{"code": "x = open('f')"}`, "ERROR: Potentially dangerous code pattern detected: 'open('"},
	}
	for _, tc := range tests {
		res := invoke(t, ce, tc.payload)
		if res.Output != tc.want {
			t.Errorf("payload %s: got %q, want %q", tc.payload, res.Output, tc.want)
		}
	}
}

func TestCodeExecutorPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	ce := newExecutor(t)

	res := invoke(t, ce, `{"code": "print('hello')"}`)
	if res.Output != "SUCCESS: STDOUT:\nhello\n" {
		t.Fatalf("unexpected output %q", res.Output)
	}

	res = invoke(t, ce, `{"code": "raise SystemExit(3)", "method": "subprocess"}`)
	if res.Output != "SUCCESS: EXIT CODE: 3" {
		t.Fatalf("unexpected output %q", res.Output)
	}

	res = invoke(t, ce, `{"code": "pass"}`)
	if res.Output != "SUCCESS: Code executed successfully with no output." {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestCodeExecutorPythonTimeout(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	ce := newExecutor(t)

	res := invoke(t, ce, `{"code": "while True:\n    pass", "timeout": 1}`)
	if res.Output != "ERROR: Code execution timed out after 1 seconds" {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestFormatExecution(t *testing.T) {
	got := formatExecution("out\n", "warn\n", 2)
	want := "SUCCESS: STDOUT:\nout\n\n\nSTDERR:\nwarn\n\n\nEXIT CODE: 2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
