// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/aixi/pkg/errors"
)

func newFS(t *testing.T) *FileSystem {
	t.Helper()
	fs, err := NewFileSystem(filepath.Join(t.TempDir(), "work"))
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	return fs
}

func invoke(t *testing.T, tool Tool, payload string) Result {
	t.Helper()
	return tool.Invoke(context.Background(), json.RawMessage(payload))
}

func TestFileSystemWriteReadDelete(t *testing.T) {
	fs := newFS(t)

	res := invoke(t, fs, `{"action": "write_file", "path": "notes/a.txt", "content": "hello"}`)
	if res.Output != "SUCCESS: Wrote 5 characters to file 'notes/a.txt'" {
		t.Fatalf("unexpected write output %q", res.Output)
	}

	res = invoke(t, fs, `{"action": "read_file", "path": "notes/a.txt"}`)
	if res.Output != "SUCCESS: Read file 'notes/a.txt'\n\nContent:\nhello" {
		t.Fatalf("unexpected read output %q", res.Output)
	}

	res = invoke(t, fs, `{"action": "file_exists", "path": "notes/a.txt"}`)
	if res.Output != "SUCCESS: File 'notes/a.txt' exists (5 bytes)" {
		t.Fatalf("unexpected exists output %q", res.Output)
	}

	res = invoke(t, fs, `{"action": "delete_file", "path": "notes/a.txt"}`)
	if res.Output != "SUCCESS: Deleted file 'notes/a.txt'" {
		t.Fatalf("unexpected delete output %q", res.Output)
	}

	res = invoke(t, fs, `{"action": "file_exists", "path": "notes/a.txt"}`)
	if res.Output != "SUCCESS: Path 'notes/a.txt' does not exist" {
		t.Fatalf("unexpected exists output %q", res.Output)
	}
}

func TestFileSystemListFiles(t *testing.T) {
	fs := newFS(t)

	res := invoke(t, fs, `{"action": "list_files", "path": "."}`)
	if res.Output != "SUCCESS: Directory '.' is empty" {
		t.Fatalf("unexpected output %q", res.Output)
	}

	invoke(t, fs, `{"action": "write_file", "path": "b.txt", "content": "abc"}`)
	invoke(t, fs, `{"action": "write_file", "path": "sub/c.txt", "content": "x"}`)

	res = invoke(t, fs, `{"action": "list_files"}`)
	want := "SUCCESS: Contents of directory '.':\n[FILE] b.txt (3 bytes)\n[DIR]  sub/"
	if res.Output != want {
		t.Fatalf("got %q, want %q", res.Output, want)
	}
}

func TestFileSystemRejectsEscapes(t *testing.T) {
	fs := newFS(t)

	outside := filepath.Join(filepath.Dir(fs.Root()), "secret.txt")
	if err := os.WriteFile(outside, []byte("top secret"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	if err := os.Symlink(filepath.Dir(fs.Root()), filepath.Join(fs.Root(), "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	for _, path := range []string{"../../etc/passwd", "../secret.txt", "/etc/passwd", "link/secret.txt", "a/../../secret.txt"} {
		t.Run(path, func(t *testing.T) {
			payload, _ := json.Marshal(map[string]string{"action": "read_file", "path": path})
			res := fs.Invoke(context.Background(), payload)
			if !strings.HasPrefix(res.Output, "ERROR: Path '") || !strings.Contains(res.Output, "outside working directory") {
				t.Fatalf("expected containment error, got %q", res.Output)
			}
			if !errors.HasCode(res.Err, errors.CodeToolFailure) {
				t.Errorf("expected TOOL_FAILURE, got %v", res.Err)
			}
		})
	}
}

func TestFileSystemDanglingSymlink(t *testing.T) {
	fs := newFS(t)

	target := filepath.Join(filepath.Dir(fs.Root()), "gone", "target.txt")
	if err := os.Symlink(target, filepath.Join(fs.Root(), "dangling")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	for _, action := range []string{"write_file", "read_file", "delete_file"} {
		t.Run(action, func(t *testing.T) {
			payload, _ := json.Marshal(map[string]string{"action": action, "path": "dangling", "content": "x"})
			res := fs.Invoke(context.Background(), payload)
			if res.Output != "ERROR: Path 'dangling' is outside working directory" {
				t.Fatalf("unexpected output %q", res.Output)
			}
			if strings.Contains(res.Err.Error(), target) {
				t.Errorf("error leaks the link target: %v", res.Err)
			}
		})
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("write went through the dangling link: %v", err)
	}
}

func TestFileSystemErrors(t *testing.T) {
	fs := newFS(t)

	tests := []struct {
		payload string
		want    string
	}{
		{`{"action": "read_file", "path": "missing.txt"}`, "ERROR: File 'missing.txt' does not exist"},
		{`{"action": "read_file", "path": "."}`, "ERROR: '.' is not a file"},
		{`{"action": "write_file", "path": "x.txt"}`, "ERROR: 'content' field is required for write_file action"},
		{`{"action": "rename", "path": "x"}`, "ERROR: Unknown action 'rename'. Available actions: read_file, write_file, list_files, file_exists, delete_file"},
		{`not json`, "ERROR: Invalid JSON input:"},
	}
	for _, tc := range tests {
		res := invoke(t, fs, tc.payload)
		if !strings.HasPrefix(res.Output, tc.want) {
			t.Errorf("payload %s: got %q, want prefix %q", tc.payload, res.Output, tc.want)
		}
		if !res.Failed() {
			t.Errorf("payload %s: expected failure", tc.payload)
		}
	}
}
