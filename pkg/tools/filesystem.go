// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileSystemDocs = `
FILE SYSTEM SUBENVIRONMENT

This subenvironment provides safe file operations within the Working Directory.

INPUT FORMAT (JSON):
{
    "action": "read_file" | "write_file" | "list_files" | "file_exists" | "delete_file",
    "path": "relative/path/to/file",
    "content": "content for write_file (optional)"
}

ACTIONS:
- read_file: Read contents of a file
- write_file: Write content to a file (creates directories as needed)
- list_files: List contents of a directory
- file_exists: Check if a file or directory exists
- delete_file: Delete a file

EXAMPLES:
{"action": "list_files", "path": "."}
{"action": "read_file", "path": "example.txt"}
{"action": "write_file", "path": "output.txt", "content": "Hello, world!"}

All paths are relative to the Working Directory for security.
`

// FileSystem performs file operations confined to a root directory.
type FileSystem struct {
	root string
}

// NewFileSystem returns a FileSystem rooted at dir, creating it if needed.
func NewFileSystem(dir string) (*FileSystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	return &FileSystem{root: root}, nil
}

func (f *FileSystem) Name() string { return "file_system" }

func (f *FileSystem) Description() string {
	return "Safe file operations within Working Directory"
}

func (f *FileSystem) Docs() string { return fileSystemDocs }

// Root returns the resolved working directory.
func (f *FileSystem) Root() string { return f.root }

type fileSystemInput struct {
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (f *FileSystem) Invoke(ctx context.Context, payload json.RawMessage) Result {
	var in fileSystemInput
	if res, ok := decodePayload(f.Name(), payload, &in); !ok {
		return res
	}

	switch in.Action {
	case "read_file":
		return f.readFile(in.Path)
	case "write_file":
		if in.Content == "" {
			return InvalidInput(f.Name(), "'content' field is required for write_file action")
		}
		return f.writeFile(in.Path, in.Content)
	case "list_files":
		if in.Path == "" {
			in.Path = "."
		}
		return f.listFiles(in.Path)
	case "file_exists":
		return f.fileExists(in.Path)
	case "delete_file":
		return f.deleteFile(in.Path)
	default:
		return InvalidInput(f.Name(), fmt.Sprintf(
			"Unknown action '%s'. Available actions: read_file, write_file, list_files, file_exists, delete_file", in.Action))
	}
}

// resolve maps a relative path into the root, rejecting anything that ends up
// outside it once cleaned and with existing symlinks followed.
func (f *FileSystem) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("Path '%s' is outside working directory", path)
	}
	joined := filepath.Join(f.root, path)
	if !within(f.root, joined) {
		return "", fmt.Errorf("Path '%s' is outside working directory", path)
	}

	// Follow symlinks on the longest existing prefix.
	existing := joined
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
	// A dangling link cannot be proven to stay inside the root.
	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("Path '%s' is outside working directory", path)
	}
	resolved := filepath.Join(append([]string{real}, rest...)...)
	if !within(f.root, resolved) {
		return "", fmt.Errorf("Path '%s' is outside working directory", path)
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (f *FileSystem) readFile(path string) Result {
	p, err := f.resolve(path)
	if err != nil {
		return Failure(f.Name(), err.Error(), err)
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return Failure(f.Name(), fmt.Sprintf("File '%s' does not exist", path), err)
	}
	if err != nil {
		return Failure(f.Name(), fmt.Sprintf("Failed to read file '%s': %v", path, err), err)
	}
	if !info.Mode().IsRegular() {
		return Failure(f.Name(), fmt.Sprintf("'%s' is not a file", path), nil)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return Failure(f.Name(), fmt.Sprintf("Failed to read file '%s': %v", path, err), err)
	}
	return Successf("Read file '%s'\n\nContent:\n%s", path, data)
}

func (f *FileSystem) writeFile(path, content string) Result {
	p, err := f.resolve(path)
	if err != nil {
		return Failure(f.Name(), err.Error(), err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Failure(f.Name(), fmt.Sprintf("Failed to write file '%s': %v", path, err), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return Failure(f.Name(), fmt.Sprintf("Failed to write file '%s': %v", path, err), err)
	}
	return Successf("Wrote %d characters to file '%s'", len([]rune(content)), path)
}

func (f *FileSystem) listFiles(path string) Result {
	p, err := f.resolve(path)
	if err != nil {
		return Failure(f.Name(), err.Error(), err)
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return Failure(f.Name(), fmt.Sprintf("Directory '%s' does not exist", path), err)
	}
	if err != nil {
		return Failure(f.Name(), fmt.Sprintf("Failed to list directory '%s': %v", path, err), err)
	}
	if !info.IsDir() {
		return Failure(f.Name(), fmt.Sprintf("'%s' is not a directory", path), nil)
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		return Failure(f.Name(), fmt.Sprintf("Failed to list directory '%s': %v", path, err), err)
	}
	if len(entries) == 0 {
		return Successf("Directory '%s' is empty", path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		rel, _ := filepath.Rel(f.root, filepath.Join(p, e.Name()))
		rel = filepath.ToSlash(rel)
		if e.IsDir() {
			lines = append(lines, fmt.Sprintf("[DIR]  %s/", rel))
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		lines = append(lines, fmt.Sprintf("[FILE] %s (%d bytes)", rel, size))
	}
	return Successf("Contents of directory '%s':\n%s", path, strings.Join(lines, "\n"))
}

func (f *FileSystem) fileExists(path string) Result {
	p, err := f.resolve(path)
	if err != nil {
		return Failure(f.Name(), err.Error(), err)
	}
	info, err := os.Stat(p)
	switch {
	case os.IsNotExist(err):
		return Successf("Path '%s' does not exist", path)
	case err != nil:
		return Failure(f.Name(), fmt.Sprintf("Failed to check path '%s': %v", path, err), err)
	case info.Mode().IsRegular():
		return Successf("File '%s' exists (%d bytes)", path, info.Size())
	case info.IsDir():
		return Successf("Directory '%s' exists", path)
	default:
		return Successf("Path '%s' exists but is neither file nor directory", path)
	}
}

func (f *FileSystem) deleteFile(path string) Result {
	p, err := f.resolve(path)
	if err != nil {
		return Failure(f.Name(), err.Error(), err)
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return Failure(f.Name(), fmt.Sprintf("File '%s' does not exist", path), err)
	}
	if err != nil {
		return Failure(f.Name(), fmt.Sprintf("Failed to delete file '%s': %v", path, err), err)
	}
	if !info.Mode().IsRegular() {
		return Failure(f.Name(), fmt.Sprintf("'%s' is not a file", path), nil)
	}
	if err := os.Remove(p); err != nil {
		return Failure(f.Name(), fmt.Sprintf("Failed to delete file '%s': %v", path, err), err)
	}
	return Successf("Deleted file '%s'", path)
}
