// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/aixi/pkg/errors"
)

type stubTool struct {
	name string
	out  string
}

func (s stubTool) Name() string        { return s.name }
func (s stubTool) Description() string { return "stub " + s.name }
func (s stubTool) Docs() string        { return "docs for " + s.name }
func (s stubTool) Invoke(context.Context, json.RawMessage) Result {
	return Success(s.out)
}

func TestRegistryOrderAndLookup(t *testing.T) {
	r, err := NewRegistry(stubTool{name: "b"}, stubTool{name: "a"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, r.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if _, ok := r.Lookup("a"); !ok {
		t.Errorf("expected tool a")
	}
	if _, ok := r.Lookup("c"); ok {
		t.Errorf("did not expect tool c")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(stubTool{name: "a"}, stubTool{name: "a"}); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for duplicate, got %v", err)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r, _ := NewRegistry(stubTool{name: "file_system"}, stubTool{name: "web_search"})
	res := r.UnknownTool("teleport")
	if res.Output != "ERROR: Unknown subenvironment 'teleport'. Available: file_system, web_search" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if !errors.HasCode(res.Err, errors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", res.Err)
	}
}

func TestRegistryDocs(t *testing.T) {
	r, _ := NewRegistry(stubTool{name: "file_system"})
	docs := r.Docs()
	for _, want := range []string{
		"AVAILABLE SUBENVIRONMENTS\n" + docsRule,
		"SUBENVIRONMENT: FILE_SYSTEM\nDescription: stub file_system\n\ndocs for file_system",
	} {
		if !strings.Contains(docs, want) {
			t.Errorf("docs missing %q:\n%s", want, docs)
		}
	}
}

func TestIsEmptyPayload(t *testing.T) {
	tests := map[string]bool{
		"":                true,
		"   ":             true,
		"null":            true,
		"{}":              true,
		"{ }":             true,
		`""`:              true,
		`"  "`:            true,
		`{"path": "."}`:   false,
		`"text"`:          false,
		"[]":              false,
	}
	for payload, want := range tests {
		if got := IsEmptyPayload(json.RawMessage(payload)); got != want {
			t.Errorf("IsEmptyPayload(%q) = %v, want %v", payload, got, want)
		}
	}
}
