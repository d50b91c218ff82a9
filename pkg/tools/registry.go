// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"fmt"
	"strings"

	"github.com/jllopis/aixi/pkg/errors"
)

const docsRule = "=================================================="

// Registry is the ordered table of tools built once at startup.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry registers tools in order.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique and non-empty.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return errors.NewInvalidInputError("tool name must not be empty")
	}
	if _, dup := r.tools[name]; dup {
		return errors.NewInvalidInputError(fmt.Sprintf("tool %q registered twice", name))
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// UnknownTool is the result reported when an action names no registered tool.
func (r *Registry) UnknownTool(name string) Result {
	msg := fmt.Sprintf("Unknown subenvironment '%s'. Available: %s", name, strings.Join(r.order, ", "))
	return Result{
		Output: errorText(msg),
		Err: errors.New(errors.CodeNotFound, msg, nil).
			WithContext("tool", name).
			WithRecoverable(true),
	}
}

// Docs renders the documentation block included in the selector prompt.
func (r *Registry) Docs() string {
	var b strings.Builder
	b.WriteString("AVAILABLE SUBENVIRONMENTS\n")
	b.WriteString(docsRule + "\n\n")
	for _, name := range r.order {
		t := r.tools[name]
		fmt.Fprintf(&b, "SUBENVIRONMENT: %s\n", strings.ToUpper(name))
		fmt.Fprintf(&b, "Description: %s\n\n", t.Description())
		b.WriteString(strings.TrimSpace(t.Docs()))
		b.WriteString("\n\n" + docsRule + "\n\n")
	}
	return b.String()
}
