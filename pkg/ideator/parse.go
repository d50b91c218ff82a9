package ideator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/aixi/pkg/errors"
)

const (
	reasoningMarker = "REASONING:"
	actionMarker    = "ACTION:"
	toolMarker      = "subenvironment:"
	payloadMarker   = "input_body:"
)

// Parsed is the action extracted from a model reply.
type Parsed struct {
	Tool      string
	Payload   json.RawMessage
	Reasoning string
}

// ParseResponse extracts the reasoning, tool name and JSON payload from a
// reply in the REASONING/ACTION format. Code fences around the payload are
// tolerated; a missing section is never guessed.
func ParseResponse(text string) (Parsed, error) {
	var p Parsed

	actionAt := strings.Index(text, actionMarker)
	if actionAt < 0 {
		return p, errors.NewParseFailure("no ACTION section found in response")
	}

	if r := strings.Index(text[:actionAt], reasoningMarker); r >= 0 {
		p.Reasoning = trimDecoration(text[r+len(reasoningMarker) : actionAt])
	}

	action := text[actionAt+len(actionMarker):]

	toolAt := strings.Index(action, toolMarker)
	if toolAt < 0 {
		return p, errors.NewParseFailure("no subenvironment specified in action")
	}
	toolLine := action[toolAt+len(toolMarker):]
	if nl := strings.IndexByte(toolLine, '\n'); nl >= 0 {
		toolLine = toolLine[:nl]
	}
	p.Tool = strings.Trim(strings.TrimSpace(toolLine), "`*\"' ")
	if p.Tool == "" {
		return p, errors.NewParseFailure("no subenvironment specified in action")
	}

	payloadAt := strings.Index(action, payloadMarker)
	if payloadAt < 0 {
		return p, errors.NewParseFailure("no input_body specified in action")
	}
	body := stripFences(action[payloadAt+len(payloadMarker):])

	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return p, errors.NewParseFailure(fmt.Sprintf("invalid JSON in input_body: %v", err)).
			WithContext("input_body", body)
	}
	p.Payload = json.RawMessage(body)
	return p, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and a dangling closing fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			if tag := strings.TrimSpace(s[:nl]); tag == "" || isWord(tag) {
				s = s[nl+1:]
			}
		}
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func isWord(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func trimDecoration(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*"))
}
