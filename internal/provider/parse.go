package provider

import (
	"encoding/json"
	"strings"

	"github.com/rigger/core/internal/types"
)

// ParseStructured extracts a JSON object from a provider's raw text response
// via the three-stage contract from spec §4.2:
//
//  1. the whole response parses as JSON outright;
//  2. a fenced ```json ... ``` (or bare ```) code block parses as JSON;
//  3. the outermost balanced {...} or [...] span parses as JSON.
//
// Anything surviving none of the three stages returns CodeUnparseableOutput.
func ParseStructured(raw string) (map[string]any, error) {
	if v, ok := tryUnmarshalObject(strings.TrimSpace(raw)); ok {
		return v, nil
	}
	if block, ok := extractFencedBlock(raw); ok {
		if v, ok := tryUnmarshalObject(block); ok {
			return v, nil
		}
	}
	if span, ok := extractBalancedSpan(raw); ok {
		if v, ok := tryUnmarshalObject(span); ok {
			return v, nil
		}
	}
	return nil, types.NewError(types.CodeUnparseableOutput, "provider response did not contain parseable JSON")
}

func tryUnmarshalObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, true
	}
	// Accept a top-level array by wrapping it, so callers that expect a
	// list-shaped schema still get a usable map.
	var arr []any
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		return map[string]any{"items": arr}, true
	}
	return nil, false
}

// extractFencedBlock returns the content of the first ```json or ``` fenced
// code block in raw.
func extractFencedBlock(raw string) (string, bool) {
	const fence = "```"
	start := strings.Index(raw, fence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(fence):]
	rest = strings.TrimPrefix(rest, "json")
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// extractBalancedSpan finds the outermost balanced {...} or [...] substring,
// preferring whichever opening bracket occurs first.
func extractBalancedSpan(raw string) (string, bool) {
	openIdx := -1
	var open, close byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '{' || raw[i] == '[' {
			openIdx = i
			open = raw[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if openIdx == -1 {
		return "", false
	}
	depth := 0
	for i := openIdx; i < len(raw); i++ {
		switch raw[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[openIdx : i+1], true
			}
		}
	}
	return "", false
}
