package sse

import (
	"encoding/json"
	"strings"
)

// Accumulator collects streamed text deltas and re-parses the buffer as
// JSON on a best-effort basis. Malformed intermediate states are never
// errors; callers decide what to do when the final buffer stays invalid.
type Accumulator struct {
	buf strings.Builder

	// Brace tracking for Complete(). Quote and escape state keep string
	// contents from confusing the depth counter.
	depth    int
	seenOpen bool
	inString bool
	escaped  bool
}

// Write appends a delta to the buffer and updates the JSON depth tracker.
func (a *Accumulator) Write(delta string) {
	a.buf.WriteString(delta)
	for _, r := range delta {
		if a.escaped {
			a.escaped = false
			continue
		}
		switch {
		case a.inString && r == '\\':
			a.escaped = true
		case r == '"':
			a.inString = !a.inString
		case a.inString:
		case r == '{':
			a.depth++
			a.seenOpen = true
		case r == '}':
			if a.depth > 0 {
				a.depth--
			}
		}
	}
}

// Text returns everything accumulated so far.
func (a *Accumulator) Text() string {
	return a.buf.String()
}

// Len returns the accumulated byte length.
func (a *Accumulator) Len() int {
	return a.buf.Len()
}

// Complete reports whether the buffer looks like a closed JSON object:
// at least one opening brace seen and all braces balanced.
func (a *Accumulator) Complete() bool {
	return a.seenOpen && a.depth == 0 && !a.inString
}

// ExtractJSON attempts to parse the buffer as a JSON object. It tries the
// whole buffer first (tolerating markdown code fences), then falls back
// to the substring between the first '{' and the last '}'.
func (a *Accumulator) ExtractJSON(v interface{}) bool {
	return ExtractJSON(a.buf.String(), v)
}

// ExtractJSON parses s into v using the same best-effort rules as
// Accumulator.ExtractJSON.
func ExtractJSON(s string, v interface{}) bool {
	text := strings.TrimSpace(s)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if json.Unmarshal([]byte(text), v) == nil {
		return true
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(text[start:end+1]), v) == nil
}
