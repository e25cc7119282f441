package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// MarkerKey is the top-level key that identifies a tool call object.
const MarkerKey = "tool_call"

// ToolCall is a tool invocation requested by the LLM.
type ToolCall struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n?(.*?)```")

type span struct {
	start, end int
}

// Extract looks for a tool call in text. Fenced blocks are tried first, then
// every balanced top-level {...} span from left to right. The cleaned text is
// text with the accepted span (including its fence) removed. When no
// candidate qualifies the original text is returned unchanged.
func Extract(text string) (string, *ToolCall, bool) {
	for _, m := range fencePattern.FindAllStringSubmatchIndex(text, -1) {
		body := text[m[2]:m[3]]
		for _, s := range objectSpans(body) {
			call, ok := parse(body[s.start:s.end])
			if ok {
				return clean(text, span{m[0], m[1]}), call, true
			}
		}
	}

	for _, s := range objectSpans(text) {
		call, ok := parse(text[s.start:s.end])
		if ok {
			return clean(text, s), call, true
		}
	}
	return text, nil, false
}

// objectSpans returns the balanced top-level brace spans of text. String
// literals inside a span are skipped so braces in JSON strings do not count.
// An unbalanced opening brace is skipped and scanning resumes after it.
func objectSpans(text string) []span {
	var spans []span
	i := 0
	for i < len(text) {
		start := strings.IndexByte(text[i:], '{')
		if start < 0 {
			break
		}
		start += i
		end := matchBrace(text, start)
		if end < 0 {
			i = start + 1
			continue
		}
		spans = append(spans, span{start, end})
		i = end
	}
	return spans
}

// matchBrace returns the index just past the brace closing text[start], or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func parse(candidate string) (*ToolCall, bool) {
	decoder := json.NewDecoder(strings.NewReader(candidate))
	decoder.UseNumber()
	var envelope map[string]json.RawMessage
	if err := decoder.Decode(&envelope); err != nil {
		return nil, false
	}
	raw, ok := envelope[MarkerKey]
	if !ok {
		return nil, false
	}

	var body struct {
		ToolName   any             `json:"tool_name"`
		Parameters json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}
	name, ok := body.ToolName.(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, false
	}

	params, ok := decodeObject(body.Parameters)
	if !ok {
		return nil, false
	}
	return &ToolCall{ToolName: strings.TrimSpace(name), Parameters: params}, true
}

func decodeObject(raw json.RawMessage) (map[string]any, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func clean(text string, s span) string {
	return strings.TrimSpace(text[:s.start] + text[s.end:])
}
