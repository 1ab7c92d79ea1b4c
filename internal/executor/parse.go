package executor

import (
	"encoding/json"
	"strings"

	"github.com/fyrsmithlabs/agentd/internal/tool"
)

// inlinePrefixes are the shapes an inline tool-call object can start with.
var inlinePrefixes = []string{`{"tool":`, `{ "tool":`, `{"tool" :`}

// ParseToolCalls extracts tool calls from a model response. Two grammars
// are accepted in order: fenced ```json blocks (each decoding to a single
// call or an array of calls), then an inline {"tool": ...} object scanned
// with a brace matcher, only when no fenced block yielded anything.
func ParseToolCalls(response string) []tool.Call {
	var calls []tool.Call

	for _, block := range extractJSONBlocks(response) {
		var single tool.Call
		if err := json.Unmarshal([]byte(block), &single); err == nil && single.Tool != "" {
			calls = append(calls, single)
			continue
		}
		var multi []tool.Call
		if err := json.Unmarshal([]byte(block), &multi); err == nil {
			for _, c := range multi {
				if c.Tool != "" {
					calls = append(calls, c)
				}
			}
		}
	}

	if len(calls) == 0 {
		if call, ok := findInlineToolCall(response); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// extractJSONBlocks pulls the contents of ```json fenced blocks in textual
// order. An unterminated final block is salvaged as-is.
func extractJSONBlocks(text string) []string {
	var blocks []string
	remaining := text

	for {
		start := strings.Index(remaining, "```json")
		if start < 0 {
			break
		}
		afterMarker := remaining[start+len("```json"):]
		contentStart := 0
		if strings.HasPrefix(afterMarker, "\n") {
			contentStart = 1
		}

		end := strings.Index(afterMarker[contentStart:], "```")
		if end < 0 {
			if content := strings.TrimSpace(afterMarker[contentStart:]); content != "" {
				blocks = append(blocks, content)
			}
			break
		}
		blocks = append(blocks, strings.TrimSpace(afterMarker[contentStart:contentStart+end]))
		remaining = afterMarker[contentStart+end+3:]
	}
	return blocks
}

func findInlineToolCall(response string) (tool.Call, bool) {
	for _, prefix := range inlinePrefixes {
		start := strings.Index(response, prefix)
		if start < 0 {
			continue
		}
		rest := response[start:]
		end, ok := findMatchingBrace(rest)
		if !ok {
			continue
		}
		var call tool.Call
		if err := json.Unmarshal([]byte(rest[:end+1]), &call); err == nil && call.Tool != "" {
			return call, true
		}
	}
	return tool.Call{}, false
}

// findMatchingBrace returns the byte index of the brace closing the object
// that starts at s[0], tracking depth while respecting JSON string escapes.
func findMatchingBrace(s string) (int, bool) {
	depth := 0
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escape {
			escape = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i, true
				}
			}
		}
	}
	return 0, false
}

// ExtractFinalResponse strips residual JSON scaffolding from a response
// that contained no tool calls: fenced json blocks are removed, and a
// trailing incomplete tool-call attempt is truncated.
func ExtractFinalResponse(response string) string {
	result := response

	for {
		start := strings.Index(result, "```json")
		if start < 0 {
			break
		}
		rel := strings.Index(result[start:], "```\n")
		closeLen := 4
		if rel < 0 {
			rel = strings.Index(result[start+len("```json"):], "```")
			if rel >= 0 {
				rel += len("```json")
			}
			closeLen = 3
		}
		if rel < 0 {
			result = result[:start]
			break
		}
		end := start + rel + closeLen
		if end > len(result) {
			end = len(result)
		}
		result = result[:start] + result[end:]
	}

	if idx := strings.LastIndex(result, "{"); idx >= 0 {
		rest := result[idx:]
		if strings.Contains(rest, `"tool"`) && !strings.Contains(rest, "}") {
			result = strings.TrimRight(result[:idx], " \t\n")
		}
	}

	return strings.TrimSpace(result)
}
