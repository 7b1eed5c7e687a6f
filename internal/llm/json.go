package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

const emptyObject = "{}"

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// ExtractJSON extracts a JSON document from model output. Models asked for
// JSON still wrap it in fences or prose often enough that strict parsing is
// useless, so extraction tries progressively looser strategies:
//
//  1. the whole output parses as JSON
//  2. a ```json fenced block parses
//  3. the first balanced {...} region parses
//  4. give up and return "{}"
//
// It never returns invalid JSON.
func ExtractJSON(s string) json.RawMessage {
	trimmed := strings.TrimSpace(s)
	if trimmed != "" && gjson.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}

	if m := fencedJSON.FindStringSubmatch(trimmed); m != nil {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" && gjson.Valid(candidate) {
			return json.RawMessage(candidate)
		}
	}

	if candidate := firstBalancedObject(trimmed); candidate != "" && gjson.Valid(candidate) {
		return json.RawMessage(candidate)
	}

	return json.RawMessage(emptyObject)
}

// firstBalancedObject returns the first brace-balanced {...} region of s,
// tracking string literals and escapes so braces inside strings don't count.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
