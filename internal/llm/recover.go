package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/labreports/internal/common"
)

var reFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// RecoverJSONObject returns the JSON object contained in a model response.
// It tries, in order: the whole text, the contents of fenced code blocks, and
// the first balanced {...} span that parses.
func RecoverJSONObject(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if isJSONObject(s) {
		return []byte(s), nil
	}

	if b, ok := fromFences(s); ok {
		return b, nil
	}

	if b, ok := fromBraces(s); ok {
		return b, nil
	}

	return nil, fmt.Errorf("%w: no JSON object in %d chars of output", common.ErrModelOutputMalformed, len(text))
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var m map[string]any
	return json.Unmarshal([]byte(s), &m) == nil
}

func fromFences(s string) ([]byte, bool) {
	for _, m := range reFence.FindAllStringSubmatch(s, -1) {
		body := strings.TrimSpace(m[1])
		if isJSONObject(body) {
			return []byte(body), true
		}
	}
	// unterminated fence: model was cut off before the closing backticks
	if strings.HasPrefix(s, "```") {
		body := strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(body, '\n'); i >= 0 && !strings.HasPrefix(strings.TrimSpace(body[:i]), "{") {
			body = body[i+1:]
		}
		body = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
		if isJSONObject(body) {
			return []byte(body), true
		}
	}
	return nil, false
}

// fromBraces scans for balanced objects, ignoring braces inside JSON strings.
func fromBraces(s string) ([]byte, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > start {
			cand := s[start : end+1]
			if isJSONObject(cand) {
				return []byte(cand), true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

func matchBrace(s string, start int) int {
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
