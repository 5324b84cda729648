package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON indicates the model response contained no parseable JSON object.
var ErrNoJSON = errors.New("llm: response contains no JSON object")

// ExtractJSON pulls the first JSON object out of a model response and
// unmarshals it into dst. Models wrap JSON in prose or markdown fences more
// often than not, so the parser scans for the outermost brace pair instead
// of unmarshaling the raw response.
func ExtractJSON(response string, dst interface{}) error {
	candidate := stripFences(response)

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return ErrNoJSON
	}

	if err := json.Unmarshal([]byte(candidate[start:end+1]), dst); err != nil {
		return ErrNoJSON
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
