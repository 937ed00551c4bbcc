package fileutils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeModelJSON unmarshals JSON from a model response. Models occasionally
// wrap the payload in prose or a markdown fence even under a strict schema,
// so after a failed direct parse it retries on the fenced block and then on
// the outermost braces.
func DecodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	if fenced, ok := stripCodeFence(s); ok {
		if err := json.Unmarshal([]byte(fenced), v); err == nil {
			return nil
		}
		s = fenced
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}

	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}

// stripCodeFence unwraps one ``` block, tolerating a language tag after the
// opening fence.
func stripCodeFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return "", false
	}
	rest := s[3:]
	i := strings.IndexByte(rest, '\n')
	if i == -1 {
		return "", false
	}
	rest = strings.TrimSpace(rest[i+1:])
	rest = strings.TrimSuffix(rest, "```")
	return strings.TrimSpace(rest), true
}
