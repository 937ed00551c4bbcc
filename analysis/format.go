package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// FormatTopicName turns a topic id into a human-readable name:
// "mental_health" -> "Mental Health". The "custom_" prefix of mined topics is
// stripped first, so "custom_guitar" -> "Guitar".
func FormatTopicName(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, customTopicPrefix)
	if id == "" {
		return ""
	}
	parts := strings.Split(id, "_")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(p)
		out = append(out, string(unicode.ToUpper(r))+p[size:])
	}
	return strings.Join(out, " ")
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func limitStrings(in []string, max int) []string {
	if max <= 0 || len(in) <= max {
		return in
	}
	return in[:max]
}
