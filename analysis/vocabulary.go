package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Vocabulary is the cross-session ledger of custom topics mined from user
// messages. Sessions touch it one at a time; counts accumulate across runs.
type Vocabulary struct {
	Version int               `json:"version"`
	Entries []VocabularyEntry `json:"entries"`
	Meta    map[string]any    `json:"meta,omitempty"`
}

// VocabularyEntry is one mined term.
type VocabularyEntry struct {
	Term string `json:"term"`

	// Count accumulates the term's mention frequency across sessions.
	Count int `json:"count"`

	// Sessions counts how many sessions mentioned the term at all.
	Sessions int `json:"sessions"`

	FirstSeenAt *float64 `json:"first_seen_at,omitempty"`
	LastSeenAt  *float64 `json:"last_seen_at,omitempty"`
}

// LoadVocabulary reads a vocabulary JSON file. If the file doesn't exist, it
// returns an empty vocabulary.
func LoadVocabulary(path string) (Vocabulary, error) {
	if path == "" {
		return Vocabulary{}, errors.New("LoadVocabulary: path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Vocabulary{Version: 1, Entries: []VocabularyEntry{}}, nil
		}
		return Vocabulary{}, fmt.Errorf("LoadVocabulary: read file: %w", err)
	}
	var v Vocabulary
	if err := json.Unmarshal(b, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("LoadVocabulary: unmarshal: %w", err)
	}
	if v.Version == 0 {
		v.Version = 1
	}
	if v.Entries == nil {
		v.Entries = []VocabularyEntry{}
	}
	return v, nil
}

// SaveVocabulary writes the vocabulary JSON file atomically.
func SaveVocabulary(path string, v Vocabulary) error {
	if path == "" {
		return errors.New("SaveVocabulary: path is empty")
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("SaveVocabulary: marshal: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("SaveVocabulary: mkdir dir: %w", err)
	}
	if _, err := writeFileAtomic(dir, path, b, 0o644); err != nil {
		return fmt.Errorf("SaveVocabulary: write: %w", err)
	}
	return nil
}

// MergeVocabulary folds one session's custom topics into the ledger and
// returns the terms that were touched. Dictionary topics are ignored; only
// "custom_"-prefixed ids contribute.
func MergeVocabulary(v *Vocabulary, topics []Topic, seenAt *float64) []string {
	if v == nil {
		return nil
	}
	if v.Version == 0 {
		v.Version = 1
	}
	if v.Entries == nil {
		v.Entries = []VocabularyEntry{}
	}

	index := make(map[string]int, len(v.Entries))
	for i := range v.Entries {
		key := normalizeVocabularyKey(v.Entries[i].Term)
		if key != "" {
			index[key] = i
		}
	}

	seenKeys := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if !IsCustomTopic(t.ID) || t.Frequency <= 0 {
			continue
		}
		term := strings.TrimPrefix(t.ID, customTopicPrefix)
		key := normalizeVocabularyKey(term)
		if key == "" {
			continue
		}
		if _, ok := seenKeys[key]; ok {
			continue
		}
		seenKeys[key] = struct{}{}

		if i, ok := index[key]; ok {
			e := &v.Entries[i]
			e.Count += t.Frequency
			e.Sessions++
			if e.FirstSeenAt == nil {
				e.FirstSeenAt = seenAt
			}
			e.LastSeenAt = seenAt
			continue
		}

		v.Entries = append(v.Entries, VocabularyEntry{
			Term:        key,
			Count:       t.Frequency,
			Sessions:    1,
			FirstSeenAt: seenAt,
			LastSeenAt:  seenAt,
		})
		index[key] = len(v.Entries) - 1
	}

	// Keep stable ordering: highest count first, then term.
	sort.SliceStable(v.Entries, func(i, j int) bool {
		if v.Entries[i].Count != v.Entries[j].Count {
			return v.Entries[i].Count > v.Entries[j].Count
		}
		return strings.ToLower(v.Entries[i].Term) < strings.ToLower(v.Entries[j].Term)
	})

	terms := make([]string, 0, len(seenKeys))
	for key := range seenKeys {
		terms = append(terms, key)
	}
	sort.Strings(terms)
	return terms
}

// CullVocabulary removes entries with Count < minCount.
func CullVocabulary(v *Vocabulary, minCount int) {
	if v == nil || minCount <= 1 {
		return
	}
	out := v.Entries[:0]
	for _, e := range v.Entries {
		if e.Count >= minCount {
			out = append(out, e)
		}
	}
	v.Entries = out
}

// IsCustomTopic reports whether a topic id came from custom-topic mining
// rather than the static dictionary.
func IsCustomTopic(id string) bool {
	return strings.HasPrefix(id, customTopicPrefix)
}

func normalizeVocabularyKey(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	return strings.ToLower(term)
}
