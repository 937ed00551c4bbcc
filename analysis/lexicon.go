package analysis

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the static word tables driving every analysis pass: the topic
// keyword dictionary, the stopword set for custom-topic mining, the sentiment
// word lists, and the separate (broader) evolution dictionary.
//
// A Lexicon is treated as read-only once built; callers that reload packs at
// runtime should swap whole instances rather than mutate one in place.
type Lexicon struct {
	// Topics maps topic id -> trigger keywords, matched as case-insensitive substrings.
	Topics map[string][]string

	// EvolutionTopics is the broader dictionary used by the evolution pass.
	// It is deliberately separate from Topics.
	EvolutionTopics map[string][]string

	// Stopwords are tokens excluded from custom-topic mining.
	Stopwords map[string]struct{}

	Positive []string
	Negative []string
}

// DefaultLexicon returns the built-in tables.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Topics: map[string][]string{
			"emotions":      {"anxiety", "anxious", "stress", "stressed", "depress", "panic", "worry", "worried", "sad", "angry", "afraid", "lonely", "overwhelmed"},
			"family":        {"family", "mother", "father", "parent", "brother", "sister", "sibling", "childhood"},
			"work":          {"work", "job", "boss", "office", "career", "coworker", "deadline", "promotion"},
			"school":        {"school", "class", "teacher", "homework", "exam", "study", "college"},
			"health":        {"health", "doctor", "sick", "pain", "sleep", "tired", "headache", "appetite"},
			"relationships": {"friend", "girlfriend", "boyfriend", "partner", "wife", "husband", "marriage", "breakup"},
			"money":         {"money", "debt", "rent", "bills", "salary", "afford"},
			"hobbies":       {"music", "guitar", "movie", "book", "hobby", "paint", "garden"},
			"dreams":        {"dream", "nightmare", "future", "goal"},
		},
		EvolutionTopics: map[string][]string{
			"mental_health": {"anxiety", "anxious", "stress", "stressed", "depress", "panic", "therapy", "overwhelmed", "worry", "worried", "mood"},
			"relationships": {"friend", "partner", "girlfriend", "boyfriend", "wife", "husband", "marriage", "relationship", "breakup", "divorce", "lonely"},
			"work_career":   {"work", "job", "career", "boss", "office", "promotion", "interview", "deadline", "coworker", "fired"},
			"health":        {"health", "doctor", "sick", "sleep", "pain", "tired", "exercise", "headache", "appointment"},
			"family":        {"family", "mother", "father", "parent", "brother", "sister", "sibling", "childhood"},
			"self_esteem":   {"confidence", "confident", "failure", "worthless", "proud", "ashamed", "insecure"},
		},
		Stopwords: stopwordSet(
			"about", "after", "again", "almost", "already", "always", "another",
			"anything", "around", "because", "before", "being", "between",
			"cannot", "could", "doing", "during", "every", "everything",
			"going", "gonna", "having", "little", "maybe", "might", "never",
			"nothing", "other", "people", "pretty", "really", "right",
			"should", "since", "something", "still", "their", "there",
			"these", "thing", "things", "think", "those", "through", "today",
			"trying", "until", "wanna", "where", "which", "while", "without",
			"would", "yourself",
		),
		Positive: []string{"good", "great", "happy", "better", "love", "hope", "calm", "proud", "excited", "wonderful", "glad", "enjoy", "relaxed", "grateful"},
		Negative: []string{"bad", "sad", "angry", "hate", "fear", "afraid", "worse", "terrible", "awful", "anxious", "stressed", "lonely", "hurt", "miserable"},
	}
}

func stopwordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// lexiconPack is the on-disk YAML shape of one lexicon extension file.
type lexiconPack struct {
	Topics          map[string][]string `yaml:"topics"`
	EvolutionTopics map[string][]string `yaml:"evolution_topics"`
	Stopwords       []string            `yaml:"stopwords"`
	Positive        []string            `yaml:"positive"`
	Negative        []string            `yaml:"negative"`
}

// LoadLexiconPacks merges every *.yaml/*.yml file under dir over the built-in
// tables, in filename order. Keyword lists are unioned per topic id; unknown
// topics are added. A missing or empty dir returns the defaults unchanged.
func LoadLexiconPacks(dir string) (*Lexicon, error) {
	lex := DefaultLexicon()
	if dir == "" {
		return lex, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return lex, nil
		}
		return nil, fmt.Errorf("LoadLexiconPacks: read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("LoadLexiconPacks: read %s: %w", name, err)
		}
		var pack lexiconPack
		if err := yaml.Unmarshal(b, &pack); err != nil {
			return nil, fmt.Errorf("LoadLexiconPacks: unmarshal %s: %w", name, err)
		}
		lex.merge(pack)
	}
	return lex, nil
}

func (l *Lexicon) merge(pack lexiconPack) {
	for id, kws := range pack.Topics {
		id = normalizeTopicID(id)
		if id == "" {
			continue
		}
		l.Topics[id] = unionKeywords(l.Topics[id], kws)
	}
	for id, kws := range pack.EvolutionTopics {
		id = normalizeTopicID(id)
		if id == "" {
			continue
		}
		l.EvolutionTopics[id] = unionKeywords(l.EvolutionTopics[id], kws)
	}
	for _, w := range pack.Stopwords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			l.Stopwords[w] = struct{}{}
		}
	}
	l.Positive = unionKeywords(l.Positive, pack.Positive)
	l.Negative = unionKeywords(l.Negative, pack.Negative)
}

func unionKeywords(base, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, s := range base {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	for _, s := range add {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func normalizeTopicID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.ReplaceAll(id, " ", "_")
}

func (l *Lexicon) isStopword(token string) bool {
	_, ok := l.Stopwords[token]
	return ok
}

// topicIDs returns the extractor dictionary's ids in sorted order.
func (l *Lexicon) topicIDs() []string {
	ids := make([]string, 0, len(l.Topics))
	for id := range l.Topics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
