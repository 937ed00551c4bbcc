package analysis

import (
	"sort"
	"strings"
)

const maxTransitions = 20

type transitionKey struct {
	from string
	to   string
}

// AnalyzeTransitions walks adjacent message pairs and counts movement between
// the topics active in each side of the pair. A topic is active in a message
// when any of its keywords appears as a case-insensitive substring. The full
// cross product of the two active sets is recorded, minus self-pairs, which
// are never emitted.
func AnalyzeTransitions(messages []Message, topics []Topic) []TopicTransition {
	if len(messages) < 2 || len(topics) == 0 {
		return nil
	}

	active := make([][]string, len(messages))
	for i, m := range messages {
		active[i] = activeTopicIDs(m.Text, topics)
	}

	counts := make(map[transitionKey]*TopicTransition)
	for i := 0; i+1 < len(messages); i++ {
		for _, from := range active[i] {
			for _, to := range active[i+1] {
				if from == to {
					continue
				}
				key := transitionKey{from: from, to: to}
				tr, ok := counts[key]
				if !ok {
					tr = &TopicTransition{From: from, To: to}
					counts[key] = tr
				}
				tr.Count++
				tr.Messages = append(tr.Messages, i)
			}
		}
	}

	out := make([]TopicTransition, 0, len(counts))
	for _, tr := range counts {
		out = append(out, *tr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	if len(out) > maxTransitions {
		out = out[:maxTransitions]
	}
	return out
}

func activeTopicIDs(text string, topics []Topic) []string {
	lower := strings.ToLower(text)
	var ids []string
	for _, t := range topics {
		for _, kw := range t.Keywords {
			if kw != "" && strings.Contains(lower, kw) {
				ids = append(ids, t.ID)
				break
			}
		}
	}
	return ids
}
