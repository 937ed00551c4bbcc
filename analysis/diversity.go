package analysis

import "math"

// TopicDiversity computes the normalized Shannon entropy of the topic
// frequency distribution: 0 means the conversation sat on a single topic,
// 1 means attention spread evenly across all of them. Empty input, a lone
// topic, or all-zero frequencies return 0 rather than NaN.
func TopicDiversity(topics []Topic) float64 {
	if len(topics) < 2 {
		return 0
	}

	total := 0
	for _, t := range topics {
		total += t.Frequency
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, t := range topics {
		if t.Frequency <= 0 {
			continue
		}
		p := float64(t.Frequency) / float64(total)
		entropy -= p * math.Log2(p)
	}

	normalized := entropy / math.Log2(float64(len(topics)))
	if normalized < 0 {
		return 0
	}
	if normalized > 1 {
		return 1
	}
	return normalized
}
