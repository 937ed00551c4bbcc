package analysis

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxTopics = 15

	// customTopicMinCount is the mention floor below which a mined token never
	// becomes a topic.
	customTopicMinCount = 2

	// customTokenMinLength excludes short tokens from custom-topic mining.
	customTokenMinLength = 5

	customTopicPrefix = "custom_"
)

type topicAccumulator struct {
	id           string
	keywords     []string
	keywordSeen  map[string]struct{}
	frequency    int
	firstMention int
	lastMention  int
	sentimentSum float64
	scored       int
}

// ExtractTopics mines dictionary and custom topics from the user-authored
// messages of a session. Agent replies are ignored; mention indexes refer to
// positions within the user-authored subsequence.
//
// Keywords match as case-insensitive substrings, so a keyword can fire inside
// an unrelated longer word. Precision is not a goal of this pass.
func ExtractTopics(messages []Message, lex *Lexicon) []Topic {
	if lex == nil {
		lex = DefaultLexicon()
	}

	var userMessages []Message
	for _, m := range messages {
		if m.Author == AuthorUser {
			userMessages = append(userMessages, m)
		}
	}
	if len(userMessages) == 0 {
		return nil
	}

	accs := make(map[string]*topicAccumulator)
	tokenCounts := make(map[string]int)
	tokenAccs := make(map[string]*topicAccumulator)

	for idx, m := range userMessages {
		lower := strings.ToLower(m.Text)
		score := SentimentScore(m.Text, lex)

		for _, id := range lex.topicIDs() {
			matched := matchedKeywords(lower, lex.Topics[id])
			if len(matched) == 0 {
				continue
			}
			acc, ok := accs[id]
			if !ok {
				acc = &topicAccumulator{
					id:           id,
					keywordSeen:  make(map[string]struct{}),
					firstMention: idx,
				}
				accs[id] = acc
			}
			for _, kw := range matched {
				if _, ok := acc.keywordSeen[kw]; !ok {
					acc.keywordSeen[kw] = struct{}{}
					acc.keywords = append(acc.keywords, kw)
				}
			}
			acc.frequency += len(matched)
			acc.lastMention = idx
			acc.sentimentSum += score
			acc.scored++
		}

		for _, tok := range wordTokens(lower) {
			if utf8.RuneCountInString(tok) < customTokenMinLength || lex.isStopword(tok) {
				continue
			}
			tokenCounts[tok]++
			acc, ok := tokenAccs[tok]
			if !ok {
				acc = &topicAccumulator{
					id:           customTopicPrefix + tok,
					keywords:     []string{tok},
					firstMention: idx,
				}
				tokenAccs[tok] = acc
			}
			acc.frequency++
			acc.lastMention = idx
			acc.sentimentSum += score
			acc.scored++
		}
	}

	topics := make([]Topic, 0, len(accs))
	for _, acc := range accs {
		topics = append(topics, acc.topic())
	}
	for tok, acc := range tokenAccs {
		if tokenCounts[tok] < customTopicMinCount {
			continue
		}
		topics = append(topics, acc.topic())
	}

	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].Frequency != topics[j].Frequency {
			return topics[i].Frequency > topics[j].Frequency
		}
		return topics[i].ID < topics[j].ID
	})
	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	return topics
}

func (a *topicAccumulator) topic() Topic {
	return Topic{
		ID:           a.id,
		Name:         FormatTopicName(a.id),
		Keywords:     a.keywords,
		Frequency:    a.frequency,
		FirstMention: a.firstMention,
		LastMention:  a.lastMention,
		Sentiment:    sentimentLabel(a.sentimentSum, a.scored),
	}
}

func sentimentLabel(sum float64, scored int) string {
	if scored == 0 {
		return SentimentNeutral
	}
	avg := sum / float64(scored)
	switch {
	case avg > 0.2:
		return SentimentPositive
	case avg < -0.2:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func matchedKeywords(lowerText string, keywords []string) []string {
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowerText, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// wordTokens splits lowercased text on non-word runes (word = letter, digit, underscore).
func wordTokens(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
