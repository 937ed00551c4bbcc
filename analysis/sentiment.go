package analysis

import "strings"

// SentimentScore rates text in [-1, 1] by checking which sentiment lexicon
// words appear as case-insensitive substrings. Each word counts once no matter
// how often it occurs. Text with no sentiment words scores 0.
func SentimentScore(text string, lex *Lexicon) float64 {
	if lex == nil {
		lex = DefaultLexicon()
	}
	lower := strings.ToLower(text)

	positive := 0
	for _, w := range lex.Positive {
		if strings.Contains(lower, w) {
			positive++
		}
	}
	negative := 0
	for _, w := range lex.Negative {
		if strings.Contains(lower, w) {
			negative++
		}
	}

	total := positive + negative
	if total == 0 {
		total = 1
	}
	return float64(positive-negative) / float64(total)
}
