package analysis

// AnalyzeOptions configures one analysis pass. The zero value is usable:
// the built-in lexicon is used and no timings are recorded.
type AnalyzeOptions struct {
	// Lexicon overrides the built-in word tables. Nil means DefaultLexicon().
	Lexicon *Lexicon

	// Profiler, when non-nil, receives per-stage wall-clock timings.
	Profiler *Profiler
}

// AnalyzeConversation runs the full topic pipeline over one ordered message
// sequence: topic extraction, transition detection, clustering, and diversity
// scoring. It is a pure function; every call builds fresh state and malformed
// input degrades to empty results instead of errors.
func AnalyzeConversation(messages []Message, opts AnalyzeOptions) ConversationAnalysis {
	lex := opts.Lexicon
	if lex == nil {
		lex = DefaultLexicon()
	}

	stop := opts.Profiler.StartStage("extract_topics")
	topics := ExtractTopics(messages, lex)
	stop()

	stop = opts.Profiler.StartStage("analyze_transitions")
	transitions := AnalyzeTransitions(messages, topics)
	stop()

	stop = opts.Profiler.StartStage("identify_clusters")
	clusters := IdentifyClusters(topics, transitions)
	stop()

	stop = opts.Profiler.StartStage("topic_diversity")
	diversity := TopicDiversity(topics)
	stop()

	dominant := ""
	if len(topics) > 0 {
		dominant = topics[0].ID
	}

	return ConversationAnalysis{
		Topics:         topics,
		Transitions:    transitions,
		Clusters:       clusters,
		DominantTopic:  dominant,
		TopicDiversity: diversity,
	}
}
