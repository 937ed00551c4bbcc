package analysis

// AuthorUser and AuthorAgent are the two message author values a session carries.
const (
	AuthorUser  = "user"
	AuthorAgent = "agent"
)

// Message is one utterance in a session. Timestamp is unix milliseconds; 0 means unknown.
type Message struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Session is an ordered transcript of one conversation between a user and the agent.
type Session struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	StartTime *float64  `json:"start_time,omitempty"`
	Messages  []Message `json:"messages"`
}

// Topic is one mined conversation topic with its accumulated stats.
type Topic struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords,omitempty"`

	// Frequency counts keyword hits, not messages.
	Frequency int `json:"frequency"`

	// FirstMention/LastMention are indexes into the user-authored subsequence.
	FirstMention int `json:"first_mention"`
	LastMention  int `json:"last_mention"`

	// Sentiment is "positive", "neutral", or "negative".
	Sentiment string `json:"sentiment"`
}

// TopicTransition records how often the conversation moved from one topic to another
// across adjacent messages.
type TopicTransition struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`

	// Messages holds the source message index of each observed transition.
	Messages []int `json:"messages,omitempty"`
}

// TopicCluster groups topics that transitioned into each other.
type TopicCluster struct {
	ID           string   `json:"id"`
	Topics       []string `json:"topics"`
	CentralTopic string   `json:"central_topic"`

	// Cohesion is cluster size relative to the total topic count, in [0,1].
	Cohesion float64 `json:"cohesion"`
}

// ConversationAnalysis is the aggregate result of one analysis pass over a session.
type ConversationAnalysis struct {
	Topics      []Topic           `json:"topics"`
	Transitions []TopicTransition `json:"transitions,omitempty"`
	Clusters    []TopicCluster    `json:"clusters,omitempty"`

	// DominantTopic is the id of the most frequent topic, empty when no topics were found.
	DominantTopic string `json:"dominant_topic,omitempty"`

	// TopicDiversity is the normalized entropy of the topic frequency distribution, in [0,1].
	TopicDiversity float64 `json:"topic_diversity"`
}

// TopicOccurrence is one sighting of an evolution topic in one message.
type TopicOccurrence struct {
	MessageIndex int   `json:"message_index"`
	Timestamp    int64 `json:"timestamp,omitempty"`

	// Intensity is the number of matched keywords in that message.
	Intensity int `json:"intensity"`
}

// TopicTimeline tracks one evolution topic across a whole session.
type TopicTimeline struct {
	Topic       string            `json:"topic"`
	Occurrences []TopicOccurrence `json:"occurrences"`

	TotalMentions    int     `json:"total_mentions"`
	FirstAppearance  int64   `json:"first_appearance,omitempty"`
	LastAppearance   int64   `json:"last_appearance,omitempty"`
	PeakIntensity    int     `json:"peak_intensity"`
	AverageIntensity float64 `json:"average_intensity"`
}

// EvolutionTransition marks a change (or hold) of the dominant topic between
// consecutive dominant-topic observations.
type EvolutionTransition struct {
	From         string `json:"from"`
	To           string `json:"to"`
	MessageIndex int    `json:"message_index"`

	// Kind is "shift" when the dominant topic changed, "continuation" when it held.
	Kind string `json:"kind"`
}

// TopicEvolution is the aggregate result of one evolution pass over a session.
type TopicEvolution struct {
	Timelines   []TopicTimeline       `json:"timelines"`
	Transitions []EvolutionTransition `json:"transitions,omitempty"`

	DominantTopics  []string `json:"dominant_topics,omitempty"`
	EmergingTopics  []string `json:"emerging_topics,omitempty"`
	DecliningTopics []string `json:"declining_topics,omitempty"`
}

// SessionAnalysis is the on-disk artifact for one analyzed session.
type SessionAnalysis struct {
	SessionID    string   `json:"session_id"`
	Title        string   `json:"title,omitempty"`
	StartTime    *float64 `json:"start_time,omitempty"`
	MessageCount int      `json:"message_count"`

	Analysis ConversationAnalysis `json:"analysis"`
}

// SessionEvolution is the on-disk artifact for one session's evolution pass.
type SessionEvolution struct {
	SessionID string   `json:"session_id"`
	Title     string   `json:"title,omitempty"`
	StartTime *float64 `json:"start_time,omitempty"`

	Evolution TopicEvolution `json:"evolution"`
}

// SessionInsight is the on-disk artifact for one model-written session insight.
type SessionInsight struct {
	SessionID string   `json:"session_id"`
	Title     string   `json:"title,omitempty"`
	StartTime *float64 `json:"start_time,omitempty"`

	Headline    string   `json:"headline"`
	Narrative   string   `json:"narrative"`
	Themes      []string `json:"themes,omitempty"`
	Risks       []string `json:"risks,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`

	Model string `json:"model,omitempty"`
}

// TransitionShift and TransitionContinuation are the two EvolutionTransition kinds.
const (
	TransitionShift        = "shift"
	TransitionContinuation = "continuation"
)

// SentimentPositive, SentimentNeutral and SentimentNegative are the topic sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)
