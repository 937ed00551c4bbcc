package analysis

import (
	"sort"
	"strings"
)

// minMessagesForTrend is the floor below which emerging/declining topic
// detection stays silent; halves of a shorter session are too thin to mean
// anything.
const minMessagesForTrend = 4

// AnalyzeTopicEvolution tracks how the broader evolution topics rise and fall
// across one session. Unlike ExtractTopics this pass reads EVERY message,
// agent replies included; the two passes answer different questions ("what
// does the user bring up" vs "where did the conversation go") and the
// asymmetry is intentional.
//
// The result is a pure function of the input: same session, same output.
func AnalyzeTopicEvolution(session Session, lex *Lexicon) TopicEvolution {
	if lex == nil {
		lex = DefaultLexicon()
	}
	if len(session.Messages) == 0 {
		return TopicEvolution{}
	}

	ids := make([]string, 0, len(lex.EvolutionTopics))
	for id := range lex.EvolutionTopics {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	occurrences := make(map[string][]TopicOccurrence, len(ids))
	var (
		transitions  []EvolutionTransition
		prevDominant string
	)

	for i, m := range session.Messages {
		lower := strings.ToLower(m.Text)

		dominant := ""
		dominantIntensity := 0
		for _, id := range ids {
			intensity := len(matchedKeywords(lower, lex.EvolutionTopics[id]))
			if intensity == 0 {
				continue
			}
			occurrences[id] = append(occurrences[id], TopicOccurrence{
				MessageIndex: i,
				Timestamp:    m.Timestamp,
				Intensity:    intensity,
			})
			if intensity > dominantIntensity {
				dominant = id
				dominantIntensity = intensity
			}
		}

		// Messages that touch no topic carry the previous dominant forward
		// without emitting a transition.
		if dominant == "" {
			continue
		}
		if prevDominant != "" {
			kind := TransitionContinuation
			if dominant != prevDominant {
				kind = TransitionShift
			}
			transitions = append(transitions, EvolutionTransition{
				From:         prevDominant,
				To:           dominant,
				MessageIndex: i,
				Kind:         kind,
			})
		}
		prevDominant = dominant
	}

	timelines := make([]TopicTimeline, 0, len(occurrences))
	for _, id := range ids {
		occ := occurrences[id]
		if len(occ) == 0 {
			continue
		}
		timelines = append(timelines, buildTimeline(id, occ))
	}
	sort.SliceStable(timelines, func(i, j int) bool {
		if timelines[i].TotalMentions != timelines[j].TotalMentions {
			return timelines[i].TotalMentions > timelines[j].TotalMentions
		}
		return timelines[i].Topic < timelines[j].Topic
	})

	return TopicEvolution{
		Timelines:       timelines,
		Transitions:     transitions,
		DominantTopics:  dominantTopics(timelines),
		EmergingTopics:  emergingTopics(timelines, len(session.Messages)),
		DecliningTopics: decliningTopics(timelines, len(session.Messages)),
	}
}

// AnalyzeTopicEvolutionAcrossSessions concatenates the sessions' messages in
// chronological order (by start time, unknown first, ties by session id) and
// runs the single-session pipeline over the combined sequence, so a topic
// spanning sessions reads as one continuous thread.
func AnalyzeTopicEvolutionAcrossSessions(sessions []Session, lex *Lexicon) TopicEvolution {
	ordered := append([]Session(nil), sessions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := 0.0, 0.0
		if ordered[i].StartTime != nil {
			ti = *ordered[i].StartTime
		}
		if ordered[j].StartTime != nil {
			tj = *ordered[j].StartTime
		}
		if ti != tj {
			return ti < tj
		}
		return ordered[i].SessionID < ordered[j].SessionID
	})

	var combined Session
	for _, s := range ordered {
		combined.Messages = append(combined.Messages, s.Messages...)
	}
	return AnalyzeTopicEvolution(combined, lex)
}

func buildTimeline(id string, occ []TopicOccurrence) TopicTimeline {
	total := 0
	peak := 0
	for _, o := range occ {
		total += o.Intensity
		if o.Intensity > peak {
			peak = o.Intensity
		}
	}
	return TopicTimeline{
		Topic:            id,
		Occurrences:      occ,
		TotalMentions:    total,
		FirstAppearance:  occ[0].Timestamp,
		LastAppearance:   occ[len(occ)-1].Timestamp,
		PeakIntensity:    peak,
		AverageIntensity: float64(total) / float64(len(occ)),
	}
}

// dominantTopics returns every topic tied for the highest aggregate mentions.
func dominantTopics(timelines []TopicTimeline) []string {
	if len(timelines) == 0 {
		return nil
	}
	top := timelines[0].TotalMentions
	var out []string
	for _, tl := range timelines {
		if tl.TotalMentions == top {
			out = append(out, tl.Topic)
		}
	}
	return out
}

func emergingTopics(timelines []TopicTimeline, messageCount int) []string {
	if messageCount < minMessagesForTrend {
		return nil
	}
	half := messageCount / 2
	var out []string
	for _, tl := range timelines {
		if tl.Occurrences[0].MessageIndex >= half {
			out = append(out, tl.Topic)
		}
	}
	return out
}

func decliningTopics(timelines []TopicTimeline, messageCount int) []string {
	if messageCount < minMessagesForTrend {
		return nil
	}
	half := messageCount / 2
	var out []string
	for _, tl := range timelines {
		if tl.Occurrences[len(tl.Occurrences)-1].MessageIndex < half {
			out = append(out, tl.Topic)
		}
	}
	return out
}
