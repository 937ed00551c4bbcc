package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// AnalysisIndexRecord is a row in analysis_index.jsonl mapping a session to
// its analysis artifacts, with enough duplicated fields for quick scanning
// without opening them.
type AnalysisIndexRecord struct {
	SessionID    string   `json:"session_id"`
	Title        string   `json:"title,omitempty"`
	StartTime    *float64 `json:"start_time,omitempty"`
	StartTimeISO string   `json:"start_time_iso8601,omitempty"`

	AnalysisPath  string `json:"analysis_path"`
	EvolutionPath string `json:"evolution_path,omitempty"`

	MessageCount int `json:"message_count"`
	TopicCount   int `json:"topic_count"`

	DominantTopic  string  `json:"dominant_topic,omitempty"`
	TopicDiversity float64 `json:"topic_diversity"`

	TopTopics       []string `json:"top_topics,omitempty"`
	EmergingTopics  []string `json:"emerging_topics,omitempty"`
	DecliningTopics []string `json:"declining_topics,omitempty"`
}

// BuildAnalysisIndexRecord creates a stable index row for one analyzed session.
func BuildAnalysisIndexRecord(sa SessionAnalysis, analysisPath string, se SessionEvolution, evolutionPath string) AnalysisIndexRecord {
	topIDs := make([]string, 0, len(sa.Analysis.Topics))
	for _, t := range sa.Analysis.Topics {
		topIDs = append(topIDs, t.ID)
	}

	return AnalysisIndexRecord{
		SessionID:       sa.SessionID,
		Title:           strings.TrimSpace(sa.Title),
		StartTime:       sa.StartTime,
		StartTimeISO:    startTimeISO8601(sa.StartTime),
		AnalysisPath:    analysisPath,
		EvolutionPath:   evolutionPath,
		MessageCount:    sa.MessageCount,
		TopicCount:      len(sa.Analysis.Topics),
		DominantTopic:   sa.Analysis.DominantTopic,
		TopicDiversity:  sa.Analysis.TopicDiversity,
		TopTopics:       dedupeStrings(topIDs),
		EmergingTopics:  dedupeStrings(se.Evolution.EmergingTopics),
		DecliningTopics: dedupeStrings(se.Evolution.DecliningTopics),
	}
}

// WriteAnalysisIndex writes index records as JSONL, sorted by session id so
// rebuilt indexes diff cleanly.
func WriteAnalysisIndex(path string, records []AnalysisIndexRecord, overwrite bool) error {
	if path == "" {
		return errors.New("WriteAnalysisIndex: path is empty")
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("WriteAnalysisIndex: file exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	rows := append([]AnalysisIndexRecord(nil), records...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SessionID < rows[j].SessionID
	})

	var b strings.Builder
	for _, r := range rows {
		line, err := json.Marshal(r)
		if err != nil {
			return err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	_, err := writeFileAtomic(filepath.Dir(path), path, []byte(b.String()), 0o644)
	return err
}
