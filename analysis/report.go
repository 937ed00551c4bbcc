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

// SessionReport pairs the two artifacts that describe one analyzed session.
type SessionReport struct {
	Analysis  SessionAnalysis
	Evolution SessionEvolution
}

// ReportPackOptions controls how markdown report shards are created.
type ReportPackOptions struct {
	OutDir    string
	MaxBytes  int // default ~100KB
	Overwrite bool

	// IncludeClusters adds the cluster list under each session.
	IncludeClusters bool

	// IncludeTimeline adds per-topic evolution lines under each session.
	IncludeTimeline bool
}

// ReportShardIndexRecord maps one session to a markdown shard file and anchor.
type ReportShardIndexRecord struct {
	SessionID    string   `json:"session_id"`
	StartTime    *float64 `json:"start_time,omitempty"`
	StartTimeISO string   `json:"start_time_iso8601,omitempty"`
	Title        string   `json:"title,omitempty"`

	ShardFile string `json:"shard_file"`
	Anchor    string `json:"anchor"`

	DominantTopic  string  `json:"dominant_topic,omitempty"`
	TopicDiversity float64 `json:"topic_diversity"`

	TopTopics       []string `json:"top_topics,omitempty"`
	EmergingTopics  []string `json:"emerging_topics,omitempty"`
	DecliningTopics []string `json:"declining_topics,omitempty"`
}

// WriteReportShards writes markdown shard files and returns the index rows
// that map sessions -> shard files. Session reports are packed sequentially
// into shards of roughly MaxBytes (UTF-8 bytes).
func WriteReportShards(reports []SessionReport, opts ReportPackOptions) ([]ReportShardIndexRecord, error) {
	if opts.OutDir == "" {
		return nil, errors.New("WriteReportShards: OutDir is empty")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 100 * 1024
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("WriteReportShards: mkdir OutDir: %w", err)
	}

	// Stable ordering: start time (if present), then session id.
	ordered := append([]SessionReport(nil), reports...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := 0.0, 0.0
		if ordered[i].Analysis.StartTime != nil {
			ti = *ordered[i].Analysis.StartTime
		}
		if ordered[j].Analysis.StartTime != nil {
			tj = *ordered[j].Analysis.StartTime
		}
		if ti != tj {
			return ti < tj
		}
		return ordered[i].Analysis.SessionID < ordered[j].Analysis.SessionID
	})

	var (
		shardNum     = 1
		curr         strings.Builder
		currBytes    = 0
		currFilename = ""
		index        []ReportShardIndexRecord
	)

	flush := func() error {
		if currBytes == 0 {
			return nil
		}
		if currFilename == "" {
			currFilename = reportShardName(shardNum)
		}
		outPath := filepath.Join(opts.OutDir, currFilename)
		if !opts.Overwrite {
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("WriteReportShards: shard exists: %s", outPath)
			}
		}
		if _, err := writeFileAtomic(opts.OutDir, outPath, []byte(curr.String()), 0o644); err != nil {
			return fmt.Errorf("WriteReportShards: write shard: %w", err)
		}
		shardNum++
		curr.Reset()
		currBytes = 0
		currFilename = ""
		return nil
	}

	for _, r := range ordered {
		if r.Analysis.SessionID == "" {
			continue
		}
		section, anchor := renderSessionMarkdown(r, opts.IncludeClusters, opts.IncludeTimeline)
		sectionBytes := len([]byte(section))

		if currBytes > 0 && currBytes+sectionBytes > opts.MaxBytes {
			if err := flush(); err != nil {
				return nil, err
			}
		}

		if currBytes == 0 {
			currFilename = reportShardName(shardNum)
			header := fmt.Sprintf("# Report Shard %04d\n\n", shardNum)
			curr.WriteString(header)
			currBytes += len([]byte(header))
		}

		curr.WriteString(section)
		currBytes += sectionBytes

		topIDs := make([]string, 0, len(r.Analysis.Analysis.Topics))
		for _, t := range r.Analysis.Analysis.Topics {
			topIDs = append(topIDs, t.ID)
		}

		index = append(index, ReportShardIndexRecord{
			SessionID:       r.Analysis.SessionID,
			StartTime:       r.Analysis.StartTime,
			StartTimeISO:    startTimeISO8601(r.Analysis.StartTime),
			Title:           r.Analysis.Title,
			ShardFile:       currFilename,
			Anchor:          anchor,
			DominantTopic:   r.Analysis.Analysis.DominantTopic,
			TopicDiversity:  r.Analysis.Analysis.TopicDiversity,
			TopTopics:       dedupeStrings(topIDs),
			EmergingTopics:  dedupeStrings(r.Evolution.Evolution.EmergingTopics),
			DecliningTopics: dedupeStrings(r.Evolution.Evolution.DecliningTopics),
		})
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return index, nil
}

func reportShardName(n int) string {
	return fmt.Sprintf("reports_%04d.md", n)
}

func renderSessionMarkdown(r SessionReport, includeClusters bool, includeTimeline bool) (section string, anchor string) {
	anchor = "session-" + sanitizeAnchor(r.Analysis.SessionID)
	title := strings.TrimSpace(r.Analysis.Title)
	if title == "" {
		title = r.Analysis.SessionID
	}

	a := r.Analysis.Analysis
	evo := r.Evolution.Evolution

	var b strings.Builder
	fmt.Fprintf(&b, "<a id=\"%s\"></a>\n", anchor)
	fmt.Fprintf(&b, "## %s\n\n", escapeMarkdownInline(title))
	fmt.Fprintf(&b, "- session_id: `%s`\n", r.Analysis.SessionID)
	if r.Analysis.StartTime != nil {
		iso := startTimeISO8601(r.Analysis.StartTime)
		if iso != "" {
			fmt.Fprintf(&b, "- start_time: `%.3f` (`%s`)\n", *r.Analysis.StartTime, iso)
		} else {
			fmt.Fprintf(&b, "- start_time: `%.3f`\n", *r.Analysis.StartTime)
		}
	}
	fmt.Fprintf(&b, "- messages: %d\n", r.Analysis.MessageCount)
	if a.DominantTopic != "" {
		fmt.Fprintf(&b, "- dominant_topic: `%s` (%s)\n", a.DominantTopic, FormatTopicName(a.DominantTopic))
	}
	fmt.Fprintf(&b, "- topic_diversity: %.2f\n", a.TopicDiversity)
	b.WriteString("\n")

	if len(a.Topics) > 0 {
		b.WriteString("### Topics\n")
		for _, t := range a.Topics {
			fmt.Fprintf(&b, "- %s (`%s`): %d hits, %s", t.Name, t.ID, t.Frequency, t.Sentiment)
			if len(t.Keywords) > 0 {
				fmt.Fprintf(&b, ", keywords: %s", escapeMarkdownInline(strings.Join(t.Keywords, ", ")))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(a.Transitions) > 0 {
		b.WriteString("### Transitions\n")
		for _, tr := range a.Transitions {
			fmt.Fprintf(&b, "- `%s` to `%s`: %d\n", tr.From, tr.To, tr.Count)
		}
		b.WriteString("\n")
	}

	if includeClusters && len(a.Clusters) > 0 {
		b.WriteString("### Clusters\n")
		for _, c := range a.Clusters {
			fmt.Fprintf(&b, "- %s: %s (central: `%s`, cohesion %.2f)\n",
				c.ID, escapeMarkdownInline(strings.Join(c.Topics, ", ")), c.CentralTopic, c.Cohesion)
		}
		b.WriteString("\n")
	}

	if includeTimeline && len(evo.Timelines) > 0 {
		b.WriteString("### Evolution\n")
		for _, tl := range evo.Timelines {
			fmt.Fprintf(&b, "- %s: %d mentions over %d messages, peak %d",
				FormatTopicName(tl.Topic), tl.TotalMentions, len(tl.Occurrences), tl.PeakIntensity)
			if iso := timestampISO8601(tl.FirstAppearance); iso != "" {
				fmt.Fprintf(&b, ", first %s", iso)
			}
			if iso := timestampISO8601(tl.LastAppearance); iso != "" {
				fmt.Fprintf(&b, ", last %s", iso)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")

		if len(evo.EmergingTopics) > 0 {
			fmt.Fprintf(&b, "**emerging**: %s\n\n", escapeMarkdownInline(strings.Join(evo.EmergingTopics, ", ")))
		}
		if len(evo.DecliningTopics) > 0 {
			fmt.Fprintf(&b, "**declining**: %s\n\n", escapeMarkdownInline(strings.Join(evo.DecliningTopics, ", ")))
		}
	}

	b.WriteString("\n---\n\n")
	return b.String(), anchor
}

func sanitizeAnchor(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "session"
	}
	var out strings.Builder
	out.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		} else {
			out.WriteByte('-')
		}
	}
	return strings.Trim(out.String(), "-")
}

func escapeMarkdownInline(s string) string {
	// Minimal: avoid accidental code fences/headers in titles/lists.
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	return s
}

// WriteReportIndex writes index records as JSONL.
func WriteReportIndex(path string, records []ReportShardIndexRecord, overwrite bool) error {
	if path == "" {
		return errors.New("WriteReportIndex: path is empty")
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("WriteReportIndex: file exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var b strings.Builder
	for _, r := range records {
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
