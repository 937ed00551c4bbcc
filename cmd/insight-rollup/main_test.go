package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
	"github.com/theimaginaryfoundation/shrink-o-scope/analysis/fileutils"
)

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	if cfg.InPath != filepath.Clean("docs/clinic/analyses") {
		t.Fatalf("InPath = %q", cfg.InPath)
	}
	if cfg.OutDir != filepath.Clean("docs/clinic/insights") {
		t.Fatalf("OutDir = %q", cfg.OutDir)
	}
	if cfg.Model != "gpt-5-mini" {
		t.Fatalf("Model = %q", cfg.Model)
	}
	if cfg.RPM != 30 || cfg.BreakerMaxFailures != 3 || cfg.BreakerCooldown != 30*time.Second {
		t.Fatalf("caller defaults = %d/%d/%s", cfg.RPM, cfg.BreakerMaxFailures, cfg.BreakerCooldown)
	}
	if !cfg.Overview || !cfg.Resume || cfg.Overwrite || cfg.DryRun {
		t.Fatalf("bool defaults = overview=%v resume=%v overwrite=%v dry-run=%v",
			cfg.Overview, cfg.Resume, cfg.Overwrite, cfg.DryRun)
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-in", "a", "-out", "b", "-model", "gpt-5",
		"-rpm", "5", "-breaker-max-failures", "7", "-breaker-cooldown", "1m",
		"-concurrency", "2", "-max-sessions-per-call", "3",
		"-overview=false", "-resume=false", "-overwrite", "-pretty", "-dry-run",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	if cfg.InPath != "a" || cfg.OutDir != "b" || cfg.Model != "gpt-5" {
		t.Fatalf("paths/model = %q/%q/%q", cfg.InPath, cfg.OutDir, cfg.Model)
	}
	if cfg.RPM != 5 || cfg.BreakerMaxFailures != 7 || cfg.BreakerCooldown != time.Minute {
		t.Fatalf("caller opts = %d/%d/%s", cfg.RPM, cfg.BreakerMaxFailures, cfg.BreakerCooldown)
	}
	if cfg.Concurrency != 2 || cfg.MaxSessionsPerCall != 3 {
		t.Fatalf("concurrency/window = %d/%d", cfg.Concurrency, cfg.MaxSessionsPerCall)
	}
	if cfg.Overview || cfg.Resume || !cfg.Overwrite || !cfg.Pretty || !cfg.DryRun {
		t.Fatalf("bools = overview=%v resume=%v overwrite=%v pretty=%v dry-run=%v",
			cfg.Overview, cfg.Resume, cfg.Overwrite, cfg.Pretty, cfg.DryRun)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	base := defaultConfig()
	if err := base.Validate(); err != nil {
		t.Fatalf("defaultConfig should validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing in", func(c *Config) { c.InPath = "" }},
		{"missing out", func(c *Config) { c.OutDir = "" }},
		{"missing model", func(c *Config) { c.Model = "" }},
		{"zero rpm", func(c *Config) { c.RPM = 0 }},
		{"zero breaker failures", func(c *Config) { c.BreakerMaxFailures = 0 }},
		{"zero breaker cooldown", func(c *Config) { c.BreakerCooldown = 0 }},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }},
		{"negative window", func(c *Config) { c.MaxSessionsPerCall = -1 }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate accepted invalid config")
			}
		})
	}
}

func TestChunkWindows(t *testing.T) {
	t.Parallel()

	in := []int{1, 2, 3, 4, 5}

	got := chunkWindows(in, 2)
	if len(got) != 3 {
		t.Fatalf("windows = %d, want 3", len(got))
	}
	if len(got[0]) != 2 || len(got[1]) != 2 || len(got[2]) != 1 {
		t.Fatalf("window sizes = %d/%d/%d", len(got[0]), len(got[1]), len(got[2]))
	}
	if got[2][0] != 5 {
		t.Fatalf("last window = %v", got[2])
	}

	if got := chunkWindows(in, 0); len(got) != 1 || len(got[0]) != 5 {
		t.Fatalf("disabled window should pass through, got %v", got)
	}
	if got := chunkWindows(in, 10); len(got) != 1 {
		t.Fatalf("oversized window should pass through, got %v", got)
	}
}

func TestIsRecoverableModelJSONError(t *testing.T) {
	t.Parallel()

	if !isRecoverableModelJSONError(io.ErrUnexpectedEOF) {
		t.Fatalf("unexpected EOF should be recoverable")
	}
	if !isRecoverableModelJSONError(errors.New("unexpected end of JSON input")) {
		t.Fatalf("truncated JSON should be recoverable")
	}
	if !isRecoverableModelJSONError(errors.New("no JSON object found in model output")) {
		t.Fatalf("missing JSON object should be recoverable")
	}
	if isRecoverableModelJSONError(errors.New("json: cannot unmarshal string into Go value")) {
		t.Fatalf("type mismatch should not be recoverable")
	}
	if isRecoverableModelJSONError(nil) {
		t.Fatalf("nil error should not be recoverable")
	}
}

func TestBuildInsightInput(t *testing.T) {
	t.Parallel()

	start := 1700000000.0
	rep := analysis.SessionReport{
		Analysis: analysis.SessionAnalysis{
			SessionID:    "sess-1",
			Title:        "Tuesday check-in",
			StartTime:    &start,
			MessageCount: 8,
			Analysis: analysis.ConversationAnalysis{
				Topics: []analysis.Topic{
					{ID: "work", Name: "Work", Frequency: 4, Sentiment: "negative"},
					{ID: "family", Name: "Family", Frequency: 2, Sentiment: "neutral"},
				},
				Transitions: []analysis.TopicTransition{
					{From: "work", To: "family", Count: 1},
				},
				DominantTopic:  "work",
				TopicDiversity: 0.61,
			},
		},
		Evolution: analysis.SessionEvolution{
			SessionID: "sess-1",
			Evolution: analysis.TopicEvolution{
				Timelines: []analysis.TopicTimeline{
					{Topic: "health", TotalMentions: 2, PeakIntensity: 1, AverageIntensity: 0.5},
				},
				EmergingTopics:  []string{"health"},
				DecliningTopics: []string{"work"},
			},
		},
	}

	got := buildInsightInput(rep)
	for _, want := range []string{"session_id=sess-1", "dominant_topic=work", "Work", "work -> family", "emerging=health"} {
		if !strings.Contains(got, want) {
			t.Fatalf("input missing %q:\n%s", want, got)
		}
	}
}

func TestBuildOverviewInput(t *testing.T) {
	t.Parallel()

	insights := []analysis.SessionInsight{
		{SessionID: "s1", Headline: "Work stress dominates", Themes: []string{"work", "stress"}},
		{SessionID: "s2", Headline: "Sleep improves", Risks: []string{"burnout"}},
	}

	got := buildOverviewInput(insights)
	if !strings.Contains(got, "sessions=2") {
		t.Fatalf("missing session count:\n%s", got)
	}
	for _, want := range []string{"session=s1", "Work stress dominates", "session=s2", "burnout"} {
		if !strings.Contains(got, want) {
			t.Fatalf("input missing %q:\n%s", want, got)
		}
	}
}

func TestLoadReportEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	sa := analysis.SessionAnalysis{SessionID: "alpha", MessageCount: 3}
	if err := fileutils.WriteJSONFileAtomic(filepath.Join(dir, "alpha.analysis.json"), sa, false); err != nil {
		t.Fatalf("write analysis: %v", err)
	}
	se := analysis.SessionEvolution{SessionID: "alpha", Evolution: analysis.TopicEvolution{EmergingTopics: []string{"health"}}}
	if err := fileutils.WriteJSONFileAtomic(filepath.Join(dir, "alpha.evolution.json"), se, false); err != nil {
		t.Fatalf("write evolution: %v", err)
	}

	// An analysis without an evolution pair, and one with no session id.
	sb := analysis.SessionAnalysis{SessionID: "beta"}
	if err := fileutils.WriteJSONFileAtomic(filepath.Join(dir, "beta.analysis.json"), sb, false); err != nil {
		t.Fatalf("write analysis: %v", err)
	}
	if err := fileutils.WriteJSONFileAtomic(filepath.Join(dir, "anon.analysis.json"), analysis.SessionAnalysis{}, false); err != nil {
		t.Fatalf("write analysis: %v", err)
	}

	entries, err := loadReportEntries(dir)
	if err != nil {
		t.Fatalf("loadReportEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].base != "alpha" || entries[1].base != "beta" {
		t.Fatalf("bases = %q/%q", entries[0].base, entries[1].base)
	}
	if len(entries[0].report.Evolution.Evolution.EmergingTopics) != 1 {
		t.Fatalf("alpha should carry its evolution pair")
	}
	if entries[1].report.Evolution.SessionID != "" {
		t.Fatalf("beta should have a zero evolution half")
	}
}

func TestLoadSessionInsights_SortsAndExcludesOverview(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	late, early := 2000.0, 1000.0
	writeInsight := func(name string, ins analysis.SessionInsight) {
		t.Helper()
		if err := fileutils.WriteJSONFileAtomic(filepath.Join(dir, name), ins, false); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	writeInsight("b.insight.json", analysis.SessionInsight{SessionID: "b", StartTime: &late})
	writeInsight("a.insight.json", analysis.SessionInsight{SessionID: "a", StartTime: &early})
	writeInsight("overview.insight.json", analysis.SessionInsight{SessionID: "overview"})

	insights, err := loadSessionInsights(dir, "overview.insight.json")
	if err != nil {
		t.Fatalf("loadSessionInsights: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("insights = %d, want 2", len(insights))
	}
	if insights[0].SessionID != "a" || insights[1].SessionID != "b" {
		t.Fatalf("order = %q, %q", insights[0].SessionID, insights[1].SessionID)
	}
}

func TestProcessSessionInsight_ResumeSkipsExisting(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.OutDir = t.TempDir()

	entry := reportEntry{
		base:   "alpha",
		report: analysis.SessionReport{Analysis: analysis.SessionAnalysis{SessionID: "alpha"}},
	}
	outPath := filepath.Join(cfg.OutDir, "alpha.insight.json")
	if err := os.WriteFile(outPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("seed insight: %v", err)
	}

	// Resume mode skips without touching the writer.
	wrote, err := processSessionInsight(context.Background(), cfg, entry, openAIInsightWriter{})
	if err != nil {
		t.Fatalf("processSessionInsight: %v", err)
	}
	if wrote {
		t.Fatalf("existing insight should be skipped")
	}

	cfg.Resume = false
	if _, err := processSessionInsight(context.Background(), cfg, entry, openAIInsightWriter{}); err == nil {
		t.Fatalf("non-resume run should refuse to clobber existing insight")
	}
}
