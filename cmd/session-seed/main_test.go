package main

import (
	"flag"
	"math/rand"
	"testing"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("session-seed", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-out", "tmp/sessions",
		"-sessions", "7",
		"-messages", "9",
		"-seed", "11",
		"-pretty",
		"-overwrite",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.OutDir != "tmp/sessions" {
		t.Fatalf("OutDir=%q", cfg.OutDir)
	}
	if cfg.Sessions != 7 || cfg.Messages != 9 || cfg.Seed != 11 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if !cfg.Pretty || !cfg.Overwrite {
		t.Fatalf("Pretty=%v Overwrite=%v", cfg.Pretty, cfg.Overwrite)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := cfg
	bad.Sessions = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for sessions=0")
	}

	bad = cfg
	bad.Messages = 2
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for messages<4")
	}
}

func TestGenerateSession_Shape(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	sess := generateSession(rng, 0, 8)

	if sess.SessionID == "" {
		t.Fatal("empty SessionID")
	}
	if sess.StartTime == nil || *sess.StartTime != float64(seedEpoch) {
		t.Fatalf("StartTime=%v", sess.StartTime)
	}
	if len(sess.Messages) < 16 {
		t.Fatalf("len(Messages)=%d, want >= 16", len(sess.Messages))
	}
	for i, m := range sess.Messages {
		wantAuthor := analysis.AuthorUser
		if i%2 == 1 {
			wantAuthor = analysis.AuthorAgent
		}
		if m.Author != wantAuthor {
			t.Fatalf("Messages[%d].Author=%q, want %q", i, m.Author, wantAuthor)
		}
		if m.Text == "" {
			t.Fatalf("Messages[%d].Text is empty", i)
		}
		if m.Timestamp <= 0 {
			t.Fatalf("Messages[%d].Timestamp=%d", i, m.Timestamp)
		}
		if i > 0 && m.Timestamp <= sess.Messages[i-1].Timestamp {
			t.Fatalf("timestamps not increasing at %d", i)
		}
	}
}

func TestGenerateSession_ProducesAnalyzableCorpus(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(3))
	sess := generateSession(rng, 1, 12)

	a := analysis.AnalyzeConversation(sess.Messages, analysis.AnalyzeOptions{})
	if len(a.Topics) == 0 {
		t.Fatal("generated session yielded no topics")
	}

	evo := analysis.AnalyzeTopicEvolution(sess, nil)
	if len(evo.Timelines) == 0 {
		t.Fatal("generated session yielded no evolution timelines")
	}
}

func TestPickThemes_DeterministicForSeed(t *testing.T) {
	t.Parallel()

	lex := analysis.DefaultLexicon()
	a := pickThemes(rand.New(rand.NewSource(5)), lex, 3)
	b := pickThemes(rand.New(rand.NewSource(5)), lex, 3)
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("len(a)=%d len(b)=%d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("themes differ at %d: %q vs %q", i, a[i], b[i])
		}
	}
}
