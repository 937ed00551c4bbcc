package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
	"github.com/theimaginaryfoundation/shrink-o-scope/analysis/fileutils"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	gofakeit.Seed(cfg.Seed)
	rng := rand.New(rand.NewSource(cfg.Seed))

	sessions := make([]analysis.Session, 0, cfg.Sessions)
	bar := progressbar.Default(int64(cfg.Sessions), "seed sessions")
	for i := 0; i < cfg.Sessions; i++ {
		sessions = append(sessions, generateSession(rng, i, cfg.Messages))
		_ = bar.Add(1)
	}

	if cfg.ArchivePath != "" {
		archive := struct {
			Sessions []analysis.Session `json:"sessions"`
		}{Sessions: sessions}
		if !cfg.Overwrite && fileutils.FileExists(cfg.ArchivePath) {
			fmt.Fprintln(os.Stderr, "archive exists (use -overwrite):", cfg.ArchivePath)
			os.Exit(1)
		}
		if err := fileutils.WriteJSONFileAtomic(cfg.ArchivePath, archive, cfg.Pretty); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "sessions_written=%d archive=%s seed=%d\n", len(sessions), cfg.ArchivePath, cfg.Seed)
		return
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -out: %w", err).Error())
		os.Exit(1)
	}
	written := 0
	for _, sess := range sessions {
		outPath := filepath.Join(cfg.OutDir, sess.SessionID+".session.json")
		if !cfg.Overwrite && fileutils.FileExists(outPath) {
			continue
		}
		if err := fileutils.WriteJSONFileAtomic(outPath, sess, cfg.Pretty); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		written++
	}
	fmt.Fprintf(os.Stdout, "sessions_written=%d out_dir=%s seed=%d\n", written, cfg.OutDir, cfg.Seed)
}

// seedEpoch anchors generated timelines so a given seed reproduces the same corpus.
const seedEpoch = 1704067200 // 2024-01-01T00:00:00Z

var userPhrases = []string{
	"i keep thinking about my %s",
	"my %s has been really hard this week",
	"i wanted to talk about %s again",
	"everything comes back to %s somehow",
	"the %s got worse since last time",
}

func generateSession(rng *rand.Rand, ordinal, targetMessages int) analysis.Session {
	lex := analysis.DefaultLexicon()

	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		id = uuid.Nil
	}

	// Each session drifts through a few themes so transitions show up downstream.
	themes := pickThemes(rng, lex, 2+rng.Intn(2))
	n := targetMessages + rng.Intn(5)
	if n < 4 {
		n = 4
	}

	// A long fake token repeated across messages surfaces as a discovered topic.
	pet := strings.ToLower(gofakeit.BuzzWord())
	pet = strings.ReplaceAll(pet, " ", "")

	start := int64(seedEpoch + ordinal*86400)
	startSecs := float64(start)
	ts := start * 1000

	msgs := make([]analysis.Message, 0, n*2)
	for i := 0; i < n; i++ {
		phase := i * len(themes) / n
		kws := lex.EvolutionTopics[themes[phase]]
		kw := kws[rng.Intn(len(kws))]

		text := fmt.Sprintf(userPhrases[rng.Intn(len(userPhrases))], kw)
		if i == 0 {
			// Opening line every session shares; keeps even tiny corpora analyzable.
			text += " and honestly the stress is wrecking my sleep"
		}
		if i%3 == 0 {
			text += " and the " + pet + " situation too"
		}
		msgs = append(msgs, analysis.Message{
			Author:    analysis.AuthorUser,
			Text:      text,
			Timestamp: ts,
		})
		ts += int64(30+rng.Intn(60)) * 1000

		msgs = append(msgs, analysis.Message{
			Author:    analysis.AuthorAgent,
			Text:      strings.ToUpper(gofakeit.Question()),
			Timestamp: ts,
		})
		ts += int64(30+rng.Intn(60)) * 1000
	}

	return analysis.Session{
		SessionID: id.String(),
		Title:     gofakeit.HipsterSentence(4),
		StartTime: &startSecs,
		Messages:  msgs,
	}
}

func pickThemes(rng *rand.Rand, lex *analysis.Lexicon, count int) []string {
	ids := make([]string, 0, len(lex.EvolutionTopics))
	for id := range lex.EvolutionTopics {
		ids = append(ids, id)
	}
	// Map order is random; sort first so the seeded shuffle is reproducible.
	sort.Strings(ids)
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if count > len(ids) {
		count = len(ids)
	}
	return ids[:count]
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory to write per-session JSON files into")
	fs.StringVar(&cfg.ArchivePath, "archive", "", "Write one archive JSON file instead of per-session files")
	fs.IntVar(&cfg.Sessions, "sessions", cfg.Sessions, "Number of sessions to generate")
	fs.IntVar(&cfg.Messages, "messages", cfg.Messages, "Approximate user messages per session")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed (same seed reproduces the same corpus)")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print output JSON files")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/session-seed -sessions 50 -out docs/clinic/sessions")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/session-seed -archive docs/clinic/sessions.json -seed 7")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	if cfg.ArchivePath != "" {
		cfg.ArchivePath = filepath.Clean(cfg.ArchivePath)
	}
	return cfg, nil
}
