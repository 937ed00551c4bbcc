package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

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

	ctx := context.Background()

	stages := []string{"split", "analyze", "report", "rollup"}
	if cfg.Seed {
		// Seeding and splitting both fill the sessions dir; use one or the other.
		stages[0] = "seed"
	}
	if cfg.OnlyStage != "" {
		stages = []string{cfg.OnlyStage}
	} else if cfg.FromStage != "" {
		stages = stagesFrom(stages, cfg.FromStage)
	}

	base := filepath.Clean(cfg.BaseDir)
	archive := filepath.Clean(cfg.ArchivePath)

	sessionsDir := filepath.Join(base, "sessions")
	analysesDir := filepath.Join(base, "analyses")
	reportsDir := filepath.Join(base, "reports")
	insightsDir := filepath.Join(base, "insights")

	for _, stage := range stages {
		switch stage {
		case "seed":
			if !cfg.Overwrite && dirHasJSON(sessionsDir) {
				fmt.Fprintln(os.Stdout, "skip seed: sessions already exist")
				continue
			}
			args := []string{
				"run", "./cmd/session-seed",
				"-out", sessionsDir,
				"-sessions", fmt.Sprintf("%d", cfg.SeedSessions),
				"-messages", fmt.Sprintf("%d", cfg.SeedMessages),
				"-seed", fmt.Sprintf("%d", cfg.SeedValue),
			}
			if cfg.Pretty {
				args = append(args, "-pretty")
			}
			if cfg.Overwrite {
				args = append(args, "-overwrite")
			}
			if err := runGo(ctx, cfg.DryRun, args...); err != nil {
				os.Exit(1)
			}
		case "split":
			if !cfg.Overwrite && dirHasJSON(sessionsDir) {
				fmt.Fprintln(os.Stdout, "skip split: sessions already exist")
				continue
			}
			args := []string{
				"run", "./cmd/session-split",
				"-in", archive,
				"-out", sessionsDir,
			}
			if cfg.Pretty {
				args = append(args, "-pretty")
			}
			if cfg.Overwrite {
				args = append(args, "-overwrite")
			}
			if err := runGo(ctx, cfg.DryRun, args...); err != nil {
				os.Exit(1)
			}
		case "analyze":
			args := []string{
				"run", "./cmd/session-analyze",
				"-in", sessionsDir,
				"-out", analysesDir,
				"-reindex=true",
				"-concurrency", fmt.Sprintf("%d", cfg.Concurrency),
				"-vocab-min-count", fmt.Sprintf("%d", cfg.VocabMinCount),
			}
			if cfg.LexiconDir != "" {
				args = append(args, "-lexicon-dir", cfg.LexiconDir)
			}
			if cfg.Pretty {
				args = append(args, "-pretty")
			}
			if cfg.Overwrite {
				args = append(args, "-overwrite")
			}
			if err := runGo(ctx, cfg.DryRun, args...); err != nil {
				os.Exit(1)
			}
		case "report":
			args := []string{
				"run", "./cmd/evolution-report",
				"-in", analysesDir,
				"-out", reportsDir,
				"-max-bytes", fmt.Sprintf("%d", cfg.MaxShardBytes),
				"-index-topics-max", fmt.Sprintf("%d", cfg.IndexTopicsMax),
			}
			if cfg.Overwrite {
				args = append(args, "-overwrite")
			}
			if err := runGo(ctx, cfg.DryRun, args...); err != nil {
				os.Exit(1)
			}

			// Ship the vocabulary alongside the report shards for convenience.
			if !cfg.DryRun {
				vocabSrc := filepath.Join(analysesDir, "vocabulary.json")
				dst := filepath.Join(reportsDir, "vocabulary.json")
				copied, err := fileutils.CopyFileIfExists(vocabSrc, dst, cfg.Overwrite)
				if err != nil {
					fmt.Fprintln(os.Stderr, "failed copying vocabulary:", err.Error())
					os.Exit(1)
				}
				if copied {
					fmt.Fprintln(os.Stdout, "copied vocabulary:", dst)
				}
			}
		case "rollup":
			args := []string{
				"run", "./cmd/insight-rollup",
				"-in", analysesDir,
				"-out", insightsDir,
				"-model", cfg.Model,
				"-resume=true",
				"-concurrency", fmt.Sprintf("%d", cfg.Concurrency),
			}
			if cfg.Pretty {
				args = append(args, "-pretty")
			}
			if cfg.Overwrite {
				args = append(args, "-overwrite")
			}
			if err := runGo(ctx, cfg.DryRun, args...); err != nil {
				os.Exit(1)
			}
		default:
			fmt.Fprintln(os.Stderr, "unknown stage:", stage)
			os.Exit(2)
		}
	}
}

type Config struct {
	ArchivePath string
	BaseDir     string
	LexiconDir  string

	Model string

	Seed         bool
	SeedSessions int
	SeedMessages int
	SeedValue    int64

	Concurrency   int
	VocabMinCount int

	MaxShardBytes  int
	IndexTopicsMax int

	FromStage string
	OnlyStage string

	Pretty    bool
	Overwrite bool
	DryRun    bool
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ArchivePath, "archive", cfg.ArchivePath, "Path to the sessions.json archive export (split stage input)")
	fs.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "Base output directory (defaults to docs/clinic)")
	fs.StringVar(&cfg.LexiconDir, "lexicon-dir", "", "Optional directory of lexicon pack YAML files")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model for the insight roll-up (uses OPENAI_API_KEY)")

	fs.BoolVar(&cfg.Seed, "seed", false, "Generate a synthetic corpus instead of splitting an archive")
	fs.IntVar(&cfg.SeedSessions, "seed-sessions", cfg.SeedSessions, "Sessions to generate when seeding")
	fs.IntVar(&cfg.SeedMessages, "seed-messages", cfg.SeedMessages, "Approximate user messages per seeded session")
	fs.Int64Var(&cfg.SeedValue, "seed-value", cfg.SeedValue, "Random seed for the seeded corpus")

	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Concurrent sessions in the analyze and rollup stages")
	fs.IntVar(&cfg.VocabMinCount, "vocab-min-count", cfg.VocabMinCount, "Drop vocabulary terms mentioned fewer times than this (0/1 keeps all)")

	fs.IntVar(&cfg.MaxShardBytes, "max-shard-bytes", cfg.MaxShardBytes, "Max UTF-8 bytes per markdown report shard")
	fs.IntVar(&cfg.IndexTopicsMax, "index-topics-max", cfg.IndexTopicsMax, "Max topic labels stored in report index rows (0 disables limiting)")

	fs.StringVar(&cfg.FromStage, "from-stage", "", "Start at stage: split|analyze|report|rollup (seed replaces split with -seed)")
	fs.StringVar(&cfg.OnlyStage, "only-stage", "", "Run only one stage: seed|split|analyze|report|rollup")

	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print JSON outputs where supported")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite existing outputs (disables resume behavior)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Print each stage command without running it")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/analysis-pipeline -archive docs/clinic/sessions.json")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/analysis-pipeline -seed -only-stage seed")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/analysis-pipeline -from-stage report -overwrite")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func runGo(ctx context.Context, dryRun bool, args ...string) error {
	if dryRun {
		fmt.Fprintln(os.Stdout, "plan:", "go "+strings.Join(args, " "))
		return nil
	}

	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "command failed:", "go "+strings.Join(args, " "))
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		return err
	}
	fmt.Fprintln(os.Stdout, "ok:", "go "+strings.Join(args, " "), "(", time.Since(start).Round(time.Millisecond).String()+")")
	return nil
}

func stagesFrom(stages []string, from string) []string {
	from = strings.ToLower(strings.TrimSpace(from))
	for i, s := range stages {
		if s == from {
			return stages[i:]
		}
	}
	return stages
}

func dirHasJSON(dir string) bool {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
			return true
		}
	}
	return false
}
