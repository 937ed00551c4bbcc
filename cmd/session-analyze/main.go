package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lex, err := analysis.LoadLexiconPacks(cfg.LexiconDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	files, err := collectSessionFiles(cfg.InPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no *.session.json files found")
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -out: %w", err).Error())
		os.Exit(2)
	}

	var prof *analysis.Profiler
	if cfg.Profile {
		prof = analysis.NewProfiler()
	}

	bar := progressbar.Default(int64(len(files)), "analyze sessions")
	var analyzed, skipped int64
	if err := forEachFileConcurrent(ctx, cfg.Concurrency, files, func(ctx context.Context, path string) error {
		wrote, err := processSessionFile(path, cfg, lex, prof)
		if err != nil {
			return err
		}
		if wrote {
			atomic.AddInt64(&analyzed, 1)
		} else {
			atomic.AddInt64(&skipped, 1)
		}
		_ = bar.Add(1)
		return nil
	}); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	indexPath := cfg.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(cfg.OutDir, "analysis_index.jsonl")
	}
	vocabPath := cfg.VocabPath
	if vocabPath == "" {
		vocabPath = filepath.Join(cfg.OutDir, "vocabulary.json")
	}

	if cfg.Reindex {
		records, vocab, err := rebuildFromArtifacts(cfg.OutDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		if err := analysis.WriteAnalysisIndex(indexPath, records, true); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		if cfg.VocabMinCount > 1 {
			analysis.CullVocabulary(&vocab, cfg.VocabMinCount)
		}
		if err := analysis.SaveVocabulary(vocabPath, vocab); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	if prof != nil {
		stages := prof.Snapshot()
		names := make([]string, 0, len(stages))
		for name := range stages {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := stages[name]
			fmt.Fprintf(os.Stderr, "profile stage=%s calls=%d total=%s\n", name, st.Calls, st.Total)
		}
	}

	fmt.Fprintf(os.Stdout, "sessions_analyzed=%d skipped=%d out_dir=%s index=%s vocab=%s\n",
		analyzed, skipped, cfg.OutDir, indexPath, vocabPath)
}

// processSessionFile analyzes one session file and writes the paired
// .analysis.json/.evolution.json artifacts next to its base name. Returns
// false when both artifacts already exist and -overwrite is off.
func processSessionFile(path string, cfg Config, lex *analysis.Lexicon, prof *analysis.Profiler) (bool, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".session.json")
	analysisPath := filepath.Join(cfg.OutDir, base+".analysis.json")
	evolutionPath := filepath.Join(cfg.OutDir, base+".evolution.json")

	if !cfg.Overwrite && fileutils.FileExists(analysisPath) && fileutils.FileExists(evolutionPath) {
		return false, nil
	}

	var sess analysis.Session
	if err := fileutils.ReadJSONFile(path, &sess); err != nil {
		return false, fmt.Errorf("session: %w", err)
	}
	if sess.SessionID == "" {
		sess.SessionID = base
	}

	a := analysis.AnalyzeConversation(sess.Messages, analysis.AnalyzeOptions{
		Lexicon:  lex,
		Profiler: prof,
	})
	evo := analysis.AnalyzeTopicEvolution(sess, lex)

	sa := analysis.SessionAnalysis{
		SessionID:    sess.SessionID,
		Title:        sess.Title,
		StartTime:    sess.StartTime,
		MessageCount: len(sess.Messages),
		Analysis:     a,
	}
	se := analysis.SessionEvolution{
		SessionID: sess.SessionID,
		Title:     sess.Title,
		StartTime: sess.StartTime,
		Evolution: evo,
	}

	if err := fileutils.WriteJSONFileAtomic(analysisPath, sa, cfg.Pretty); err != nil {
		return false, fmt.Errorf("write %s: %w", analysisPath, err)
	}
	if err := fileutils.WriteJSONFileAtomic(evolutionPath, se, cfg.Pretty); err != nil {
		return false, fmt.Errorf("write %s: %w", evolutionPath, err)
	}
	return true, nil
}

// rebuildFromArtifacts re-derives the session index and the custom-topic
// vocabulary from every artifact pair on disk, so resumed and partial runs
// still end with complete, consistent rollups.
func rebuildFromArtifacts(outDir string) ([]analysis.AnalysisIndexRecord, analysis.Vocabulary, error) {
	var paths []string
	if err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(path), ".analysis.json") {
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return nil, analysis.Vocabulary{}, fmt.Errorf("reindex: walk artifacts: %w", err)
	}
	sort.Strings(paths)

	vocab := analysis.Vocabulary{Version: 1, Entries: []analysis.VocabularyEntry{}}
	records := make([]analysis.AnalysisIndexRecord, 0, len(paths))
	for _, p := range paths {
		var sa analysis.SessionAnalysis
		if err := fileutils.ReadJSONFile(p, &sa); err != nil {
			return nil, analysis.Vocabulary{}, fmt.Errorf("reindex: %w", err)
		}
		if sa.SessionID == "" {
			continue
		}

		evolutionPath := strings.TrimSuffix(p, ".analysis.json") + ".evolution.json"
		var se analysis.SessionEvolution
		if err := fileutils.ReadJSONFile(evolutionPath, &se); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, analysis.Vocabulary{}, fmt.Errorf("reindex: %w", err)
		}

		records = append(records, analysis.BuildAnalysisIndexRecord(sa, p, se, evolutionPath))
		analysis.MergeVocabulary(&vocab, sa.Analysis.Topics, sa.StartTime)
	}
	return records, vocab, nil
}

func collectSessionFiles(inPath string) ([]string, error) {
	fi, err := os.Stat(inPath)
	if err != nil {
		return nil, fmt.Errorf("stat -in: %w", err)
	}
	if !fi.IsDir() {
		return nil, errors.New("-in must be a directory containing sessions")
	}

	var files []string
	err = filepath.WalkDir(inPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(path), ".session.json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk sessions dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func forEachFileConcurrent(ctx context.Context, concurrency int, files []string, fn func(context.Context, string) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, concurrency)
	errCh := make(chan error, len(files))

	var wg sync.WaitGroup
	for _, path := range files {
		path := path
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			if err := fn(ctx, path); err != nil {
				errCh <- err
				cancel()
				return
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Directory containing *.session.json files (recursively)")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for analysis/evolution artifacts")
	fs.StringVar(&cfg.LexiconDir, "lexicon-dir", "", "Optional directory of lexicon pack YAML files merged over the built-ins")
	fs.StringVar(&cfg.IndexPath, "index", "", "Optional path for analysis_index.jsonl (default: <out>/analysis_index.jsonl)")
	fs.StringVar(&cfg.VocabPath, "vocab", "", "Optional path for vocabulary.json (default: <out>/vocabulary.json)")
	fs.IntVar(&cfg.VocabMinCount, "vocab-min-count", cfg.VocabMinCount, "Drop vocabulary terms mentioned fewer times than this (0/1 keeps all)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Max concurrent session analyses")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print artifact JSON files")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing artifacts instead of skipping them")
	fs.BoolVar(&cfg.Reindex, "reindex", cfg.Reindex, "Rebuild the index and vocabulary from artifacts at end of run")
	fs.BoolVar(&cfg.Profile, "profile", false, "Print per-stage timing totals to stderr")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/session-analyze -in docs/clinic/sessions -out docs/clinic/analyses")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/session-analyze -overwrite -concurrency 8 -profile")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	if cfg.IndexPath != "" {
		cfg.IndexPath = filepath.Clean(cfg.IndexPath)
	}
	if cfg.VocabPath != "" {
		cfg.VocabPath = filepath.Clean(cfg.VocabPath)
	}
	if cfg.LexiconDir != "" {
		cfg.LexiconDir = filepath.Clean(cfg.LexiconDir)
	}
	return cfg, nil
}
