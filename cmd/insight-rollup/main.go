package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/sony/gobreaker"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
	"github.com/theimaginaryfoundation/shrink-o-scope/analysis/fileutils"
	"github.com/theimaginaryfoundation/shrink-o-scope/analysis/provider"
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

	entries, err := loadReportEntries(cfg.InPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no *.analysis.json artifacts found")
		os.Exit(2)
	}

	if cfg.DryRun {
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "plan session=%s out=%s\n", e.report.Analysis.SessionID, filepath.Join(cfg.OutDir, e.base+".insight.json"))
		}
		fmt.Fprintf(os.Stdout, "sessions_planned=%d out_dir=%s\n", len(entries), cfg.OutDir)
		return
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -out: %w", err).Error())
		os.Exit(2)
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	caller := provider.NewCaller(&client, provider.CallerOptions{
		RequestsPerMinute:  cfg.RPM,
		BreakerMaxFailures: uint32(cfg.BreakerMaxFailures),
		BreakerCooldown:    cfg.BreakerCooldown,
	})
	writer := openAIInsightWriter{caller: caller, model: cfg.Model}

	start := time.Now()
	total := int64(len(entries))
	var processed, skipped int64
	if err := forEachEntryConcurrent(ctx, cfg.Concurrency, entries, func(ctx context.Context, e reportEntry) error {
		wrote, err := processSessionInsight(ctx, cfg, e, writer)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				return fmt.Errorf("circuit open after repeated failures, aborting: %w", err)
			}
			return err
		}
		if wrote {
			n := atomic.AddInt64(&processed, 1)
			fmt.Fprintf(os.Stderr, "progress insight-rollup: %d/%d sessions (last=%s elapsed=%s)\n",
				n+atomic.LoadInt64(&skipped), total, e.report.Analysis.SessionID, time.Since(start).Round(time.Second))
		} else {
			atomic.AddInt64(&skipped, 1)
		}
		return nil
	}); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	overviewPath := ""
	if cfg.Overview {
		overviewPath = filepath.Join(cfg.OutDir, "overview.insight.json")
		if err := writeOverview(ctx, cfg, writer, overviewPath); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	if overviewPath != "" {
		fmt.Fprintf(os.Stdout, "sessions_processed=%d skipped=%d out_dir=%s overview=%s breaker=%s\n",
			processed, skipped, cfg.OutDir, overviewPath, caller.State())
	} else {
		fmt.Fprintf(os.Stdout, "sessions_processed=%d skipped=%d out_dir=%s breaker=%s\n",
			processed, skipped, cfg.OutDir, caller.State())
	}
}

type reportEntry struct {
	report analysis.SessionReport
	base   string
}

func processSessionInsight(ctx context.Context, cfg Config, e reportEntry, writer openAIInsightWriter) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	outPath := filepath.Join(cfg.OutDir, e.base+".insight.json")
	need := cfg.Overwrite || !fileutils.FileExists(outPath)
	if !need {
		if !cfg.Resume {
			return false, fmt.Errorf("insight exists: %s", outPath)
		}
		return false, nil
	}

	ins, err := writer.Insight(ctx, e.report)
	if err != nil {
		return false, fmt.Errorf("failed insight %s: %w", e.report.Analysis.SessionID, err)
	}
	if err := fileutils.WriteJSONFileAtomic(outPath, ins, cfg.Pretty); err != nil {
		return false, err
	}
	return true, nil
}

func writeOverview(ctx context.Context, cfg Config, writer openAIInsightWriter, overviewPath string) error {
	insights, err := loadSessionInsights(cfg.OutDir, filepath.Base(overviewPath))
	if err != nil {
		return err
	}
	if len(insights) == 0 {
		return errors.New("overview: no session insights to merge")
	}

	windows := chunkWindows(insights, cfg.MaxSessionsPerCall)
	var ov overviewInsight
	if len(windows) == 1 {
		ov, err = writer.Overview(ctx, windows[0], len(insights))
		if err != nil {
			return fmt.Errorf("failed overview: %w", err)
		}
	} else {
		parts := make([]overviewInsight, 0, len(windows))
		for i, win := range windows {
			part, err := writer.Overview(ctx, win, len(win))
			if err != nil {
				return fmt.Errorf("failed overview part %d/%d: %w", i+1, len(windows), err)
			}
			parts = append(parts, part)
		}
		ov, err = writer.OverviewFromParts(ctx, parts, len(insights))
		if err != nil {
			return fmt.Errorf("failed overview merge: %w", err)
		}
	}
	return fileutils.WriteJSONFileAtomic(overviewPath, ov, cfg.Pretty)
}

func loadReportEntries(inPath string) ([]reportEntry, error) {
	fi, err := os.Stat(inPath)
	if err != nil {
		return nil, fmt.Errorf("stat -in: %w", err)
	}
	if !fi.IsDir() {
		return nil, errors.New("-in must be a directory containing analysis artifacts")
	}

	var paths []string
	if err := filepath.WalkDir(inPath, func(path string, d fs.DirEntry, err error) error {
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
		return nil, fmt.Errorf("walk artifacts dir: %w", err)
	}
	sort.Strings(paths)

	entries := make([]reportEntry, 0, len(paths))
	for _, p := range paths {
		var sa analysis.SessionAnalysis
		if err := fileutils.ReadJSONFile(p, &sa); err != nil {
			return nil, err
		}
		if sa.SessionID == "" {
			continue
		}

		// The evolution artifact is optional; sessions analyzed before the
		// evolution pass existed simply don't have one.
		var se analysis.SessionEvolution
		evolutionPath := strings.TrimSuffix(p, ".analysis.json") + ".evolution.json"
		if err := fileutils.ReadJSONFile(evolutionPath, &se); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		entries = append(entries, reportEntry{
			report: analysis.SessionReport{Analysis: sa, Evolution: se},
			base:   strings.TrimSuffix(filepath.Base(p), ".analysis.json"),
		})
	}
	return entries, nil
}

func loadSessionInsights(dir, excludeName string) ([]analysis.SessionInsight, error) {
	var paths []string
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Base(path) == excludeName {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(path), ".insight.json") {
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("overview: walk insights: %w", err)
	}
	sort.Strings(paths)

	insights := make([]analysis.SessionInsight, 0, len(paths))
	for _, p := range paths {
		var ins analysis.SessionInsight
		if err := fileutils.ReadJSONFile(p, &ins); err != nil {
			return nil, fmt.Errorf("overview: %w", err)
		}
		if ins.SessionID == "" {
			continue
		}
		insights = append(insights, ins)
	}

	sort.SliceStable(insights, func(i, j int) bool {
		si, sj := 0.0, 0.0
		if insights[i].StartTime != nil {
			si = *insights[i].StartTime
		}
		if insights[j].StartTime != nil {
			sj = *insights[j].StartTime
		}
		if si != sj {
			return si < sj
		}
		return insights[i].SessionID < insights[j].SessionID
	})
	return insights, nil
}

func chunkWindows[T any](in []T, max int) [][]T {
	if max <= 0 || len(in) <= max {
		return [][]T{in}
	}
	out := make([][]T, 0, (len(in)+max-1)/max)
	for start := 0; start < len(in); start += max {
		end := start + max
		if end > len(in) {
			end = len(in)
		}
		out = append(out, in[start:end])
	}
	return out
}

func forEachEntryConcurrent(ctx context.Context, concurrency int, entries []reportEntry, fn func(context.Context, reportEntry) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, concurrency)
	errCh := make(chan error, len(entries))

	var wg sync.WaitGroup
	for _, e := range entries {
		e := e
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			if err := fn(ctx, e); err != nil {
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

type insightResponse struct {
	Headline    string   `json:"headline"`
	Narrative   string   `json:"narrative"`
	Themes      []string `json:"themes"`
	Risks       []string `json:"risks"`
	Suggestions []string `json:"suggestions"`
}

// overviewInsight is the corpus-level artifact written next to the
// per-session insights.
type overviewInsight struct {
	Sessions int `json:"sessions"`

	Headline    string   `json:"headline"`
	Narrative   string   `json:"narrative"`
	Themes      []string `json:"themes,omitempty"`
	Risks       []string `json:"risks,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`

	Model string `json:"model,omitempty"`
}

var insightSchema = provider.GenerateSchema[insightResponse]()

type openAIInsightWriter struct {
	caller *provider.Caller
	model  string
}

func (w openAIInsightWriter) Insight(ctx context.Context, rep analysis.SessionReport) (analysis.SessionInsight, error) {
	if w.caller == nil {
		return analysis.SessionInsight{}, errors.New("openAIInsightWriter: caller is nil")
	}
	if w.model == "" {
		return analysis.SessionInsight{}, errors.New("openAIInsightWriter: model is empty")
	}

	var out insightResponse
	if err := w.call(ctx, "SessionInsight", insightPrompt, buildInsightInput(rep), &out); err != nil {
		return analysis.SessionInsight{}, err
	}

	sa := rep.Analysis
	return analysis.SessionInsight{
		SessionID:   sa.SessionID,
		Title:       sa.Title,
		StartTime:   sa.StartTime,
		Headline:    strings.TrimSpace(out.Headline),
		Narrative:   strings.TrimSpace(out.Narrative),
		Themes:      out.Themes,
		Risks:       out.Risks,
		Suggestions: out.Suggestions,
		Model:       w.model,
	}, nil
}

func (w openAIInsightWriter) Overview(ctx context.Context, insights []analysis.SessionInsight, sessions int) (overviewInsight, error) {
	if w.caller == nil {
		return overviewInsight{}, errors.New("openAIInsightWriter: caller is nil")
	}
	if w.model == "" {
		return overviewInsight{}, errors.New("openAIInsightWriter: model is empty")
	}

	var out insightResponse
	if err := w.call(ctx, "CorpusOverview", overviewPrompt, buildOverviewInput(insights), &out); err != nil {
		return overviewInsight{}, err
	}
	return overviewInsight{
		Sessions:    sessions,
		Headline:    strings.TrimSpace(out.Headline),
		Narrative:   strings.TrimSpace(out.Narrative),
		Themes:      out.Themes,
		Risks:       out.Risks,
		Suggestions: out.Suggestions,
		Model:       w.model,
	}, nil
}

func (w openAIInsightWriter) OverviewFromParts(ctx context.Context, parts []overviewInsight, sessions int) (overviewInsight, error) {
	if w.caller == nil {
		return overviewInsight{}, errors.New("openAIInsightWriter: caller is nil")
	}

	var out insightResponse
	if err := w.call(ctx, "CorpusOverview", overviewMergePrompt, buildOverviewMergeInput(parts), &out); err != nil {
		return overviewInsight{}, err
	}
	return overviewInsight{
		Sessions:    sessions,
		Headline:    strings.TrimSpace(out.Headline),
		Narrative:   strings.TrimSpace(out.Narrative),
		Themes:      out.Themes,
		Risks:       out.Risks,
		Suggestions: out.Suggestions,
		Model:       w.model,
	}, nil
}

// call runs one schema-constrained request, retrying once with more output
// room when the model's JSON comes back truncated.
func (w openAIInsightWriter) call(ctx context.Context, schemaName, prompt, input string, out *insightResponse) error {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        schemaName,
			Schema:      insightSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Session insight JSON"),
			Type:        "json_schema",
		},
	}

	var lastOut string
	for attempt := 0; attempt < 2; attempt++ {
		var maxOut int64 = 2200
		instructions := prompt
		if attempt == 1 {
			maxOut = 4000
			instructions = prompt + "\n\nIMPORTANT: Ensure the JSON is complete and valid. If needed, shorten themes/risks/suggestions to fit."
		}

		params := responses.ResponseNewParams{
			Model:           w.model,
			MaxOutputTokens: openai.Int(maxOut),
			Instructions:    openai.String(instructions),
			ServiceTier:     responses.ResponseNewParamsServiceTierFlex,
			Input: responses.ResponseNewParamsInputUnion{
				OfInputItemList: []responses.ResponseInputItemUnionParam{
					responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
				},
			},
			Text: responses.ResponseTextConfigParam{
				Format: format,
			},
		}

		resp, err := w.caller.Call(ctx, params)
		if err != nil {
			return err
		}

		lastOut = resp.OutputText()
		if err := fileutils.DecodeModelJSON(lastOut, out); err != nil {
			if attempt == 0 && isRecoverableModelJSONError(err) {
				continue
			}
			return fmt.Errorf("unmarshal insight: %w (model_output_prefix=%q)", err, fileutils.Truncate(lastOut, 500))
		}
		break
	}
	return nil
}

func isJSONTruncationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unexpected end of json input") ||
		strings.Contains(s, "unexpected eof")
}

func isRecoverableModelJSONError(err error) bool {
	if err == nil {
		return false
	}
	if isJSONTruncationError(err) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "no json object found in model output")
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Directory containing *.analysis.json/*.evolution.json artifacts")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for per-session insight JSON files")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use (e.g. gpt-5-mini)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.IntVar(&cfg.RPM, "rpm", cfg.RPM, "Request budget per minute shared across workers")
	fs.IntVar(&cfg.BreakerMaxFailures, "breaker-max-failures", cfg.BreakerMaxFailures, "Consecutive failures before the circuit opens")
	fs.DurationVar(&cfg.BreakerCooldown, "breaker-cooldown", cfg.BreakerCooldown, "How long the circuit stays open before a trial request")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Max concurrent session insights")
	fs.IntVar(&cfg.MaxSessionsPerCall, "max-sessions-per-call", cfg.MaxSessionsPerCall, "Max session insights per overview call before splitting into parts (0 disables)")
	fs.BoolVar(&cfg.Overview, "overview", cfg.Overview, "Also write a merged corpus overview insight")
	fs.BoolVar(&cfg.Resume, "resume", cfg.Resume, "Skip sessions that already have insight files")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing insight files")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print insight JSON files")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Print the work plan without calling the API")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/insight-rollup -in docs/clinic/analyses -out docs/clinic/insights -model gpt-5-mini")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/insight-rollup -dry-run")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	return cfg, nil
}
