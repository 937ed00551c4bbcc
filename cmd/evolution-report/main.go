package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

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

	reports, err := collectSessionReports(cfg.InPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if len(reports) == 0 {
		fmt.Fprintln(os.Stderr, "no *.analysis.json artifacts found")
		os.Exit(2)
	}

	records, err := analysis.WriteReportShards(reports, analysis.ReportPackOptions{
		OutDir:          cfg.OutDir,
		MaxBytes:        cfg.MaxShardBytes,
		Overwrite:       cfg.Overwrite,
		IncludeClusters: cfg.IncludeClusters,
		IncludeTimeline: cfg.IncludeTimeline,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	indexPath := cfg.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(cfg.OutDir, "report_index.jsonl")
	}
	for i := range records {
		records[i].TopTopics = limitSlice(records[i].TopTopics, cfg.IndexTopicsMax)
		records[i].EmergingTopics = limitSlice(records[i].EmergingTopics, cfg.IndexTopicsMax)
		records[i].DecliningTopics = limitSlice(records[i].DecliningTopics, cfg.IndexTopicsMax)
	}
	if err := analysis.WriteReportIndex(indexPath, records, true); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "sessions_packed=%d out_dir=%s index=%s\n", len(records), cfg.OutDir, indexPath)
}

// collectSessionReports walks the artifacts directory and pairs each
// .analysis.json with its .evolution.json sibling. A missing evolution file
// leaves that half of the report zero-valued.
func collectSessionReports(inPath string) ([]analysis.SessionReport, error) {
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

	reports := make([]analysis.SessionReport, 0, len(paths))
	for _, p := range paths {
		var sa analysis.SessionAnalysis
		if err := fileutils.ReadJSONFile(p, &sa); err != nil {
			return nil, err
		}
		if sa.SessionID == "" {
			continue
		}

		var se analysis.SessionEvolution
		evolutionPath := strings.TrimSuffix(p, ".analysis.json") + ".evolution.json"
		if err := fileutils.ReadJSONFile(evolutionPath, &se); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		reports = append(reports, analysis.SessionReport{Analysis: sa, Evolution: se})
	}
	return reports, nil
}

func limitSlice(in []string, max int) []string {
	if max <= 0 || len(in) <= max {
		return in
	}
	return in[:max]
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Directory containing *.analysis.json/*.evolution.json artifacts")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for markdown report shards")
	fs.StringVar(&cfg.IndexPath, "index", "", "Optional path for report_index.jsonl (default: <out>/report_index.jsonl)")
	fs.IntVar(&cfg.MaxShardBytes, "max-bytes", cfg.MaxShardBytes, "Max UTF-8 bytes per markdown shard file")
	fs.IntVar(&cfg.IndexTopicsMax, "index-topics-max", cfg.IndexTopicsMax, "Max topic labels stored in index rows (0 disables limiting)")
	fs.BoolVar(&cfg.IncludeClusters, "clusters", cfg.IncludeClusters, "Include the cluster list under each session")
	fs.BoolVar(&cfg.IncludeTimeline, "timeline", cfg.IncludeTimeline, "Include per-topic evolution lines under each session")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing shard files")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/evolution-report -in docs/clinic/analyses -out docs/clinic/reports")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/evolution-report -max-bytes 65536 -timeline=false")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	if cfg.IndexPath != "" {
		cfg.IndexPath = filepath.Clean(cfg.IndexPath)
	}
	return cfg, nil
}
