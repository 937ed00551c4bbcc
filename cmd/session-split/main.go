package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
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

	res, err := analysis.SplitSessionArchive(ctx, cfg.InputPath, cfg.OutputDir, analysis.SplitOptions{
		ArrayField:        cfg.ArrayField,
		OverwriteExisting: cfg.Overwrite,
		Pretty:            cfg.Pretty,
		DirMode:           0o755,
		FileMode:          0o644,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "sessions_written=%d bytes_written=%d out_dir=%s\n", res.SessionsWritten, res.BytesWritten, cfg.OutputDir)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	// Avoid mutating the global FlagSet if called from tests.
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to sessions.json (full session archive export)")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory to write per-session JSON files into")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print each output JSON file (more CPU/memory per session)")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")
	fs.StringVar(&cfg.ArrayField, "array-field", "", "If top-level JSON is an object, name of field containing sessions array (e.g. sessions)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/session-split -pretty -overwrite")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/session-split -in docs/clinic/sessions.json -out docs/clinic/sessions")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	return cfg, nil
}
