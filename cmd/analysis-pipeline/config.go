package main

import (
	"errors"
	"path/filepath"
)

func (c Config) Validate() error {
	if c.ArchivePath == "" {
		return errors.New("missing -archive")
	}
	if c.BaseDir == "" {
		return errors.New("missing -base-dir")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.SeedSessions <= 0 || c.SeedMessages < 4 {
		return errors.New("seed-sessions must be > 0 and seed-messages >= 4")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.VocabMinCount < 0 {
		return errors.New("vocab-min-count must be >= 0")
	}
	if c.MaxShardBytes <= 0 {
		return errors.New("max-shard-bytes must be > 0")
	}
	if c.IndexTopicsMax < 0 {
		return errors.New("index-topics-max must be >= 0")
	}
	if c.OnlyStage != "" && c.FromStage != "" {
		return errors.New("use only one of -only-stage or -from-stage")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		ArchivePath:    filepath.FromSlash("docs/clinic/sessions.json"),
		BaseDir:        filepath.FromSlash("docs/clinic"),
		Model:          "gpt-5-mini",
		SeedSessions:   25,
		SeedMessages:   12,
		SeedValue:      42,
		Concurrency:    4,
		VocabMinCount:  2,
		MaxShardBytes:  100 * 1024,
		IndexTopicsMax: 10,
		Pretty:         false,
		Overwrite:      false,
	}
}
