package main

import (
	"errors"
	"path/filepath"
)

type Config struct {
	InPath        string
	OutDir        string
	LexiconDir    string
	IndexPath     string
	VocabPath     string
	VocabMinCount int
	Concurrency   int
	Pretty        bool
	Overwrite     bool
	Reindex       bool
	Profile       bool
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutDir == "" {
		return errors.New("missing -out")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.VocabMinCount < 0 {
		return errors.New("vocab-min-count must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:      filepath.FromSlash("docs/clinic/sessions"),
		OutDir:      filepath.FromSlash("docs/clinic/analyses"),
		Concurrency: 4,
		Reindex:     true,
	}
}
