package main

import (
	"errors"
	"path/filepath"
)

type Config struct {
	InPath          string
	OutDir          string
	IndexPath       string
	MaxShardBytes   int
	IndexTopicsMax  int
	IncludeClusters bool
	IncludeTimeline bool
	Overwrite       bool
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutDir == "" {
		return errors.New("missing -out")
	}
	if c.MaxShardBytes <= 0 {
		return errors.New("max-bytes must be > 0")
	}
	if c.IndexTopicsMax < 0 {
		return errors.New("index-topics-max must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:          filepath.FromSlash("docs/clinic/analyses"),
		OutDir:          filepath.FromSlash("docs/clinic/reports"),
		MaxShardBytes:   100 * 1024,
		IndexTopicsMax:  10,
		IncludeClusters: true,
		IncludeTimeline: true,
	}
}
