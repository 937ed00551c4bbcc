package main

import (
	"errors"
	"path/filepath"
	"time"
)

type Config struct {
	InPath string
	OutDir string
	Model  string
	APIKey string

	RPM                int
	BreakerMaxFailures int
	BreakerCooldown    time.Duration

	Concurrency        int
	MaxSessionsPerCall int

	Overview  bool
	Resume    bool
	Overwrite bool
	Pretty    bool
	DryRun    bool
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutDir == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.RPM <= 0 {
		return errors.New("rpm must be > 0")
	}
	if c.BreakerMaxFailures <= 0 {
		return errors.New("breaker-max-failures must be > 0")
	}
	if c.BreakerCooldown <= 0 {
		return errors.New("breaker-cooldown must be > 0")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.MaxSessionsPerCall < 0 {
		return errors.New("max-sessions-per-call must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:             filepath.FromSlash("docs/clinic/analyses"),
		OutDir:             filepath.FromSlash("docs/clinic/insights"),
		Model:              "gpt-5-mini",
		RPM:                30,
		BreakerMaxFailures: 3,
		BreakerCooldown:    30 * time.Second,
		Concurrency:        4,
		MaxSessionsPerCall: 12,
		Overview:           true,
		Resume:             true,
	}
}
