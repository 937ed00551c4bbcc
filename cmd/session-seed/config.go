package main

import (
	"errors"
	"path/filepath"
)

type Config struct {
	OutDir      string
	ArchivePath string
	Sessions    int
	Messages    int
	Seed        int64
	Pretty      bool
	Overwrite   bool
}

func (c Config) Validate() error {
	if c.OutDir == "" && c.ArchivePath == "" {
		return errors.New("missing -out (or -archive)")
	}
	if c.Sessions <= 0 {
		return errors.New("sessions must be > 0")
	}
	if c.Messages < 4 {
		return errors.New("messages must be >= 4")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		OutDir:   filepath.FromSlash("docs/clinic/sessions"),
		Sessions: 25,
		Messages: 12,
		Seed:     42,
	}
}
