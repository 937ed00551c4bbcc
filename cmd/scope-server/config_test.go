package main

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SCOPE_ADDR", "")
	t.Setenv("SCOPE_DB_PATH", "")
	t.Setenv("SCOPE_RATE_RPS", "")

	cfg := loadConfig()
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.DBPath != "scope.db" {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
	if cfg.RateRPS != 10 || cfg.RateBurst != 20 {
		t.Fatalf("rate = %v/%d", cfg.RateRPS, cfg.RateBurst)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout = %s", cfg.ShutdownTimeout)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SCOPE_ADDR", ":9999")
	t.Setenv("SCOPE_DB_PATH", "/tmp/other.db")
	t.Setenv("SCOPE_LEXICON_DIR", "/tmp/packs")
	t.Setenv("SCOPE_RATE_RPS", "2.5")
	t.Setenv("SCOPE_RATE_BURST", "7")
	t.Setenv("SCOPE_LOG_LEVEL", "debug")
	t.Setenv("SCOPE_LOG_JSON", "true")
	t.Setenv("SCOPE_SHUTDOWN_TIMEOUT", "3s")

	cfg := loadConfig()
	if cfg.Addr != ":9999" || cfg.DBPath != "/tmp/other.db" || cfg.LexiconDir != "/tmp/packs" {
		t.Fatalf("paths = %q/%q/%q", cfg.Addr, cfg.DBPath, cfg.LexiconDir)
	}
	if cfg.RateRPS != 2.5 || cfg.RateBurst != 7 {
		t.Fatalf("rate = %v/%d", cfg.RateRPS, cfg.RateBurst)
	}
	if cfg.LogLevel != "debug" || !cfg.LogJSON {
		t.Fatalf("log = %q json=%v", cfg.LogLevel, cfg.LogJSON)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout = %s", cfg.ShutdownTimeout)
	}
}

func TestGetenvParsingFallsBack(t *testing.T) {
	t.Setenv("SCOPE_TEST_INT", "not-a-number")
	t.Setenv("SCOPE_TEST_BOOL", "not-a-bool")
	t.Setenv("SCOPE_TEST_FLOAT", "not-a-float")
	t.Setenv("SCOPE_TEST_DUR", "not-a-duration")

	if got := getenvInt("SCOPE_TEST_INT", 42); got != 42 {
		t.Fatalf("getenvInt = %d", got)
	}
	if got := getenvBool("SCOPE_TEST_BOOL", true); got != true {
		t.Fatalf("getenvBool = %v", got)
	}
	if got := getenvFloat("SCOPE_TEST_FLOAT", 1.5); got != 1.5 {
		t.Fatalf("getenvFloat = %v", got)
	}
	if got := getenvDuration("SCOPE_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("getenvDuration = %s", got)
	}
}
