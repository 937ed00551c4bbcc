package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr       string
	DBPath     string
	LexiconDir string

	RateRPS   float64
	RateBurst int

	LogLevel string
	LogJSON  bool

	ShutdownTimeout time.Duration
}

// loadConfig reads the environment, after loading an optional .env file.
// Every value has a working default so the server starts with no setup.
func loadConfig() Config {
	for _, path := range []string{".env", "docs/clinic/.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				break
			}
		}
	}

	return Config{
		Addr:            getenv("SCOPE_ADDR", ":8080"),
		DBPath:          getenv("SCOPE_DB_PATH", "scope.db"),
		LexiconDir:      os.Getenv("SCOPE_LEXICON_DIR"),
		RateRPS:         getenvFloat("SCOPE_RATE_RPS", 10),
		RateBurst:       getenvInt("SCOPE_RATE_BURST", 20),
		LogLevel:        getenv("SCOPE_LOG_LEVEL", "info"),
		LogJSON:         getenvBool("SCOPE_LOG_JSON", false),
		ShutdownTimeout: getenvDuration("SCOPE_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
