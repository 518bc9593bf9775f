package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by CONCORD_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CONCORD_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DataDir is the root directory for file-backed storage.
// Defaults to ./data/evolution.
func DataDir() string {
	dir := os.Getenv("DATA_DIR")
	if dir == "" {
		return "./data/evolution"
	}
	return dir
}

// StorageBackend selects the persistence layer.
// Valid values: file, postgres. Defaults to "file".
func StorageBackend() string {
	b := os.Getenv("STORAGE_BACKEND")
	if b == "" {
		return "file"
	}
	return b
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// MinVotes is the minimum tally size before auto-resolution is considered.
// Defaults to 10.
func MinVotes() int {
	n, err := strconv.Atoi(os.Getenv("MIN_VOTES"))
	if err != nil || n <= 0 {
		return 10
	}
	return n
}

// WinRatio is the vote share a choice needs to win automatically.
// Defaults to 0.7.
func WinRatio() float64 {
	r, err := strconv.ParseFloat(os.Getenv("WIN_RATIO"), 64)
	if err != nil || r <= 0 || r > 1 {
		return 0.7
	}
	return r
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
