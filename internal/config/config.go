// Package config loads both programs' settings from environment variables,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server is the backend's configuration.
type Server struct {
	Port            int
	DBPath          string
	JWTSecret       string
	CleanupInterval time.Duration
	Retention       time.Duration
	LogLevel        slog.Level
}

// Client is the wishlist client's configuration.
type Client struct {
	APIURL   string
	APIKey   string
	StateDir string
	Addr     string
	LogLevel slog.Level
}

// LoadDotEnv reads the given .env files (default ".env") into the process
// environment. Variables already set win. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: loading %s: %w", f, err)
		}
	}
	return nil
}

// LoadServer reads PORT, DB_PATH, WISHLIST_JWT_SECRET, CLEANUP_INTERVAL,
// RETENTION and LOG_LEVEL.
func LoadServer() (*Server, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("config: invalid PORT %q", os.Getenv("PORT"))
	}

	interval, err := ParseDuration(getEnvOrDefault("CLEANUP_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid CLEANUP_INTERVAL: %w", err)
	}
	retention, err := ParseDuration(getEnvOrDefault("RETENTION", "90d"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid RETENTION: %w", err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("config: RETENTION must be positive")
	}

	level, err := ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	secret := os.Getenv("WISHLIST_JWT_SECRET")
	if secret != "" && len(secret) < 16 {
		return nil, fmt.Errorf("config: WISHLIST_JWT_SECRET must be at least 16 characters")
	}

	return &Server{
		Port:            port,
		DBPath:          getEnvOrDefault("DB_PATH", "data/wishlist.db"),
		JWTSecret:       secret,
		CleanupInterval: interval,
		Retention:       retention,
		LogLevel:        level,
	}, nil
}

// LoadClient reads WISHLIST_API_URL, WISHLIST_API_KEY, WISHLIST_STATE_DIR,
// WISHLIST_ADDR and LOG_LEVEL.
func LoadClient() (*Client, error) {
	level, err := ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	stateDir := os.Getenv("WISHLIST_STATE_DIR")
	if stateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = "."
		}
		stateDir = filepath.Join(base, "wishlist")
	}

	return &Client{
		APIURL:   strings.TrimRight(getEnvOrDefault("WISHLIST_API_URL", "http://localhost:8080"), "/"),
		APIKey:   os.Getenv("WISHLIST_API_KEY"),
		StateDir: stateDir,
		Addr:     getEnvOrDefault("WISHLIST_ADDR", "localhost:3000"),
		LogLevel: level,
	}, nil
}

// ParseDuration accepts Go durations ("36h", "15m") and whole days ("90d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// ParseLevel maps debug/info/warn/error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", s)
	}
	return level, nil
}

// NewLogger builds the text logger both programs use.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getEnvOrDefault returns the environment variable or defaultValue if unset.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
