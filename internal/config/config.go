// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DatabaseFileName is the database file created inside the data directory.
const DatabaseFileName = "novel_database.db"

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Storage  StorageConfig
	Download DownloadConfig
	Retry    RetryConfig
	Server   ServerConfig
	Verify   VerifyConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
	File  string // Optional; log lines are also appended here
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	DataDir      string        // Default: per-platform app dir
	DatabasePath string        // Default: {data}/novel_database.db, or database_path from config.json
	DownloadDir  string        // Default: {data}/downloads
	BusyTimeout  time.Duration // SQLite busy_timeout (default: 2s)
}

// DownloadConfig tunes chapter fetching.
type DownloadConfig struct {
	MaxConcurrency int           // Fetches in flight per download (default: 5)
	FetchTimeout   time.Duration // Per chapter (default: 30s)
	JitterMin      time.Duration // Default: 200ms
	JitterMax      time.Duration // Default: 800ms
	GapPolicy      string        // "skip" or "placeholder" (default: skip)
	RequestsPerSec int           // Chapter fetches per second per source; 0 disables (default: 4)
	SourcesFile    string        // JSON site definitions (default: {data}/sources.json)
}

// RetryConfig controls store retries on lock contention.
type RetryConfig struct {
	Attempts  int           // Default: 5
	BaseDelay time.Duration // Default: 50ms, doubled per attempt
	MaxDelay  time.Duration // Default: 2s
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// VerifyConfig controls background artifact checks while serving.
type VerifyConfig struct {
	Schedule string // Cron expression; empty disables (default: "@every 6h")
	Watch    bool   // Watch the download dir for removed artifacts (default: true)
}

// Flags carries command-line overrides keyed by flag name (e.g. "log-level").
// Empty values are ignored.
type Flags map[string]string

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. config.json preferences (database path only).
// 5. Default values (lowest priority).
func LoadConfig(flags Flags) (*Config, error) {
	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(getConfigValue(flags["env-file"], "ENV_FILE", ".env"))

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(flags["env"], "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(flags["log-level"], "LOG_LEVEL", "info"),
			File:  getConfigValue(flags["log-file"], "LOG_FILE", ""),
		},
		Storage: StorageConfig{
			DataDir:      getConfigValue(flags["data-dir"], "DATA_DIR", ""),
			DatabasePath: getConfigValue(flags["database-path"], "DATABASE_PATH", ""),
			DownloadDir:  getConfigValue(flags["download-dir"], "DOWNLOAD_DIR", ""),
		},
		Download: DownloadConfig{
			MaxConcurrency: getIntConfigValue(flags["max-concurrency"], "MAX_CONCURRENCY", 5),
			GapPolicy:      strings.ToLower(getConfigValue(flags["gap-policy"], "GAP_POLICY", "skip")),
			RequestsPerSec: getIntConfigValue(flags["requests-per-second"], "REQUESTS_PER_SECOND", 4),
			SourcesFile:    getConfigValue(flags["sources-file"], "SOURCES_FILE", ""),
		},
		Retry: RetryConfig{
			Attempts: getIntConfigValue(flags["retry-attempts"], "RETRY_ATTEMPTS", 5),
		},
		Server: ServerConfig{
			Port: getConfigValue(flags["port"], "SERVER_PORT", "8080"),
		},
		Verify: VerifyConfig{
			Schedule: getConfigValue(flags["verify-schedule"], "VERIFY_SCHEDULE", "@every 6h"),
			Watch:    getBoolConfigValue(flags["watch"], "WATCH_DOWNLOADS", true),
		},
	}

	durations := []struct {
		target      *time.Duration
		flag, env   string
		defaultText string
	}{
		{&cfg.Storage.BusyTimeout, "busy-timeout", "BUSY_TIMEOUT", "2s"},
		{&cfg.Download.FetchTimeout, "fetch-timeout", "FETCH_TIMEOUT", "30s"},
		{&cfg.Download.JitterMin, "jitter-min", "JITTER_MIN", "200ms"},
		{&cfg.Download.JitterMax, "jitter-max", "JITTER_MAX", "800ms"},
		{&cfg.Retry.BaseDelay, "retry-base-delay", "RETRY_BASE_DELAY", "50ms"},
		{&cfg.Retry.MaxDelay, "retry-max-delay", "RETRY_MAX_DELAY", "2s"},
		{&cfg.Server.ReadTimeout, "read-timeout", "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, "write-timeout", "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, "idle-timeout", "SERVER_IDLE_TIMEOUT", "60s"},
	}
	for _, d := range durations {
		s := getConfigValue(flags[d.flag], d.env, d.defaultText)
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.flag, s, err)
		}
		*d.target = parsed
	}

	// "off" disables scheduled verification; an empty value means "use the default".
	if strings.EqualFold(cfg.Verify.Schedule, "off") {
		cfg.Verify.Schedule = ""
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.DatabasePath == "" || c.Storage.DownloadDir == "" {
		return errors.New("storage paths cannot be empty after expansion")
	}

	if c.Download.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1, got %d", c.Download.MaxConcurrency)
	}
	if c.Download.JitterMin < 0 || c.Download.JitterMax < c.Download.JitterMin {
		return fmt.Errorf("invalid jitter range [%s, %s]", c.Download.JitterMin, c.Download.JitterMax)
	}
	if c.Download.RequestsPerSec < 0 {
		return fmt.Errorf("requests per second cannot be negative, got %d", c.Download.RequestsPerSec)
	}
	if c.Download.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}
	if c.Download.GapPolicy != "skip" && c.Download.GapPolicy != "placeholder" {
		return fmt.Errorf("invalid gap policy: %s (must be skip or placeholder)", c.Download.GapPolicy)
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Retry.Attempts)
	}

	return nil
}

// expandPaths resolves the storage layout. The database path comes from, in
// order: an explicit flag or env value, database_path in the app dir's
// config.json, then {data}/novel_database.db.
func (c *Config) expandPaths() error {
	appDir, err := AppDir()
	if err != nil {
		return err
	}

	c.Storage.DataDir, err = expandPath(c.Storage.DataDir, appDir)
	if err != nil {
		return fmt.Errorf("invalid data dir: %w", err)
	}

	if c.Storage.DatabasePath == "" {
		prefs, err := LoadPreferences(appDir)
		if err != nil {
			return err
		}
		c.Storage.DatabasePath = prefs.DatabasePath()
	}
	c.Storage.DatabasePath, err = expandPath(c.Storage.DatabasePath, filepath.Join(c.Storage.DataDir, DatabaseFileName))
	if err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}

	c.Storage.DownloadDir, err = expandPath(c.Storage.DownloadDir, filepath.Join(c.Storage.DataDir, "downloads"))
	if err != nil {
		return fmt.Errorf("invalid download dir: %w", err)
	}

	c.Download.SourcesFile, err = expandPath(c.Download.SourcesFile, filepath.Join(c.Storage.DataDir, "sources.json"))
	if err != nil {
		return fmt.Errorf("invalid sources file: %w", err)
	}

	if c.Logger.File != "" {
		c.Logger.File, err = expandPath(c.Logger.File, "")
		if err != nil {
			return fmt.Errorf("invalid log file: %w", err)
		}
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
