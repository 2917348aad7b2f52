// Package config provides movewatchd configuration from command-line flags,
// environment variables and .env files.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/validation"
)

// Config holds the daemon configuration.
type Config struct {
	App       AppConfig       `json:"app"`
	Logger    LoggerConfig    `json:"logger"`
	Watcher   WatcherConfig   `json:"watcher"`
	Server    ServerConfig    `json:"server"`
	Journal   JournalConfig   `json:"journal"`
	WatchList WatchListConfig `json:"watch_list"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `json:"environment" validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string `json:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"omitempty,oneof=json text pretty"`
}

// WatcherConfig holds the watcher options and the directories watched at startup.
type WatcherConfig struct {
	OverflowPolicy string        `json:"overflow_policy" validate:"overflowpolicy"`
	Paths          []string      `json:"paths"`
	Events         []string      `json:"events" validate:"omitempty,dive,eventkind"`
	IgnorePatterns []string      `json:"ignore_patterns"`
	PollInterval   time.Duration `json:"poll_interval" validate:"min=1ms"`
	DwellThreshold time.Duration `json:"dwell_threshold" validate:"min=1ms"`
	// Capacity bounds pending moves; -1 means unbounded.
	Capacity      int  `json:"capacity" validate:"gte=-1"`
	AbsolutePaths bool `json:"absolute_paths"`
	IgnoreHidden  bool `json:"ignore_hidden"`
}

// ServerConfig holds the control API configuration.
type ServerConfig struct {
	Addr         string        `json:"addr" validate:"omitempty,hostname_port"`
	ReadTimeout  time.Duration `json:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `json:"write_timeout" validate:"gte=0"`
	IdleTimeout  time.Duration `json:"idle_timeout" validate:"gte=0"`
	CORSOrigins  []string      `json:"cors_origins"`
	// RateLimit caps watch changes per client per minute; 0 disables it.
	RateLimit int  `json:"rate_limit" validate:"gte=0"`
	Enabled   bool `json:"enabled"`
}

// JournalConfig holds the notification journal configuration.
type JournalConfig struct {
	Path      string        `json:"path"`
	Retention time.Duration `json:"retention" validate:"gte=0"`
	Enabled   bool          `json:"enabled"`
}

// WatchListConfig points at an optional YAML file of watches.
type WatchListConfig struct {
	Path string `json:"path"`
}

// LoadConfig loads configuration from args (without the program name) with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// Positional arguments are added to Watcher.Paths.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("movewatchd", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, text, pretty; default by environment)")

	watchPaths := fs.String("watch", "", "Comma-separated directories to watch")
	events := fs.String("events", "", "Comma-separated event kinds (create, delete, modify, rename, moved_from, moved_to, all)")
	ignore := fs.String("ignore", "", "Comma-separated name patterns to ignore")
	pollInterval := fs.String("poll-interval", "", "Maximum wait per cycle (default: 250ms)")
	dwellThreshold := fs.String("dwell-threshold", "", "How long a departure waits for its arrival (default: 500ms)")
	capacity := fs.String("capacity", "", "Maximum pending moves, -1 for unbounded (default: 8192)")
	overflowPolicy := fs.String("overflow-policy", "", "What to do when the move store is full (reject, evict-oldest)")
	absolutePaths := fs.String("absolute-paths", "", "Report absolute paths (default: false)")
	ignoreHidden := fs.String("ignore-hidden", "", "Ignore dot files (default: false)")

	httpEnabled := fs.String("http", "", "Serve the control API (default: true)")
	addr := fs.String("addr", "", "Control API listen address (default: 127.0.0.1:7420)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0, streams stay open)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated origins allowed to call the control API")
	rateLimit := fs.String("rate-limit", "", "Watch changes per client per minute, 0 disables (default: 60)")

	journalEnabled := fs.String("journal", "", "Record notifications in the journal (default: true)")
	journalPath := fs.String("journal-path", "", "Journal database path (default: ~/.movewatch/journal.db)")
	journalRetention := fs.String("journal-retention", "", "Drop journal entries older than this, 0 keeps all (default: 168h)")

	watchList := fs.String("watch-list", "", "YAML file listing watches, reloaded on change")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(getConfigValue(*logLevel, "LOG_LEVEL", "info")),
			Format: getConfigValue(*logFormat, "LOG_FORMAT", ""),
		},
		Watcher: WatcherConfig{
			Paths:          getListConfigValue(*watchPaths, "WATCH_PATHS"),
			Events:         getListConfigValue(*events, "WATCH_EVENTS"),
			IgnorePatterns: getListConfigValue(*ignore, "WATCH_IGNORE"),
			OverflowPolicy: getConfigValue(*overflowPolicy, "WATCH_OVERFLOW_POLICY", "reject"),
			AbsolutePaths:  getBoolConfigValue(*absolutePaths, "WATCH_ABSOLUTE_PATHS", false),
			IgnoreHidden:   getBoolConfigValue(*ignoreHidden, "WATCH_IGNORE_HIDDEN", false),
		},
		Server: ServerConfig{
			Enabled:     getBoolConfigValue(*httpEnabled, "HTTP_ENABLED", true),
			Addr:        getConfigValue(*addr, "HTTP_ADDR", "127.0.0.1:7420"),
			CORSOrigins: getListConfigValue(*corsOrigins, "HTTP_CORS_ORIGINS"),
		},
		Journal: JournalConfig{
			Enabled: getBoolConfigValue(*journalEnabled, "JOURNAL_ENABLED", true),
			Path:    getConfigValue(*journalPath, "JOURNAL_PATH", ""),
		},
		WatchList: WatchListConfig{
			Path: getConfigValue(*watchList, "WATCH_LIST", ""),
		},
	}
	cfg.Watcher.Paths = append(cfg.Watcher.Paths, fs.Args()...)

	var err error
	if cfg.Watcher.Capacity, err = getIntConfigValue(*capacity, "WATCH_CAPACITY", 8192); err != nil {
		return nil, err
	}
	if cfg.Server.RateLimit, err = getIntConfigValue(*rateLimit, "HTTP_RATE_LIMIT", 60); err != nil {
		return nil, err
	}

	durations := []struct {
		target   *time.Duration
		flag     string
		envKey   string
		fallback string
	}{
		{&cfg.Watcher.PollInterval, *pollInterval, "WATCH_POLL_INTERVAL", "250ms"},
		{&cfg.Watcher.DwellThreshold, *dwellThreshold, "WATCH_DWELL_THRESHOLD", "500ms"},
		{&cfg.Server.ReadTimeout, *readTimeout, "HTTP_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "HTTP_WRITE_TIMEOUT", "0s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "HTTP_IDLE_TIMEOUT", "60s"},
		{&cfg.Journal.Retention, *journalRetention, "JOURNAL_RETENTION", "168h"},
	}
	for _, d := range durations {
		if *d.target, err = getDurationConfigValue(d.flag, d.envKey, d.fallback); err != nil {
			return nil, err
		}
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	if err := validation.New().Validate(c); err != nil {
		return err
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.Validation("server address is required when the control API is enabled")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.Validation("journal path cannot be empty when the journal is enabled")
	}
	if len(c.Watcher.Paths) == 0 && c.WatchList.Path == "" && !c.Server.Enabled {
		return errors.Validation("nothing to watch: give a path, a watch list or enable the control API")
	}

	return nil
}

// expandPaths expands ~ and makes every configured path absolute.
func (c *Config) expandPaths() error {
	for i, p := range c.Watcher.Paths {
		expanded, err := expandPath(p, "")
		if err != nil {
			return err
		}
		c.Watcher.Paths[i] = expanded
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	if c.Journal.Path, err = expandPath(c.Journal.Path, filepath.Join(homeDir, ".movewatch", "journal.db")); err != nil {
		return err
	}

	if c.WatchList.Path, err = expandPath(c.WatchList.Path, ""); err != nil {
		return err
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, returns defaultPath unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

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
func getIntConfigValue(flagValue, envKey string, defaultValue int) (int, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return result, nil
}

// getDurationConfigValue returns a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// getListConfigValue splits a comma-separated flag or env var.
func getListConfigValue(flagValue, envKey string) []string {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
