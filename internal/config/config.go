// Package config loads server configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ironsheep/carvision-mcp/internal/history"
)

// Environment variable names.
const (
	EnvLogLevel            = "CARVISION_LOG_LEVEL"
	EnvLogFormat           = "CARVISION_LOG_FORMAT"
	EnvFeedAddr            = "CARVISION_FEED_ADDR"
	EnvHistoryLimit        = "CARVISION_HISTORY_LIMIT"
	EnvConfidenceThreshold = "CARVISION_CONFIDENCE_THRESHOLD"
	EnvRealTimeMode        = "CARVISION_REALTIME_MODE"
	EnvAutoSave            = "CARVISION_AUTO_SAVE"
	EnvOutputDir           = "CARVISION_OUTPUT_DIR"
)

// Config holds the server configuration read from the environment.
type Config struct {
	LogLevel  string
	LogFormat string

	// FeedAddr is the listen address of the websocket/metrics server.
	// Empty disables it.
	FeedAddr string

	HistoryLimit int
	Settings     history.Settings

	// OutputDir is where annotated images are saved when a tool asks to
	// save without naming a path.
	OutputDir string
}

// Load reads configuration from the environment.
//
// If envFile is non-empty it must exist and is loaded first. Otherwise a
// .env in the working directory is loaded when present. Variables already
// set in the environment win over file values.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	defaults := history.DefaultSettings()
	threshold, err := getEnvAsFloat(EnvConfidenceThreshold, defaults.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	realTime, err := getEnvAsBool(EnvRealTimeMode, defaults.RealTimeMode)
	if err != nil {
		return nil, err
	}
	autoSave, err := getEnvAsBool(EnvAutoSave, defaults.AutoSave)
	if err != nil {
		return nil, err
	}
	limit, err := getEnvAsInt(EnvHistoryLimit, history.DefaultLimit)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:     getEnv(EnvLogLevel, "info"),
		LogFormat:    getEnv(EnvLogFormat, "json"),
		FeedAddr:     getEnv(EnvFeedAddr, ""),
		HistoryLimit: limit,
		Settings: history.Settings{
			ConfidenceThreshold: threshold,
			RealTimeMode:        realTime,
			AutoSave:            autoSave,
		},
		OutputDir: getEnv(EnvOutputDir, "."),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.HistoryLimit < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", EnvHistoryLimit, c.HistoryLimit)
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("%s: %w", EnvConfidenceThreshold, err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%s must be json or console, got %q", EnvLogFormat, c.LogFormat)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return n, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, value)
	}
	return f, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return b, nil
}
