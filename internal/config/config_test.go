package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/carvision-mcp/internal/history"
)

// isolate clears every CARVISION_ variable and runs the test from an empty
// directory so no stray .env is picked up.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvLogLevel, EnvLogFormat, EnvFeedAddr, EnvHistoryLimit,
		EnvConfidenceThreshold, EnvRealTimeMode, EnvAutoSave, EnvOutputDir,
	} {
		// Setenv restores the original value on cleanup; godotenv treats
		// an empty-but-set variable as present, so unset it afterwards.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.FeedAddr)
	assert.Equal(t, history.DefaultLimit, cfg.HistoryLimit)
	assert.Equal(t, history.DefaultSettings(), cfg.Settings)
	assert.Equal(t, ".", cfg.OutputDir)
}

func TestLoad_FromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogFormat, "console")
	t.Setenv(EnvFeedAddr, "127.0.0.1:8090")
	t.Setenv(EnvHistoryLimit, "20")
	t.Setenv(EnvConfidenceThreshold, "0.85")
	t.Setenv(EnvRealTimeMode, "false")
	t.Setenv(EnvAutoSave, "true")
	t.Setenv(EnvOutputDir, "/tmp/out")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "127.0.0.1:8090", cfg.FeedAddr)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, history.Settings{ConfidenceThreshold: 0.85, RealTimeMode: false, AutoSave: true}, cfg.Settings)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
}

func TestLoad_EnvFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "carvision.env")
	content := "CARVISION_HISTORY_LIMIT=10\nCARVISION_AUTO_SAVE=true\nCARVISION_LOG_LEVEL=warn\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// Already-set variables win over the file.
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.True(t, cfg.Settings.AutoSave)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_DotEnvInWorkingDirectory(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("CARVISION_CONFIDENCE_THRESHOLD=0.9\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Settings.ConfidenceThreshold)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"limit not a number", EnvHistoryLimit, "lots"},
		{"limit zero", EnvHistoryLimit, "0"},
		{"threshold not a number", EnvConfidenceThreshold, "high"},
		{"threshold out of range", EnvConfidenceThreshold, "1.5"},
		{"realtime not a bool", EnvRealTimeMode, "sometimes"},
		{"autosave not a bool", EnvAutoSave, "maybe"},
		{"unknown log format", EnvLogFormat, "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
