// Package logging builds the server's zap logger.
//
// Stdout carries the MCP protocol, so every log line goes to stderr.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// Config holds logging configuration
type Config struct {
	Level       string            `json:"level"`
	Format      string            `json:"format"` // "json" or "console"
	Fields      map[string]string `json:"fields"`
	Development bool              `json:"development"`
}

// NewLogger creates a structured logger writing to stderr.
//
// An unparseable level falls back to info.
func NewLogger(config Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(config.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	switch config.Format {
	case "", "json":
		zapConfig.Encoding = "json"
	case "console":
		zapConfig.Encoding = "console"
	default:
		return nil, fmt.Errorf("unknown log format %q (want json or console)", config.Format)
	}

	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if len(config.Fields) > 0 {
		fields := make([]zap.Field, 0, len(config.Fields))
		for k, v := range config.Fields {
			fields = append(fields, zap.String(k, v))
		}
		logger = logger.With(fields...)
	}
	return logger, nil
}

// NewDefaultLogger creates a JSON info logger tagged with the service name,
// falling back to a no-op logger if zap cannot be built.
func NewDefaultLogger() *zap.Logger {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Fields: map[string]string{"service": "carvision-mcp"},
	})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
