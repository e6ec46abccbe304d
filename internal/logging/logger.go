// Package logging configures the process-wide structured logger. Every
// record carries the application name and the command path so log lines
// from the panel and the simulator can be told apart downstream.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	// EnvFormat selects the handler, "json" or "text".
	EnvFormat = "LOG_FORMAT"
	// EnvLevel selects the minimum severity, debug through error.
	EnvLevel = "LOG_LEVEL"

	appName = "aws-connections"
)

// Config is a validated logging configuration.
type Config struct {
	Format string
	Level  slog.Level
}

// BootstrapOptions controls logger initialization behavior.
type BootstrapOptions struct {
	Command string
	Writer  io.Writer
}

// DefaultConfig is JSON at info level, the production shape.
func DefaultConfig() Config {
	return Config{Format: "json", Level: slog.LevelInfo}
}

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LoadConfigFromEnv parses and validates the logging environment variables.
// Unset variables take the defaults; unknown values are an error rather
// than a silent fallback.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if raw := normalize(os.Getenv(EnvFormat)); raw != "" {
		if raw != "json" && raw != "text" {
			return Config{}, fmt.Errorf("%s must be one of: json, text", EnvFormat)
		}
		cfg.Format = raw
	}

	if raw := normalize(os.Getenv(EnvLevel)); raw != "" {
		level, ok := levelNames[raw]
		if !ok {
			return Config{}, fmt.Errorf("%s must be one of: debug, info, warn, error", EnvLevel)
		}
		cfg.Level = level
	}

	return cfg, nil
}

// NewLogger creates a structured logger carrying the static app and command
// attributes.
func NewLogger(cfg Config, writer io.Writer, command string) *slog.Logger {
	if writer == nil {
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if normalize(cfg.Format) == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	command = strings.TrimSpace(command)
	if command == "" {
		command = appName
	}
	return slog.New(handler).With("app", appName, "command", command)
}

// BootstrapFromEnv loads the config from the environment, installs the
// logger as the slog default, and returns it.
func BootstrapFromEnv(opts BootstrapOptions) (*slog.Logger, error) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, opts.Writer, opts.Command)
	slog.SetDefault(logger)
	return logger, nil
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
