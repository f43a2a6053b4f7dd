// Package config loads idlink runtime settings from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/idlink/internal/policy"
)

// Config holds the environment-controlled settings. Command-line flags
// override these values.
type Config struct {
	DBPath      string        `env:"IDLINK_DB"           envDefault:"idlink.db"`
	PolicyPath  string        `env:"IDLINK_POLICY"`
	LogLevel    string        `env:"IDLINK_LOG_LEVEL"    envDefault:"warn"`
	LogFormat   string        `env:"IDLINK_LOG_FORMAT"   envDefault:"text"`
	BusyTimeout time.Duration `env:"IDLINK_BUSY_TIMEOUT" envDefault:"5s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BusyTimeout < 0 {
		return Config{}, fmt.Errorf("parse env: IDLINK_BUSY_TIMEOUT must not be negative")
	}
	return cfg, nil
}

// Level parses LogLevel. Unknown values are an error rather than a silent
// fallback.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Logger builds a structured logger writing to w in LogFormat.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	lvl, err := c.Level()
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	switch c.LogFormat {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("log format %q: must be text or json", c.LogFormat)
	}
}

// Policy returns the policy file at PolicyPath, or the default policy when
// none is configured.
func (c Config) Policy() (policy.Policy, error) {
	if c.PolicyPath == "" {
		return policy.Default(), nil
	}
	return policy.Load(c.PolicyPath)
}
