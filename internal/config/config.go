// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the process configuration: built-in defaults, then an
// optional YAML file named by A2A_CONFIG_FILE, then A2A_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "A2A_CONFIG_FILE"

// EnvPrefix prefixes every environment variable read by [Load].
const EnvPrefix = "A2A_"

// Config is the process configuration.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`

	AgentID          string `yaml:"agent_id" env:"AGENT_ID"`
	AgentName        string `yaml:"agent_name" env:"AGENT_NAME"`
	AgentDescription string `yaml:"agent_description" env:"AGENT_DESCRIPTION"`
	PublicURL        string `yaml:"public_url" env:"PUBLIC_URL"`
	CardSigningKey   string `yaml:"card_signing_key" env:"CARD_SIGNING_KEY"`
	CardSchemaPolicy bool   `yaml:"card_schema_policy" env:"CARD_SCHEMA_POLICY"`

	// StoreDSN selects the flow store: memory://, sqlite://<path> or postgres://...
	StoreDSN      string `yaml:"store_dsn" env:"STORE_DSN"`
	EventCapacity int    `yaml:"event_capacity" env:"EVENT_CAPACITY"`

	PushWorkers    int           `yaml:"push_workers" env:"PUSH_WORKERS"`
	PushRetryCap   int           `yaml:"push_retry_cap" env:"PUSH_RETRY_CAP"`
	PushMaxBackoff time.Duration `yaml:"push_max_backoff" env:"PUSH_MAX_BACKOFF"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout" env:"WEBHOOK_TIMEOUT"`

	SweepSchedule string `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE"`

	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat    string `yaml:"log_format" env:"LOG_FORMAT"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20,
		AgentID:         "a2a-taskd",
		AgentName:       "A2A Task Service",
		PublicURL:       "http://localhost:8080/a2a/rpc",
		StoreDSN:        "memory://",
		EventCapacity:   256,
		PushWorkers:     4,
		PushRetryCap:    8,
		PushMaxBackoff:  time.Second,
		WebhookTimeout:  3 * time.Second,
		SweepSchedule:   "@every 1m",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Load returns [Default] overlaid with the file named by [FileEnv] and then
// with the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv(FileEnv), nil)
}

// LoadFrom returns [Default] overlaid with the YAML file at path, when path
// is not empty, and then with the A2A_* entries of environ. A nil environ
// reads the process environment.
func LoadFrom(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen_addr must not be empty"))
	}
	if strings.TrimSpace(c.AgentID) == "" {
		errs = append(errs, errors.New("agent_id must not be empty"))
	}
	if strings.TrimSpace(c.StoreDSN) == "" {
		errs = append(errs, errors.New("store_dsn must not be empty"))
	}
	if c.EventCapacity <= 0 {
		errs = append(errs, fmt.Errorf("event_capacity must be positive, got %d", c.EventCapacity))
	}
	if c.PushWorkers <= 0 {
		errs = append(errs, fmt.Errorf("push_workers must be positive, got %d", c.PushWorkers))
	}
	if c.PushRetryCap < 0 {
		errs = append(errs, fmt.Errorf("push_retry_cap must be >= 0, got %d", c.PushRetryCap))
	}
	if c.PushMaxBackoff < 0 || c.WebhookTimeout < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// NewLogger returns a logger writing to w in the configured format and level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	lvl, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
