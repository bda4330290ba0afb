// Package config manages zenomesh daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables layered over defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/zenomesh/internal/link"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete zenomeshd configuration.
type Config struct {
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Session SessionConfig `koanf:"session"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SessionConfig describes the recognized Session options (6: "Session
// configuration").
type SessionConfig struct {
	// WhatAmI is one of peer | client | router | broker.
	WhatAmI string `koanf:"whatami"`

	// Peers is an ordered list of locator strings to dial.
	Peers []string `koanf:"peers"`

	// Listeners is an ordered list of locator strings to bind.
	Listeners []string `koanf:"listeners"`

	// MulticastInterface names the scouting interface, or "auto".
	MulticastInterface string `koanf:"multicast_interface"`

	// ScoutingDelay is the scouting wait before giving up (default 250ms).
	ScoutingDelay time.Duration `koanf:"scouting_delay"`

	// AddTimestamp, when true, stamps every emitted sample with a
	// hybrid-logical-clock timestamp seeded from the PeerId.
	AddTimestamp bool `koanf:"add_timestamp"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			WhatAmI:            "peer",
			MulticastInterface: "auto",
			ScoutingDelay:      250 * time.Millisecond,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for zenomesh configuration.
// Variables are named ZENOMESH_<section>_<key>, e.g., ZENOMESH_METRICS_ADDR.
const envPrefix = "ZENOMESH_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (ZENOMESH_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	ZENOMESH_METRICS_ADDR      -> metrics.addr
//	ZENOMESH_METRICS_PATH      -> metrics.path
//	ZENOMESH_LOG_LEVEL         -> log.level
//	ZENOMESH_LOG_FORMAT        -> log.format
//	ZENOMESH_SESSION_WHATAMI   -> session.whatami
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms ZENOMESH_SESSION_WHATAMI -> session.whatami.
// Strips the ZENOMESH_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":                defaults.Metrics.Addr,
		"metrics.path":                defaults.Metrics.Path,
		"log.level":                   defaults.Log.Level,
		"log.format":                  defaults.Log.Format,
		"session.whatami":             defaults.Session.WhatAmI,
		"session.multicast_interface": defaults.Session.MulticastInterface,
		"session.scouting_delay":      defaults.Session.ScoutingDelay.String(),
		"session.add_timestamp":       defaults.Session.AddTimestamp,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrInvalidWhatAmI indicates session.whatami is not a recognized role.
	ErrInvalidWhatAmI = errors.New("session.whatami must be one of peer, client, router, broker")

	// ErrInvalidLocator indicates a peers[] or listeners[] entry failed to
	// parse.
	ErrInvalidLocator = errors.New("invalid locator in session configuration")

	// ErrInvalidScoutingDelay indicates scouting_delay is negative.
	ErrInvalidScoutingDelay = errors.New("session.scouting_delay must be >= 0")
)

var validWhatAmI = map[string]bool{
	"peer":   true,
	"client": true,
	"router": true,
	"broker": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	if !validWhatAmI[cfg.Session.WhatAmI] {
		return fmt.Errorf("%w: got %q", ErrInvalidWhatAmI, cfg.Session.WhatAmI)
	}

	if cfg.Session.ScoutingDelay < 0 {
		return ErrInvalidScoutingDelay
	}

	for _, loc := range cfg.Session.Peers {
		if _, err := link.ParseLocator(loc); err != nil {
			return fmt.Errorf("%w: peers: %w", ErrInvalidLocator, err)
		}
	}
	for _, loc := range cfg.Session.Listeners {
		if _, err := link.ParseLocator(loc); err != nil {
			return fmt.Errorf("%w: listeners: %w", ErrInvalidLocator, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
