package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultAPIBase        = "http://127.0.0.1:3030"
	defaultPollInterval   = time.Second
	defaultStatusInterval = 2 * time.Second
	defaultDebounce       = 400 * time.Millisecond
	defaultRequestTimeout = 30 * time.Second
	defaultConfigPath     = "~/.config/volterm/config.toml"
)

// IngestMode selects how command output reaches the client.
type IngestMode string

const (
	IngestPoll IngestMode = "poll"
	IngestPush IngestMode = "push"
	IngestBoth IngestMode = "both"
)

// Polls reports whether the output endpoint should be polled.
func (m IngestMode) Polls() bool { return m == IngestPoll || m == IngestBoth }

// Pushes reports whether the output stream should be watched.
func (m IngestMode) Pushes() bool { return m == IngestPush || m == IngestBoth }

// ClientConfig captures the runtime configuration of the terminal client.
type ClientConfig struct {
	APIBase        string
	PollInterval   time.Duration
	StatusInterval time.Duration
	Debounce       time.Duration
	RequestTimeout time.Duration
	Ingest         IngestMode
	LogFile        string
	LogLevel       string
}

// fileConfig mirrors the TOML file. Durations are strings like "400ms".
type fileConfig struct {
	APIBase        string `toml:"api_base"`
	PollInterval   string `toml:"poll_interval"`
	StatusInterval string `toml:"status_interval"`
	Debounce       string `toml:"debounce"`
	RequestTimeout string `toml:"request_timeout"`
	Ingest         string `toml:"ingest"`
	LogFile        string `toml:"log_file"`
	LogLevel       string `toml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() ClientConfig {
	return ClientConfig{
		APIBase:        defaultAPIBase,
		PollInterval:   defaultPollInterval,
		StatusInterval: defaultStatusInterval,
		Debounce:       defaultDebounce,
		RequestTimeout: defaultRequestTimeout,
		Ingest:         IngestPush,
	}
}

// Load layers the config file (when present) and then the environment over
// the defaults, and validates the result.
func Load() (ClientConfig, error) {
	cfg := Defaults()

	path := expandPath(getenv("VOLTERM_CONFIG", defaultConfigPath))
	if err := applyFile(&cfg, path); err != nil {
		return ClientConfig{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func applyFile(cfg *ClientConfig, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: decode %s: %w", path, err)
	}

	if fc.APIBase != "" {
		cfg.APIBase = fc.APIBase
	}
	if fc.Ingest != "" {
		cfg.Ingest = IngestMode(strings.ToLower(fc.Ingest))
	}
	if fc.LogFile != "" {
		cfg.LogFile = expandPath(fc.LogFile)
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	durations := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{fc.PollInterval, &cfg.PollInterval, "poll_interval"},
		{fc.StatusInterval, &cfg.StatusInterval, "status_interval"},
		{fc.Debounce, &cfg.Debounce, "debounce"},
		{fc.RequestTimeout, &cfg.RequestTimeout, "request_timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config: %s: invalid duration %q: %w", d.key, d.raw, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnv(cfg *ClientConfig) error {
	cfg.APIBase = getenv("VOLTERM_API_BASE", cfg.APIBase)
	if v := getenv("VOLTERM_INGEST", ""); v != "" {
		cfg.Ingest = IngestMode(strings.ToLower(v))
	}
	if v := getenv("VOLTERM_LOG_FILE", ""); v != "" {
		cfg.LogFile = expandPath(v)
	}
	cfg.LogLevel = getenv("VOLTERM_LOG_LEVEL", cfg.LogLevel)

	durations := map[string]*time.Duration{
		"VOLTERM_POLL_INTERVAL":   &cfg.PollInterval,
		"VOLTERM_STATUS_INTERVAL": &cfg.StatusInterval,
		"VOLTERM_DEBOUNCE":        &cfg.Debounce,
		"VOLTERM_REQUEST_TIMEOUT": &cfg.RequestTimeout,
	}
	for key, dst := range durations {
		raw := getenv(key, "")
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: %s: invalid duration %q: %w", key, raw, err)
		}
		*dst = v
	}
	return nil
}

// Validate rejects settings the client cannot run with.
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.APIBase) == "" {
		return fmt.Errorf("config: api base url required")
	}
	u, err := url.Parse(c.APIBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid api base url %q", c.APIBase)
	}
	switch c.Ingest {
	case IngestPoll, IngestPush, IngestBoth:
	default:
		return fmt.Errorf("config: unknown ingest mode %q (want poll, push or both)", c.Ingest)
	}
	for name, d := range map[string]time.Duration{
		"poll interval":   c.PollInterval,
		"status interval": c.StatusInterval,
		"debounce":        c.Debounce,
		"request timeout": c.RequestTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, d)
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}
