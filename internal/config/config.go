// Package config provides configuration types, defaults and validation for
// the milspecs site.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/milspecs/internal/flags"
	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/tracing"
)

// Config holds all configuration options for the site.
type Config struct {
	// StateDir holds the forms database, data overrides and traces.
	StateDir string          `mapstructure:"state_dir"`
	Server   ServerConfig    `mapstructure:"server"`
	Data     DataConfig      `mapstructure:"data"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Forms    FormsConfig     `mapstructure:"forms"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
	Log      LogConfig       `mapstructure:"log"`
	Tracing  tracing.Config  `mapstructure:"tracing"`
	Flags    map[string]bool `mapstructure:"flags"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 0 keeps event streams open
}

// DataConfig locates spec data files. Files under Dir override the
// embedded dataset; BaseURL, when set, replaces both.
type DataConfig struct {
	Dir           string        `mapstructure:"dir"`
	BaseURL       string        `mapstructure:"base_url"`
	Watch         bool          `mapstructure:"watch"`
	WatchPatterns []string      `mapstructure:"watch_patterns"`
	Debounce      time.Duration `mapstructure:"debounce"`
}

// CacheConfig configures the data file and section caches.
type CacheConfig struct {
	Expiration      time.Duration `mapstructure:"expiration"` // 0 never expires
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// FormsConfig configures saved form storage.
type FormsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"` // default: <state_dir>/forms.db
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig configures the debug log file.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:        "127.0.0.1:8080",
			ReadTimeout: 30 * time.Second,
		},
		Data: DataConfig{
			Watch:         true,
			WatchPatterns: []string{"**/*.json"},
			Debounce:      500 * time.Millisecond,
		},
		Cache: CacheConfig{
			CleanupInterval: 10 * time.Minute,
		},
		Forms:   FormsConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
		Log:     LogConfig{Level: "info"},
		Tracing: tracing.DefaultConfig(),
		Flags:   flags.Defaults(),
	}
}

// Validate checks every section.
func Validate(cfg Config) error {
	if err := ValidateServer(cfg.Server); err != nil {
		return err
	}
	if err := ValidateData(cfg.Data); err != nil {
		return err
	}
	if cfg.Cache.Expiration < 0 || cfg.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache durations must not be negative")
	}
	if err := ValidateFlags(cfg.Flags); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateServer checks the listener configuration.
func ValidateServer(s ServerConfig) error {
	if s.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	return nil
}

// ValidateData checks the data source configuration.
func ValidateData(d DataConfig) error {
	if d.BaseURL != "" {
		u, err := url.Parse(d.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("data.base_url must be an http(s) URL, got %q", d.BaseURL)
		}
	}
	if d.Debounce < 0 {
		return fmt.Errorf("data.debounce must not be negative")
	}
	return nil
}

// ValidateFlags rejects flag names the site does not know.
func ValidateFlags(m map[string]bool) error {
	known := flags.Defaults()
	for name := range m {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("unknown flag %q", name)
		}
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}
	switch t.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
	}
	if t.Enabled && t.Exporter == "otlp" && t.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// FormsDBPath returns the configured database path, defaulting into
// stateDir.
func (c Config) FormsDBPath() string {
	if c.Forms.DBPath != "" {
		return c.Forms.DBPath
	}
	return filepath.Join(c.StateDir, "forms.db")
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# mil-specs site configuration

# HTTP listener
server:
  addr: 127.0.0.1:8080
  read_timeout: 30s
  # write_timeout: 0s    # leave at 0 so /api/events and /api/logs stay open

# Spec data files
data:
  # dir: ./.milspecs/data        # files here override the built-in dataset
  # base_url: https://example.org/data  # fetch data over HTTP instead
  watch: true                    # reload caches when files under dir change
  watch_patterns:
    - "**/*.json"
  debounce: 500ms

# Data caches
cache:
  expiration: 0s          # 0 keeps entries until data changes
  cleanup_interval: 10m

# Saved forms, decoded results and templates
forms:
  enabled: true
  # db_path: ./.milspecs/forms.db

# Prometheus metrics at /metrics
metrics:
  enabled: true

# Debug log file (also enabled with --debug)
log:
  # path: ./debug.log
  level: info             # debug, info, warn, error

# Distributed tracing
tracing:
  enabled: false
  exporter: file          # none, file, stdout, otlp
  # file_path: ./.milspecs/traces/traces.jsonl
  # otlp_endpoint: localhost:4317
  sample_rate: 1.0

# Feature flags
flags:
  tools-expansion: true   # placeholder pages for upcoming tools
  stp-viewer: false       # STP viewer under /specs/stp
  inflight-dedup: true    # share concurrent lazy loads
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
