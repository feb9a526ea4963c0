package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BadgerOps/ptarchive/internal/download"
	"github.com/BadgerOps/ptarchive/internal/safety"
)

// DefaultBaseURL is the archive service used when none is configured.
const DefaultBaseURL = download.DefaultBaseURL

// DefaultThrottleMS is the minimum spacing between archive requests.
const DefaultThrottleMS = 200

// TokenEnv names the environment variable holding the API token.
const TokenEnv = "PAPERTRAIL_API_TOKEN"

// Config is the top-level configuration
type Config struct {
	API     APIConfig     `yaml:"api"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig holds archive service settings
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // 0 disables the per-request timeout
}

// FetchConfig holds pipeline settings. They are fixed for the duration of a run.
type FetchConfig struct {
	Concurrency int    `yaml:"concurrency"`
	ThrottleMS  int    `yaml:"throttle_ms"`
	OutputDir   string `yaml:"output_dir"`
	Decompress  bool   `yaml:"decompress"`
	Transcode   bool   `yaml:"transcode"`
}

// StoreConfig holds run-history settings
type StoreConfig struct {
	DBPath string `yaml:"db_path"` // empty disables the ledger
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // empty disables export
}

// ValidationError reports an invalid configuration value. It is fatal and
// always surfaces before any archive is requested.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// DefaultConfig returns a config with sensible defaults. The default
// concurrency is the number of CPUs, computed here once.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
		},
		Fetch: FetchConfig{
			Concurrency: runtime.NumCPU(),
			ThrottleMS:  DefaultThrottleMS,
			OutputDir:   ".",
		},
	}
}

// Load reads a config file from the given path on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"ptarchive.yaml",
		"/etc/ptarchive/ptarchive.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "ptarchive", "ptarchive.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Validate checks value ranges and flag combinations. It does not touch
// the filesystem; the output directory is checked when the pool starts.
func (c *Config) Validate() error {
	if c.Fetch.Concurrency < 1 {
		return &ValidationError{Field: "fetch.concurrency", Reason: fmt.Sprintf("must be a positive integer, got %d", c.Fetch.Concurrency)}
	}
	if c.Fetch.ThrottleMS < 0 {
		return &ValidationError{Field: "fetch.throttle_ms", Reason: fmt.Sprintf("must not be negative, got %d", c.Fetch.ThrottleMS)}
	}
	if c.Fetch.Transcode && !c.Fetch.Decompress {
		return &ValidationError{Field: "fetch.transcode", Reason: "requires decompress"}
	}
	if c.Fetch.OutputDir == "" {
		return &ValidationError{Field: "fetch.output_dir", Reason: "must not be empty"}
	}
	if c.API.TimeoutSeconds < 0 {
		return &ValidationError{Field: "api.timeout_seconds", Reason: "must not be negative"}
	}
	if _, err := safety.ValidateBaseURL(c.API.BaseURL); err != nil {
		return &ValidationError{Field: "api.base_url", Reason: err.Error()}
	}
	return nil
}

// ApplyEnv overrides file values with the environment. Command-line flags
// are applied after this and win over both.
func (c *Config) ApplyEnv() {
	if token := os.Getenv(TokenEnv); token != "" {
		c.API.Token = token
	}
}

// Throttle returns the dispatch interval as a duration.
func (f FetchConfig) Throttle() time.Duration {
	return time.Duration(f.ThrottleMS) * time.Millisecond
}

// Timeout returns the per-request timeout, zero when disabled.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.API.Token != "" {
		out.API.Token = "********"
	}
	return &out
}
