// Package config loads pagefeed settings from a YAML file and PAGEFEED_*
// environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PAGEFEED_"

// Config is the complete pagefeed configuration.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	MetricsAddr string `yaml:"metrics_addr"`

	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Loader   LoaderConfig   `yaml:"loader"`
	Messages MessagesConfig `yaml:"messages"`
}

// CacheConfig configures conditional-GET caching.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// RedisAddr enables the shared Redis layer when set.
	RedisAddr string        `yaml:"redis_addr"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoaderConfig describes the paged endpoint the CLI reads.
type LoaderConfig struct {
	Endpoint       string            `yaml:"endpoint"`
	PageSize       int               `yaml:"page_size"`
	Query          map[string]string `yaml:"query"`
	Headers        map[string]string `yaml:"headers"`
	CLIRetries     int               `yaml:"cli_retries"`
	MaxConcurrency int               `yaml:"max_concurrency"`
}

// MessagesConfig overrides the loader texts.
type MessagesConfig struct {
	Loading    string `yaml:"loading"`
	NoMore     string `yaml:"no_more"`
	ErrorText  string `yaml:"error_text"`
	LoadFailed string `yaml:"load_failed"`
	Retry      string `yaml:"retry"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		UserAgent:  "pagefeed/1.0",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
		Cache: CacheConfig{
			MemoryTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Loader: LoaderConfig{
			PageSize:       20,
			CLIRetries:     2,
			MaxConcurrency: 4,
		},
	}
}

// Load reads path (optional), applies environment overrides and validates.
// Environment references in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(ExpandEnvVars(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if errs := cfg.applyEnv(); errs.HasErrors() {
		return nil, errs
	}
	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, errs
	}
	return &cfg, nil
}

// applyEnv overrides fields from PAGEFEED_* variables.
func (c *Config) applyEnv() ValidationErrors {
	var errs ValidationErrors

	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Loader.Endpoint = getEnv("ENDPOINT", c.Loader.Endpoint)

	if c.Cache.RedisAddr != "" {
		c.Cache.Enabled = true
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TIMEOUT", &c.Timeout},
		{"RETRY_DELAY", &c.RetryDelay},
	}
	for _, d := range durations {
		raw := getEnv(d.key, "")
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, ValidationError{Field: EnvPrefix + d.key, Message: err.Error()})
			continue
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_RETRIES", &c.MaxRetries},
		{"PAGE_SIZE", &c.Loader.PageSize},
		{"CLI_RETRIES", &c.Loader.CLIRetries},
	}
	for _, i := range ints {
		raw := getEnv(i.key, "")
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, ValidationError{Field: EnvPrefix + i.key, Message: "must be an integer"})
			continue
		}
		*i.dst = v
	}

	return errs
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{Field: "base_url", Message: "must be an absolute URL"})
		}
	}
	if c.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "timeout", Message: "must be > 0"})
	}
	if c.MaxRetries < 0 {
		errs = append(errs, ValidationError{Field: "max_retries", Message: "must be >= 0"})
	}
	if c.RetryDelay < 0 {
		errs = append(errs, ValidationError{Field: "retry_delay", Message: "must be >= 0"})
	}
	if c.Cache.MemoryTTL < 0 {
		errs = append(errs, ValidationError{Field: "memory_ttl", Message: "must be >= 0", Context: "cache"})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "level",
			Message: fmt.Sprintf("unknown log level %q", c.Logging.Level),
			Context: "logging",
		})
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, ValidationError{
			Field:   "format",
			Message: fmt.Sprintf("must be json or console (got %q)", c.Logging.Format),
			Context: "logging",
		})
	}

	if c.Loader.PageSize <= 0 {
		errs = append(errs, ValidationError{Field: "page_size", Message: "must be > 0", Context: "loader"})
	}
	if c.Loader.CLIRetries < 0 {
		errs = append(errs, ValidationError{Field: "cli_retries", Message: "must be >= 0", Context: "loader"})
	}
	if c.Loader.MaxConcurrency <= 0 {
		errs = append(errs, ValidationError{Field: "max_concurrency", Message: "must be > 0", Context: "loader"})
	}

	return errs
}

// EndpointURL resolves the loader endpoint against BaseURL.
func (c *Config) EndpointURL() (string, error) {
	if c.Loader.Endpoint == "" {
		return "", fmt.Errorf("loader endpoint is not configured")
	}
	ref, err := url.Parse(c.Loader.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid loader endpoint: %w", err)
	}
	if ref.IsAbs() || c.BaseURL == "" {
		return ref.String(), nil
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base_url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// QueryValues returns the loader filter parameters.
func (c *Config) QueryValues() url.Values {
	values := url.Values{}
	for k, v := range c.Loader.Query {
		values.Set(k, v)
	}
	return values
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}
