package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultMaxBodySize int64 = 2 * 1024 * 1024 // 2MB
	DefaultConfigPath        = "config.yaml"
)

// BitbucketConfig holds connection settings for the Bitbucket Server REST API.
type BitbucketConfig struct {
	BaseURL           string        `yaml:"base_url"`            // e.g. https://bitbucket.example.com
	Token             string        `yaml:"-"`                   // From Env: BITBUCKET_TOKEN
	AuthHeader        string        `yaml:"auth_header"`         // Header name for the token; empty uses "Authorization: Bearer"
	HTTPTimeout       time.Duration `yaml:"http_timeout"`        // Per-request timeout (default: 30s)
	ActivityPageLimit int           `yaml:"activity_page_limit"` // Page size for the activity feed scan (default: 1000)
}

// AnalysisConfig holds tunables for the analyzer pipeline.
type AnalysisConfig struct {
	VolumeThreshold      int `yaml:"volume_threshold"`       // Added js/java lines above which the volume finding fires (default: 100)
	DiffFetchConcurrency int `yaml:"diff_fetch_concurrency"` // Max concurrent per-file diff fetches (default: 1, i.e. serial)
}

// WebhookConfig holds configuration for webhook processing
type WebhookConfig struct {
	DebounceDelay time.Duration `yaml:"debounce_delay"` // Coalesce window for repeated pr:from_ref_updated events (default: 10s)
}

// StorageConfig holds configuration for run-history persistence
type StorageConfig struct {
	Driver  string        `yaml:"driver"`  // sqlite
	DSN     string        `yaml:"dsn"`     // Connection string
	Timeout time.Duration `yaml:"timeout"` // Timeout for storage operations (default: 5s)
}

// Config holds the configuration for the review task automation service
type Config struct {
	Log struct {
		Level    string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
		Format   string `yaml:"format"` // text, json
		Output   string `yaml:"output"` // stdout, stderr, /path/to/file
		Rotation struct {
			MaxSize    int  `yaml:"max_size"`    // Megabytes
			MaxBackups int  `yaml:"max_backups"` // Number of old files to keep
			MaxAge     int  `yaml:"max_age"`     // Days to keep
			Compress   bool `yaml:"compress"`
		} `yaml:"rotation"`
	} `yaml:"log"`

	Server struct {
		Port             int           `yaml:"port"`
		ConcurrencyLimit int64         `yaml:"concurrency_limit"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxBodySize      int64         `yaml:"max_body_size"`
		WebhookSecret    string        `yaml:"-"` // From Env
	} `yaml:"server"`

	Bitbucket BitbucketConfig `yaml:"bitbucket"`

	Analysis AnalysisConfig `yaml:"analysis"`

	Webhook WebhookConfig `yaml:"webhook"`

	Storage StorageConfig `yaml:"storage"`
}

// GetLogLevel returns the slog.Level based on Log.Level string
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads configuration from YAML file and supplements with environment variables
func LoadConfig() *Config {
	cfg := &Config{}

	// Set some defaults before loading
	cfg.Log.Level = "INFO"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"
	cfg.Server.Port = 8080
	cfg.Server.ConcurrencyLimit = 10
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.MaxBodySize = DefaultMaxBodySize
	cfg.Bitbucket.HTTPTimeout = 30 * time.Second
	cfg.Bitbucket.ActivityPageLimit = 1000
	cfg.Analysis.VolumeThreshold = 100
	cfg.Analysis.DiffFetchConcurrency = 1
	cfg.Webhook.DebounceDelay = 10 * time.Second

	// Log Rotation defaults
	cfg.Log.Rotation.MaxSize = 100
	cfg.Log.Rotation.MaxBackups = 10
	cfg.Log.Rotation.MaxAge = 7
	cfg.Log.Rotation.Compress = true

	// Storage defaults
	cfg.Storage.Timeout = 5 * time.Second

	// Try to load from YAML
	configPath := getEnv("CONFIG_PATH", DefaultConfigPath)
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Error("unmarshal config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", configPath)
	} else {
		if !os.IsNotExist(err) {
			slog.Error("read config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config not found, using defaults", "path", configPath)
	}

	// Always supplement/override with environment variables for secrets and critical items
	cfg.Bitbucket.Token = getEnv("BITBUCKET_TOKEN", cfg.Bitbucket.Token)
	cfg.Server.WebhookSecret = getEnv("WEBHOOK_SECRET", cfg.Server.WebhookSecret)

	if envBaseURL := os.Getenv("BITBUCKET_BASE_URL"); envBaseURL != "" {
		cfg.Bitbucket.BaseURL = envBaseURL
	}
	if envPort := getEnvInt("PORT", 0); envPort != 0 {
		cfg.Server.Port = envPort
	}
	if envLogLevel := os.Getenv("LOG_LEVEL"); envLogLevel != "" {
		cfg.Log.Level = envLogLevel
	}
	if envLogFormat := os.Getenv("LOG_FORMAT"); envLogFormat != "" {
		cfg.Log.Format = envLogFormat
	}
	if envLogOutput := getEnv("LOG_OUTPUT", ""); envLogOutput != "" {
		cfg.Log.Output = envLogOutput
	}

	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.Bitbucket.BaseURL == "" {
		errs = append(errs, "bitbucket base_url is required (or BITBUCKET_BASE_URL)")
	}

	if c.Bitbucket.Token == "" {
		errs = append(errs, "BITBUCKET_TOKEN is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}

	if c.Analysis.VolumeThreshold < 0 {
		errs = append(errs, fmt.Sprintf("invalid volume threshold: %d", c.Analysis.VolumeThreshold))
	}

	if c.Analysis.DiffFetchConcurrency < 1 {
		errs = append(errs, fmt.Sprintf("invalid diff fetch concurrency: %d", c.Analysis.DiffFetchConcurrency))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
