// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host     string `envconfig:"RICE_EVAL_HOST" yaml:"host"`
	Port     int    `envconfig:"RICE_EVAL_PORT" yaml:"port"`
	GRPCPort int    `envconfig:"RICE_EVAL_GRPC_PORT" yaml:"grpc_port"` // 0 = disabled

	Eval     EvalConfig     `yaml:"eval"`
	Source   SourceConfig   `yaml:"source"`
	Cache    CacheConfig    `yaml:"cache"`
	Bus      BusConfig      `yaml:"bus"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
	Security SecurityConfig `yaml:"security"`
}

// EvalConfig holds evaluation settings.
type EvalConfig struct {
	Cutoffs        []int   `envconfig:"RICE_EVAL_CUTOFFS" yaml:"cutoffs"`
	Workers        int     `envconfig:"RICE_EVAL_WORKERS" yaml:"workers"`
	QueriesPath    string  `envconfig:"RICE_EVAL_QUERIES" yaml:"queries"`
	JudgmentsPath  string  `envconfig:"RICE_EVAL_JUDGMENTS" yaml:"judgments"`
	RelevantGrade  int     `envconfig:"RICE_EVAL_RELEVANT_GRADE" yaml:"relevant_grade"`
	ReportFormat   string  `envconfig:"RICE_EVAL_REPORT_FORMAT" yaml:"report_format"`
	EnforceBand    bool    `envconfig:"RICE_EVAL_ENFORCE_BAND" yaml:"enforce_band"`
	BandMinPercent float64 `envconfig:"RICE_EVAL_BAND_MIN" yaml:"band_min_percent"`
	BandMaxPercent float64 `envconfig:"RICE_EVAL_BAND_MAX" yaml:"band_max_percent"`
}

// SourceConfig selects where ranked result lists come from.
type SourceConfig struct {
	Type              string  `envconfig:"RICE_EVAL_SOURCE_TYPE" yaml:"type"`
	URL               string  `envconfig:"RICE_EVAL_SOURCE_URL" yaml:"url"`
	Store             string  `envconfig:"RICE_EVAL_SOURCE_STORE" yaml:"store"`             // empty = default endpoint
	RequestsPerSecond float64 `envconfig:"RICE_EVAL_SOURCE_RPS" yaml:"requests_per_second"` // 0 = unlimited
	Burst             int     `envconfig:"RICE_EVAL_SOURCE_BURST" yaml:"burst"`
	TimeoutSeconds    int     `envconfig:"RICE_EVAL_SOURCE_TIMEOUT" yaml:"timeout_seconds"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Type     string `envconfig:"RICE_EVAL_CACHE_TYPE" yaml:"type"`
	Size     int    `envconfig:"RICE_EVAL_CACHE_SIZE" yaml:"size"`
	TTL      int    `envconfig:"RICE_EVAL_CACHE_TTL" yaml:"ttl"` // seconds, 0 = no expiry
	RedisURL string `envconfig:"RICE_EVAL_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RICE_EVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RICE_EVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"RICE_EVAL_KAFKA_GROUP" yaml:"kafka_group"`
	EventLog     string `envconfig:"RICE_EVAL_EVENT_LOG" yaml:"event_log"` // empty = disabled
}

// HistoryConfig holds comparison history settings.
type HistoryConfig struct {
	Enabled bool   `envconfig:"RICE_EVAL_HISTORY_ENABLED" yaml:"enabled"`
	Path    string `envconfig:"RICE_EVAL_HISTORY_PATH" yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RICE_EVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RICE_EVAL_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds HTTP security settings.
type SecurityConfig struct {
	RateLimit int `envconfig:"RICE_EVAL_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	// YAML overrides defaults
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Environment has the highest priority
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// DefaultCutoffs are the result counts reported when none are configured.
var DefaultCutoffs = []int{1, 10, 25, 50, 75, 100}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8090
	cfg.GRPCPort = 0

	cfg.Eval = EvalConfig{
		Cutoffs:        append([]int(nil), DefaultCutoffs...),
		Workers:        8,
		RelevantGrade:  1,
		ReportFormat:   "text",
		BandMinPercent: 30,
		BandMaxPercent: 40,
	}

	cfg.Source = SourceConfig{
		Type:           "run",
		URL:            "http://localhost:8080",
		Burst:          1,
		TimeoutSeconds: 30,
	}

	cfg.Cache = CacheConfig{
		Type:     "none",
		Size:     10000,
		TTL:      0,
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "rice-eval",
	}

	cfg.History = HistoryConfig{
		Enabled: false,
		Path:    "./data/rice-eval.db",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit: 0,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		errs = append(errs, "grpc_port must be between 0 and 65535")
	}

	// Eval validation
	if len(c.Eval.Cutoffs) == 0 {
		errs = append(errs, "at least one cutoff is required")
	}
	for _, k := range c.Eval.Cutoffs {
		if k < 1 {
			errs = append(errs, fmt.Sprintf("cutoff %d must be positive", k))
		}
	}
	if c.Eval.Workers < 1 {
		errs = append(errs, "workers must be positive")
	}
	if c.Eval.RelevantGrade < 1 {
		errs = append(errs, "relevant_grade must be positive")
	}
	validFormats := map[string]bool{"text": true, "markdown": true, "csv": true, "json": true}
	if !validFormats[c.Eval.ReportFormat] {
		errs = append(errs, fmt.Sprintf("invalid report format: %s (must be text, markdown, csv, or json)", c.Eval.ReportFormat))
	}
	if c.Eval.EnforceBand && c.Eval.BandMinPercent > c.Eval.BandMaxPercent {
		errs = append(errs, "band_min_percent must not exceed band_max_percent")
	}

	// Source validation
	validSources := map[string]bool{"run": true, "http": true}
	if !validSources[c.Source.Type] {
		errs = append(errs, fmt.Sprintf("invalid source type: %s (must be run or http)", c.Source.Type))
	}
	if c.Source.Type == "http" && c.Source.URL == "" {
		errs = append(errs, "source url is required for http source")
	}
	if c.Source.RequestsPerSecond < 0 {
		errs = append(errs, "requests_per_second must not be negative")
	}

	// Cache validation
	validCacheTypes := map[string]bool{"none": true, "memory": true, "redis": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be none, memory, or redis)", c.Cache.Type))
	}
	if c.Cache.Type == "memory" && c.Cache.Size < 1 {
		errs = append(errs, "cache size must be positive")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required for kafka bus")
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history path is required when history is enabled")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the HTTP server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddress returns the gRPC listen address, or "" when gRPC is disabled.
func (c *Config) GRPCAddress() string {
	if c.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
