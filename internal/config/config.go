// Package config provides centralized configuration for the harvester.
// Configuration is loaded from an optional JSON file, overridden by
// environment variables, validated, and handed to the pipelines as typed
// sections.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"log/slog"
)

// AppConfig is the complete application configuration.
type AppConfig struct {
	AppName string `json:"app_name" env:"APP_NAME"`

	Polymarket PolymarketConfig `json:"polymarket"`
	Harvest    HarvestConfig    `json:"harvest"`
	Cache      CacheConfig      `json:"cache"`
	Output     OutputConfig     `json:"output"`
	Storage    StorageConfig    `json:"storage"`
	Classify   ClassifyConfig   `json:"classify"`
	Logging    LoggingConfig    `json:"logging"`
}

// PolymarketConfig configures the upstream API clients.
type PolymarketConfig struct {
	GammaBase   string  `json:"gamma_base" env:"GAMMA_BASE"`     // Gamma API base URL
	DataBase    string  `json:"data_base" env:"DATA_BASE"`       // Data API base URL
	ClobBase    string  `json:"clob_base" env:"CLOB_BASE"`       // CLOB API base URL
	RPS         float64 `json:"rps" env:"POLYMARKET_RPS"`        // Requests per second per endpoint group
	Timeout     string  `json:"timeout" env:"HTTP_TIMEOUT"`      // Per-request timeout
	MaxAttempts int     `json:"max_attempts" env:"MAX_ATTEMPTS"` // Retry budget per logical request
}

// HarvestConfig bounds a discovery-and-harvest run.
type HarvestConfig struct {
	Months     int `json:"months" env:"HARVEST_MONTHS"`           // How far back discovery reaches
	PageSize   int `json:"page_size" env:"HARVEST_PAGE_SIZE"`     // Discovery page size
	MaxMarkets int `json:"max_markets" env:"HARVEST_MAX_MARKETS"` // Cap on markets per run, 0 = unbounded
}

// CacheConfig configures the on-disk entity cache.
type CacheConfig struct {
	Dir string `json:"dir" env:"CACHE_DIR"`
}

// OutputConfig configures the CSV/JSONL output sink.
type OutputConfig struct {
	Dir string `json:"dir" env:"OUTPUT_DIR"`
}

// StorageConfig configures the optional analytical sink.
type StorageConfig struct {
	Enabled     bool   `json:"enabled" env:"STORAGE_ENABLED"`
	DatabaseURL string `json:"database_url" env:"DATABASE_URL"` // DuckDB database path
}

// ClassifyConfig configures the LLM classification step.
type ClassifyConfig struct {
	APIBase     string `json:"api_base" env:"CLASSIFY_API_BASE"`
	APIKey      string `json:"api_key" env:"GROQ_API_KEY"`
	Model       string `json:"model" env:"CLASSIFY_MODEL"`
	MaxAttempts int    `json:"max_attempts" env:"CLASSIFY_MAX_ATTEMPTS"` // Attempts per market before giving up
	RetryDelay  string `json:"retry_delay" env:"CLASSIFY_RETRY_DELAY"`   // Delay between invalid-response retries
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`         // debug, info, warn, error
	Format     string `json:"format" env:"LOG_FORMAT"`       // json, text
	FilePath   string `json:"file_path" env:"LOG_FILE_PATH"` // empty = stderr only
	MaxSize    int    `json:"max_size" env:"LOG_MAX_SIZE"`   // MB per rotated file
	MaxBackups int    `json:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAge     int    `json:"max_age" env:"LOG_MAX_AGE"` // days
	Compress   bool   `json:"compress" env:"LOG_COMPRESS"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "polyharvest",
		Polymarket: PolymarketConfig{
			GammaBase:   "https://gamma-api.polymarket.com",
			DataBase:    "https://data-api.polymarket.com",
			ClobBase:    "https://clob.polymarket.com",
			RPS:         5.0,
			Timeout:     "30s",
			MaxAttempts: 5,
		},
		Harvest: HarvestConfig{
			Months:   6,
			PageSize: 100,
		},
		Cache:  CacheConfig{Dir: "cache"},
		Output: OutputConfig{Dir: "out"},
		Storage: StorageConfig{
			Enabled:     false,
			DatabaseURL: "./data/polyharvest.db",
		},
		Classify: ClassifyConfig{
			APIBase:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			MaxAttempts: 3,
			RetryDelay:  "2s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (if any), then environment variables, then validation.
func Load(path string, logger *slog.Logger) (*AppConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path, logger); err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
	}
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Debug("configuration loaded",
		"config_path", path,
		"cache_dir", cfg.Cache.Dir,
		"output_dir", cfg.Output.Dir,
		"storage_enabled", cfg.Storage.Enabled,
		"log_level", cfg.Logging.Level)
	return cfg, nil
}

func loadFromFile(cfg *AppConfig, path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("config file does not exist, using defaults", "path", path)
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *AppConfig) {
	setString := func(dst *string, key string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setInt := func(dst *int, key string) {
		if val := os.Getenv(key); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(dst *float64, key string) {
		if val := os.Getenv(key); val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				*dst = f
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if val := os.Getenv(key); val != "" {
			*dst = val == "true" || val == "1"
		}
	}

	setString(&cfg.AppName, "APP_NAME")

	setString(&cfg.Polymarket.GammaBase, "GAMMA_BASE")
	setString(&cfg.Polymarket.DataBase, "DATA_BASE")
	setString(&cfg.Polymarket.ClobBase, "CLOB_BASE")
	setFloat(&cfg.Polymarket.RPS, "POLYMARKET_RPS")
	setString(&cfg.Polymarket.Timeout, "HTTP_TIMEOUT")
	setInt(&cfg.Polymarket.MaxAttempts, "MAX_ATTEMPTS")

	setInt(&cfg.Harvest.Months, "HARVEST_MONTHS")
	setInt(&cfg.Harvest.PageSize, "HARVEST_PAGE_SIZE")
	setInt(&cfg.Harvest.MaxMarkets, "HARVEST_MAX_MARKETS")

	setString(&cfg.Cache.Dir, "CACHE_DIR")
	setString(&cfg.Output.Dir, "OUTPUT_DIR")

	setBool(&cfg.Storage.Enabled, "STORAGE_ENABLED")
	setString(&cfg.Storage.DatabaseURL, "DATABASE_URL")

	setString(&cfg.Classify.APIBase, "CLASSIFY_API_BASE")
	setString(&cfg.Classify.APIKey, "GROQ_API_KEY")
	setString(&cfg.Classify.Model, "CLASSIFY_MODEL")
	setInt(&cfg.Classify.MaxAttempts, "CLASSIFY_MAX_ATTEMPTS")
	setString(&cfg.Classify.RetryDelay, "CLASSIFY_RETRY_DELAY")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.FilePath, "LOG_FILE_PATH")
	setInt(&cfg.Logging.MaxSize, "LOG_MAX_SIZE")
	setInt(&cfg.Logging.MaxBackups, "LOG_MAX_BACKUPS")
	setInt(&cfg.Logging.MaxAge, "LOG_MAX_AGE")
	setBool(&cfg.Logging.Compress, "LOG_COMPRESS")
}

// Validate checks the configuration for consistency and required fields.
func (c *AppConfig) Validate() error {
	var errs []string

	if c.Polymarket.GammaBase == "" {
		errs = append(errs, "polymarket.gamma_base is required")
	}
	if c.Polymarket.DataBase == "" {
		errs = append(errs, "polymarket.data_base is required")
	}
	if c.Polymarket.ClobBase == "" {
		errs = append(errs, "polymarket.clob_base is required")
	}
	if c.Polymarket.RPS <= 0 {
		errs = append(errs, "polymarket.rps must be greater than 0")
	}
	if c.Polymarket.MaxAttempts <= 0 {
		errs = append(errs, "polymarket.max_attempts must be greater than 0")
	}

	if c.Harvest.Months <= 0 {
		errs = append(errs, "harvest.months must be greater than 0")
	}
	if c.Harvest.PageSize <= 0 {
		errs = append(errs, "harvest.page_size must be greater than 0")
	}

	if c.Cache.Dir == "" {
		errs = append(errs, "cache.dir is required")
	}
	if c.Output.Dir == "" {
		errs = append(errs, "output.dir is required")
	}
	if c.Storage.Enabled && c.Storage.DatabaseURL == "" {
		errs = append(errs, "storage.database_url is required when storage is enabled")
	}

	if c.Classify.MaxAttempts <= 0 {
		errs = append(errs, "classify.max_attempts must be greater than 0")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// String returns the configuration as indented JSON with secrets redacted.
func (c *AppConfig) String() string {
	sanitized := *c
	if sanitized.Classify.APIKey != "" {
		sanitized.Classify.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(&sanitized, "", "  ")
	return string(data)
}
