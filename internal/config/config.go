package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gorm.io/gorm/logger"
)

// Config holds all settings, loaded from the environment and an optional .env file
type Config struct {
	Database DatabaseConfig
	Catalog  CatalogConfig
	Import   ImportConfig
	Reminder ReminderConfig
	Price    PriceConfig
}

type DatabaseConfig struct {
	Path     string `envconfig:"INVENTORY_DB_PATH" default:"./inventory.db"`
	LogLevel string `envconfig:"INVENTORY_DB_LOG_LEVEL" default:"warn"` // silent, error, warn or info
}

// CatalogConfig holds Pokemon TCG API settings. The API works without a key
// at a lower daily quota.
type CatalogConfig struct {
	BaseURL   string        `envconfig:"CATALOG_BASE_URL" default:"https://api.pokemontcg.io/v2"`
	APIKey    string        `envconfig:"CATALOG_API_KEY" default:""`
	Timeout   time.Duration `envconfig:"CATALOG_TIMEOUT" default:"30s"`
	MinDelay  time.Duration `envconfig:"CATALOG_MIN_DELAY" default:"2s"`
	SearchTTL time.Duration `envconfig:"CATALOG_SEARCH_TTL" default:"1h"`
	CardTTL   time.Duration `envconfig:"CATALOG_CARD_TTL" default:"24h"`
	CacheSize int           `envconfig:"CATALOG_CACHE_SIZE" default:"512"`
}

type ImportConfig struct {
	RowDelay time.Duration `envconfig:"IMPORT_ROW_DELAY" default:"100ms"`
}

type ReminderConfig struct {
	Interval        time.Duration `envconfig:"REMINDER_INTERVAL" default:"5m"`
	LongOverdueDays int           `envconfig:"REMINDER_LONG_OVERDUE_DAYS" default:"3"`
}

// PriceConfig controls the background market price refresher
type PriceConfig struct {
	Interval  time.Duration `envconfig:"PRICE_REFRESH_INTERVAL" default:"1h"`
	BatchSize int           `envconfig:"PRICE_BATCH_SIZE" default:"20"`
}

// GormLogLevel maps the configured log level name to gorm's logger level
func (d *DatabaseConfig) GormLogLevel() (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(d.LogLevel)) {
	case "silent":
		return logger.Silent, nil
	case "error":
		return logger.Error, nil
	case "", "warn", "warning":
		return logger.Warn, nil
	case "info":
		return logger.Info, nil
	}
	return 0, fmt.Errorf("invalid INVENTORY_DB_LOG_LEVEL %q", d.LogLevel)
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present; variables already set in
// the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := cfg.Database.GormLogLevel(); err != nil {
		return nil, err
	}
	if cfg.Catalog.CacheSize < 1 {
		return nil, fmt.Errorf("invalid CATALOG_CACHE_SIZE %d", cfg.Catalog.CacheSize)
	}
	if cfg.Price.BatchSize < 1 {
		return nil, fmt.Errorf("invalid PRICE_BATCH_SIZE %d", cfg.Price.BatchSize)
	}
	return &cfg, nil
}
