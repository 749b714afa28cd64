// Package config loads the service configuration from the environment and
// the optional engine settings file.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/atmx/pnl-engine/internal/model"
)

// Config is the process configuration. Engine settings live in the store;
// SettingsFile only seeds them.
type Config struct {
	Port         string        `envconfig:"PORT" default:"8080"`
	DatabaseURL  string        `envconfig:"DATABASE_URL"`
	RedisURL     string        `envconfig:"REDIS_URL"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
	SettingsFile string        `envconfig:"SETTINGS_FILE"`
	RefreshSpec  string        `envconfig:"REFRESH_SPEC" default:"@every 1m"`

	// Lot limits; zero disables.
	PositionLotLimit decimal.Decimal `envconfig:"POSITION_LOT_LIMIT" default:"0"`
	ProductLotLimit  decimal.Decimal `envconfig:"PRODUCT_LOT_LIMIT" default:"0"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	return &cfg, nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadSettingsFile reads engine settings from a YAML or JSON file. Fields
// missing from the file keep their defaults.
func LoadSettingsFile(path string) (model.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Settings{}, fmt.Errorf("read settings file: %w", err)
	}

	settings := model.DefaultSettings()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, &settings); err != nil {
		settings = model.DefaultSettings()
		if err := json.Unmarshal(data, &settings); err != nil {
			return model.Settings{}, fmt.Errorf("parse settings (tried YAML and JSON): %w", err)
		}
	}
	return settings, nil
}
