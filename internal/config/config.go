package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the survey-intel service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Miner    MinerConfig    `yaml:"miner"`
	Signals  SignalsConfig  `yaml:"signals"`
	Forecast ForecastConfig `yaml:"forecast"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// StorageConfig selects and configures the record/relationship stores.
type StorageConfig struct {
	Driver      string        `yaml:"driver"` // "postgres" or "memory"
	DSN         string        `yaml:"dsn"`
	ConnTimeout time.Duration `yaml:"connTimeout"`
}

// MinerConfig holds default thresholds for mining runs. Per-run overrides
// arrive with each request.
type MinerConfig struct {
	MinOccurrences int     `yaml:"minOccurrences"`
	MinConfidence  float64 `yaml:"minConfidence"`
	LookbackYears  int     `yaml:"lookbackYears"`
}

// SignalsConfig controls the signal lifecycle manager.
type SignalsConfig struct {
	LookbackDays int `yaml:"lookbackDays"`
}

// ForecastConfig controls the forecast model.
type ForecastConfig struct {
	FactorsPath     string        `yaml:"factorsPath"`
	StateAvgTTL     time.Duration `yaml:"stateAvgTTL"`
}

// CacheConfig controls caching of expensive state-wide aggregates.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SURVEY_INTEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			GracefulTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:      "memory",
			ConnTimeout: 5 * time.Second,
		},
		Miner: MinerConfig{
			MinOccurrences: 3,
			MinConfidence:  0.5,
			LookbackYears:  3,
		},
		Signals: SignalsConfig{
			LookbackDays: 14,
		},
		Forecast: ForecastConfig{
			FactorsPath: "configs/factors/default.yaml",
			StateAvgTTL: 15 * time.Minute,
		},
		Cache:   CacheConfig{Enabled: true},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SURVEY_INTEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SURVEY_INTEL_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := os.Getenv("SURVEY_INTEL_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SURVEY_INTEL_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SURVEY_INTEL_DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SURVEY_INTEL_MINER_MIN_OCCURRENCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Miner.MinOccurrences = n
		}
	}
	if v := os.Getenv("SURVEY_INTEL_MINER_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Miner.MinConfidence = f
		}
	}
	if v := os.Getenv("SURVEY_INTEL_MINER_LOOKBACK_YEARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Miner.LookbackYears = n
		}
	}
	if v := os.Getenv("SURVEY_INTEL_SIGNAL_LOOKBACK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Signals.LookbackDays = n
		}
	}
	if v := os.Getenv("SURVEY_INTEL_FACTORS_PATH"); v != "" {
		cfg.Forecast.FactorsPath = v
	}
	if v := os.Getenv("SURVEY_INTEL_STATE_AVG_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Forecast.StateAvgTTL = d
		}
	}
	if v := os.Getenv("SURVEY_INTEL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SURVEY_INTEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SURVEY_INTEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
