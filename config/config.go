// Package config loads service configuration with the precedence
// defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/studyhive/contentgen/gemini"
	"github.com/studyhive/contentgen/internal/cache"
	"github.com/studyhive/contentgen/internal/server"
	"github.com/studyhive/contentgen/internal/store"
)

const envPrefix = "CONTENTGEN_"

// Config is the full service configuration.
type Config struct {
	Server     server.Config    `yaml:"server"`
	Gemini     gemini.Config    `yaml:"gemini"`
	Redis      cache.Config     `yaml:"redis"`
	Database   store.Config     `yaml:"database"`
	Generation GenerationConfig `yaml:"generation"`
	Log        LogConfig        `yaml:"log"`
}

// GenerationConfig tunes the generation pipeline.
type GenerationConfig struct {
	// BatchSize is the per-sub-batch item count for bulk quiz generation.
	BatchSize int `yaml:"batch_size"`
	// Concurrency bounds in-flight sub-batch requests.
	Concurrency int `yaml:"concurrency"`
	// CacheTTL bounds how long generated records stay cached.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LogConfig selects the logger build.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Server: server.DefaultConfig(),
		Gemini: gemini.Config{
			Model:             "gemini-2.5-flash",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Redis:    cache.DefaultConfig(),
		Database: store.Config{Driver: "sqlite"},
		Generation: GenerationConfig{
			BatchSize:   20,
			Concurrency: 3,
			CacheTTL:    24 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (skipped when path is empty) over the
// defaults, then applies environment overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides the settings that differ between deployments. API keys
// in particular must never live in a checked-in YAML file.
func applyEnv(cfg *Config) {
	if v := getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := getenv("GEMINI_API_KEYS"); v != "" {
		cfg.Gemini.APIKeys = splitKeys(v)
	}
	if v := getenv("GEMINI_BASE_URL"); v != "" {
		cfg.Gemini.BaseURL = v
	}
	if v := getenv("GEMINI_MODEL"); v != "" {
		cfg.Gemini.Model = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.BatchSize = n
		}
	}
	if v := getenv("BATCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.Concurrency = n
		}
	}
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}

func splitKeys(v string) []string {
	parts := strings.Split(v, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Generation.BatchSize <= 0 {
		return fmt.Errorf("generation.batch_size must be positive, got %d", c.Generation.BatchSize)
	}
	if c.Generation.Concurrency <= 0 {
		return fmt.Errorf("generation.concurrency must be positive, got %d", c.Generation.Concurrency)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug|info|warn|error, got %q", c.Log.Level)
	}
	return nil
}
