package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string        `mapstructure:"ENV"`
	Debug           bool          `mapstructure:"DEBUG"`
	Port            string        `mapstructure:"PORT"`
	DatabasePath    string        `mapstructure:"DATABASE_PATH"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimit     `mapstructure:",squash"`
}

// RateLimit holds per-client request budgets, in requests per minute
type RateLimit struct {
	Enabled         bool `mapstructure:"RATE_LIMIT_ENABLED"`
	WritesPerMinute int  `mapstructure:"RATE_LIMIT_WRITES_PER_MINUTE"`
	ReadsPerMinute  int  `mapstructure:"RATE_LIMIT_READS_PER_MINUTE"`
}

var defaults = map[string]interface{}{
	"ENV":                          "development",
	"DEBUG":                        false,
	"PORT":                         "8080",
	"DATABASE_PATH":                "minimarbles.db",
	"SHUTDOWN_TIMEOUT":             "5s",
	"RATE_LIMIT_ENABLED":           true,
	"RATE_LIMIT_WRITES_PER_MINUTE": 120,
	"RATE_LIMIT_READS_PER_MINUTE":  1000,
}

// Load reads config.yaml from the working directory if present, then applies
// environment overrides
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	return load(v)
}

// LoadFile reads configuration from an explicit file path plus environment overrides
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Port == "" {
		return nil, errors.New("PORT must not be empty")
	}
	if cfg.DatabasePath == "" {
		return nil, errors.New("DATABASE_PATH must not be empty")
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.WritesPerMinute <= 0 || cfg.RateLimit.ReadsPerMinute <= 0) {
		return nil, errors.New("rate limits must be positive when rate limiting is enabled")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with ENV=production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
