// Package config loads service settings from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"port"`
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	LogLevel    string `mapstructure:"log_level"`
	SeedPath    string `mapstructure:"seed_path"`

	RouteTTL      time.Duration `mapstructure:"route_ttl"`
	TrafficFactor float64       `mapstructure:"traffic_factor"`

	StaleDriverTimeout time.Duration `mapstructure:"stale_driver_timeout"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins"`

	ORSAPIKey      string        `mapstructure:"ors_api_key"`
	ORSCountry     string        `mapstructure:"ors_country"`
	GeocodeMaxAge  time.Duration `mapstructure:"geocode_max_age"`
	ShutdownPeriod time.Duration `mapstructure:"shutdown_period"`
}

var defaults = map[string]any{
	"port":                 "8080",
	"log_level":            "info",
	"seed_path":            "data/seeds/drivers.json",
	"route_ttl":            "30m",
	"traffic_factor":       1.2,
	"stale_driver_timeout": "60s",
	"ors_country":          "US",
	"geocode_max_age":      "720h",
	"shutdown_period":      "15s",
}

// Load reads .env when present, then the process environment. Keys are the
// upper-case field names, e.g. ROUTE_TTL=45m.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range []string{"database_url", "redis_url", "allowed_origins", "ors_api_key"} {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.RouteTTL <= 0 {
		errs = append(errs, fmt.Errorf("ROUTE_TTL must be positive, got %s", c.RouteTTL))
	}
	if c.TrafficFactor <= 0 {
		errs = append(errs, fmt.Errorf("TRAFFIC_FACTOR must be positive, got %v", c.TrafficFactor))
	}
	if c.StaleDriverTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STALE_DRIVER_TIMEOUT must be positive, got %s", c.StaleDriverTimeout))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Get returns the environment value for key or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
