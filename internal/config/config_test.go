package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ROUTE_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.RouteTTL != 30*time.Minute || cfg.TrafficFactor != 1.2 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.StaleDriverTimeout != time.Minute {
		t.Fatalf("stale driver timeout = %s, want 1m", cfg.StaleDriverTimeout)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ROUTE_TTL", "45m")
	t.Setenv("TRAFFIC_FACTOR", "1.5")
	t.Setenv("DATABASE_URL", "postgres://localhost/dispatch")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.RouteTTL != 45*time.Minute || cfg.TrafficFactor != 1.5 {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	if cfg.DatabaseURL != "postgres://localhost/dispatch" {
		t.Fatalf("database url = %q", cfg.DatabaseURL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("allowed origins = %v", cfg.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{Port: "8080", LogLevel: "loud", TrafficFactor: 0, RouteTTL: time.Minute, StaleDriverTimeout: time.Minute}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"TRAFFIC_FACTOR", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestGet(t *testing.T) {
	t.Setenv("SEED_PATH", "")
	if got := Get("SEED_PATH", "fallback.json"); got != "fallback.json" {
		t.Fatalf("Get = %q, want fallback", got)
	}
	t.Setenv("SEED_PATH", "drivers.json")
	if got := Get("SEED_PATH", "fallback.json"); got != "drivers.json" {
		t.Fatalf("Get = %q, want env value", got)
	}
}
