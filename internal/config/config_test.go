package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Fatalf("unexpected port %q", cfg.Port)
	}
	if cfg.RequestTimeout != 180*time.Second || cfg.VendorTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts: request=%v vendor=%v", cfg.RequestTimeout, cfg.VendorTimeout)
	}
	if cfg.BackboardURL != "https://app.backboard.io/api" {
		t.Fatalf("unexpected vendor url %q", cfg.BackboardURL)
	}
	if cfg.MatchRadiusM != 100 || cfg.RateLimitBurst != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://citypulse@localhost/citypulse")
	t.Setenv("BACKBOARD_MOCK", "true")
	t.Setenv("VENDOR_TIMEOUT", "5s")
	t.Setenv("MATCH_RADIUS_M", "250.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.DatabaseURL != "postgres://citypulse@localhost/citypulse" {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	if !cfg.BackboardMock || cfg.VendorTimeout != 5*time.Second || cfg.MatchRadiusM != 250.5 {
		t.Fatalf("typed values not decoded: %+v", cfg)
	}
}
