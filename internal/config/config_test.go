package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"MODE", "HTTP_ADDR", "DB_DRIVER", "TOKEN_TTL", "ENABLE_SIGNUP", "REDIS_ADDR", "SWEEP_INTERVAL"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Mode != ModeOffline {
		t.Fatalf("mode = %q, want offline", cfg.Mode)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DBDriver != "sqlite" {
		t.Fatalf("unexpected defaults: addr=%q driver=%q", cfg.HTTPAddr, cfg.DBDriver)
	}
	if cfg.TokenTTL != 8*time.Hour || cfg.SweepInterval != 30*time.Second {
		t.Fatalf("unexpected durations: ttl=%s sweep=%s", cfg.TokenTTL, cfg.SweepInterval)
	}
	if !cfg.EnableSignup {
		t.Fatalf("signup should be enabled by default")
	}
	if got := cfg.CORSOrigins(); len(got) != 2 || got[0] != "http://localhost:3000" {
		t.Fatalf("offline origins = %v", got)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("SWEEP_INTERVAL", "garbage")
	t.Setenv("ENABLE_SIGNUP", "no")
	t.Setenv("CORS_ORIGINS_ONLINE", " https://a.example , ,https://b.example")
	t.Setenv("ADMIN_EMAIL", "Boss@Example.COM")

	cfg := FromEnv()
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("ttl = %s", cfg.TokenTTL)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Fatalf("bad duration should fall back, got %s", cfg.SweepInterval)
	}
	if cfg.EnableSignup {
		t.Fatalf("ENABLE_SIGNUP=no should disable signup")
	}
	if cfg.AdminEmail != "boss@example.com" {
		t.Fatalf("admin email = %q", cfg.AdminEmail)
	}
	origins := cfg.CORSOrigins()
	if len(origins) != 2 || origins[1] != "https://b.example" {
		t.Fatalf("online origins = %v", origins)
	}
}
