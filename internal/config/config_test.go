package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.TokenTTL != 8*time.Hour {
		t.Fatalf("expected 8h token ttl, got %s", cfg.TokenTTL)
	}
	if cfg.VerifyTTL != 5*time.Minute {
		t.Fatalf("expected 5m verify ttl, got %s", cfg.VerifyTTL)
	}
	if cfg.Timezone != "Asia/Jakarta" {
		t.Fatalf("expected Asia/Jakarta, got %q", cfg.Timezone)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("VERIFY_TTL", "90s")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")

	cfg := Load()
	if cfg.TokenTTL != 2*time.Hour {
		t.Fatalf("expected 2h, got %s", cfg.TokenTTL)
	}
	if cfg.VerifyTTL != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.VerifyTTL)
	}
	if cfg.RateLimitPerMin != 30 {
		t.Fatalf("expected 30, got %d", cfg.RateLimitPerMin)
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("TOKEN_TTL", "not-a-duration")
	cfg := Load()
	if cfg.TokenTTL != 8*time.Hour {
		t.Fatalf("expected fallback 8h, got %s", cfg.TokenTTL)
	}
}

func TestLocationInvalidFallsBackToUTC(t *testing.T) {
	cfg := Load()
	cfg.Timezone = "Not/AZone"
	if loc := cfg.Location(); loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}
}
