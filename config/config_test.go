package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want :8000", cfg.HTTPAddr)
	}
	if cfg.DBDsn == "" {
		t.Errorf("expected default db dsn, got empty")
	}
	if cfg.AccessTokenTTL != 60*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 1h", cfg.AccessTokenTTL)
	}
}

func TestDurationEnv(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{"empty uses default", "", 5 * time.Minute, false},
		{"go duration", "90s", 90 * time.Second, false},
		{"bare minutes", "15", 15 * time.Minute, false},
		{"garbage", "soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_TTL", tt.value)
			got, err := durationEnv("TEST_TTL", 5*time.Minute)
			if (err != nil) != tt.wantErr {
				t.Fatalf("durationEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("durationEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateAuthReady(t *testing.T) {
	t.Setenv("JWT_SECRET", "sekrit")
	cfg, _ := Load()
	if err := cfg.ValidateAuthReady(); err != nil {
		t.Errorf("expected valid auth config, got %v", err)
	}
	t.Setenv("JWT_SECRET", "")
	cfg, _ = Load()
	if err := cfg.ValidateAuthReady(); err == nil {
		t.Errorf("expected error when JWT_SECRET missing")
	}
}

func TestValidateSeedReady(t *testing.T) {
	t.Setenv("SUPERUSER_USERNAME", "admin")
	t.Setenv("SUPERUSER_EMAIL", "admin@example.com")
	t.Setenv("SUPERUSER_PASSWORD", "changeme")
	cfg, _ := Load()
	if err := cfg.ValidateSeedReady(); err != nil {
		t.Errorf("expected valid seed config, got %v", err)
	}
	t.Setenv("SUPERUSER_PASSWORD", "")
	cfg, _ = Load()
	if err := cfg.ValidateSeedReady(); err == nil {
		t.Errorf("expected error when superuser envs missing")
	}
}
