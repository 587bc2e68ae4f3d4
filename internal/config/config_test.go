package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/household-ledger/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.MaxConcurrency != 50 {
		t.Errorf("expected max concurrency 50, got %d", cfg.MaxConcurrency)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected cache TTL 5m, got %s", cfg.CacheTTL)
	}
	if cfg.UseDatabase() {
		t.Error("expected in-memory store without DATABASE_URL")
	}
}

func TestLoad_EnvFileAndOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "PORT=9090\nDATABASE_URL=postgres://ledger@localhost:5432/ledger\nCACHE_TTL=30s\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7070")

	cfg, err := config.Load(envFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 7070 {
		t.Errorf("expected environment to win with 7070, got %d", cfg.Port)
	}
	if !cfg.UseDatabase() {
		t.Error("expected DATABASE_URL from file")
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("expected cache TTL 30s, got %s", cfg.CacheTTL)
	}
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero concurrency", "MAX_CONCURRENCY", "0"},
		{"negative retries", "MAX_RETRIES", "-1"},
		{"port out of range", "PORT", "70000"},
		{"min conns above max", "DB_MIN_CONNS", "50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := config.Load(""); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}
