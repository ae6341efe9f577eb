package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  host: db\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Matching.TopK != 5 {
		t.Errorf("expected top_k 5, got %d", cfg.Matching.TopK)
	}
	if cfg.Matching.Threshold != 60 || cfg.Matching.HighThreshold != 80 || cfg.Matching.LowThreshold != 50 {
		t.Errorf("unexpected thresholds: %+v", cfg.Matching)
	}
	if cfg.Matching.ImageMode != "dual" || cfg.Matching.SweepMode != "single" {
		t.Errorf("unexpected modes: image=%s sweep=%s", cfg.Matching.ImageMode, cfg.Matching.SweepMode)
	}
	if !cfg.Matching.Noise.NoiseEnabled() {
		t.Error("expected noise enabled by default")
	}
	if cfg.MinIO.Buckets.Evidence != "scan-evidence" {
		t.Errorf("expected default evidence bucket, got %q", cfg.MinIO.Buckets.Evidence)
	}
	if cfg.Review.SuppressAfterRejections != 0 {
		t.Errorf("expected suppression disabled, got %d", cfg.Review.SuppressAfterRejections)
	}
}

func TestLoad_YAMLValues(t *testing.T) {
	body := `
matching:
  top_k: 3
  image_mode: single
  noise:
    enabled: false
    seed: 42
review:
  suppress_after_rejections: 2
  rejection_cooldown: 72h
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Matching.TopK != 3 {
		t.Errorf("expected top_k 3, got %d", cfg.Matching.TopK)
	}
	if cfg.Matching.Noise.NoiseEnabled() {
		t.Error("expected noise disabled")
	}
	if cfg.Matching.Noise.Seed != 42 {
		t.Errorf("expected seed 42, got %d", cfg.Matching.Noise.Seed)
	}
	if cfg.Review.RejectionCooldown != 72*time.Hour {
		t.Errorf("expected 72h cooldown, got %s", cfg.Review.RejectionCooldown)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MPR_SERVER_PORT", "9090")
	t.Setenv("MPR_NOISE_ENABLED", "false")
	t.Setenv("MPR_SUPPRESS_AFTER_REJECTIONS", "3")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8000\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected env port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Matching.Noise.NoiseEnabled() {
		t.Error("expected env to disable noise")
	}
	if cfg.Review.SuppressAfterRejections != 3 {
		t.Errorf("expected 3, got %d", cfg.Review.SuppressAfterRejections)
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	_, err := Load(writeConfig(t, "matching:\n  sweep_mode: triple\n"))
	if err == nil {
		t.Fatal("expected error for invalid ranking mode")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "mpr", User: "u", Password: "p"}
	want := "postgres://u:p@db:5432/mpr?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q; want %q", got, want)
	}
}
