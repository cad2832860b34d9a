package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INTERNAL_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Port != 4201 {
		t.Errorf("Port = %d, want 4201", cfg.Port)
	}
	if cfg.DatabasePath != "./data.db" {
		t.Errorf("DatabasePath = %q, want ./data.db", cfg.DatabasePath)
	}
	if cfg.PolarAPIBaseURL != "https://www.polaraccesslink.com/v3" {
		t.Errorf("PolarAPIBaseURL = %q", cfg.PolarAPIBaseURL)
	}
	if !cfg.MetricsEnabled || cfg.MetricsPort != 4202 {
		t.Errorf("metrics defaults wrong: enabled=%v port=%d", cfg.MetricsEnabled, cfg.MetricsPort)
	}
	if !cfg.SyncEnabled || cfg.SyncInterval != 15 || cfg.SyncMaxUsersPerRun != 10 {
		t.Errorf("sync defaults wrong: enabled=%v interval=%d max=%d",
			cfg.SyncEnabled, cfg.SyncInterval, cfg.SyncMaxUsersPerRun)
	}
	if cfg.SyncOnStartup {
		t.Error("SyncOnStartup should default to false")
	}
	if cfg.RateLimitShortCeiling != 500 || cfg.RateLimitLongCeiling != 5000 {
		t.Errorf("rate limit defaults wrong: short=%d long=%d",
			cfg.RateLimitShortCeiling, cfg.RateLimitLongCeiling)
	}
}

func TestLoadRequiresInternalAPIKey(t *testing.T) {
	t.Setenv("INTERNAL_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when INTERNAL_API_KEY is missing")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INTERNAL_API_KEY", "test-key")
	t.Setenv("PORT", "9000")
	t.Setenv("SYNC_ENABLED", "false")
	t.Setenv("RATE_LIMIT_SHORT_CEILING", "100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.SyncEnabled {
		t.Error("SyncEnabled override not applied")
	}
	if cfg.RateLimitShortCeiling != 100 {
		t.Errorf("RateLimitShortCeiling = %d, want 100", cfg.RateLimitShortCeiling)
	}
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if got := getEnvInt("SOME_INT", 7); got != 7 {
		t.Errorf("getEnvInt = %d, want default 7", got)
	}

	t.Setenv("SOME_BOOL", "not-a-bool")
	if got := getEnvBool("SOME_BOOL", true); got != true {
		t.Errorf("getEnvBool = %v, want default true", got)
	}
}
