package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.Env != "dev" {
		t.Errorf("Env = %q, want dev", cfg.Env)
	}
	if cfg.RAGTopK != 5 {
		t.Errorf("RAGTopK = %d, want 5", cfg.RAGTopK)
	}
	if cfg.ApprovalTTL != 168*time.Hour {
		t.Errorf("ApprovalTTL = %s, want 168h", cfg.ApprovalTTL)
	}
	if !cfg.AutoMigrate {
		t.Error("AutoMigrate should default to true")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("APPROVAL_TTL", "24h")
	t.Setenv("AUTO_MIGRATE", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !cfg.Production() {
		t.Error("expected production mode")
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.ApprovalTTL != 24*time.Hour {
		t.Errorf("ApprovalTTL = %s, want 24h", cfg.ApprovalTTL)
	}
	if cfg.AutoMigrate {
		t.Error("AutoMigrate should be off")
	}
}

func TestLoad_RejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("APPROVAL_TTL", "-1h")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative TTL")
	}
}
