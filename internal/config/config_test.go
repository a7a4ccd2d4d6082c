package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/policy"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":8443" {
		t.Errorf("expected default listen address, got %q", cfg.Listen)
	}
	if cfg.Session.Store != "memory" {
		t.Errorf("expected default session store 'memory', got %q", cfg.Session.Store)
	}
}

func TestLoadParsesYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
listen: ":9443"
session:
  idle_timeout: 10m
  store: redis
tee:
  enabled: true
  cpu_cores: 4
compliance:
  frameworks: ["hipaa", "gdpr"]
`
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":9443" {
		t.Errorf("expected listen ':9443', got %q", cfg.Listen)
	}
	if cfg.Session.Store != "redis" {
		t.Errorf("expected session store 'redis', got %q", cfg.Session.Store)
	}
	if !cfg.Tee.Enabled || cfg.Tee.CPUCores != 4 {
		t.Errorf("expected tee enabled with 4 cores, got %+v", cfg.Tee)
	}
	if len(cfg.Compliance.Frameworks) != 2 {
		t.Errorf("expected 2 compliance frameworks, got %d", len(cfg.Compliance.Frameworks))
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SAFECLAW_LISTEN", ":7777")
	t.Setenv("SAFECLAW_SESSION_STORE", "redis")
	t.Setenv("SAFECLAW_TEE_ENABLED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":7777" {
		t.Errorf("expected env-overridden listen, got %q", cfg.Listen)
	}
	if cfg.Session.Store != "redis" {
		t.Errorf("expected env-overridden session store, got %q", cfg.Session.Store)
	}
	if !cfg.Tee.Enabled {
		t.Error("expected env-overridden tee.enabled true")
	}
}

func TestValidateRejectsBadSessionStore(t *testing.T) {
	cfg := defaults()
	cfg.Session.Store = "filesystem"
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for unknown session store")
	}
}

func TestValidateRejectsUnknownComplianceFramework(t *testing.T) {
	cfg := defaults()
	cfg.Compliance.Frameworks = []string{"soc2"}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for unknown compliance framework")
	}
}

func TestValidateRejectsUnknownPolicyDecision(t *testing.T) {
	cfg := defaults()
	cfg.Policy.TypeRules = map[string]string{"api_key": "deny"}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for unknown policy decision name")
	}
}

func TestBuildDataPolicy(t *testing.T) {
	cfg := defaults()
	cfg.Policy.TypeRules = map[string]string{"api_key": "reject"}

	dp, err := cfg.BuildDataPolicy()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dp.Name != "default" {
		t.Errorf("expected policy name 'default', got %q", dp.Name)
	}
	if dp.TypeRules["api_key"] != policy.Reject {
		t.Errorf("expected api_key type rule to be Reject, got %v", dp.TypeRules["api_key"])
	}
}

func TestFrameworksResolvesNames(t *testing.T) {
	cfg := defaults()
	cfg.Compliance.Frameworks = []string{"hipaa", "pci_dss"}

	frameworks, err := cfg.Frameworks()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frameworks) != 2 {
		t.Fatalf("expected 2 frameworks, got %d", len(frameworks))
	}
}
