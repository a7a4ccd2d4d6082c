package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettingsStoreGetDefaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}

	defaults := store.GetDefaults()

	if defaults.Policy.TeeThreshold == nil || *defaults.Policy.TeeThreshold != "sensitive" {
		t.Error("expected policy.tee_threshold to be 'sensitive' by default")
	}
	if defaults.Policy.AllowHighlySensitive == nil || !*defaults.Policy.AllowHighlySensitive {
		t.Error("expected policy.allow_highly_sensitive to be true by default")
	}
	if defaults.Leakage.InjectionEnabled == nil || !*defaults.Leakage.InjectionEnabled {
		t.Error("expected leakage.injection_enabled to be true by default")
	}
	if defaults.Leakage.DriftEnabled == nil || *defaults.Leakage.DriftEnabled {
		t.Error("expected leakage.drift_enabled to be false by default")
	}
}

func TestSettingsStoreSaveAndLoadLocal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}

	threshold := "critical"
	local := Settings{
		Policy: PolicySettings{TeeThreshold: &threshold},
	}
	if err := store.SaveLocal(local); err != nil {
		t.Fatalf("failed to save local settings: %v", err)
	}

	settingsPath := filepath.Join(dir, "settings.json")
	if _, statErr := os.Stat(settingsPath); os.IsNotExist(statErr) {
		t.Error("settings.json file was not created")
	}

	store2, err := NewSettingsStore(dir)
	if err != nil {
		t.Fatalf("failed to create second settings store: %v", err)
	}

	loaded := store2.GetLocal()
	if loaded.Policy.TeeThreshold == nil || *loaded.Policy.TeeThreshold != "critical" {
		t.Error("failed to load saved policy.tee_threshold")
	}
}

func TestSettingsStoreGetMerged(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}

	threshold := "critical"
	local := Settings{
		Policy: PolicySettings{TeeThreshold: &threshold},
	}
	if err := store.SaveLocal(local); err != nil {
		t.Fatalf("failed to save local settings: %v", err)
	}

	merged := store.GetMerged()

	if merged.Policy.TeeThreshold == nil || *merged.Policy.TeeThreshold != "critical" {
		t.Error("merged tee_threshold should be 'critical' from local")
	}
	if merged.Policy.AllowHighlySensitive == nil || !*merged.Policy.AllowHighlySensitive {
		t.Error("merged allow_highly_sensitive should still come from defaults")
	}
}

func TestSettingsStoreResetToDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}

	threshold := "critical"
	local := Settings{Policy: PolicySettings{TeeThreshold: &threshold}}
	if err := store.SaveLocal(local); err != nil {
		t.Fatalf("failed to save local settings: %v", err)
	}

	if store.GetLocal().Policy.TeeThreshold == nil {
		t.Error("local settings should be set")
	}

	if err := store.ResetToDefault(); err != nil {
		t.Fatalf("failed to reset settings: %v", err)
	}

	if store.GetLocal().Policy.TeeThreshold != nil {
		t.Error("local settings should be cleared after reset")
	}

	settingsPath := filepath.Join(dir, "settings.json")
	if _, err := os.Stat(settingsPath); !os.IsNotExist(err) {
		t.Error("settings.json should be removed after reset")
	}
}

func TestSettingsStoreGetDiff(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}

	if diff := store.GetDiff(); len(diff) != 0 {
		t.Errorf("expected no diff without local settings, got %d", len(diff))
	}

	threshold := "critical"
	allow := false
	local := Settings{
		Policy: PolicySettings{
			TeeThreshold:         &threshold,
			AllowHighlySensitive: &allow,
		},
	}
	if err := store.SaveLocal(local); err != nil {
		t.Fatalf("failed to save local settings: %v", err)
	}

	diff := store.GetDiff()
	if len(diff) != 2 {
		t.Errorf("expected 2 diffs, got %d: %+v", len(diff), diff)
	}
	if d, ok := diff["policy.tee_threshold"]; ok {
		if d.DefaultValue != "sensitive" || d.LocalValue != "critical" {
			t.Errorf("unexpected policy.tee_threshold diff: %+v", d)
		}
	} else {
		t.Error("expected policy.tee_threshold in diff")
	}
}

func TestSettingsStoreComplianceFrameworks(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}

	local := Settings{
		Compliance: ComplianceSettings{Frameworks: []string{"hipaa", "gdpr"}},
	}
	if err := store.SaveLocal(local); err != nil {
		t.Fatalf("failed to save local settings: %v", err)
	}

	merged := store.GetMerged()
	if len(merged.Compliance.Frameworks) != 2 {
		t.Errorf("expected 2 frameworks, got %d", len(merged.Compliance.Frameworks))
	}
}
