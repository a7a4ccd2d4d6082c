package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SettingsLayer identifies the source of settings.
type SettingsLayer string

const (
	LayerDefault SettingsLayer = "default" // built-in, read-only
	LayerLocal   SettingsLayer = "local"   // operator customizations
)

// Settings represents the subset of gateway behavior that may be adjusted
// at runtime without a restart.
type Settings struct {
	Policy     PolicySettings     `json:"policy"`
	Leakage    LeakageSettings    `json:"leakage"`
	Compliance ComplianceSettings `json:"compliance"`
}

// PolicySettings holds policy-engine runtime overrides.
type PolicySettings struct {
	TeeThreshold         *string  `json:"tee_threshold,omitempty"`
	AllowHighlySensitive *bool    `json:"allow_highly_sensitive,omitempty"`
	DisabledTypeRules    []string `json:"disabled_type_rules,omitempty"`
}

// LeakageSettings holds injection-scanner and drift-detector overrides.
type LeakageSettings struct {
	InjectionEnabled *bool `json:"injection_enabled,omitempty"`
	DriftEnabled     *bool `json:"drift_enabled,omitempty"`
}

// ComplianceSettings holds compliance-framework overrides.
type ComplianceSettings struct {
	Frameworks []string `json:"frameworks,omitempty"`
}

// SettingsStore manages runtime settings with layered configuration:
// built-in defaults overridden by an operator's local customizations.
type SettingsStore struct {
	mu       sync.RWMutex
	defaults Settings
	local    Settings
	path     string // path to local settings file
}

// NewSettingsStore creates a settings store rooted at dataDir, loading any
// existing local customizations.
func NewSettingsStore(dataDir string) (*SettingsStore, error) {
	store := &SettingsStore{
		defaults: getDefaultSettings(),
		path:     filepath.Join(dataDir, "settings.json"),
	}

	if err := store.loadLocal(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load local settings: %w", err)
		}
	}

	return store, nil
}

// getDefaultSettings returns SafeClaw's built-in defaults.
func getDefaultSettings() Settings {
	teeThreshold := "sensitive"
	allowHighlySensitive := true
	injectionEnabled := true
	driftEnabled := false

	return Settings{
		Policy: PolicySettings{
			TeeThreshold:         &teeThreshold,
			AllowHighlySensitive: &allowHighlySensitive,
			DisabledTypeRules:    []string{},
		},
		Leakage: LeakageSettings{
			InjectionEnabled: &injectionEnabled,
			DriftEnabled:     &driftEnabled,
		},
		Compliance: ComplianceSettings{
			Frameworks: []string{},
		},
	}
}

// GetDefaults returns the built-in default settings (read-only).
func (s *SettingsStore) GetDefaults() Settings {
	return s.defaults
}

// GetLocal returns only the operator's customizations.
func (s *SettingsStore) GetLocal() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

// GetMerged returns settings with local overriding defaults.
func (s *SettingsStore) GetMerged() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mergeSettings(s.defaults, s.local)
}

// SaveLocal persists operator customizations to disk.
func (s *SettingsStore) SaveLocal(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.local = settings

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// ResetToDefault removes all local customizations.
func (s *SettingsStore) ResetToDefault() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.local = Settings{}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove settings file: %w", err)
	}

	return nil
}

// loadLocal loads local settings from file.
func (s *SettingsStore) loadLocal() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.local); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}

	return nil
}

// SettingDiff represents one setting that differs from its default.
type SettingDiff struct {
	Path         string `json:"path"`
	DefaultValue any    `json:"default_value"`
	LocalValue   any    `json:"local_value"`
}

// GetDiff returns which settings differ from defaults.
func (s *SettingsStore) GetDiff() map[string]SettingDiff {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return diffSettings(s.defaults, s.local)
}

// diffSettings compares local settings against defaults.
func diffSettings(defaults, local Settings) map[string]SettingDiff {
	diffs := make(map[string]SettingDiff)

	if local.Policy.TeeThreshold != nil && *local.Policy.TeeThreshold != *defaults.Policy.TeeThreshold {
		diffs["policy.tee_threshold"] = SettingDiff{
			Path:         "policy.tee_threshold",
			DefaultValue: *defaults.Policy.TeeThreshold,
			LocalValue:   *local.Policy.TeeThreshold,
		}
	}
	if local.Policy.AllowHighlySensitive != nil && *local.Policy.AllowHighlySensitive != *defaults.Policy.AllowHighlySensitive {
		diffs["policy.allow_highly_sensitive"] = SettingDiff{
			Path:         "policy.allow_highly_sensitive",
			DefaultValue: *defaults.Policy.AllowHighlySensitive,
			LocalValue:   *local.Policy.AllowHighlySensitive,
		}
	}
	if len(local.Policy.DisabledTypeRules) > 0 {
		diffs["policy.disabled_type_rules"] = SettingDiff{
			Path:         "policy.disabled_type_rules",
			DefaultValue: defaults.Policy.DisabledTypeRules,
			LocalValue:   local.Policy.DisabledTypeRules,
		}
	}

	if local.Leakage.InjectionEnabled != nil && *local.Leakage.InjectionEnabled != *defaults.Leakage.InjectionEnabled {
		diffs["leakage.injection_enabled"] = SettingDiff{
			Path:         "leakage.injection_enabled",
			DefaultValue: *defaults.Leakage.InjectionEnabled,
			LocalValue:   *local.Leakage.InjectionEnabled,
		}
	}
	if local.Leakage.DriftEnabled != nil && *local.Leakage.DriftEnabled != *defaults.Leakage.DriftEnabled {
		diffs["leakage.drift_enabled"] = SettingDiff{
			Path:         "leakage.drift_enabled",
			DefaultValue: *defaults.Leakage.DriftEnabled,
			LocalValue:   *local.Leakage.DriftEnabled,
		}
	}

	if len(local.Compliance.Frameworks) > 0 {
		diffs["compliance.frameworks"] = SettingDiff{
			Path:         "compliance.frameworks",
			DefaultValue: defaults.Compliance.Frameworks,
			LocalValue:   local.Compliance.Frameworks,
		}
	}

	return diffs
}

// mergeSettings merges local settings over defaults.
func mergeSettings(defaults, local Settings) Settings {
	merged := defaults

	if local.Policy.TeeThreshold != nil {
		merged.Policy.TeeThreshold = local.Policy.TeeThreshold
	}
	if local.Policy.AllowHighlySensitive != nil {
		merged.Policy.AllowHighlySensitive = local.Policy.AllowHighlySensitive
	}
	if len(local.Policy.DisabledTypeRules) > 0 {
		merged.Policy.DisabledTypeRules = local.Policy.DisabledTypeRules
	}

	if local.Leakage.InjectionEnabled != nil {
		merged.Leakage.InjectionEnabled = local.Leakage.InjectionEnabled
	}
	if local.Leakage.DriftEnabled != nil {
		merged.Leakage.DriftEnabled = local.Leakage.DriftEnabled
	}

	if len(local.Compliance.Frameworks) > 0 {
		merged.Compliance.Frameworks = local.Compliance.Frameworks
	}

	return merged
}
