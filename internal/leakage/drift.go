package leakage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DriftConfig configures the background drift checker.
type DriftConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// DefaultDriftConfig matches the reference's 5-minute default, disabled
// unless explicitly turned on.
func DefaultDriftConfig() DriftConfig {
	return DriftConfig{Enabled: false, CheckInterval: 5 * time.Minute}
}

// PolicySnapshot is a snapshot of security-relevant configuration state,
// compared across time to detect policy drift.
type PolicySnapshot struct {
	TeeEnabled            bool
	ExpectedSecurityLevel string // empty means "not set"
	PrivacyRuleCount      int
	FirewallDefaultDeny   bool
	EnabledChannels       []string
	OutputSanitization    bool
}

// NewPolicySnapshot builds a snapshot from the declared values, sorting
// the channel list for stable comparison.
func NewPolicySnapshot(teeEnabled bool, expectedSecurityLevel string, privacyRuleCount int, firewallDefaultDeny bool, enabledChannels []string, outputSanitization bool) PolicySnapshot {
	channels := append([]string(nil), enabledChannels...)
	sort.Strings(channels)
	return PolicySnapshot{
		TeeEnabled:            teeEnabled,
		ExpectedSecurityLevel: expectedSecurityLevel,
		PrivacyRuleCount:      privacyRuleCount,
		FirewallDefaultDeny:   firewallDefaultDeny,
		EnabledChannels:       channels,
		OutputSanitization:    outputSanitization,
	}
}

// Diff compares two snapshots and returns human-readable drift
// descriptions for every field that changed.
func (s PolicySnapshot) Diff(other PolicySnapshot) []string {
	var drifts []string

	if s.TeeEnabled != other.TeeEnabled {
		drifts = append(drifts, fmt.Sprintf("TEE enabled changed: %v -> %v", s.TeeEnabled, other.TeeEnabled))
	}
	if s.ExpectedSecurityLevel != other.ExpectedSecurityLevel {
		drifts = append(drifts, fmt.Sprintf("Security level changed: %q -> %q", s.ExpectedSecurityLevel, other.ExpectedSecurityLevel))
	}
	if s.PrivacyRuleCount != other.PrivacyRuleCount {
		drifts = append(drifts, fmt.Sprintf("Privacy rule count changed: %d -> %d", s.PrivacyRuleCount, other.PrivacyRuleCount))
	}
	if s.FirewallDefaultDeny != other.FirewallDefaultDeny {
		drifts = append(drifts, fmt.Sprintf("Firewall default-deny changed: %v -> %v", s.FirewallDefaultDeny, other.FirewallDefaultDeny))
	}
	if !equalStrings(s.EnabledChannels, other.EnabledChannels) {
		drifts = append(drifts, fmt.Sprintf("Enabled channels changed: %v -> %v", s.EnabledChannels, other.EnabledChannels))
	}
	if s.OutputSanitization != other.OutputSanitization {
		drifts = append(drifts, fmt.Sprintf("Output sanitization changed: %v -> %v", s.OutputSanitization, other.OutputSanitization))
	}

	return drifts
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DriftDetector periodically reconciles a declared baseline against
// runtime reality and emits an audit event per detected drift.
type DriftDetector struct {
	mu       sync.RWMutex
	baseline PolicySnapshot
	bus      *AuditEventBus
	config   DriftConfig
}

// NewDriftDetector constructs a detector with the given baseline.
func NewDriftDetector(baseline PolicySnapshot, bus *AuditEventBus, config DriftConfig) *DriftDetector {
	return &DriftDetector{baseline: baseline, bus: bus, config: config}
}

// Check compares the baseline against current and publishes one audit
// event per detected drift.
func (d *DriftDetector) Check(ctx context.Context, current PolicySnapshot, at time.Time) []string {
	d.mu.RLock()
	baseline := d.baseline
	d.mu.RUnlock()

	drifts := baseline.Diff(current)
	for _, drift := range drifts {
		d.bus.Publish(ctx, NewAuditEvent("system", SeverityHigh, VectorPolicyDrift, "Policy drift: "+drift, at))
	}
	return drifts
}

// UpdateBaseline replaces the baseline with the given snapshot,
// acknowledging any drift found so far.
func (d *DriftDetector) UpdateBaseline(snapshot PolicySnapshot) {
	d.mu.Lock()
	d.baseline = snapshot
	d.mu.Unlock()
}

// IsEnabled reports whether the background checker should run.
func (d *DriftDetector) IsEnabled() bool { return d.config.Enabled }

// CheckInterval returns the configured polling interval.
func (d *DriftDetector) CheckInterval() time.Duration { return d.config.CheckInterval }

// RunBackgroundChecks polls snapshotFn on the configured interval until
// ctx is cancelled, publishing drift events as they're found. It is a
// no-op if the detector is disabled. The first tick is skipped, matching
// the reference's "don't fire immediately on start" behavior.
func (d *DriftDetector) RunBackgroundChecks(ctx context.Context, snapshotFn func() PolicySnapshot, now func() time.Time) {
	if !d.IsEnabled() {
		return
	}

	ticker := time.NewTicker(d.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Check(ctx, snapshotFn(), now())
		}
	}
}
