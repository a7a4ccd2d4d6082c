package leakage

import (
	"context"
	"testing"
)

func defaultSnapshot() PolicySnapshot {
	return NewPolicySnapshot(true, "tee_hardware", 5, true, []string{"telegram", "webchat"}, true)
}

func TestSnapshotNoDrift(t *testing.T) {
	a := defaultSnapshot()
	b := defaultSnapshot()
	if drifts := a.Diff(b); len(drifts) != 0 {
		t.Fatalf("expected no drift, got %v", drifts)
	}
}

func TestSnapshotTeeDrift(t *testing.T) {
	a := defaultSnapshot()
	b := defaultSnapshot()
	b.TeeEnabled = false
	drifts := a.Diff(b)
	if len(drifts) != 1 {
		t.Fatalf("expected 1 drift, got %v", drifts)
	}
}

func TestSnapshotSecurityLevelDrift(t *testing.T) {
	a := defaultSnapshot()
	b := defaultSnapshot()
	b.ExpectedSecurityLevel = "process_only"
	drifts := a.Diff(b)
	if len(drifts) != 1 {
		t.Fatalf("expected 1 drift, got %v", drifts)
	}
}

func TestSnapshotChannelDrift(t *testing.T) {
	a := defaultSnapshot()
	b := NewPolicySnapshot(a.TeeEnabled, a.ExpectedSecurityLevel, a.PrivacyRuleCount, a.FirewallDefaultDeny, append(a.EnabledChannels, "slack"), a.OutputSanitization)
	drifts := a.Diff(b)
	if len(drifts) != 1 {
		t.Fatalf("expected 1 drift, got %v", drifts)
	}
}

func TestSnapshotMultipleDrifts(t *testing.T) {
	a := defaultSnapshot()
	b := defaultSnapshot()
	b.TeeEnabled = false
	b.PrivacyRuleCount = 10
	b.FirewallDefaultDeny = false
	drifts := a.Diff(b)
	if len(drifts) != 3 {
		t.Fatalf("expected 3 drifts, got %v", drifts)
	}
}

func TestDetectorNoDrift(t *testing.T) {
	baseline := defaultSnapshot()
	bus := NewAuditEventBus(100, NewAuditLog(1000), nil)
	detector := NewDriftDetector(baseline, bus, DriftConfig{Enabled: true, CheckInterval: 0})

	drifts := detector.Check(context.Background(), baseline, fixedTime())
	if len(drifts) != 0 {
		t.Fatalf("expected no drift, got %v", drifts)
	}
}

func TestDetectorEmitsEventOnDrift(t *testing.T) {
	baseline := defaultSnapshot()
	bus := NewAuditEventBus(100, NewAuditLog(1000), nil)
	sub := bus.Subscribe()
	detector := NewDriftDetector(baseline, bus, DriftConfig{Enabled: true, CheckInterval: 0})

	current := defaultSnapshot()
	current.TeeEnabled = false

	drifts := detector.Check(context.Background(), current, fixedTime())
	if len(drifts) != 1 {
		t.Fatalf("expected 1 drift, got %v", drifts)
	}

	select {
	case event := <-sub:
		if event.Vector != VectorPolicyDrift {
			t.Fatalf("expected PolicyDrift vector, got %v", event.Vector)
		}
	default:
		t.Fatal("expected a published event")
	}
}

func TestDetectorUpdateBaseline(t *testing.T) {
	baseline := defaultSnapshot()
	bus := NewAuditEventBus(100, NewAuditLog(1000), nil)
	detector := NewDriftDetector(baseline, bus, DefaultDriftConfig())

	newBaseline := defaultSnapshot()
	newBaseline.TeeEnabled = false

	if drifts := detector.Check(context.Background(), newBaseline, fixedTime()); len(drifts) != 1 {
		t.Fatalf("expected 1 drift before update, got %v", drifts)
	}

	detector.UpdateBaseline(newBaseline)

	if drifts := detector.Check(context.Background(), newBaseline, fixedTime()); len(drifts) != 0 {
		t.Fatalf("expected no drift after baseline update, got %v", drifts)
	}
}

func TestDriftConfigDefault(t *testing.T) {
	config := DefaultDriftConfig()
	if config.Enabled {
		t.Fatal("expected drift detection disabled by default")
	}
}
