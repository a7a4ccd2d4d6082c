package telemetry_test

import (
	"context"
	"testing"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/telemetry"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := telemetry.NewProvider(telemetry.Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Enabled() {
		t.Error("expected disabled provider to report Enabled() == false")
	}
	if p.Tracer() == nil {
		t.Error("expected a usable no-op tracer even when disabled")
	}
}

func TestNewProviderStdout(t *testing.T) {
	p, err := telemetry.NewProvider(telemetry.Config{Enabled: true, Exporter: "stdout"})
	if err != nil {
		t.Fatalf("unexpected error building stdout exporter: %v", err)
	}
	if !p.Enabled() {
		t.Error("expected stdout exporter provider to report Enabled() == true")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestNewProviderUnknownExporterFallsBackToNoop(t *testing.T) {
	p, err := telemetry.NewProvider(telemetry.Config{Enabled: true, Exporter: "bogus"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Enabled() {
		t.Error("expected unrecognized exporter to fall back to a disabled provider")
	}
}

func TestNewProviderDefaultsServiceName(t *testing.T) {
	p, err := telemetry.NewProvider(telemetry.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Tracer() == nil {
		t.Fatal("expected a tracer even with a zero-value config")
	}
}

func TestGateSpanLifecycle(t *testing.T) {
	p, err := telemetry.NewProvider(telemetry.Config{Enabled: true, Exporter: "stdout"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, span := p.StartGateSpan(context.Background(), "session-1", "slack")
	if span == nil {
		t.Fatal("expected a non-nil span")
	}
	p.EndGateSpan(span, "sensitive", 2, "process_in_tee", nil)

	_, teeSpan := p.StartTeeSpan(ctx, "session-1")
	p.EndTeeSpan(teeSpan, nil)
}

func TestRecordHelpersDoNotPanic(t *testing.T) {
	p := telemetry.NoopProvider()
	ctx := context.Background()

	p.RecordSessionCreated(ctx, "session-1", "user-1", "slack")
	p.RecordSessionEnded(ctx, "session-1", "completed", true, 1500, 3)
	p.RecordInjectionVerdict(ctx, "session-1", "blocked", 1)
	p.RecordComplianceViolation(ctx, "session-1", "phi-disclosure")
}

func TestDefaultConfig(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	if cfg.Enabled {
		t.Error("expected telemetry disabled by default")
	}
	if cfg.ServiceName != "safeclaw" {
		t.Errorf("expected default service name safeclaw, got %q", cfg.ServiceName)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SAFECLAW_TELEMETRY_ENABLED", "true")
	t.Setenv("SAFECLAW_TELEMETRY_EXPORTER", "stdout")

	cfg := telemetry.ConfigFromEnv()
	if !cfg.Enabled {
		t.Error("expected env override to enable telemetry")
	}
	if cfg.Exporter != "stdout" {
		t.Errorf("expected exporter stdout, got %q", cfg.Exporter)
	}
}
