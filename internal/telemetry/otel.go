// Package telemetry wraps OpenTelemetry tracing for SafeClaw's gateway
// pipeline: Privacy Gate classification, session lifecycle, TEE upgrade
// and message processing, and leakage defenses each get their own span
// kind so a trace backend can separate "how long did classification
// take" from "how long did the TEE take to answer".
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"` // "otlp", "stdout", or "none"
	Endpoint    string `yaml:"endpoint"` // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Provider manages OpenTelemetry tracing for one gateway process.
type Provider struct {
	config   Config
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewProvider creates a telemetry provider from Config. A disabled or
// unrecognized exporter still returns a usable no-op tracer so callers
// never need a nil check.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "safeclaw"
	}

	if !cfg.Enabled {
		return &Provider{config: cfg, tracer: otel.Tracer(cfg.ServiceName)}, nil
	}

	slog.Info("creating telemetry exporter", "type", cfg.Exporter)

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "otlp":
		exporter, err = createOTLPExporter(cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("otlp exporter initialized", "endpoint", cfg.Endpoint)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			slog.Error("stdout exporter creation failed", "error", err)
			return nil, err
		}
		slog.Info("stdout trace exporter initialized")
	default:
		return &Provider{config: cfg, tracer: otel.Tracer(cfg.ServiceName)}, nil
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)

	return &Provider{config: cfg, tracer: tp.Tracer(cfg.ServiceName), provider: tp}, nil
}

func createOTLPExporter(cfg Config) (sdktrace.SpanExporter, error) {
	ctx := context.Background()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	return otlptracegrpc.New(ctx, opts...)
}

// Tracer returns the tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown gracefully drains and closes the trace exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

// Enabled reports whether spans are actually being exported.
func (p *Provider) Enabled() bool {
	return p.config.Enabled && p.provider != nil
}

// Span attribute keys shared across the gateway's spans.
const (
	AttrSessionID      = "safeclaw.session.id"
	AttrSessionState   = "safeclaw.session.state"
	AttrChannelID      = "safeclaw.channel.id"
	AttrUserID         = "safeclaw.user.id"
	AttrSensitivity    = "safeclaw.sensitivity.level"
	AttrDecision       = "safeclaw.policy.decision"
	AttrMatchCount     = "safeclaw.classifier.match_count"
	AttrUsesTee        = "safeclaw.session.uses_tee"
	AttrDurationMs     = "safeclaw.duration.ms"
	AttrMessageCount   = "safeclaw.session.message_count"
	AttrInjectVerdict  = "safeclaw.leakage.verdict"
	AttrComplianceRule = "safeclaw.compliance.rule"
)

// StartGateSpan starts a span covering one Privacy Gate classify-and-route call.
func (p *Provider) StartGateSpan(ctx context.Context, sessionID, channelID string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "gateway.process",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.String(AttrChannelID, channelID),
		),
	)
}

// EndGateSpan closes a gate span with the classification and routing outcome.
func (p *Provider) EndGateSpan(span trace.Span, sensitivityLevel string, matchCount int, decision string, err error) {
	span.SetAttributes(
		attribute.String(AttrSensitivity, sensitivityLevel),
		attribute.Int(AttrMatchCount, matchCount),
		attribute.String(AttrDecision, decision),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// StartTeeSpan starts a span covering one TEE-routed message exchange.
func (p *Provider) StartTeeSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "tee.process_message",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(AttrSessionID, sessionID)),
	)
}

// EndTeeSpan closes a TEE span, recording an error if the TEE call failed.
func (p *Provider) EndTeeSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// RecordSessionCreated records a session creation event on the current span.
func (p *Provider) RecordSessionCreated(ctx context.Context, sessionID, userID, channelID string) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("session.created", trace.WithAttributes(
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrUserID, userID),
		attribute.String(AttrChannelID, channelID),
	))
}

// RecordSessionEnded emits a standalone span summarizing a terminated
// session, mirroring the audit record SaveSession persists to SQLite.
func (p *Provider) RecordSessionEnded(ctx context.Context, sessionID, state string, usesTee bool, durationMs int64, messageCount int) {
	_, span := p.tracer.Start(ctx, "session.record",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.String(AttrSessionState, state),
			attribute.Bool(AttrUsesTee, usesTee),
			attribute.Int64(AttrDurationMs, durationMs),
			attribute.Int(AttrMessageCount, messageCount),
		),
	)
	span.End()

	slog.Info("session record exported",
		"session_id", sessionID,
		"state", state,
		"uses_tee", usesTee,
		"duration_ms", durationMs,
		"messages", messageCount,
	)
}

// RecordInjectionVerdict records a prompt-injection scan verdict as an
// event on the current span.
func (p *Provider) RecordInjectionVerdict(ctx context.Context, sessionID, verdict string, matchCount int) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("leakage.injection_scan", trace.WithAttributes(
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrInjectVerdict, verdict),
		attribute.Int(AttrMatchCount, matchCount),
	))
}

// RecordComplianceViolation records a compliance rule match as an event
// on the current span.
func (p *Provider) RecordComplianceViolation(ctx context.Context, sessionID, ruleName string) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("compliance.violation", trace.WithAttributes(
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrComplianceRule, ruleName),
	))
}

// DefaultConfig returns telemetry disabled by default.
func DefaultConfig() Config {
	return Config{Enabled: false, Exporter: "none", ServiceName: "safeclaw"}
}

// ConfigFromEnv layers environment overrides on top of DefaultConfig,
// matching the precedence internal/config.Config.applyEnvOverrides uses
// for every other section.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		cfg.Enabled = true
		cfg.Exporter = "otlp"
		cfg.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		cfg.Insecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}

	if os.Getenv("SAFECLAW_TELEMETRY_ENABLED") == "true" {
		cfg.Enabled = true
	}
	if v := os.Getenv("SAFECLAW_TELEMETRY_EXPORTER"); v != "" {
		cfg.Exporter = v
	}
	if v := os.Getenv("SAFECLAW_TELEMETRY_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}

	return cfg
}

// NoopProvider returns a provider that exports nothing, for tests and
// for telemetry-disabled deployments.
func NoopProvider() *Provider {
	return &Provider{config: Config{Enabled: false}, tracer: otel.Tracer("safeclaw-noop")}
}

// SpanFromContext extracts the active span from ctx.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ContextWithTimeout builds a context bounded for provider shutdown.
func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
