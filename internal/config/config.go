package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/compliance"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/leakage"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/policy"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/redaction"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/tee"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/telemetry"
)

// Config holds all configuration for the SafeClaw gateway.
type Config struct {
	Listen     string                   `yaml:"listen"`
	Logging    LoggingConfig            `yaml:"logging"`
	Telemetry  telemetry.Config         `yaml:"telemetry"`
	Storage    StorageConfig            `yaml:"storage"`
	Redaction  redaction.Config         `yaml:"redaction"`
	Session    SessionConfig            `yaml:"session"`
	Tee        tee.TeeConfig            `yaml:"tee"`
	Leakage    LeakageConfig            `yaml:"leakage"`
	Compliance ComplianceConfig         `yaml:"compliance"`
	Policy     PolicyConfig             `yaml:"policy"`
	Channels   map[string]ChannelConfig `yaml:"channels"`
}

// LeakageConfig configures the injection scanner and drift detector.
type LeakageConfig struct {
	InjectionEnabled bool               `yaml:"injection_enabled"`
	Drift            leakage.DriftConfig `yaml:"drift"`
}

// ComplianceConfig selects the regulatory rule bundles evaluated against
// classified content.
type ComplianceConfig struct {
	Frameworks []string `yaml:"frameworks"` // any of: hipaa, pci_dss, gdpr
}

// PolicyConfig configures the default routing policy consulted by the
// Privacy Gate.
type PolicyConfig struct {
	TeeThreshold         string            `yaml:"tee_threshold"` // public, normal, sensitive, highly_sensitive, critical
	AllowHighlySensitive bool              `yaml:"allow_highly_sensitive"`
	TypeRules            map[string]string `yaml:"type_rules"` // data_type -> process_local|process_in_tee|reject|require_confirmation
}

// ChannelConfig names the signing secret used to authenticate inbound
// webhooks from one chat platform.
type ChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"` // signing secret, HMAC key, or public key depending on platform
}

// StorageConfig holds persistent storage configuration.
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`           // SQLite database path
	RetentionDays int    `yaml:"retention_days"` // how long to keep audit events
}

// SessionConfig holds session-related configuration.
type SessionConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	Store       string        `yaml:"store"` // "memory" or "redis"
	Redis       RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- config path from trusted CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return defaults(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config with sensible default values.
func defaults() *Config {
	return &Config{
		Listen: ":8443",
		Logging: LoggingConfig{
			Format: "json",
			Level:  "info",
		},
		Telemetry: telemetry.Config{
			Enabled:     false,
			Exporter:    "none",
			ServiceName: "safeclaw",
			Endpoint:    "localhost:4317",
			Insecure:    true,
		},
		Storage: StorageConfig{
			Enabled:       false,
			Path:          "data/safeclaw.db",
			RetentionDays: 30,
		},
		Redaction: redaction.Config{
			Enabled: true,
		},
		Session: SessionConfig{
			IdleTimeout: 5 * time.Minute,
			Store:       "memory",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				Password:  "",
				DB:        0,
				KeyPrefix: "safeclaw:session:",
			},
		},
		Tee: tee.TeeConfig{
			Enabled:        false,
			CPUCores:       2,
			MemoryMB:       512,
			AllowSimulated: true,
			Attestation: tee.AttestationConfig{
				Enabled:  false,
				Provider: "simulated",
			},
		},
		Leakage: LeakageConfig{
			InjectionEnabled: true,
			Drift:            leakage.DefaultDriftConfig(),
		},
		Compliance: ComplianceConfig{
			Frameworks: nil,
		},
		Policy: PolicyConfig{
			TeeThreshold:         "sensitive",
			AllowHighlySensitive: true,
			TypeRules:            map[string]string{},
		},
		Channels: map[string]ChannelConfig{},
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SAFECLAW_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("SAFECLAW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SAFECLAW_SESSION_STORE"); v != "" {
		c.Session.Store = v
	}
	if v := os.Getenv("SAFECLAW_REDIS_ADDR"); v != "" {
		c.Session.Redis.Addr = v
	}
	if v := os.Getenv("SAFECLAW_REDIS_PASSWORD"); v != "" {
		c.Session.Redis.Password = v
	}

	if os.Getenv("SAFECLAW_TELEMETRY_ENABLED") == "true" {
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("SAFECLAW_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = v
	}
	if v := os.Getenv("SAFECLAW_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	// Also support standard OTEL env vars.
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Exporter = "otlp"
		c.Telemetry.Endpoint = v
	}

	if os.Getenv("SAFECLAW_STORAGE_ENABLED") == "true" {
		c.Storage.Enabled = true
	}
	if v := os.Getenv("SAFECLAW_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("SAFECLAW_STORAGE_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			c.Storage.RetentionDays = days
		}
	}

	if os.Getenv("SAFECLAW_TEE_ENABLED") == "true" {
		c.Tee.Enabled = true
	}
	if v := os.Getenv("SAFECLAW_TEE_SHIM_PATH"); v != "" {
		c.Tee.ShimPath = v
	}
	if v := os.Getenv("SAFECLAW_TEE_SOCKET_DIR"); v != "" {
		c.Tee.SocketDir = v
	}
	if os.Getenv("SAFECLAW_TEE_ALLOW_SIMULATED") == "false" {
		c.Tee.AllowSimulated = false
	}

	if os.Getenv("SAFECLAW_LEAKAGE_DRIFT_ENABLED") == "true" {
		c.Leakage.Drift.Enabled = true
	}

	if os.Getenv("SAFECLAW_REDACTION_ENABLED") == "false" {
		c.Redaction.Enabled = false
	}
}

// validate checks that the configuration is valid.
func (c *Config) validate() error {
	if c.Listen == "" {
		return scerr.Config("listen address is required")
	}
	if c.Session.IdleTimeout <= 0 {
		return scerr.Config("session idle_timeout must be positive")
	}
	if c.Session.Store != "memory" && c.Session.Store != "redis" {
		return scerr.Config(fmt.Sprintf("session.store must be \"memory\" or \"redis\", got %q", c.Session.Store))
	}
	if _, err := c.policyTeeThreshold(); err != nil {
		return err
	}
	for _, name := range c.Compliance.Frameworks {
		if _, ok := frameworkByName(name); !ok {
			return scerr.Config(fmt.Sprintf("unknown compliance framework %q", name))
		}
	}
	for dataType, decision := range c.Policy.TypeRules {
		if _, err := decisionByName(decision); err != nil {
			return scerr.Config(fmt.Sprintf("policy.type_rules[%q]: %v", dataType, err))
		}
	}
	return nil
}

// policyTeeThreshold resolves the configured TEE threshold name to a
// sensitivity.Level.
func (c *Config) policyTeeThreshold() (sensitivity.Level, error) {
	return levelByName(c.Policy.TeeThreshold)
}

func levelByName(name string) (sensitivity.Level, error) {
	switch name {
	case "public":
		return sensitivity.Public, nil
	case "normal", "":
		return sensitivity.Normal, nil
	case "sensitive":
		return sensitivity.Sensitive, nil
	case "highly_sensitive":
		return sensitivity.HighlySensitive, nil
	case "critical":
		return sensitivity.Critical, nil
	default:
		return sensitivity.Normal, scerr.Config(fmt.Sprintf("unknown sensitivity level %q", name))
	}
}

func decisionByName(name string) (policy.Decision, error) {
	switch name {
	case "process_local":
		return policy.ProcessLocal, nil
	case "process_in_tee":
		return policy.ProcessInTee, nil
	case "reject":
		return policy.Reject, nil
	case "require_confirmation":
		return policy.RequireConfirmation, nil
	default:
		return policy.ProcessLocal, scerr.Config(fmt.Sprintf("unknown policy decision %q", name))
	}
}

// BuildDataPolicy converts PolicyConfig into a policy.DataPolicy named
// "default", ready to register with a policy.Engine.
func (c *Config) BuildDataPolicy() (policy.DataPolicy, error) {
	threshold, err := c.policyTeeThreshold()
	if err != nil {
		return policy.DataPolicy{}, err
	}

	builder := policy.NewBuilder("default").
		TeeThreshold(threshold).
		AllowHighlySensitive(c.Policy.AllowHighlySensitive)

	for dataType, name := range c.Policy.TypeRules {
		decision, err := decisionByName(name)
		if err != nil {
			return policy.DataPolicy{}, err
		}
		builder = builder.AddTypeRule(dataType, decision)
	}

	return builder.Build(), nil
}

func frameworkByName(name string) (compliance.Framework, bool) {
	switch name {
	case "hipaa":
		return compliance.HIPAA, true
	case "pci_dss":
		return compliance.PCIDSS, true
	case "gdpr":
		return compliance.GDPR, true
	default:
		return compliance.Custom, false
	}
}

// Frameworks resolves the configured compliance framework names to
// compliance.Framework values, ready to pass to compliance.WithFrameworks.
func (c *Config) Frameworks() ([]compliance.Framework, error) {
	frameworks := make([]compliance.Framework, 0, len(c.Compliance.Frameworks))
	for _, name := range c.Compliance.Frameworks {
		fw, ok := frameworkByName(name)
		if !ok {
			return nil, scerr.Config(fmt.Sprintf("unknown compliance framework %q", name))
		}
		frameworks = append(frameworks, fw)
	}
	return frameworks, nil
}
