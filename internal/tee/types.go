// Package tee drives the lifecycle of the gateway's single shared
// MicroVM: boot, RA-TLS attestation verify, secret injection, sealed
// storage, message processing, and graceful shutdown.
package tee

// TeeConfig configures the orchestrator's MicroVM and attestation policy.
type TeeConfig struct {
	Enabled        bool              `yaml:"enabled"`
	ShimPath       string            `yaml:"shim_path"`       // path to the MicroVM shim binary; auto-discovered if empty
	SocketDir      string            `yaml:"socket_dir"`      // directory holding the attestation Unix socket; defaults to os.TempDir()/safeclaw
	CPUCores       int               `yaml:"cpu_cores"`
	MemoryMB       int               `yaml:"memory_mb"`
	WorkspaceDir   string            `yaml:"workspace_dir"`   // optional host directory mounted into the MicroVM
	AllowSimulated bool              `yaml:"allow_simulated"` // relaxes attestation requirements for local/dev use
	Attestation    AttestationConfig `yaml:"attestation"`
	Secrets        []SecretRef       `yaml:"secrets"` // injected into the TEE once, after the first successful verify
}

// AttestationConfig carries the expected measurement set checked during
// RA-TLS verification.
type AttestationConfig struct {
	Enabled              bool              `yaml:"enabled"`
	Provider             string            `yaml:"provider"`
	ExpectedMeasurements map[string]string `yaml:"expected_measurements"`
}

// SecretRef names a secret to inject into the TEE, sourced from an
// environment variable on the gateway host.
type SecretRef struct {
	Name   string `yaml:"name"`
	EnvVar string `yaml:"env_var"`
	SetEnv bool   `yaml:"set_env"`
}

// SecretEntry is a resolved secret ready for injection.
type SecretEntry struct {
	Name   string
	Value  string
	SetEnv bool
}

// FsMount describes a host directory mounted into the MicroVM.
type FsMount struct {
	Tag      string
	HostPath string
	ReadOnly bool
}

// InstanceSpec describes a MicroVM to start.
type InstanceSpec struct {
	BoxID            string
	VCPUs            int
	MemoryMiB        int
	AttestSocketPath string
	FsMounts         []FsMount
}

// AttestationPolicy is checked against a TEE's attestation report during
// verification.
type AttestationPolicy struct {
	ExpectedMeasurement string // empty means "accept any"
	RequireNoDebug      bool
}

// PlatformInfo summarizes the TEE platform an attestation report came
// from.
type PlatformInfo struct {
	Platform string
}

// PolicyResult is the outcome of matching an attestation report against
// an AttestationPolicy.
type PolicyResult struct {
	Passed     bool
	Violations []string
}

// PolicyPass is a PolicyResult with no violations.
func PolicyPass() PolicyResult { return PolicyResult{Passed: true} }

// VerificationResult is the outcome of an RA-TLS attestation handshake.
type VerificationResult struct {
	Verified        bool
	Platform        PlatformInfo
	PolicyResult    PolicyResult
	SignatureValid  bool
	CertChainValid  bool
	NonceValid      bool
	Failures        []string
}

// SealResult is the sealed blob returned by Seal, opaque to callers.
type SealResult struct {
	Blob string
}

// ProcessResponse is the TEE-resident agent's reply to a /process call.
type ProcessResponse struct {
	SessionID string
	Content   string
}

// InjectResult summarizes a secret-injection attempt; partial failures
// are tolerated and reported rather than failing the whole call.
type InjectResult struct {
	Injected int
	Errors   []string
}
