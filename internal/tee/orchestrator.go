package tee

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
)

// attestSocketWaitTimeout bounds how long Boot waits for the guest's
// attestation socket to appear.
const attestSocketWaitTimeout = 30 * time.Second

// TeeOrchestrator is the central coordinator for the gateway's single
// shared MicroVM and its RA-TLS channel. The VM boots lazily on first
// use, triggered by a session's upgrade-to-TEE path.
type TeeOrchestrator struct {
	config TeeConfig

	mu sync.RWMutex
	vm Handle // nil if not booted

	attestSocketPath string
	verified         atomic.Bool
	policy           AttestationPolicy

	newMicroVM func(shimPath string) (MicroVM, error)
	newClient  func(socketPath string) AttestationClient
}

// NewTeeOrchestrator constructs an orchestrator from config, using the
// subprocess MicroVM and RA-TLS client implementations.
func NewTeeOrchestrator(config TeeConfig) *TeeOrchestrator {
	return newOrchestrator(config, NewSubprocessMicroVM, NewRaTLSClient)
}

// newOrchestrator is the fully-injectable constructor used by tests to
// substitute fake MicroVM/AttestationClient implementations.
func newOrchestrator(config TeeConfig, newMicroVM func(string) (MicroVM, error), newClient func(string) AttestationClient) *TeeOrchestrator {
	socketDir := config.SocketDir
	if socketDir == "" {
		socketDir = filepath.Join(os.TempDir(), "safeclaw")
	}

	return &TeeOrchestrator{
		config:           config,
		attestSocketPath: filepath.Join(socketDir, "attest.sock"),
		policy:           buildAttestationPolicy(config),
		newMicroVM:       newMicroVM,
		newClient:        newClient,
	}
}

// buildAttestationPolicy derives an AttestationPolicy from TeeConfig.
func buildAttestationPolicy(config TeeConfig) AttestationPolicy {
	policy := AttestationPolicy{RequireNoDebug: true}

	if m, ok := config.Attestation.ExpectedMeasurements["launch"]; ok {
		policy.ExpectedMeasurement = m
	}
	if config.AllowSimulated {
		policy.RequireNoDebug = false
	}
	return policy
}

// Boot starts the MicroVM if it isn't already running and waits for its
// attestation socket to appear.
func (o *TeeOrchestrator) Boot(ctx context.Context) error {
	o.mu.RLock()
	booted := o.vm != nil
	o.mu.RUnlock()
	if booted {
		return nil
	}

	if !o.config.Enabled {
		return scerr.Tee("TEE is not enabled")
	}

	shimPath := o.config.ShimPath
	if shimPath == "" {
		path, err := FindShim()
		if err != nil {
			return err
		}
		shimPath = path
	}

	microVM, err := o.newMicroVM(shimPath)
	if err != nil {
		return err
	}

	spec := o.buildInstanceSpec()

	if err := os.MkdirAll(filepath.Dir(o.attestSocketPath), 0o700); err != nil {
		return scerr.Tee(fmt.Sprintf("failed to create socket directory %s: %v", filepath.Dir(o.attestSocketPath), err))
	}

	handle, err := microVM.Start(ctx, spec)
	if err != nil {
		return scerr.Tee(fmt.Sprintf("failed to start MicroVM: %v", err))
	}

	o.mu.Lock()
	o.vm = handle
	o.mu.Unlock()

	if err := waitForSocket(ctx, o.attestSocketPath, attestSocketWaitTimeout, handle.IsRunning); err != nil {
		return err
	}
	return nil
}

func (o *TeeOrchestrator) buildInstanceSpec() InstanceSpec {
	socketDir := filepath.Dir(o.attestSocketPath)
	spec := InstanceSpec{
		BoxID:            fmt.Sprintf("safeclaw-tee-%s", uuid.New()),
		VCPUs:            o.config.CPUCores,
		MemoryMiB:        o.config.MemoryMB,
		AttestSocketPath: o.attestSocketPath,
	}
	_ = socketDir

	if o.config.WorkspaceDir != "" {
		spec.FsMounts = append(spec.FsMounts, FsMount{Tag: "workspace", HostPath: o.config.WorkspaceDir})
	}
	return spec
}

// Verify performs the RA-TLS attestation handshake and checks the report
// against the orchestrator's policy.
func (o *TeeOrchestrator) Verify(ctx context.Context) (VerificationResult, error) {
	if o.verified.Load() {
		return VerificationResult{
			Verified:       true,
			PolicyResult:   PolicyPass(),
			SignatureValid: true,
			CertChainValid: true,
			NonceValid:     true,
		}, nil
	}

	if err := o.ensureBooted(); err != nil {
		return VerificationResult{}, err
	}

	client := o.newClient(o.attestSocketPath)
	result, err := client.Verify(ctx, o.policy, o.config.AllowSimulated)
	if err != nil {
		return result, err
	}

	o.verified.Store(true)
	return result, nil
}

// InjectSecrets resolves each SecretRef from its environment variable and
// injects the resolved entries into the verified TEE. Missing env vars
// are skipped, not fatal.
func (o *TeeOrchestrator) InjectSecrets(ctx context.Context, refs []SecretRef) (int, error) {
	if err := o.ensureVerified(); err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	var entries []SecretEntry
	for _, ref := range refs {
		value, ok := os.LookupEnv(ref.EnvVar)
		if !ok {
			continue
		}
		entries = append(entries, SecretEntry{Name: ref.Name, Value: value, SetEnv: ref.SetEnv})
	}
	if len(entries) == 0 {
		return 0, nil
	}

	client := o.newClient(o.attestSocketPath)
	result, err := client.InjectSecrets(ctx, entries, o.policy, o.config.AllowSimulated)
	if err != nil {
		return 0, scerr.Tee(fmt.Sprintf("secret injection failed: %v", err))
	}
	return result.Injected, nil
}

// Seal encrypts data bound to the TEE's identity.
func (o *TeeOrchestrator) Seal(ctx context.Context, data []byte, sealContext string) (SealResult, error) {
	if err := o.ensureVerified(); err != nil {
		return SealResult{}, err
	}
	client := o.newClient(o.attestSocketPath)
	return client.Seal(ctx, data, sealContext, o.policy, o.config.AllowSimulated)
}

// Unseal decrypts data previously sealed by this TEE.
func (o *TeeOrchestrator) Unseal(ctx context.Context, blob, sealContext string) ([]byte, error) {
	if err := o.ensureVerified(); err != nil {
		return nil, err
	}
	client := o.newClient(o.attestSocketPath)
	return client.Unseal(ctx, blob, sealContext, o.policy, o.config.AllowSimulated)
}

// ProcessMessage sends content to the TEE-resident agent over a fresh
// RA-TLS connection — no connection reuse, re-attestation every call.
func (o *TeeOrchestrator) ProcessMessage(ctx context.Context, sessionID, content string) (ProcessResponse, error) {
	if err := o.ensureVerified(); err != nil {
		return ProcessResponse{}, err
	}
	client := o.newClient(o.attestSocketPath)
	return client.Process(ctx, sessionID, content, o.policy, o.config.AllowSimulated)
}

// IsReady reports whether the VM is booted and attestation verified.
func (o *TeeOrchestrator) IsReady() bool {
	return o.IsBooted() && o.verified.Load()
}

// IsBooted reports whether the VM has been started.
func (o *TeeOrchestrator) IsBooted() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.vm != nil
}

// AttestSocketPath returns the attestation socket path.
func (o *TeeOrchestrator) AttestSocketPath() string { return o.attestSocketPath }

// Policy returns the derived attestation policy.
func (o *TeeOrchestrator) Policy() AttestationPolicy { return o.policy }

// Shutdown stops the MicroVM (no-op if not booted) and clears verified
// state and the socket file.
func (o *TeeOrchestrator) Shutdown() error {
	o.mu.Lock()
	handle := o.vm
	o.vm = nil
	o.mu.Unlock()

	if handle != nil {
		if err := handle.Stop(DefaultShutdownTimeout); err != nil {
			return scerr.Tee(fmt.Sprintf("failed to stop MicroVM: %v", err))
		}
	}
	o.verified.Store(false)

	if _, err := os.Stat(o.attestSocketPath); err == nil {
		_ = os.Remove(o.attestSocketPath)
	}
	return nil
}

func (o *TeeOrchestrator) ensureBooted() error {
	if !o.IsBooted() {
		return scerr.Tee("TEE MicroVM is not booted — call Boot() first")
	}
	return nil
}

func (o *TeeOrchestrator) ensureVerified() error {
	if err := o.ensureBooted(); err != nil {
		return err
	}
	if !o.verified.Load() {
		return scerr.Tee("TEE is not verified — call Verify() first")
	}
	return nil
}
