package tee

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeHandle struct {
	running bool
	stopErr error
}

func (h *fakeHandle) Stop(timeout time.Duration) error {
	h.running = false
	return h.stopErr
}

func (h *fakeHandle) IsRunning() bool { return h.running }

type fakeMicroVM struct {
	startErr error
	started  InstanceSpec
}

func (m *fakeMicroVM) Start(ctx context.Context, spec InstanceSpec) (Handle, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = spec
	return &fakeHandle{running: true}, nil
}

type fakeAttestationClient struct {
	verifyResult VerificationResult
	verifyErr    error
	injectResult InjectResult
	sealResult   SealResult
	unsealBytes  []byte
	processResp  ProcessResponse
}

func (c *fakeAttestationClient) Verify(ctx context.Context, policy AttestationPolicy, allowSimulated bool) (VerificationResult, error) {
	return c.verifyResult, c.verifyErr
}

func (c *fakeAttestationClient) InjectSecrets(ctx context.Context, entries []SecretEntry, policy AttestationPolicy, allowSimulated bool) (InjectResult, error) {
	return InjectResult{Injected: len(entries)}, nil
}

func (c *fakeAttestationClient) Seal(ctx context.Context, data []byte, sealContext string, policy AttestationPolicy, allowSimulated bool) (SealResult, error) {
	return c.sealResult, nil
}

func (c *fakeAttestationClient) Unseal(ctx context.Context, blob, sealContext string, policy AttestationPolicy, allowSimulated bool) ([]byte, error) {
	return c.unsealBytes, nil
}

func (c *fakeAttestationClient) Process(ctx context.Context, sessionID, content string, policy AttestationPolicy, allowSimulated bool) (ProcessResponse, error) {
	return c.processResp, nil
}

func testOrchestrator(config TeeConfig, vm *fakeMicroVM, client *fakeAttestationClient) *TeeOrchestrator {
	return newOrchestrator(config,
		func(string) (MicroVM, error) { return vm, nil },
		func(string) AttestationClient { return client })
}

func TestOrchestratorBuildsDefaultSocketPath(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, &fakeAttestationClient{})
	if o.AttestSocketPath() == "" {
		t.Fatal("expected a default socket path")
	}
}

func TestOrchestratorCustomSocketDir(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true, SocketDir: "/tmp/custom-tee"}, &fakeMicroVM{}, &fakeAttestationClient{})
	if o.AttestSocketPath() != "/tmp/custom-tee/attest.sock" {
		t.Fatalf("expected custom socket dir to be honored, got %q", o.AttestSocketPath())
	}
}

func TestBuildAttestationPolicyDefault(t *testing.T) {
	policy := buildAttestationPolicy(TeeConfig{})
	if policy.ExpectedMeasurement != "" || !policy.RequireNoDebug {
		t.Fatalf("expected empty measurement and RequireNoDebug=true, got %+v", policy)
	}
}

func TestBuildAttestationPolicySimulatedRelaxesDebug(t *testing.T) {
	policy := buildAttestationPolicy(TeeConfig{AllowSimulated: true})
	if policy.RequireNoDebug {
		t.Fatal("expected RequireNoDebug relaxed under AllowSimulated")
	}
}

func TestBuildAttestationPolicyWithMeasurement(t *testing.T) {
	config := TeeConfig{Attestation: AttestationConfig{ExpectedMeasurements: map[string]string{"launch": "abc123"}}}
	policy := buildAttestationPolicy(config)
	if policy.ExpectedMeasurement != "abc123" {
		t.Fatalf("expected measurement 'abc123', got %q", policy.ExpectedMeasurement)
	}
}

func TestBuildInstanceSpecWithoutWorkspace(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, &fakeAttestationClient{})
	spec := o.buildInstanceSpec()
	if len(spec.FsMounts) != 0 {
		t.Fatalf("expected no mounts, got %v", spec.FsMounts)
	}
	if spec.AttestSocketPath != o.AttestSocketPath() {
		t.Fatal("expected spec socket path to match orchestrator socket path")
	}
}

func TestBuildInstanceSpecWithWorkspace(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true, WorkspaceDir: "/data/workspace"}, &fakeMicroVM{}, &fakeAttestationClient{})
	spec := o.buildInstanceSpec()
	if len(spec.FsMounts) != 1 || spec.FsMounts[0].HostPath != "/data/workspace" {
		t.Fatalf("expected one workspace mount, got %v", spec.FsMounts)
	}
}

func TestOrchestratorNotBootedByDefault(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, &fakeAttestationClient{})
	if o.IsBooted() || o.IsReady() {
		t.Fatal("expected fresh orchestrator to be neither booted nor ready")
	}
}

func TestEnsureBootedFailsBeforeBoot(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, &fakeAttestationClient{})
	if _, err := o.Verify(context.Background()); err == nil {
		t.Fatal("expected Verify to fail before Boot")
	}
}

func TestEnsureVerifiedFailsBeforeVerify(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true, ShimPath: "/bin/true"}, &fakeMicroVM{}, &fakeAttestationClient{})
	if _, err := o.ProcessMessage(context.Background(), "session-1", "hi"); err == nil {
		t.Fatal("expected ProcessMessage to fail before Verify")
	}
	if _, err := o.InjectSecrets(context.Background(), []SecretRef{{Name: "x", EnvVar: "X"}}); err == nil {
		t.Fatal("expected InjectSecrets to fail before Verify")
	}
}

func TestBootFailsWhenTeeDisabled(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: false}, &fakeMicroVM{}, &fakeAttestationClient{})
	if err := o.Boot(context.Background()); err == nil {
		t.Fatal("expected Boot to fail when TEE is disabled")
	}
}

func TestShutdownWhenNotBootedIsNoOp(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, &fakeAttestationClient{})
	if err := o.Shutdown(); err != nil {
		t.Fatalf("expected no-op shutdown to succeed, got %v", err)
	}
}

func TestShutdownStopsVMAndClearsVerified(t *testing.T) {
	handle := &fakeHandle{running: true}
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, &fakeAttestationClient{})
	o.vm = handle
	o.verified.Store(true)

	if err := o.Shutdown(); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	if o.IsBooted() || o.IsReady() {
		t.Fatal("expected shutdown to clear booted and verified state")
	}
	if handle.running {
		t.Fatal("expected handle to be stopped")
	}
}

func TestShutdownPropagatesStopError(t *testing.T) {
	handle := &fakeHandle{running: true, stopErr: errors.New("boom")}
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, &fakeAttestationClient{})
	o.vm = handle

	if err := o.Shutdown(); err == nil {
		t.Fatal("expected Shutdown to propagate Stop error")
	}
}

func TestInjectSecretsSkipsMissingEnvVars(t *testing.T) {
	client := &fakeAttestationClient{}
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, client)
	o.vm = &fakeHandle{running: true}
	o.verified.Store(true)

	count, err := o.InjectSecrets(context.Background(), []SecretRef{{Name: "missing", EnvVar: "SAFECLAW_TEST_UNSET_VAR"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 injected for missing env var, got %d", count)
	}
}

func TestInjectSecretsEmptyRefsYieldsZero(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, &fakeAttestationClient{})
	o.vm = &fakeHandle{running: true}
	o.verified.Store(true)

	count, err := o.InjectSecrets(context.Background(), nil)
	if err != nil || count != 0 {
		t.Fatalf("expected (0, nil) for empty refs, got (%d, %v)", count, err)
	}
}

func TestVerifyShortCircuitsWhenAlreadyVerified(t *testing.T) {
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, &fakeAttestationClient{verifyErr: errors.New("should not be called")})
	o.vm = &fakeHandle{running: true}
	o.verified.Store(true)

	result, err := o.Verify(context.Background())
	if err != nil || !result.Verified {
		t.Fatalf("expected cached verified result, got %+v, err=%v", result, err)
	}
}

func TestProcessMessageUsesAttestationClient(t *testing.T) {
	client := &fakeAttestationClient{processResp: ProcessResponse{SessionID: "s1", Content: "reply"}}
	o := testOrchestrator(TeeConfig{Enabled: true}, &fakeMicroVM{}, client)
	o.vm = &fakeHandle{running: true}
	o.verified.Store(true)

	resp, err := o.ProcessMessage(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "reply" {
		t.Fatalf("expected reply content, got %+v", resp)
	}
}
