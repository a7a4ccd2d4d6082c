package tee

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
)

// Handle controls a running MicroVM process.
type Handle interface {
	// Stop requests graceful shutdown, escalating to SIGKILL if the
	// process hasn't exited within timeout.
	Stop(timeout time.Duration) error
	// IsRunning reports whether the underlying process is still alive.
	IsRunning() bool
}

// MicroVM starts MicroVM instances from an InstanceSpec.
type MicroVM interface {
	Start(ctx context.Context, spec InstanceSpec) (Handle, error)
}

// DefaultShutdownTimeout is used when callers don't specify one.
const DefaultShutdownTimeout = 5 * time.Second

// FindShim locates the MicroVM shim binary on PATH.
func FindShim() (string, error) {
	path, err := exec.LookPath("a3s-box-shim")
	if err != nil {
		return "", scerr.Tee(fmt.Sprintf("failed to find a3s-box-shim: %v", err))
	}
	return path, nil
}

// subprocessMicroVM starts the shim binary as a child process, matching
// the reference implementation's shim-subprocess model.
type subprocessMicroVM struct {
	shimPath string
}

// NewSubprocessMicroVM constructs a MicroVM backed by the named shim
// binary.
func NewSubprocessMicroVM(shimPath string) (MicroVM, error) {
	if shimPath == "" {
		return nil, scerr.Tee("shim path is required")
	}
	return &subprocessMicroVM{shimPath: shimPath}, nil
}

func (m *subprocessMicroVM) Start(ctx context.Context, spec InstanceSpec) (Handle, error) {
	args := []string{
		"--box-id", spec.BoxID,
		"--vcpus", fmt.Sprintf("%d", spec.VCPUs),
		"--memory-mib", fmt.Sprintf("%d", spec.MemoryMiB),
		"--attest-socket", spec.AttestSocketPath,
	}
	for _, mnt := range spec.FsMounts {
		ro := "rw"
		if mnt.ReadOnly {
			ro = "ro"
		}
		args = append(args, "--mount", fmt.Sprintf("%s:%s:%s", mnt.Tag, mnt.HostPath, ro))
	}

	cmd := exec.CommandContext(ctx, m.shimPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, scerr.Tee(fmt.Sprintf("failed to start MicroVM: %v", err))
	}

	h := &subprocessHandle{cmd: cmd}
	go h.wait()
	return h, nil
}

type subprocessHandle struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	exited  bool
}

func (h *subprocessHandle) wait() {
	_ = h.cmd.Wait()
	h.mu.Lock()
	h.exited = true
	h.mu.Unlock()
}

func (h *subprocessHandle) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

func (h *subprocessHandle) Stop(timeout time.Duration) error {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return nil
	}
	proc := h.cmd.Process
	h.mu.Unlock()

	if proc == nil {
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return scerr.Tee(fmt.Sprintf("failed to signal MicroVM: %v", err))
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !h.IsRunning() {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if !h.IsRunning() {
		return nil
	}
	if err := proc.Kill(); err != nil {
		return scerr.Tee(fmt.Sprintf("failed to kill MicroVM: %v", err))
	}
	return nil
}
