package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/leakage"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/tee"
)

// TeeOrchestrator is the subset of *tee.TeeOrchestrator the session
// manager depends on. Declaring it as an interface lets tests substitute
// a fake instead of driving a real MicroVM.
type TeeOrchestrator interface {
	Boot(ctx context.Context) error
	Verify(ctx context.Context) (tee.VerificationResult, error)
	InjectSecrets(ctx context.Context, refs []tee.SecretRef) (int, error)
	ProcessMessage(ctx context.Context, sessionID, content string) (tee.ProcessResponse, error)
	IsReady() bool
}

// Manager handles session lifecycle, lazy TEE upgrade, prompt injection
// screening, and idle-session cleanup.
type Manager struct {
	store Store

	// userSessions indexes user:channel:chat -> session ID, so repeated
	// requests from the same conversation reuse one session.
	userSessions   map[string]string
	userSessionsMu sync.RWMutex

	teeEnabled   bool
	teeSecrets   []tee.SecretRef
	orchestrator TeeOrchestrator
	secretsOnce  sync.Once
	secretsErr   error

	injectionDetector *leakage.InjectionDetector
	auditBus          *leakage.AuditEventBus

	idleTimeout     time.Duration
	cleanupInterval time.Duration
}

// NewManager creates a session manager. orchestrator must be non-nil
// even when TEE is disabled in config — its Boot/IsReady calls already
// fail closed in that case; only its construction is skipped.
func NewManager(store Store, config tee.TeeConfig, orchestrator TeeOrchestrator, detector *leakage.InjectionDetector, bus *leakage.AuditEventBus, idleTimeout time.Duration) *Manager {
	return &Manager{
		store:             store,
		userSessions:      make(map[string]string),
		teeEnabled:        config.Enabled,
		teeSecrets:        config.Secrets,
		orchestrator:      orchestrator,
		injectionDetector: detector,
		auditBus:          bus,
		idleTimeout:       idleTimeout,
		cleanupInterval:   30 * time.Second,
	}
}

// IsTeeEnabled reports whether this gateway deployment has TEE
// processing configured.
func (m *Manager) IsTeeEnabled() bool {
	return m.teeEnabled
}

func userKey(userID, channelID, chatID string) string {
	return fmt.Sprintf("%s:%s:%s", userID, channelID, chatID)
}

// GetOrCreate returns the active session for (userID, channelID, chatID),
// creating one if none exists or the prior one is no longer active.
func (m *Manager) GetOrCreate(userID, channelID, chatID string, at time.Time) *Session {
	key := userKey(userID, channelID, chatID)

	m.userSessionsMu.RLock()
	existingID, hasExisting := m.userSessions[key]
	m.userSessionsMu.RUnlock()

	if hasExisting {
		if sess, ok := m.store.Get(existingID); ok && sess.IsActive() {
			return sess
		}
	}

	sess := NewSession(uuid.New().String(), userID, channelID, chatID, at)
	m.store.Put(sess)

	m.userSessionsMu.Lock()
	m.userSessions[key] = sess.ID
	m.userSessionsMu.Unlock()

	slog.Info("session created",
		"session_id", sess.ID,
		"user_id", userID,
		"channel_id", channelID,
		"chat_id", chatID,
	)

	return sess
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	return m.store.Get(id)
}

// UpgradeToTee upgrades an existing session to TEE-backed processing. On
// the very first call across all sessions this boots the shared MicroVM,
// verifies its attestation, and injects configured secrets; every later
// call (for this session or any other) observes an already-verified TEE
// and only flips the session's own flag.
func (m *Manager) UpgradeToTee(ctx context.Context, sessionID string, at time.Time) error {
	if !m.teeEnabled {
		return scerr.Tee("TEE is not enabled")
	}

	sess, ok := m.store.Get(sessionID)
	if !ok {
		return scerr.Tee(fmt.Sprintf("session %s not found", sessionID))
	}

	if sess.UsesTee() {
		return nil
	}

	sess.SetState(Upgrading, at)

	if err := m.orchestrator.Boot(ctx); err != nil {
		sess.SetState(Active, at)
		return err
	}

	if _, err := m.orchestrator.Verify(ctx); err != nil {
		sess.SetState(Active, at)
		return err
	}

	m.secretsOnce.Do(func() {
		if len(m.teeSecrets) == 0 {
			return
		}
		_, m.secretsErr = m.orchestrator.InjectSecrets(ctx, m.teeSecrets)
	})
	if m.secretsErr != nil {
		sess.SetState(Active, at)
		return m.secretsErr
	}

	sess.MarkTeeUpgraded()
	sess.SetState(Active, at)
	m.store.Put(sess)

	slog.Info("session upgraded to tee", "session_id", sessionID)

	return nil
}

// ProcessInTee scans content for prompt injection, records the resulting
// audit events both on the session and on the shared audit bus, and (if
// clean or merely suspicious) routes the message through the shared TEE
// orchestrator.
func (m *Manager) ProcessInTee(ctx context.Context, sessionID, content string, at time.Time) (string, error) {
	sess, ok := m.store.Get(sessionID)
	if !ok {
		return "", scerr.Tee(fmt.Sprintf("session %s not found", sessionID))
	}

	result := m.injectionDetector.Scan(content, sessionID, at)
	sess.RecordAuditAll(result.AuditEvents)
	for _, event := range result.AuditEvents {
		m.auditBus.Publish(ctx, event)
	}

	if result.Verdict == leakage.Blocked {
		return "", scerr.Tee(fmt.Sprintf("prompt injection blocked: %d pattern(s) detected", len(result.Matches)))
	}

	if !m.orchestrator.IsReady() {
		return "", scerr.Tee("TEE orchestrator is not ready")
	}

	sess.Touch(at)

	resp, err := m.orchestrator.ProcessMessage(ctx, sessionID, content)
	if err != nil {
		return "", err
	}

	return resp.Content, nil
}

// TerminateSession permanently ends a session: it is removed from the
// manager's indexes and its taint registry and audit log are wiped.
func (m *Manager) TerminateSession(sessionID string, at time.Time) error {
	sess, ok := m.store.Get(sessionID)
	if !ok {
		return nil
	}

	sess.Terminate(at)
	m.store.Put(sess)

	m.userSessionsMu.Lock()
	key := userKey(sess.UserID, sess.ChannelID, sess.ChatID)
	delete(m.userSessions, key)
	m.userSessionsMu.Unlock()

	sess.SecureWipe()
	if !sess.WasWiped() {
		slog.Error("session wipe verification failed", "session_id", sessionID)
	}

	m.store.Delete(sessionID)

	slog.Info("session terminated", "session_id", sessionID)

	return nil
}

// ActiveSessions returns all currently active sessions.
func (m *Manager) ActiveSessions() []*Session {
	return m.store.List(ActiveFilter)
}

// SessionCount returns the total number of tracked sessions.
func (m *Manager) SessionCount() int {
	return m.store.Count(nil)
}

// CleanupInactive terminates every active session whose idle time
// exceeds maxIdle, returning the number cleaned up.
func (m *Manager) CleanupInactive(maxIdle time.Duration, at time.Time) int {
	sessions := m.store.List(ActiveFilter)

	cleaned := 0
	for _, sess := range sessions {
		if sess.IdleTime(at) > maxIdle {
			if err := m.TerminateSession(sess.ID, at); err != nil {
				slog.Warn("failed to clean up session", "session_id", sess.ID, "error", err)
				continue
			}
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Info("cleaned up inactive sessions", "count", cleaned)
	}

	return cleaned
}

// Run drives the periodic idle-session cleanup sweep until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context, now func() time.Time) {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session manager stopping")
			return
		case <-ticker.C:
			m.CleanupInactive(m.idleTimeout, now())
		}
	}
}
