package session

import (
	"sync"
	"time"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/leakage"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// State represents the current lifecycle state of a session. Active,
// Completed, Killed and TimedOut come from the gateway's original proxy
// session model; Upgrading and Terminated are added for the TEE-backed
// agent sessions this gateway mediates.
type State int

const (
	Active State = iota
	Completed
	Killed
	TimedOut
	// Upgrading marks the brief window while a session's first
	// upgrade_to_tee call is booting and verifying the shared MicroVM.
	Upgrading
	// Terminated is a permanent end state distinct from Killed: once
	// terminated a session's taint registry and audit log are wiped and
	// the session can never be resumed.
	Terminated
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Killed:
		return "killed"
	case TimedOut:
		return "timeout"
	case Upgrading:
		return "upgrading"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is a single conversation's state: identity, lifecycle, the
// monotonic sensitivity ratchet, a session-scoped taint registry, an
// audit log of leakage events, and (once upgraded) a flag marking it as
// TEE-backed.
type Session struct {
	mu sync.RWMutex

	ID        string
	UserID    string
	ChannelID string
	ChatID    string

	state        State
	sensitivity  sensitivity.Level
	createdAt    time.Time
	lastActivity time.Time
	endTime      *time.Time
	messageCount uint64

	taints   map[string]struct{}
	auditLog []leakage.AuditEvent

	usesTee bool
	wiped   bool

	metadata map[string]string

	killChan chan struct{}
}

// NewSession creates a new session for a (user, channel, chat) triple.
func NewSession(id, userID, channelID, chatID string, at time.Time) *Session {
	return &Session{
		ID:           id,
		UserID:       userID,
		ChannelID:    channelID,
		ChatID:       chatID,
		state:        Active,
		sensitivity:  sensitivity.Normal,
		createdAt:    at,
		lastActivity: at,
		taints:       make(map[string]struct{}),
		metadata:     make(map[string]string),
		killChan:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState transitions the session to a new state, stamping EndTime the
// first time it leaves Active/Upgrading.
func (s *Session) SetState(state State, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if state != Active && state != Upgrading && s.endTime == nil {
		end := at
		s.endTime = &end
	}
}

// IsActive reports whether the session can still accept requests.
func (s *Session) IsActive() bool {
	state := s.State()
	return state == Active || state == Upgrading
}

// IsTerminated reports whether the session has been permanently ended.
func (s *Session) IsTerminated() bool {
	return s.State() == Terminated
}

// Touch records activity, bumping last-activity time and message count.
func (s *Session) Touch(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = at
	s.messageCount++
}

// LastActivity returns the last recorded activity time.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// IdleTime reports how long the session has been idle as of `at`.
func (s *Session) IdleTime(at time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return at.Sub(s.lastActivity)
}

// MessageCount returns the number of messages processed.
func (s *Session) MessageCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messageCount
}

// RaiseSensitivity raises the session's sensitivity level, ignoring the
// update if it is not higher than the current level. Sensitivity never
// downgrades for the lifetime of a session.
func (s *Session) RaiseSensitivity(level sensitivity.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensitivity = sensitivity.Max(s.sensitivity, level)
}

// Sensitivity returns the highest sensitivity level seen so far.
func (s *Session) Sensitivity() sensitivity.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sensitivity
}

// AddTaint adds a taint label to the session's registry.
func (s *Session) AddTaint(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taints[label] = struct{}{}
}

// Taints returns a snapshot of the session's taint labels.
func (s *Session) Taints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.taints))
	for t := range s.taints {
		out = append(out, t)
	}
	return out
}

// RecordAudit appends an event to the session-scoped audit log.
func (s *Session) RecordAudit(event leakage.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLog = append(s.auditLog, event)
}

// RecordAuditAll appends a batch of events to the session-scoped audit log.
func (s *Session) RecordAuditAll(events []leakage.AuditEvent) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLog = append(s.auditLog, events...)
}

// AuditEvents returns a copy of the session's audit log.
func (s *Session) AuditEvents() []leakage.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]leakage.AuditEvent, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

// UsesTee reports whether this session has been upgraded to TEE
// processing.
func (s *Session) UsesTee() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usesTee
}

// MarkTeeUpgraded records that this session is now TEE-backed.
func (s *Session) MarkTeeUpgraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usesTee = true
}

// SetMetadata sets a metadata key-value pair.
func (s *Session) SetMetadata(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

// GetMetadata returns a metadata value, if present.
func (s *Session) GetMetadata(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.metadata[key]
	return v, ok
}

// Kill signals the session to stop, allowing a later Resume.
func (s *Session) Kill(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Active || s.state == Upgrading {
		s.state = Killed
		end := at
		s.endTime = &end
		close(s.killChan)
	}
}

// Resume reactivates a killed session. Returns false if the session was
// terminated, which can never be resumed.
func (s *Session) Resume(at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return false
	}
	if s.state != Killed {
		return false
	}
	s.state = Active
	s.endTime = nil
	s.lastActivity = at
	s.killChan = make(chan struct{})
	return true
}

// Terminate permanently ends the session; it can never be resumed.
func (s *Session) Terminate(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Active || s.state == Upgrading {
		select {
		case <-s.killChan:
		default:
			close(s.killChan)
		}
	}
	s.state = Terminated
	if s.endTime == nil {
		end := at
		s.endTime = &end
	}
}

// KillChan returns the channel closed when the session is killed or
// terminated.
func (s *Session) KillChan() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.killChan
}

// Duration reports how long the session has run, as of `at` if still
// open.
func (s *Session) Duration(at time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.endTime != nil {
		return s.endTime.Sub(s.createdAt)
	}
	return at.Sub(s.createdAt)
}

// SecureWipe zeroizes the session's taint registry and audit log,
// mirroring the memory layer's Erasable pattern for sensitive payloads
// that must be overwritten, not merely dropped.
func (s *Session) SecureWipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.taints {
		delete(s.taints, t)
	}
	for i := range s.auditLog {
		s.auditLog[i] = leakage.AuditEvent{}
	}
	s.auditLog = nil
	s.wiped = true
}

// WasWiped reports whether SecureWipe has run on this session.
func (s *Session) WasWiped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wiped
}
