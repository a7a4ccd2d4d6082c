// Package leakage implements SafeClaw's output-side defenses: prompt
// injection detection, security policy drift detection, and the audit
// event bus both feed.
package leakage

import (
	"context"
	"sync"
	"time"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/storage"
)

// AuditSeverity ranks an audit event's urgency.
type AuditSeverity int

const (
	SeverityInfo AuditSeverity = iota
	SeverityWarning
	SeverityHigh
	SeverityCritical
)

func (s AuditSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// LeakageVector names the channel through which sensitive data could
// have escaped SafeClaw's controls.
type LeakageVector int

const (
	VectorOutputChannel LeakageVector = iota
	VectorPolicyDrift
	VectorComplianceViolation
	VectorSessionIsolation
)

func (v LeakageVector) String() string {
	switch v {
	case VectorOutputChannel:
		return "output_channel"
	case VectorPolicyDrift:
		return "policy_drift"
	case VectorComplianceViolation:
		return "compliance_violation"
	case VectorSessionIsolation:
		return "session_isolation"
	default:
		return "unknown"
	}
}

// AuditEvent is an immutable record of a leakage-relevant occurrence.
type AuditEvent struct {
	SessionID   string
	Severity    AuditSeverity
	Vector      LeakageVector
	Description string
	CreatedAt   time.Time
}

// NewAuditEvent constructs an event stamped with the given time.
func NewAuditEvent(sessionID string, severity AuditSeverity, vector LeakageVector, description string, at time.Time) AuditEvent {
	return AuditEvent{
		SessionID:   sessionID,
		Severity:    severity,
		Vector:      vector,
		Description: description,
		CreatedAt:   at,
	}
}

// AuditLog is a bounded in-memory ring of recent audit events, mirroring
// the shape of a capped capture buffer: newest events displace oldest
// once capacity is reached.
type AuditLog struct {
	mu       sync.RWMutex
	capacity int
	events   []AuditEvent
}

// NewAuditLog constructs an AuditLog holding at most capacity events.
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &AuditLog{capacity: capacity}
}

// Record appends an event, evicting the oldest entry if at capacity.
func (l *AuditLog) Record(event AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
}

// RecordAll appends multiple events.
func (l *AuditLog) RecordAll(events []AuditEvent) {
	for _, e := range events {
		l.Record(e)
	}
}

// Events returns a copy of the recorded events, newest last.
func (l *AuditLog) Events() []AuditEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len reports the number of events currently held.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// AuditEventBus fans out published events to subscribers and persists
// them to durable storage, retargeting the teacher's captured-event
// persistence pattern (storage.SQLiteStore.RecordEvent) from HTTP
// request/response capture to leakage AuditEvents.
type AuditEventBus struct {
	mu          sync.RWMutex
	subscribers []chan AuditEvent
	bufferSize  int
	log         *AuditLog
	store       *storage.SQLiteStore // optional durable sink; nil disables persistence
}

// NewAuditEventBus constructs a bus with the given per-subscriber buffer
// size, backed by an in-memory log and an optional SQLite store.
func NewAuditEventBus(bufferSize int, log *AuditLog, store *storage.SQLiteStore) *AuditEventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &AuditEventBus{bufferSize: bufferSize, log: log, store: store}
}

// Subscribe registers a new subscriber channel. Callers should drain it;
// a full channel drops the event rather than blocking the publisher.
func (b *AuditEventBus) Subscribe() <-chan AuditEvent {
	ch := make(chan AuditEvent, b.bufferSize)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish records the event to the log, persists it if a store is
// configured, and fans it out to all subscribers without blocking.
func (b *AuditEventBus) Publish(ctx context.Context, event AuditEvent) {
	if b.log != nil {
		b.log.Record(event)
	}
	if b.store != nil {
		_ = b.store.RecordEvent(ctx, storage.EventType("leakage_"+event.Vector.String()), event.SessionID, event.Severity.String(), map[string]string{
			"description": event.Description,
		})
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Log returns the bus's in-memory audit log.
func (b *AuditEventBus) Log() *AuditLog { return b.log }
