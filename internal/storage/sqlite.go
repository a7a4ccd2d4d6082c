package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/redaction"
)

// SessionRecord is a historical record of one terminated session: its
// identity, lifecycle timing, and the sensitivity ratchet it reached.
// Unlike the gateway's proxy-era ancestor, it never stores raw message
// content — Resources and Artifacts are wiped on session end, so only
// their classification summary survives here.
type SessionRecord struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	ChannelID    string            `json:"channel_id"`
	ChatID       string            `json:"chat_id"`
	State        string            `json:"state"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	DurationMs   int64             `json:"duration_ms"`
	MessageCount int               `json:"message_count"`
	Sensitivity  string            `json:"sensitivity"`
	UsesTee      bool              `json:"uses_tee"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ResourceRecord is a classification summary for one Resource that
// passed through the Privacy Gate: enough to audit routing decisions
// without persisting the content that was routed.
type ResourceRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	ContentType string    `json:"content_type"`
	Sensitivity string    `json:"sensitivity"`
	Taints      []string  `json:"taints,omitempty"`
	StorageKind string    `json:"storage_kind"`
	CreatedAt   time.Time `json:"created_at"`
}

// ViolationRecord is a persisted compliance.Violation, tied back to the
// session whose content triggered it.
type ViolationRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Framework   string    `json:"framework"`
	RuleSet     string    `json:"rule_set"`
	RuleName    string    `json:"rule_name"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

// SQLiteStore provides persistent storage for session history, resource
// classification summaries, and compliance violations.
type SQLiteStore struct {
	db       *sql.DB
	redactor redaction.Redactor
}

// NewSQLiteStore creates a new SQLite-backed storage, running migrations
// immediately. A nil redactor defaults to redaction.NewPatternRedactor,
// so metadata is sanitized before it ever reaches disk unless the caller
// explicitly opts out with &redaction.NoopRedactor{}.
func NewSQLiteStore(dbPath string, redactor redaction.Redactor) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if redactor == nil {
		redactor = redaction.NewPatternRedactor()
	}

	store := &SQLiteStore{db: db, redactor: redactor}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("sqlite storage initialized", "path", dbPath)
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		state TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		sensitivity TEXT NOT NULL,
		uses_tee INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);
	CREATE INDEX IF NOT EXISTS idx_sessions_end_time ON sessions(end_time);
	CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
	CREATE INDEX IF NOT EXISTS idx_sessions_channel ON sessions(channel_id);

	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		content_type TEXT NOT NULL,
		sensitivity TEXT NOT NULL,
		taints TEXT,
		storage_kind TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resources_session ON resources(session_id);
	CREATE INDEX IF NOT EXISTS idx_resources_sensitivity ON resources(sensitivity);

	CREATE TABLE IF NOT EXISTS violations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		framework TEXT NOT NULL,
		rule_set TEXT NOT NULL,
		rule_name TEXT NOT NULL,
		description TEXT,
		detected_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_violations_session ON violations(session_id);
	CREATE INDEX IF NOT EXISTS idx_violations_framework ON violations(framework);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSession saves a completed session record. Metadata values are
// redacted before marshaling.
func (s *SQLiteStore) SaveSession(record SessionRecord) error {
	metadataJSON, err := json.Marshal(redactMetadata(s.redactor, record.Metadata))
	if err != nil {
		metadataJSON = []byte("{}")
	}

	usesTee := 0
	if record.UsesTee {
		usesTee = 1
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO sessions
		(id, user_id, channel_id, chat_id, state, start_time, end_time, duration_ms, message_count, sensitivity, uses_tee, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.ChannelID,
		record.ChatID,
		record.State,
		record.StartTime,
		record.EndTime,
		record.DurationMs,
		record.MessageCount,
		record.Sensitivity,
		usesTee,
		string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	slog.Debug("session saved to history",
		"session_id", record.ID,
		"state", record.State,
		"uses_tee", record.UsesTee,
		"messages", record.MessageCount,
	)
	return nil
}

func redactMetadata(r redaction.Redactor, metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	if pr, ok := r.(*redaction.PatternRedactor); ok {
		return pr.RedactStrings(metadata)
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = r.Redact(v)
	}
	return out
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, channel_id, chat_id, state, start_time, end_time, duration_ms, message_count, sensitivity, uses_tee, metadata
		FROM sessions WHERE id = ?`, id)

	record, usesTee, metadataStr, err := scanSessionRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	record.UsesTee = usesTee
	if metadataStr.Valid && metadataStr.String != "" {
		_ = json.Unmarshal([]byte(metadataStr.String), &record.Metadata)
	}

	return &record, nil
}

func scanSessionRow(scan func(dest ...interface{}) error) (SessionRecord, bool, sql.NullString, error) {
	var record SessionRecord
	var usesTeeInt int
	var metadataStr sql.NullString

	err := scan(
		&record.ID,
		&record.UserID,
		&record.ChannelID,
		&record.ChatID,
		&record.State,
		&record.StartTime,
		&record.EndTime,
		&record.DurationMs,
		&record.MessageCount,
		&record.Sensitivity,
		&usesTeeInt,
		&metadataStr,
	)
	return record, usesTeeInt != 0, metadataStr, err
}

// ListSessionsOptions contains options for listing sessions.
type ListSessionsOptions struct {
	Limit     int
	Offset    int
	State     string
	ChannelID string
	Since     *time.Time
	Until     *time.Time
}

// ListSessions retrieves sessions with filtering and pagination.
func (s *SQLiteStore) ListSessions(opts ListSessionsOptions) ([]SessionRecord, error) {
	query := `
		SELECT id, user_id, channel_id, chat_id, state, start_time, end_time, duration_ms, message_count, sensitivity, uses_tee, metadata
		FROM sessions WHERE 1=1`

	args := []interface{}{}

	if opts.State != "" {
		query += " AND state = ?"
		args = append(args, opts.State)
	}
	if opts.ChannelID != "" {
		query += " AND channel_id = ?"
		args = append(args, opts.ChannelID)
	}
	if opts.Since != nil {
		query += " AND start_time >= ?"
		args = append(args, *opts.Since)
	}
	if opts.Until != nil {
		query += " AND start_time <= ?"
		args = append(args, *opts.Until)
	}

	query += " ORDER BY start_time DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		record, usesTee, metadataStr, err := scanSessionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		record.UsesTee = usesTee
		if metadataStr.Valid && metadataStr.String != "" {
			_ = json.Unmarshal([]byte(metadataStr.String), &record.Metadata)
		}
		records = append(records, record)
	}

	return records, nil
}

// Stats represents aggregate session statistics.
type Stats struct {
	TotalSessions        int64            `json:"total_sessions"`
	TotalMessages        int64            `json:"total_messages"`
	TeeSessions          int64            `json:"tee_sessions"`
	AvgDurationMs        float64          `json:"avg_duration_ms"`
	SessionsByState      map[string]int64 `json:"sessions_by_state"`
	SessionsBySensitivity map[string]int64 `json:"sessions_by_sensitivity"`
}

// GetStats retrieves aggregate session statistics.
func (s *SQLiteStore) GetStats(since *time.Time) (*Stats, error) {
	stats := &Stats{
		SessionsByState:       make(map[string]int64),
		SessionsBySensitivity: make(map[string]int64),
	}

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	if since != nil {
		whereClause += " AND start_time >= ?"
		args = append(args, *since)
	}

	row := s.db.QueryRow(fmt.Sprintf(`
		SELECT
			COUNT(*),
			COALESCE(SUM(message_count), 0),
			COALESCE(SUM(uses_tee), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM sessions %s`, whereClause), args...)

	if err := row.Scan(&stats.TotalSessions, &stats.TotalMessages, &stats.TeeSessions, &stats.AvgDurationMs); err != nil {
		return nil, fmt.Errorf("failed to get aggregate stats: %w", err)
	}

	if err := s.fillGroupCounts(whereClause, args, "state", stats.SessionsByState); err != nil {
		return nil, err
	}
	if err := s.fillGroupCounts(whereClause, args, "sensitivity", stats.SessionsBySensitivity); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *SQLiteStore) fillGroupCounts(whereClause string, args []interface{}, column string, into map[string]int64) error {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s, COUNT(*) FROM sessions %s GROUP BY %s`, column, whereClause, column), args...)
	if err != nil {
		return fmt.Errorf("failed to get %s stats: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return nil
}

// TimeSeriesPoint represents one bucket of session activity.
type TimeSeriesPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	SessionCount  int64     `json:"session_count"`
	MessageCount  int64     `json:"message_count"`
	TeeSessions   int64     `json:"tee_sessions"`
}

// GetTimeSeries retrieves time series data for dashboards.
func (s *SQLiteStore) GetTimeSeries(since time.Time, interval string) ([]TimeSeriesPoint, error) {
	var dateTrunc string
	switch interval {
	case "hour":
		dateTrunc = "strftime('%Y-%m-%d %H:00:00', datetime(start_time))"
	case "day":
		dateTrunc = "strftime('%Y-%m-%d', datetime(start_time))"
	case "minute":
		dateTrunc = "strftime('%Y-%m-%d %H:%M:00', datetime(start_time))"
	default:
		dateTrunc = "strftime('%Y-%m-%d %H:00:00', datetime(start_time))"
	}

	// #nosec G201 -- dateTrunc is one of the hardcoded switch cases above, never user input
	query := fmt.Sprintf(`
		SELECT
			COALESCE(%s, 'unknown') as bucket,
			COUNT(*) as session_count,
			COALESCE(SUM(message_count), 0) as message_count,
			COALESCE(SUM(uses_tee), 0) as tee_sessions
		FROM sessions
		WHERE start_time >= ?
		GROUP BY bucket
		HAVING bucket != 'unknown'
		ORDER BY bucket ASC`, dateTrunc)

	rows, err := s.db.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get time series: %w", err)
	}
	defer rows.Close()

	var points []TimeSeriesPoint
	for rows.Next() {
		var point TimeSeriesPoint
		var bucket string
		if err := rows.Scan(&bucket, &point.SessionCount, &point.MessageCount, &point.TeeSessions); err != nil {
			return nil, err
		}
		point.Timestamp, _ = time.Parse("2006-01-02 15:04:05", bucket)
		if point.Timestamp.IsZero() {
			point.Timestamp, _ = time.Parse("2006-01-02", bucket)
		}
		points = append(points, point)
	}

	return points, nil
}

// Cleanup removes session, resource, and violation records older than
// retentionDays.
func (s *SQLiteStore) Cleanup(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := s.db.Exec("DELETE FROM sessions WHERE end_time < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old sessions: %w", err)
	}
	deleted, _ := result.RowsAffected()

	if _, err := s.db.Exec("DELETE FROM resources WHERE created_at < ?", cutoff); err != nil {
		return deleted, fmt.Errorf("failed to cleanup old resources: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM violations WHERE detected_at < ?", cutoff); err != nil {
		return deleted, fmt.Errorf("failed to cleanup old violations: %w", err)
	}

	if deleted > 0 {
		slog.Info("cleaned up old sessions", "deleted", deleted, "retention_days", retentionDays)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResource persists a classification summary for one Resource.
func (s *SQLiteStore) SaveResource(record ResourceRecord) error {
	taints, err := json.Marshal(record.Taints)
	if err != nil {
		taints = []byte("[]")
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO resources
		(id, session_id, content_type, sensitivity, taints, storage_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.SessionID,
		record.ContentType,
		record.Sensitivity,
		string(taints),
		record.StorageKind,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save resource record: %w", err)
	}
	return nil
}

// ListResourcesBySession retrieves every resource summary recorded for a session.
func (s *SQLiteStore) ListResourcesBySession(sessionID string) ([]ResourceRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, content_type, sensitivity, taints, storage_kind, created_at
		FROM resources WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var records []ResourceRecord
	for rows.Next() {
		var record ResourceRecord
		var taintsStr sql.NullString
		if err := rows.Scan(&record.ID, &record.SessionID, &record.ContentType, &record.Sensitivity, &taintsStr, &record.StorageKind, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		if taintsStr.Valid && taintsStr.String != "" {
			_ = json.Unmarshal([]byte(taintsStr.String), &record.Taints)
		}
		records = append(records, record)
	}
	return records, nil
}

// SaveViolation persists one compliance rule match.
func (s *SQLiteStore) SaveViolation(record ViolationRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO violations (session_id, framework, rule_set, rule_name, description, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.SessionID,
		record.Framework,
		record.RuleSet,
		record.RuleName,
		s.redactor.Redact(record.Description),
		record.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save violation: %w", err)
	}
	return nil
}

// ListViolationsBySession retrieves every violation recorded for a session.
func (s *SQLiteStore) ListViolationsBySession(sessionID string) ([]ViolationRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, framework, rule_set, rule_name, description, detected_at
		FROM violations WHERE session_id = ? ORDER BY detected_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	var records []ViolationRecord
	for rows.Next() {
		var record ViolationRecord
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Framework, &record.RuleSet, &record.RuleName, &record.Description, &record.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}
