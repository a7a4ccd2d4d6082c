package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/leakage"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisStore implements Store using Redis, so sessions survive a
// gateway restart and a kill/terminate on one instance is observed by
// every other instance sharing the same Redis deployment.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration

	// Local cache of kill channels (can't store channels in Redis).
	mu        sync.RWMutex
	killChans map[string]chan struct{}

	// Pub/sub for kill signals across instances.
	pubsub    *redis.PubSub
	killTopic string
}

// sessionData is the JSON-serializable session data for Redis.
type sessionData struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	ChannelID    string              `json:"channel_id"`
	ChatID       string              `json:"chat_id"`
	State        State               `json:"state"`
	Sensitivity  sensitivity.Level   `json:"sensitivity"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActivity time.Time           `json:"last_activity"`
	EndTime      *time.Time          `json:"end_time,omitempty"`
	MessageCount uint64              `json:"message_count"`
	Taints       []string            `json:"taints,omitempty"`
	AuditLog     []leakage.AuditEvent `json:"audit_log,omitempty"`
	UsesTee      bool                `json:"uses_tee"`
	Wiped        bool                `json:"wiped"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
}

// NewRedisStore creates a new Redis-backed session store.
func NewRedisStore(cfg RedisConfig, sessionTTL time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "safeclaw:session:"
	}

	store := &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       sessionTTL + 5*time.Minute, // keep slightly longer than the idle timeout
		killChans: make(map[string]chan struct{}),
		killTopic: "safeclaw:kill",
	}

	store.pubsub = client.Subscribe(ctx, store.killTopic)
	go store.listenForKillSignals()

	slog.Info("redis session store initialized",
		"addr", cfg.Addr,
		"key_prefix", keyPrefix,
	)

	return store, nil
}

func (s *RedisStore) sessionKey(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "_index"
}

// Get retrieves a session by ID.
func (s *RedisStore) Get(id string) (*Session, bool) {
	ctx := context.Background()

	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Error("redis get error", "session_id", id, "error", err)
		return nil, false
	}

	var sd sessionData
	if err := json.Unmarshal(data, &sd); err != nil {
		slog.Error("failed to unmarshal session", "session_id", id, "error", err)
		return nil, false
	}

	return s.sessionFromData(&sd), true
}

// Put stores a session.
func (s *RedisStore) Put(session *Session) {
	ctx := context.Background()

	sd := s.dataFromSession(session)
	data, err := json.Marshal(sd)
	if err != nil {
		slog.Error("failed to marshal session", "session_id", session.ID, "error", err)
		return
	}

	if err := s.client.Set(ctx, s.sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		slog.Error("redis set error", "session_id", session.ID, "error", err)
		return
	}

	if err := s.client.SAdd(ctx, s.indexKey(), session.ID).Err(); err != nil {
		slog.Error("redis sadd error", "session_id", session.ID, "error", err)
	}

	s.mu.Lock()
	if _, ok := s.killChans[session.ID]; !ok {
		s.killChans[session.ID] = make(chan struct{})
	}
	s.mu.Unlock()
}

// Delete removes a session.
func (s *RedisStore) Delete(id string) {
	ctx := context.Background()

	if err := s.client.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		slog.Error("redis del error", "session_id", id, "error", err)
	}

	if err := s.client.SRem(ctx, s.indexKey(), id).Err(); err != nil {
		slog.Error("redis srem error", "session_id", id, "error", err)
	}

	s.mu.Lock()
	if ch, ok := s.killChans[id]; ok {
		select {
		case <-ch:
		default:
			close(ch)
		}
		delete(s.killChans, id)
	}
	s.mu.Unlock()
}

// List returns all sessions matching the filter.
func (s *RedisStore) List(filter func(*Session) bool) []*Session {
	ctx := context.Background()

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		slog.Error("redis smembers error", "error", err)
		return nil
	}

	var result []*Session
	for _, id := range ids {
		sess, ok := s.Get(id)
		if !ok {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		if filter == nil || filter(sess) {
			result = append(result, sess)
		}
	}

	return result
}

// Count returns the number of sessions matching the filter.
func (s *RedisStore) Count(filter func(*Session) bool) int {
	return len(s.List(filter))
}

// PublishKill broadcasts a kill signal to all instances.
func (s *RedisStore) PublishKill(sessionID string) error {
	ctx := context.Background()
	return s.client.Publish(ctx, s.killTopic, sessionID).Err()
}

func (s *RedisStore) listenForKillSignals() {
	ch := s.pubsub.Channel()

	for msg := range ch {
		sessionID := msg.Payload
		slog.Debug("received kill signal", "session_id", sessionID)

		s.mu.Lock()
		if ch, ok := s.killChans[sessionID]; ok {
			select {
			case <-ch:
			default:
				close(ch)
			}
		}
		s.mu.Unlock()
	}
}

// GetKillChan returns the kill channel for a session.
func (s *RedisStore) GetKillChan(id string) <-chan struct{} {
	s.mu.RLock()
	ch, ok := s.killChans[id]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		ch = make(chan struct{})
		s.killChans[id] = ch
		s.mu.Unlock()
	}

	return ch
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.client.Close()
}

func (s *RedisStore) sessionFromData(sd *sessionData) *Session {
	sess := &Session{
		ID:           sd.ID,
		UserID:       sd.UserID,
		ChannelID:    sd.ChannelID,
		ChatID:       sd.ChatID,
		state:        sd.State,
		sensitivity:  sd.Sensitivity,
		createdAt:    sd.CreatedAt,
		lastActivity: sd.LastActivity,
		endTime:      sd.EndTime,
		messageCount: sd.MessageCount,
		taints:       make(map[string]struct{}, len(sd.Taints)),
		auditLog:     sd.AuditLog,
		usesTee:      sd.UsesTee,
		wiped:        sd.Wiped,
		metadata:     sd.Metadata,
	}
	for _, t := range sd.Taints {
		sess.taints[t] = struct{}{}
	}
	if sess.metadata == nil {
		sess.metadata = make(map[string]string)
	}

	s.mu.Lock()
	if ch, ok := s.killChans[sd.ID]; ok {
		sess.killChan = ch
	} else {
		sess.killChan = make(chan struct{})
		s.killChans[sd.ID] = sess.killChan
		if sd.State == Killed || sd.State == Terminated {
			close(sess.killChan)
		}
	}
	s.mu.Unlock()

	return sess
}

func (s *RedisStore) dataFromSession(sess *Session) *sessionData {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	taints := make([]string, 0, len(sess.taints))
	for t := range sess.taints {
		taints = append(taints, t)
	}

	return &sessionData{
		ID:           sess.ID,
		UserID:       sess.UserID,
		ChannelID:    sess.ChannelID,
		ChatID:       sess.ChatID,
		State:        sess.state,
		Sensitivity:  sess.sensitivity,
		CreatedAt:    sess.createdAt,
		LastActivity: sess.lastActivity,
		EndTime:      sess.endTime,
		MessageCount: sess.messageCount,
		Taints:       taints,
		AuditLog:     sess.auditLog,
		UsesTee:      sess.usesTee,
		Wiped:        sess.wiped,
		Metadata:     sess.metadata,
	}
}

// UpdateSession updates a session in Redis (call after modifying it).
func (s *RedisStore) UpdateSession(sess *Session) {
	s.Put(sess)
}
