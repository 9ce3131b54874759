package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/store"
)

// Manager tracks short-lived multi-turn conversation sessions. Expiry is
// absolute from creation, not a sliding window; appending messages never
// extends a session's life. Reads filter expired rows; only the periodic
// cleanup physically deletes them.
type Manager struct {
	store       *store.Store
	now         clock.Now
	timeout     time.Duration
	maxMessages int

	// Serializes lookup-then-create so two near-simultaneous callers for
	// the same (user, context type) key cannot both create a session.
	mu sync.Mutex
}

func NewManager(s *store.Store, cfg config.SessionsConfig, now clock.Now) (*Manager, error) {
	if now == nil {
		now = time.Now
	}
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultSessionTimeout)
	if err != nil {
		return nil, err
	}
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = config.DefaultSessionMaxMessages
	}
	return &Manager{
		store:       s,
		now:         now,
		timeout:     timeout,
		maxMessages: maxMessages,
	}, nil
}

// GetOrCreateSession returns the live session for the (user, context type)
// key, creating a fresh one when none is live.
func (m *Manager) GetOrCreateSession(ctx context.Context, userID, chatID int64, contextType, contextData string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest, err := m.store.LatestSession(ctx, userID, contextType)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if latest != nil && now.Before(latest.ExpiresAt) {
		return latest, nil
	}

	sess := &store.Session{
		SessionID:   ulid.Make().String(),
		UserID:      userID,
		ChatID:      chatID,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(m.timeout),
		ContextType: contextType,
		ContextData: contextData,
	}
	if err := m.store.InsertSession(ctx, sess); err != nil {
		return nil, err
	}

	slog.Info("Created session",
		"session_id", sess.SessionID, "user_id", userID,
		"context_type", contextType, "expires_at", sess.ExpiresAt.Format(time.RFC3339))
	return sess, nil
}

// GetSession returns the session only while it is live; an expired session
// reads as absent, not as an error.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || !m.now().Before(sess.ExpiresAt) {
		return nil, nil
	}
	return sess, nil
}

// AddMessage appends a message to the session. The message-count invariant
// is maintained by the store in one transaction.
func (m *Manager) AddMessage(ctx context.Context, sessionID, role, content string) (*store.Message, error) {
	msg := &store.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: m.now(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns the session's messages in chronological order.
func (m *Manager) History(ctx context.Context, sessionID string, limit int) ([]*store.Message, error) {
	return m.store.SessionMessages(ctx, sessionID, limit)
}

// IsAtMessageLimit reports whether the session has reached the message
// cutoff. Advisory: callers decide what to do, nothing blocks a further
// append.
func (m *Manager) IsAtMessageLimit(sess *store.Session) bool {
	return sess.MessageCount >= m.maxMessages
}

// EndSession terminates a session early by expiring it now.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	return m.store.SetSessionExpiry(ctx, sessionID, m.now())
}

// CleanupExpiredSessions deletes expired sessions and their messages,
// returning how many were removed. The only path that removes rows.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	deleted, err := m.store.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		slog.Info("Cleaned up expired sessions", "deleted", deleted)
	}
	return deleted, nil
}
