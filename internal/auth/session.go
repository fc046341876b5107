package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

// SessionStore keeps login sessions in the sessions table.
//
// A session belongs to one user and one login channel. Its id is the jti of
// the JWT issued for it, so deleting the row revokes the token before it
// expires. Deleting the user removes its sessions through the foreign key.
type SessionStore struct {
	db       *sql.DB
	duration time.Duration
}

// NewSessionStore returns a SessionStore whose sessions live for duration.
func NewSessionStore(db *sql.DB, duration time.Duration) *SessionStore {
	return &SessionStore{db: db, duration: duration}
}

// Duration returns the lifetime given to new sessions.
func (s *SessionStore) Duration() time.Duration {
	return s.duration
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create opens a session for userID on channel ch. The user must exist.
func (s *SessionStore) Create(ctx context.Context, userID string, ch Channel) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:        id,
		UserID:    userID,
		Channel:   ch,
		CreatedAt: now,
		ExpiresAt: now.Add(s.duration),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, channel, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.UserID, string(session.Channel), now.UnixNano(), session.ExpiresAt.UnixNano(),
	); err != nil {
		return nil, err
	}
	return session, nil
}

// Get returns the session with the given id. An expired session is removed
// and reported as ErrSessionExpired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	var (
		session              Session
		channel              string
		createdAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, channel, created_at, expires_at FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&session.ID, &session.UserID, &channel, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	session.Channel = Channel(channel)
	session.CreatedAt = time.Unix(0, createdAt)
	session.ExpiresAt = time.Unix(0, expiresAt)

	if time.Now().After(session.ExpiresAt) {
		_ = s.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}
	return &session, nil
}

// Resolve returns the live session named by the token claims. A token whose
// user or channel differs from its session is treated as unknown, so a web
// token cannot stand in for a panel session.
func (s *SessionStore) Resolve(ctx context.Context, claims *Claims) (*Session, error) {
	session, err := s.Get(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if session.UserID != claims.UserID || session.Channel != claims.Channel {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete revokes one session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// DeleteExpired removes every expired session and returns how many went.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByUserID revokes every session of a user on both channels. Password
// changes use it.
func (s *SessionStore) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}
