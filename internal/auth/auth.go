package auth

import (
	"context"
	"errors"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

var (
	ErrInvalidCredentials   = errors.New("auth: invalid credentials")
	ErrLocked               = errors.New("auth: too many failed attempts, try again later")
	ErrInvalidPanelPassword = errors.New("auth: panel password must be 4 digits")
	ErrInvalidWebPassword   = errors.New("auth: web password must be 8 characters")
	ErrSessionNotFound      = errors.New("auth: session not found")
	ErrSessionExpired       = errors.New("auth: session expired")
	ErrInvalidToken         = errors.New("auth: invalid token")
)

// Channel identifies where a login came from. The two channels keep
// independent trial counters and sessions.
type Channel string

const (
	ChannelWeb   Channel = "WEB"
	ChannelPanel Channel = "PANEL"
)

// Session represents an authenticated session.
type Session struct {
	ID        string
	UserID    string
	Channel   Channel
	CreatedAt time.Time
	ExpiresAt time.Time
}

// contextKey is used for storing auth values in context.
type contextKey int

const (
	userContextKey contextKey = iota
	sessionContextKey
)

// UserFromContext retrieves the authenticated user from context.
func UserFromContext(ctx context.Context) (*storage.User, bool) {
	u, ok := ctx.Value(userContextKey).(*storage.User)
	return u, ok
}

// ContextWithUser adds a user to the context.
func ContextWithUser(ctx context.Context, u *storage.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// SessionFromContext retrieves the current session from context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	return s, ok
}

// ContextWithSession adds a session to the context.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}
