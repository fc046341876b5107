package auth

import (
	"net/http"
	"strings"

	"github.com/safehome/safehome/internal/storage"
)

// Middleware provides authentication middleware.
type Middleware struct {
	users        storage.UserStore
	sessions     *SessionStore
	tokens       *TokenIssuer
	cookieName   string
	cookieSecure bool
}

// NewMiddleware creates auth middleware.
func NewMiddleware(users storage.UserStore, sessions *SessionStore, tokens *TokenIssuer, cookieName string, secure bool) *Middleware {
	return &Middleware{
		users:        users,
		sessions:     sessions,
		tokens:       tokens,
		cookieName:   cookieName,
		cookieSecure: secure,
	}
}

// CookieName returns the session cookie name.
func (m *Middleware) CookieName() string {
	return m.cookieName
}

// RequireAuthAPI wraps an API handler to require a valid session token,
// taken from the Authorization header or the session cookie.
// Returns 401 Unauthorized instead of redirecting.
func (m *Middleware) RequireAuthAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := m.tokenFromRequest(r)
		if raw == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := m.tokens.Validate(raw)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		session, err := m.sessions.Resolve(r.Context(), claims)
		if err != nil {
			m.clearCookie(w)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := m.users.GetUser(r.Context(), session.UserID)
		if err != nil {
			m.clearCookie(w)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := ContextWithUser(r.Context(), user)
		ctx = ContextWithSession(ctx, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated users whose role differs from role.
// It must run after RequireAuthAPI.
func (m *Middleware) RequireRole(role storage.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if u.Role != role {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(m.cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// SetSessionCookie sets the session cookie.
func (m *Middleware) SetSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func (m *Middleware) ClearSessionCookie(w http.ResponseWriter) {
	m.clearCookie(w)
}

func (m *Middleware) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
