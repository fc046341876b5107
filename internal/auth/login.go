package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

// PanelLockDuration is how long the keypad stays locked after
// MaxLoginTrials failed attempts.
const PanelLockDuration = 10 * time.Second

// DefaultWebLockDuration applies when the settings row carries no lock time.
const DefaultWebLockDuration = 30 * time.Second

type trialState struct {
	trials      int
	lockedUntil time.Time
	user        *storage.User
}

// LoginManager authenticates panel and web users against storage and keeps
// per channel failure counters.
type LoginManager struct {
	users    storage.UserStore
	settings storage.SettingsStore

	mu       sync.Mutex
	channels map[Channel]*trialState

	now func() time.Time
}

// NewLoginManager creates a LoginManager. settings may be nil, in which case
// the web channel uses DefaultWebLockDuration.
func NewLoginManager(users storage.UserStore, settings storage.SettingsStore) *LoginManager {
	return &LoginManager{
		users:    users,
		settings: settings,
		channels: map[Channel]*trialState{
			ChannelWeb:   {},
			ChannelPanel: {},
		},
		now: time.Now,
	}
}

// LoginPanel authenticates a keypad user. An empty password matches a user
// whose panel password is unset.
func (m *LoginManager) LoginPanel(ctx context.Context, panelID, password string) (*storage.User, error) {
	return m.login(ctx, ChannelPanel, func() (*storage.User, bool, error) {
		u, err := m.users.GetUserByPanelID(ctx, panelID)
		if err != nil {
			return nil, false, err
		}
		if u.PanelPassword == "" {
			return u, password == "", nil
		}
		return u, password != "" && checkPassword(u.PanelPassword, password), nil
	})
}

// LoginWeb authenticates a web user.
func (m *LoginManager) LoginWeb(ctx context.Context, webID, password string) (*storage.User, error) {
	return m.login(ctx, ChannelWeb, func() (*storage.User, bool, error) {
		u, err := m.users.GetUserByWebID(ctx, webID)
		if err != nil {
			return nil, false, err
		}
		return u, u.WebPassword != "" && checkPassword(u.WebPassword, password), nil
	})
}

func (m *LoginManager) login(ctx context.Context, ch Channel, verify func() (*storage.User, bool, error)) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.channels[ch]
	now := m.now()
	if !st.lockedUntil.IsZero() {
		if now.Before(st.lockedUntil) {
			return nil, ErrLocked
		}
		st.lockedUntil = time.Time{}
		st.trials = 0
	}

	u, ok, err := verify()
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		st.user = nil
		st.trials++
		if st.trials >= MaxLoginTrials {
			st.lockedUntil = now.Add(m.lockDuration(ctx, ch))
			slog.Warn("login locked", "channel", ch, "until", st.lockedUntil)
			return nil, ErrLocked
		}
		return nil, ErrInvalidCredentials
	}

	st.trials = 0
	st.user = u
	m.upgradeHash(ctx, ch, u)
	return u, nil
}

// upgradeHash replaces a plain stored credential with its bcrypt hash after
// a successful login. Failures are logged and otherwise ignored.
func (m *LoginManager) upgradeHash(ctx context.Context, ch Channel, u *storage.User) {
	var upd storage.UserUpdate
	switch ch {
	case ChannelPanel:
		if u.PanelPassword == "" || isHashed(u.PanelPassword) {
			return
		}
		hash, err := HashPassword(u.PanelPassword)
		if err != nil {
			slog.Warn("hash panel password", "user", u.UserID, "error", err)
			return
		}
		upd.PanelPassword = &hash
		u.PanelPassword = hash
	case ChannelWeb:
		if u.WebPassword == "" || isHashed(u.WebPassword) {
			return
		}
		hash, err := HashPassword(u.WebPassword)
		if err != nil {
			slog.Warn("hash web password", "user", u.UserID, "error", err)
			return
		}
		upd.WebPassword = &hash
		u.WebPassword = hash
	}
	if err := m.users.UpdateUser(ctx, u.UserID, upd); err != nil {
		slog.Warn("store password hash", "user", u.UserID, "error", err)
	}
}

func (m *LoginManager) lockDuration(ctx context.Context, ch Channel) time.Duration {
	if ch == ChannelPanel {
		return PanelLockDuration
	}
	if m.settings == nil {
		return DefaultWebLockDuration
	}
	set, err := m.settings.GetSystemSettings(ctx, storage.DefaultSettingsID)
	if err != nil || set.SystemLockTime == nil {
		return DefaultWebLockDuration
	}
	return time.Duration(*set.SystemLockTime) * time.Second
}

// Logout clears the logged in user and the trial counter of a channel.
func (m *LoginManager) Logout(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.channels[ch]
	st.user = nil
	st.trials = 0
}

// CurrentUser returns the user logged in on ch, or nil.
func (m *LoginManager) CurrentUser(ch Channel) *storage.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[ch].user
}

// TrialsLeft returns the failed attempts remaining before ch locks.
func (m *LoginManager) TrialsLeft(ch Channel) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	left := MaxLoginTrials - m.channels[ch].trials
	if left < 0 {
		return 0
	}
	return left
}

// LockedUntil returns the time the lock on ch expires, or the zero time when
// the channel is not locked.
func (m *LoginManager) LockedUntil(ch Channel) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.channels[ch]
	if st.lockedUntil.IsZero() || !m.now().Before(st.lockedUntil) {
		return time.Time{}
	}
	return st.lockedUntil
}

// ChangePanelPassword verifies the old keypad password and stores a new one.
func (m *LoginManager) ChangePanelPassword(ctx context.Context, panelID, oldPassword, newPassword string) error {
	u, err := m.users.GetUserByPanelID(ctx, panelID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if u.PanelPassword == "" || !checkPassword(u.PanelPassword, oldPassword) {
		return ErrInvalidCredentials
	}
	return m.setPanelPassword(ctx, u.UserID, newPassword)
}

// SetPanelPassword stores a new keypad password for an already
// authenticated user.
func (m *LoginManager) SetPanelPassword(ctx context.Context, panelID, newPassword string) error {
	u, err := m.users.GetUserByPanelID(ctx, panelID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	return m.setPanelPassword(ctx, u.UserID, newPassword)
}

func (m *LoginManager) setPanelPassword(ctx context.Context, userID, newPassword string) error {
	if err := ValidatePanelPassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := m.users.UpdateUser(ctx, userID, storage.UserUpdate{PanelPassword: &hash}); err != nil {
		return fmt.Errorf("update panel password: %w", err)
	}
	return nil
}

// ChangeWebPassword verifies the old web password and stores a new one.
func (m *LoginManager) ChangeWebPassword(ctx context.Context, webID, oldPassword, newPassword string) error {
	u, err := m.users.GetUserByWebID(ctx, webID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if u.WebPassword == "" || !checkPassword(u.WebPassword, oldPassword) {
		return ErrInvalidCredentials
	}
	if err := ValidateWebPassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := m.users.UpdateUser(ctx, u.UserID, storage.UserUpdate{WebPassword: &hash}); err != nil {
		return fmt.Errorf("update web password: %w", err)
	}
	return nil
}
