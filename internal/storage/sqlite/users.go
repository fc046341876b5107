package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safehome/safehome/internal/storage"
)

const userColumns = `user_id, role, panel_id, panel_password, web_id, web_password, created_at, updated_at`

// InsertUser implements storage.UserStore.
func (s *Store) InsertUser(ctx context.Context, u storage.User) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, role, panel_id, panel_password, web_id, web_password)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.UserID, string(u.Role),
		nullString(u.PanelID), nullString(u.PanelPassword),
		nullString(u.WebID), nullString(u.WebPassword),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", mapError(err))
	}
	return nil
}

// GetUser implements storage.UserStore.
func (s *Store) GetUser(ctx context.Context, userID string) (*storage.User, error) {
	return s.getUserBy(ctx, "user_id", userID)
}

// GetUserByPanelID implements storage.UserStore.
func (s *Store) GetUserByPanelID(ctx context.Context, panelID string) (*storage.User, error) {
	return s.getUserBy(ctx, "panel_id", panelID)
}

// GetUserByWebID implements storage.UserStore.
func (s *Store) GetUserByWebID(ctx context.Context, webID string) (*storage.User, error) {
	return s.getUserBy(ctx, "web_id", webID)
}

func (s *Store) getUserBy(ctx context.Context, column, value string) (*storage.User, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// UpdateUser implements storage.UserStore. Only the credential and role
// columns can change; updated_at is refreshed on every update.
func (s *Store) UpdateUser(ctx context.Context, userID string, upd storage.UserUpdate) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if upd.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if upd.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, string(*upd.Role))
	}
	if upd.PanelID != nil {
		sets = append(sets, "panel_id = ?")
		args = append(args, nullString(*upd.PanelID))
	}
	if upd.PanelPassword != nil {
		sets = append(sets, "panel_password = ?")
		args = append(args, nullString(*upd.PanelPassword))
	}
	if upd.WebID != nil {
		sets = append(sets, "web_id = ?")
		args = append(args, nullString(*upd.WebID))
	}
	if upd.WebPassword != nil {
		sets = append(sets, "web_password = ?")
		args = append(args, nullString(*upd.WebPassword))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, userID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE user_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", mapError(err))
	}
	return affectedOne(res)
}

// DeleteUser implements storage.UserStore.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return affectedOne(res)
}

func scanUser(row interface{ Scan(...any) error }) (*storage.User, error) {
	var u storage.User
	var role string
	var panelID, panelPassword, webID, webPassword sql.NullString
	var createdAt, updatedAt dbTime

	if err := row.Scan(&u.UserID, &role, &panelID, &panelPassword, &webID, &webPassword, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	u.Role = storage.Role(role)
	u.PanelID = panelID.String
	u.PanelPassword = panelPassword.String
	u.WebID = webID.String
	u.WebPassword = webPassword.String
	u.CreatedAt = createdAt.Time()
	u.UpdatedAt = updatedAt.Time()
	return &u, nil
}
