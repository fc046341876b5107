package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safehome/safehome/internal/storage"
)

// InsertSystemSettings implements storage.SettingsStore. A zero ID lets
// SQLite assign one.
func (s *Store) InsertSystemSettings(ctx context.Context, set storage.SystemSettings) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var id any
	if set.ID != 0 {
		id = set.ID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings
			(system_setting_id, panic_phone_number, homeowner_phone_number, system_lock_time, alarm_delay_time)
		VALUES (?, ?, ?, ?, ?)`,
		id, nullString(set.PanicPhoneNumber), nullString(set.HomeownerPhoneNumber),
		nullInt(set.SystemLockTime), nullInt(set.AlarmDelayTime),
	)
	if err != nil {
		return 0, fmt.Errorf("insert settings: %w", mapError(err))
	}
	return res.LastInsertId()
}

// GetSystemSettings implements storage.SettingsStore.
func (s *Store) GetSystemSettings(ctx context.Context, id int64) (*storage.SystemSettings, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var set storage.SystemSettings
	var panic, homeowner sql.NullString
	var lockTime, alarmDelay sql.NullInt64
	var createdAt, updatedAt dbTime

	err := s.db.QueryRowContext(ctx, `
		SELECT system_setting_id, panic_phone_number, homeowner_phone_number,
			system_lock_time, alarm_delay_time, created_at, updated_at
		FROM system_settings WHERE system_setting_id = ?`, id,
	).Scan(&set.ID, &panic, &homeowner, &lockTime, &alarmDelay, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}

	set.PanicPhoneNumber = panic.String
	set.HomeownerPhoneNumber = homeowner.String
	set.SystemLockTime = intPtr(lockTime)
	set.AlarmDelayTime = intPtr(alarmDelay)
	set.CreatedAt = createdAt.Time()
	set.UpdatedAt = updatedAt.Time()
	return &set, nil
}

// UpdateSystemSettings implements storage.SettingsStore.
func (s *Store) UpdateSystemSettings(ctx context.Context, set storage.SystemSettings) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE system_settings
		SET panic_phone_number = ?,
			homeowner_phone_number = ?,
			system_lock_time = ?,
			alarm_delay_time = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE system_setting_id = ?`,
		nullString(set.PanicPhoneNumber), nullString(set.HomeownerPhoneNumber),
		nullInt(set.SystemLockTime), nullInt(set.AlarmDelayTime), set.ID,
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", mapError(err))
	}
	return affectedOne(res)
}

// DeleteSystemSettings implements storage.SettingsStore.
func (s *Store) DeleteSystemSettings(ctx context.Context, id int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM system_settings WHERE system_setting_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return affectedOne(res)
}
