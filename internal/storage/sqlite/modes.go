package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safehome/safehome/internal/storage"
)

const modeSelect = `
	SELECT m.mode_id, m.mode_name, m.created_at, m.updated_at,
		(SELECT GROUP_CONCAT(sensor_id) FROM
			(SELECT sensor_id FROM safehome_mode_sensors WHERE mode_id = m.mode_id ORDER BY sensor_id))
	FROM safehome_modes m`

// ListModes implements storage.ModeStore.
func (s *Store) ListModes(ctx context.Context) ([]storage.SafeHomeMode, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, modeSelect+` ORDER BY m.mode_id`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	modes := make([]storage.SafeHomeMode, 0)
	for rows.Next() {
		m, err := scanMode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		modes = append(modes, *m)
	}
	return modes, rows.Err()
}

// GetMode implements storage.ModeStore.
func (s *Store) GetMode(ctx context.Context, id int64) (*storage.SafeHomeMode, error) {
	return s.getModeBy(ctx, "m.mode_id", id)
}

// GetModeByName implements storage.ModeStore.
func (s *Store) GetModeByName(ctx context.Context, name string) (*storage.SafeHomeMode, error) {
	return s.getModeBy(ctx, "m.mode_name", name)
}

func (s *Store) getModeBy(ctx context.Context, column string, value any) (*storage.SafeHomeMode, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	m, err := scanMode(s.db.QueryRowContext(ctx, modeSelect+` WHERE `+column+` = ?`, value))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query mode: %w", err)
	}
	return m, nil
}

// ModeSensors implements storage.ModeStore.
func (s *Store) ModeSensors(ctx context.Context, modeID int64) ([]int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sensor_id FROM safehome_mode_sensors WHERE mode_id = ? ORDER BY sensor_id`, modeID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertMode implements storage.ModeStore.
func (s *Store) InsertMode(ctx context.Context, name string, sensorIDs []int64) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO safehome_modes (mode_name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert mode: %w", mapError(err))
	}
	modeID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if err := linkSensors(ctx, tx, "safehome_mode_sensors", "mode_id", modeID, sensorIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return modeID, nil
}

// UpdateMode implements storage.ModeStore. The name and the full sensor set
// are replaced together.
func (s *Store) UpdateMode(ctx context.Context, m storage.SafeHomeMode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE safehome_modes SET mode_name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE mode_id = ?`, m.Name, m.ID)
	if err != nil {
		return fmt.Errorf("update mode: %w", mapError(err))
	}
	if err := affectedOne(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM safehome_mode_sensors WHERE mode_id = ?`, m.ID); err != nil {
		return fmt.Errorf("clear mode sensors: %w", err)
	}
	if err := linkSensors(ctx, tx, "safehome_mode_sensors", "mode_id", m.ID, m.SensorIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteMode implements storage.ModeStore.
func (s *Store) DeleteMode(ctx context.Context, id int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM safehome_modes WHERE mode_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mode: %w", err)
	}
	return affectedOne(res)
}

func scanMode(row interface{ Scan(...any) error }) (*storage.SafeHomeMode, error) {
	var m storage.SafeHomeMode
	var sensors sql.NullString
	var createdAt, updatedAt dbTime

	if err := row.Scan(&m.ID, &m.Name, &createdAt, &updatedAt, &sensors); err != nil {
		return nil, err
	}
	ids, err := parseIDList(sensors.String)
	if err != nil {
		return nil, err
	}
	m.SensorIDs = ids
	m.CreatedAt = createdAt.Time()
	m.UpdatedAt = updatedAt.Time()
	return &m, nil
}
