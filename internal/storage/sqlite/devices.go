package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safehome/safehome/internal/storage"
)

const sensorColumns = `sensor_id, sensor_type, coordinate_x, coordinate_y, coordinate_x2, coordinate_y2, armed, created_at, updated_at`

// ListSensors implements storage.SensorStore.
func (s *Store) ListSensors(ctx context.Context) ([]storage.Sensor, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+sensorColumns+` FROM sensors ORDER BY sensor_id`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	sensors := make([]storage.Sensor, 0)
	for rows.Next() {
		sn, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		sensors = append(sensors, *sn)
	}
	return sensors, rows.Err()
}

// GetSensor implements storage.SensorStore.
func (s *Store) GetSensor(ctx context.Context, id int64) (*storage.Sensor, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	sn, err := scanSensor(s.db.QueryRowContext(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE sensor_id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query sensor: %w", err)
	}
	return sn, nil
}

// UpdateSensor implements storage.SensorStore.
func (s *Store) UpdateSensor(ctx context.Context, sn storage.Sensor) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sensors
		SET sensor_type = ?,
			coordinate_x = ?,
			coordinate_y = ?,
			coordinate_x2 = ?,
			coordinate_y2 = ?,
			armed = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE sensor_id = ?`,
		int(sn.Type), sn.X, sn.Y, nullInt(sn.X2), nullInt(sn.Y2), boolInt(sn.Armed), sn.ID,
	)
	if err != nil {
		return fmt.Errorf("update sensor: %w", mapError(err))
	}
	return affectedOne(res)
}

func scanSensor(row interface{ Scan(...any) error }) (*storage.Sensor, error) {
	var sn storage.Sensor
	var kind int
	var x2, y2 sql.NullInt64
	var createdAt, updatedAt dbTime

	if err := row.Scan(&sn.ID, &kind, &sn.X, &sn.Y, &x2, &y2, &sn.Armed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sn.Type = storage.SensorType(kind)
	sn.X2 = intPtr(x2)
	sn.Y2 = intPtr(y2)
	sn.CreatedAt = createdAt.Time()
	sn.UpdatedAt = updatedAt.Time()
	return &sn, nil
}

const cameraColumns = `camera_id, coordinate_x, coordinate_y, pan, zoom_setting, has_password, password, enabled, created_at, updated_at`

// ListCameras implements storage.CameraStore.
func (s *Store) ListCameras(ctx context.Context) ([]storage.Camera, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+cameraColumns+` FROM cameras ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cameras := make([]storage.Camera, 0)
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		cameras = append(cameras, *c)
	}
	return cameras, rows.Err()
}

// GetCamera implements storage.CameraStore.
func (s *Store) GetCamera(ctx context.Context, id int64) (*storage.Camera, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	c, err := scanCamera(s.db.QueryRowContext(ctx, `SELECT `+cameraColumns+` FROM cameras WHERE camera_id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query camera: %w", err)
	}
	return c, nil
}

// InsertCamera implements storage.CameraStore. A zero ID lets SQLite assign one.
func (s *Store) InsertCamera(ctx context.Context, c storage.Camera) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var id any
	if c.ID != 0 {
		id = c.ID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cameras (camera_id, coordinate_x, coordinate_y, pan, zoom_setting, has_password, password, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.X, c.Y, c.Pan, c.Zoom, boolInt(c.HasPassword), nullString(c.Password), boolInt(c.Enabled),
	)
	if err != nil {
		return 0, fmt.Errorf("insert camera: %w", mapError(err))
	}
	return res.LastInsertId()
}

// UpdateCamera implements storage.CameraStore.
func (s *Store) UpdateCamera(ctx context.Context, c storage.Camera) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cameras
		SET coordinate_x = ?,
			coordinate_y = ?,
			pan = ?,
			zoom_setting = ?,
			has_password = ?,
			password = ?,
			enabled = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE camera_id = ?`,
		c.X, c.Y, c.Pan, c.Zoom, boolInt(c.HasPassword), nullString(c.Password), boolInt(c.Enabled), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update camera: %w", mapError(err))
	}
	return affectedOne(res)
}

// DeleteCamera implements storage.CameraStore.
func (s *Store) DeleteCamera(ctx context.Context, id int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM cameras WHERE camera_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete camera: %w", err)
	}
	return affectedOne(res)
}

func scanCamera(row interface{ Scan(...any) error }) (*storage.Camera, error) {
	var c storage.Camera
	var password sql.NullString
	var createdAt, updatedAt dbTime

	if err := row.Scan(&c.ID, &c.X, &c.Y, &c.Pan, &c.Zoom, &c.HasPassword, &password, &c.Enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Password = password.String
	c.CreatedAt = createdAt.Time()
	c.UpdatedAt = updatedAt.Time()
	return &c, nil
}
