package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/safehome/safehome/internal/storage"
)

const zoneSelect = `
	SELECT z.zone_id, z.zone_name, z.coordinate_x1, z.coordinate_y1, z.coordinate_x2, z.coordinate_y2,
		z.arm_status, z.created_at, z.updated_at,
		(SELECT GROUP_CONCAT(sensor_id) FROM
			(SELECT sensor_id FROM safety_zone_sensors WHERE zone_id = z.zone_id ORDER BY sensor_id))
	FROM safety_zones z`

// ListZones implements storage.ZoneStore.
func (s *Store) ListZones(ctx context.Context) ([]storage.SafetyZone, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, zoneSelect+` ORDER BY z.zone_id`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	zones := make([]storage.SafetyZone, 0)
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		zones = append(zones, *z)
	}
	return zones, rows.Err()
}

// GetZone implements storage.ZoneStore.
func (s *Store) GetZone(ctx context.Context, id int64) (*storage.SafetyZone, error) {
	return s.getZoneBy(ctx, "z.zone_id", id)
}

// GetZoneByName implements storage.ZoneStore.
func (s *Store) GetZoneByName(ctx context.Context, name string) (*storage.SafetyZone, error) {
	return s.getZoneBy(ctx, "z.zone_name", name)
}

func (s *Store) getZoneBy(ctx context.Context, column string, value any) (*storage.SafetyZone, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	z, err := scanZone(s.db.QueryRowContext(ctx, zoneSelect+` WHERE `+column+` = ?`, value))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query zone: %w", err)
	}
	return z, nil
}

// InsertZone implements storage.ZoneStore. The zone and its sensor links are
// written in one transaction.
func (s *Store) InsertZone(ctx context.Context, z storage.SafetyZone) (int64, error) {
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

	var id any
	if z.ID != 0 {
		id = z.ID
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO safety_zones (zone_id, zone_name, coordinate_x1, coordinate_y1, coordinate_x2, coordinate_y2, arm_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, z.Name, z.X1, z.Y1, z.X2, z.Y2, boolInt(z.Armed),
	)
	if err != nil {
		return 0, fmt.Errorf("insert zone: %w", mapError(err))
	}
	zoneID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if err := linkSensors(ctx, tx, "safety_zone_sensors", "zone_id", zoneID, z.SensorIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return zoneID, nil
}

// UpdateZone implements storage.ZoneStore. Membership is left unchanged;
// use SetZoneSensors to replace it.
func (s *Store) UpdateZone(ctx context.Context, z storage.SafetyZone) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE safety_zones
		SET zone_name = ?,
			coordinate_x1 = ?,
			coordinate_y1 = ?,
			coordinate_x2 = ?,
			coordinate_y2 = ?,
			arm_status = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE zone_id = ?`,
		z.Name, z.X1, z.Y1, z.X2, z.Y2, boolInt(z.Armed), z.ID,
	)
	if err != nil {
		return fmt.Errorf("update zone: %w", mapError(err))
	}
	return affectedOne(res)
}

// DeleteZone implements storage.ZoneStore.
func (s *Store) DeleteZone(ctx context.Context, id int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM safety_zones WHERE zone_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete zone: %w", err)
	}
	return affectedOne(res)
}

// SetZoneSensors implements storage.ZoneStore.
func (s *Store) SetZoneSensors(ctx context.Context, zoneID int64, sensorIDs []int64) error {
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

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM safety_zones WHERE zone_id = ?`, zoneID).Scan(&exists); err != nil {
		return fmt.Errorf("check zone: %w", err)
	}
	if exists == 0 {
		return storage.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM safety_zone_sensors WHERE zone_id = ?`, zoneID); err != nil {
		return fmt.Errorf("clear zone sensors: %w", err)
	}
	if err := linkSensors(ctx, tx, "safety_zone_sensors", "zone_id", zoneID, sensorIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanZone(row interface{ Scan(...any) error }) (*storage.SafetyZone, error) {
	var z storage.SafetyZone
	var sensors sql.NullString
	var createdAt, updatedAt dbTime

	if err := row.Scan(&z.ID, &z.Name, &z.X1, &z.Y1, &z.X2, &z.Y2, &z.Armed, &createdAt, &updatedAt, &sensors); err != nil {
		return nil, err
	}
	ids, err := parseIDList(sensors.String)
	if err != nil {
		return nil, err
	}
	z.SensorIDs = ids
	z.CreatedAt = createdAt.Time()
	z.UpdatedAt = updatedAt.Time()
	return &z, nil
}

// linkSensors inserts (owner, sensor) rows into a junction table. Duplicate
// ids collapse to one row.
func linkSensors(ctx context.Context, tx *sql.Tx, table, ownerColumn string, ownerID int64, sensorIDs []int64) error {
	if len(sensorIDs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (`+ownerColumn+`, sensor_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare link: %w", err)
	}
	defer stmt.Close()

	for _, id := range sensorIDs {
		if _, err := stmt.ExecContext(ctx, ownerID, id); err != nil {
			return fmt.Errorf("link sensor %d: %w", id, mapError(err))
		}
	}
	return nil
}

// parseIDList decodes the comma separated output of GROUP_CONCAT.
func parseIDList(s string) ([]int64, error) {
	if s == "" {
		return []int64{}, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse sensor id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
