package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

// InsertLog implements storage.LogStore.
func (s *Store) InsertLog(ctx context.Context, rec storage.LogRecord) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (timestamp, level, filename, function_name, line_number, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(ts), rec.Level.String(), rec.Filename, rec.FunctionName, rec.LineNumber, rec.Message,
	)
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", mapError(err))
	}
	return res.LastInsertId()
}

// QueryLogs implements storage.LogStore.
func (s *Store) QueryLogs(ctx context.Context, q storage.LogQuery) ([]storage.LogRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query, args := buildLogQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	records := make([]storage.LogRecord, 0)
	for rows.Next() {
		var rec storage.LogRecord
		var ts dbTime
		var level string
		if err := rows.Scan(&rec.ID, &ts, &level, &rec.Filename, &rec.FunctionName, &rec.LineNumber, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec.Timestamp = ts.Time()
		rec.Level = storage.ParseLevel(level)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return records, nil
}

// DeleteLogsBefore implements storage.LogStore.
func (s *Store) DeleteLogsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE timestamp < ?`, formatTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return res.RowsAffected()
}

// buildLogQuery constructs a parameterized SQL query from LogQuery.
func buildLogQuery(q storage.LogQuery) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString(`SELECT log_id, timestamp, level, filename, function_name, line_number, message FROM logs`)

	var conds []string
	if q.Level != storage.LevelUnknown {
		conds = append(conds, "level = ?")
		args = append(args, q.Level.String())
	}
	if !q.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, formatTime(q.Since))
	}
	if !q.Until.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, formatTime(q.Until))
	}
	if q.AfterID > 0 {
		conds = append(conds, "log_id > ?")
		args = append(args, q.AfterID)
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if q.AfterID > 0 {
		sb.WriteString(" ORDER BY log_id ASC LIMIT ?")
	} else {
		// log_id breaks ties between records written within the same millisecond.
		sb.WriteString(" ORDER BY timestamp DESC, log_id DESC LIMIT ?")
	}
	args = append(args, limit)

	return sb.String(), args
}
