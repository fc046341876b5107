package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/safehome/safehome/internal/storage"

	_ "modernc.org/sqlite"
)

const defaultQueryLimit = 100

// Store implements storage.Store using SQLite.
type Store struct {
	db     *sql.DB
	path   string
	closed bool

	mu sync.Mutex // Protects closed flag

	writeMu sync.Mutex // Serializes multi-statement write transactions
}

// Config holds SQLite store configuration.
type Config struct {
	// Path to the SQLite database file.
	// Use ":memory:" for in-memory database.
	Path string

	// SeedIfEmpty loads the initial data when the users table is empty.
	SeedIfEmpty bool
}

var _ storage.Store = (*Store)(nil)

// New creates a new SQLite store and applies the schema.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single connection for write serialization.
	// An in-memory database also only lives as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(pragmaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	// Cascade deletes depend on foreign key enforcement, which SQLite
	// leaves off unless asked for on every connection.
	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		db.Close()
		return nil, fmt.Errorf("check foreign_keys: %w", err)
	}
	if foreignKeys != 1 {
		db.Close()
		return nil, errors.New("failed to enable foreign_keys")
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db, path: cfg.Path}

	if cfg.SeedIfEmpty {
		if err := s.seedIfEmpty(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// dsn builds the modernc connection string. Foreign keys are requested
// through the driver so they are enabled on any reconnect as well.
func dsn(path string) string {
	if path == ":memory:" {
		return ":memory:?_pragma=foreign_keys(1)"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
}

// runMigrations applies the schema and records its version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if version < schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// checkOpen returns ErrStorageClosed once Close has been called.
func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	return nil
}

// Seed loads the initial data set in a single transaction.
func (s *Store) Seed(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.seedScript(ctx, seedSQL)
}

// seedScript runs script atomically: a failing statement rolls back
// every row inserted before it.
func (s *Store) seedScript(ctx context.Context, script string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("seed: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) seedIfEmpty(ctx context.Context) error {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	return s.Seed(ctx)
}

// Reset drops every user table, recreates the schema and reloads the
// initial data.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tables, err := s.Tables(ctx)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	// foreign_keys cannot change inside a transaction, and dropping a parent
	// table before its children would otherwise fail.
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("disable foreign_keys: %w", err)
	}

	err = s.dropAndCreate(ctx, tables)

	if _, fkErr := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil && err == nil {
		err = fmt.Errorf("enable foreign_keys: %w", fkErr)
	}
	s.writeMu.Unlock()

	if err != nil {
		return err
	}
	return s.seedScript(ctx, seedSQL)
}

func (s *Store) dropAndCreate(ctx context.Context, tables []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, t)); err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Tables lists the user tables in the database, excluding SQLite internals.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Version returns the schema version recorded in the database.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// Stats implements storage.Store.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	stats := &storage.Stats{}
	counts := []struct {
		table string
		dest  *int64
	}{
		{"users", &stats.Users},
		{"logs", &stats.Logs},
		{"sensors", &stats.Sensors},
		{"cameras", &stats.Cameras},
		{"safety_zones", &stats.Zones},
		{"safehome_modes", &stats.Modes},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	var oldest, newest dbTime
	err := s.db.QueryRowContext(ctx, `SELECT MIN(timestamp), MAX(timestamp) FROM logs`).Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("min/max: %w", err)
	}
	stats.OldestLog = oldest.Time()
	stats.NewestLog = newest.Time()

	// Get database file size if not in-memory
	if s.path != ":memory:" {
		if fi, err := os.Stat(s.path); err == nil {
			stats.DiskSizeBytes = fi.Size()
		}
	}

	return stats, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Wait for any in-flight writes to complete
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Close()
}

// DB returns the underlying database connection.
// This is used by the auth package to share the same connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// mapError translates SQLite constraint failures into storage errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", storage.ErrAlreadyExists, err)
	case strings.Contains(msg, "CHECK constraint failed"),
		strings.Contains(msg, "NOT NULL constraint failed"),
		strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", storage.ErrConstraint, err)
	}
	return err
}

// affectedOne returns ErrNotFound when a write matched no row.
func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// nullString stores empty strings as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout is the text form used for TIMESTAMP columns. It sorts the same
// way as SQLite's CURRENT_TIMESTAMP output.
const timeLayout = "2006-01-02 15:04:05.000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// dbTime scans TIMESTAMP columns regardless of how the driver surfaces
// them: time.Time, text, or unix seconds.
type dbTime time.Time

var timeLayouts = []string{
	timeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
}

// Scan implements sql.Scanner.
func (t *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		*t = dbTime{}
	case time.Time:
		*t = dbTime(x.UTC())
	case int64:
		*t = dbTime(time.Unix(x, 0).UTC())
	case []byte:
		return t.parse(string(x))
	case string:
		return t.parse(x)
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
	return nil
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*t = dbTime(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", s)
}

// Time returns the scanned value as time.Time.
func (t dbTime) Time() time.Time {
	return time.Time(t)
}
