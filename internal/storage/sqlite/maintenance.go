package sqlite

import (
	"context"
	"fmt"
	"time"
)

// TableDump is the content of one table, in rowid order.
type TableDump struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows"`
}

// timestampColumns hold wall clock values that differ between runs.
var timestampColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"expires_at": true,
	"timestamp":  true,
}

// Dump returns the content of every user table. With skipTimestamps the
// wall clock columns are left out, which makes the output reproducible.
func (s *Store) Dump(ctx context.Context, skipTimestamps bool) ([]TableDump, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}

	dumps := make([]TableDump, 0, len(tables))
	for _, t := range tables {
		cols, err := s.columns(ctx, t)
		if err != nil {
			return nil, err
		}
		if skipTimestamps {
			kept := cols[:0]
			for _, c := range cols {
				if !timestampColumns[c] {
					kept = append(kept, c)
				}
			}
			cols = kept
		}

		rows, err := s.dumpRows(ctx, t, cols)
		if err != nil {
			return nil, err
		}
		dumps = append(dumps, TableDump{Name: t, Columns: cols, Rows: rows})
	}
	return dumps, nil
}

func (s *Store) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM pragma_table_info('%s') ORDER BY cid`, table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func (s *Store) dumpRows(ctx context.Context, table string, cols []string) ([][]any, error) {
	list := ""
	for i, c := range cols {
		if i > 0 {
			list += ", "
		}
		list += `"` + c + `"`
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM "%s" ORDER BY rowid`, list, table))
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", table, err)
	}
	defer rows.Close()

	out := make([][]any, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			switch x := v.(type) {
			case []byte:
				vals[i] = string(x)
			case time.Time:
				vals[i] = formatTime(x)
			}
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// Check runs SQLite's integrity and foreign key checks and returns every
// problem reported. An empty result means the database is healthy.
func (s *Store) Check(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var problems []string

	rows, err := s.db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan: %w", err)
		}
		if msg != "ok" {
			problems = append(problems, msg)
		}
	}
	rows.Close()

	fkRows, err := s.db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return nil, fmt.Errorf("foreign key check: %w", err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var table, parent string
		var rowid *int64
		var fkid int
		if err := fkRows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		id := int64(0)
		if rowid != nil {
			id = *rowid
		}
		problems = append(problems, fmt.Sprintf("%s row %d references missing %s", table, id, parent))
	}
	return problems, fkRows.Err()
}
