package sqlite

import (
	_ "embed"
)

// schemaSQL contains the DDL for every SafeHome table and index.
//
//go:embed schema.sql
var schemaSQL string

// seedSQL contains the initial rows loaded by Seed.
//
//go:embed seed.sql
var seedSQL string

// schemaVersion is stored in PRAGMA user_version once the schema is applied.
const schemaVersion = 1

// pragmaSQL contains SQLite settings applied to the single connection.
// Uses DELETE journal mode so the database stays a single file.
const pragmaSQL = `
PRAGMA journal_mode = DELETE;
PRAGMA synchronous = FULL;
PRAGMA temp_store = MEMORY;
PRAGMA busy_timeout = 10000;
`
