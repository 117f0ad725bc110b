package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
)

// ddl creates the dump layout read by Source. The statements are valid for
// both Postgres and SQLite.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS DatabaseObject (
		DB_ID BIGINT PRIMARY KEY,
		_class TEXT NOT NULL,
		_displayName TEXT,
		_timestamp TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS attribute_value (
		DB_ID BIGINT NOT NULL,
		attribute TEXT NOT NULL,
		rank INTEGER NOT NULL DEFAULT 0,
		value_type TEXT NOT NULL,
		value TEXT,
		ref_DB_ID BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS attribute_value_owner ON attribute_value (DB_ID, attribute, rank)`,
	`CREATE INDEX IF NOT EXISTS attribute_value_ref ON attribute_value (ref_DB_ID, attribute)`,
	`CREATE TABLE IF NOT EXISTS schema_attribute (
		class TEXT NOT NULL,
		attribute TEXT NOT NULL,
		PRIMARY KEY (class, attribute)
	)`,
}

// EnsureSchema creates the dump tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}
