package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// A migration brings the schema from version-1 to version. Entries are
// append-only; a fresh database gets the full schemaSQL and then runs
// every migration, so each step must be idempotent.
type migration struct {
	version int
	name    string
	columns []column // added when absent
	stmts   []string
}

type column struct {
	table, name, decl string
}

var migrations = []migration{
	{version: 1, name: "base schema"},
	{
		version: 2,
		name:    "query_log.request_id",
		columns: []column{{"query_log", "request_id", "TEXT"}},
	},
	{
		version: 3,
		name:    "query_log showcase index",
		stmts:   []string{"CREATE INDEX IF NOT EXISTS idx_query_log_query_id ON query_log(query_id)"},
	},
}

// Migrate applies every migration above the recorded schema version.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating schema_version: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		slog.Info("store: migrated", "version", m.version, "name", m.name)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range m.columns {
		ok, err := hasColumn(ctx, tx, c.table, c.name)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.name, c.decl)); err != nil {
			return err
		}
	}
	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, name string) (bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return false, err
		}
		if col == name {
			return true, nil
		}
	}
	return false, rows.Err()
}
