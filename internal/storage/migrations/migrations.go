// Package migrations applies the embedded schema scripts to a sqlite database.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

type migration struct {
	version int
	name    string
	content string
}

// Run applies every embedded migration not yet recorded in _migrations.
func Run(ctx context.Context, db *sql.DB) error {
	return apply(ctx, db, FS)
}

func apply(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("get applied versions: %w", err)
	}

	migrations, err := load(fsys)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := execute(ctx, db, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}

// Version returns the highest applied migration version.
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&version)
	return version, err
}

// Pending returns the embedded versions not yet applied, ascending.
func Pending(ctx context.Context, db *sql.DB) ([]int, error) {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	migrations, err := load(FS)
	if err != nil {
		return nil, err
	}

	var pending []int
	for _, m := range migrations {
		if !applied[m.version] {
			pending = append(pending, m.version)
		}
	}
	return pending, nil
}

// Count returns the number of embedded migrations.
func Count() (int, error) {
	migrations, err := load(FS)
	return len(migrations), err
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// load reads NNN_name.sql files from the scripts directory of fsys, sorted by
// version. Files without a numeric prefix are ignored.
func load(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "scripts")
	if err != nil {
		return nil, err
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		prefix, _, _ := strings.Cut(entry.Name(), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}

		// fs paths are slash separated on every platform
		content, err := fs.ReadFile(fsys, path.Join("scripts", entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, name: entry.Name(), content: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func execute(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.content); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
