package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded schema migrations in file name order and
// records each one in schema_migrations.
type Migrator struct {
	db     *sql.DB
	files  fs.FS
	logger *logrus.Logger
}

func NewMigrator(db *sql.DB, logger *logrus.Logger) *Migrator {
	return &Migrator{db: db, files: migrationsFS, logger: logger}
}

// Run applies every pending migration, each in its own transaction, and
// returns the names it applied.
func (m *Migrator) Run(ctx context.Context) ([]string, error) {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.appliedNames(ctx)
	if err != nil {
		return nil, err
	}

	names, err := fs.Glob(m.files, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	var ran []string
	for _, path := range names {
		name := strings.TrimPrefix(path, "migrations/")
		log := m.logger.WithField("migration", name)
		if applied[name] {
			log.Debug("migration already applied")
			continue
		}

		body, err := fs.ReadFile(m.files, path)
		if err != nil {
			return ran, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		log.Info("applying migration")
		if err := m.apply(ctx, name, string(body)); err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

func (m *Migrator) appliedNames(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to read applied migrations: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) apply(ctx context.Context, name, body string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", name, err)
	}
	return nil
}
