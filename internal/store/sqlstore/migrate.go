package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

// MigrationStatus describes one migration for operators.
type MigrationStatus struct {
	Version int64
	Path    string
	Applied bool
}

func (s *Store) provider() (*goose.Provider, error) {
	dir := "migrations/postgres"
	dialect := goose.DialectPostgres
	if s.dialect == SQLite {
		dir = "migrations/sqlite"
		dialect = goose.DialectSQLite3
	}
	fsys, err := fs.Sub(embedMigrations, dir)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(dialect, s.db, fsys)
}

// Migrate applies all pending migrations and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	p, err := s.provider()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: migrations: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("sqlstore: migrate up: %w", err)
	}
	return len(results), nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown(ctx context.Context) error {
	p, err := s.provider()
	if err != nil {
		return fmt.Errorf("sqlstore: migrations: %w", err)
	}
	if _, err := p.Down(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate down: %w", err)
	}
	return nil
}

// MigrationStatuses lists known migrations in version order.
func (s *Store) MigrationStatuses(ctx context.Context) ([]MigrationStatus, error) {
	p, err := s.provider()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: migrations: %w", err)
	}
	list, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: migrate status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(list))
	for _, st := range list {
		out = append(out, MigrationStatus{
			Version: st.Source.Version,
			Path:    st.Source.Path,
			Applied: st.State == goose.StateApplied,
		})
	}
	return out, nil
}
