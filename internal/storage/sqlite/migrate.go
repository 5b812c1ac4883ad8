package sqlite

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/aussiebroadwan/atelier/internal/storage/sqlite/migrations"
)

const migrationsTable = "atelier_schema"

// migrate applies the embedded migrations and returns the resulting schema
// version. A dirty version means an earlier run failed half way and needs
// a manual fix.
func (s *Store) migrate() (uint, error) {
	src, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}
	drv, err := sqlite.WithInstance(s.db, &sqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return 0, err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return 0, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// SchemaVersion is the migration version the store was opened at.
func (s *Store) SchemaVersion() uint { return s.version }
