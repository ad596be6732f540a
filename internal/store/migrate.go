package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/helpline/internal/store/migrations"
)

// ErrDirtySchema means an earlier migration stopped halfway. The profile
// database has to be removed before the profile can be used again.
var ErrDirtySchema = errors.New("profile database schema is dirty")

// MigrateResult reports the schema version before and after Migrate.
type MigrateResult struct {
	From    uint
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies the embedded migrations that the database is missing.
func (db *DB) Migrate() (*MigrateResult, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	from, dirty, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	if dirty {
		return nil, fmt.Errorf("%w at version %d", ErrDirtySchema, from)
	}

	res := &MigrateResult{From: from, Changed: true}
	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		res.Changed = false
	case err != nil:
		return nil, fmt.Errorf("migration up: %w", err)
	}

	if res.Version, res.Dirty, err = schemaVersion(m); err != nil {
		return nil, err
	}
	return res, nil
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}

// schemaVersion treats a database with no migrations yet as version 0.
func schemaVersion(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration version: %w", err)
	}
	return v, dirty, nil
}
