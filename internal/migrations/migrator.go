package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/containerd/log"
)

// Migration represents a database migration with up and down functions
type Migration struct {
	Version int64
	Name    string
	Up      func(*sql.Tx) error
	Down    func(*sql.Tx) error
}

// Migrator handles database migrations
type Migrator struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: []Migration{},
	}
}

// NewDefaultMigrator returns a migrator loaded with every schema migration.
func NewDefaultMigrator(db *sql.DB) *Migrator {
	m := NewMigrator(db)
	for _, migration := range GetInitialMigrations() {
		m.AddMigration(migration)
	}
	for _, migration := range GetPerformanceMigrations() {
		m.AddMigration(migration)
	}
	return m
}

// AddMigration adds a migration to the migrator
func (m *Migrator) AddMigration(migration Migration) {
	m.migrations = append(m.migrations, migration)
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
}

// RunMigrations runs all pending migrations
func (m *Migrator) RunMigrations() error {
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range m.migrations {
		if migration.Version > currentVersion {
			if err := m.runMigration(migration); err != nil {
				return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
			}
			log.L.WithField("version", migration.Version).WithField("name", migration.Name).Info("applied migration")
		}
	}

	return nil
}

// RollbackTo reverts applied migrations newer than version, newest first.
func (m *Migrator) RollbackTo(version int64) error {
	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version <= version || migration.Version > currentVersion {
			continue
		}
		if err := m.revertMigration(migration); err != nil {
			return fmt.Errorf("failed to revert migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		log.L.WithField("version", migration.Version).Info("reverted migration")
	}
	return nil
}

// createMigrationsTable creates the migrations tracking table
func (m *Migrator) createMigrationsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// getCurrentVersion returns the current migration version
func (m *Migrator) getCurrentVersion() (int64, error) {
	var version int64
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration applies a migration and records it in one transaction
func (m *Migrator) runMigration(migration Migration) error {
	return m.inTx(func(tx *sql.Tx) error {
		if migration.Up != nil {
			if err := migration.Up(tx); err != nil {
				return err
			}
		}
		_, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", migration.Version, migration.Name)
		return err
	})
}

func (m *Migrator) revertMigration(migration Migration) error {
	if migration.Down == nil {
		return errors.New("migration has no down step")
	}
	return m.inTx(func(tx *sql.Tx) error {
		if err := migration.Down(tx); err != nil {
			return err
		}
		_, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", migration.Version)
		return err
	})
}

func (m *Migrator) inTx(fn func(*sql.Tx) error) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCurrentVersion returns the current migration version (public method)
func (m *Migrator) GetCurrentVersion() (int64, error) {
	return m.getCurrentVersion()
}

// GetMigrations returns all registered migrations
func (m *Migrator) GetMigrations() []Migration {
	return m.migrations
}

func execAll(tx *sql.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
