// Package datastore opens the sqlite inventory and brings its schema up to
// date.
package datastore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/containerd/log"
	_ "modernc.org/sqlite"

	"github.com/jbweber/homelab/guestcfg/internal/migrations"
)

// Datastore owns the inventory database handle
type Datastore struct {
	DB *sql.DB
}

// New opens the database at dsn and runs pending migrations.
func New(dsn string) (*Datastore, error) {
	db, err := sql.Open("sqlite", withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrator := migrations.NewDefaultMigrator(db)
	if err := migrator.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	version, err := migrator.GetCurrentVersion()
	if err == nil {
		log.L.WithField("version", version).Debug("database schema up to date")
	}
	return &Datastore{DB: db}, nil
}

// Close releases the database handle.
func (ds *Datastore) Close() error {
	return ds.DB.Close()
}

// withForeignKeys asks the driver to enable foreign key enforcement on every
// pooled connection.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}
