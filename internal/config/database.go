package config

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/containerd/log"
)

// OptimizeDatabaseConnection sizes the connection pool for a single-writer
// sqlite file
func OptimizeDatabaseConnection(db *sql.DB) {
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
}

// sqlitePragmas are applied once after the schema is current
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",  // Readers do not block the writer
	"PRAGMA synchronous = NORMAL", // Safe with WAL
	"PRAGMA busy_timeout = 5000", // Wait out concurrent provision writes
	"PRAGMA cache_size = -8000",  // 8MB page cache
	"PRAGMA temp_store = MEMORY",
	"PRAGMA optimize",
}

// ApplyPragmaOptimizations applies SQLite-specific performance pragmas
func ApplyPragmaOptimizations(db *sql.DB) error {
	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	log.L.WithField("pragmas", len(sqlitePragmas)).Debug("applied sqlite pragmas")
	return nil
}
