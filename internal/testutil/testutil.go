package testutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	_ "modernc.org/sqlite"

	"github.com/jbweber/homelab/guestcfg/internal/migrations"
)

// CleanupTestDB removes the test database file. In-memory and already
// removed databases are not an error.
func CleanupTestDB(dsn string) error {
	if len(dsn) < 5 || dsn[:5] != "file:" {
		return fmt.Errorf("invalid DSN format")
	}

	path := dsn[5:]
	if idx := strings.Index(path, "?"); idx != -1 {
		if strings.Contains(path[idx:], "mode=memory") {
			return nil
		}
		path = path[:idx]
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SetupTestDB creates and returns a test database connection
func SetupTestDB(t *testing.T, testName string) (*sql.DB, func()) {
	t.Helper()
	dsn := NewTestDSN(testName)

	db, err := sql.Open("sqlite", dsn+"&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
		if err := CleanupTestDB(dsn); err != nil {
			t.Logf("Warning: failed to clean up test database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestDBWithMigrations is SetupTestDB with the full schema applied
func SetupTestDBWithMigrations(t *testing.T, testName string) (*sql.DB, func()) {
	t.Helper()
	db, cleanup := SetupTestDB(t, testName)

	if err := migrations.NewDefaultMigrator(db).RunMigrations(); err != nil {
		cleanup()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db, cleanup
}

// LogContext returns a context carrying a logger whose entries are captured
// by the returned hook.
func LogContext(t *testing.T) (context.Context, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return log.WithLogger(context.Background(), logrus.NewEntry(logger)), hook
}

// Messages returns the messages captured at level.
func Messages(hook *test.Hook, level logrus.Level) []string {
	var out []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == level {
			out = append(out, entry.Message)
		}
	}
	return out
}
