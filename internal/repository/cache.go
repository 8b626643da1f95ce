package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/containerd/log"
)

// PreparedStatementCache holds one prepared statement per query string,
// shared by every repository built from the same Repositories.
type PreparedStatementCache struct {
	db *sql.DB

	mu    sync.RWMutex
	bySQL map[string]*sql.Stmt
}

func NewPreparedStatementCache(db *sql.DB) *PreparedStatementCache {
	return &PreparedStatementCache{db: db, bySQL: map[string]*sql.Stmt{}}
}

func (c *PreparedStatementCache) lookup(query string) (*sql.Stmt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stmt, ok := c.bySQL[query]
	return stmt, ok
}

// Get returns the statement for query, preparing it on first use.
func (c *PreparedStatementCache) Get(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := c.lookup(query); ok {
		return stmt, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if stmt, ok := c.bySQL[query]; ok {
		return stmt, nil
	}
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	log.G(ctx).WithField("query", query).Trace("prepared statement")
	c.bySQL[query] = stmt
	return stmt, nil
}

// Close releases every cached statement. The cache stays usable and will
// prepare statements again on demand.
func (c *PreparedStatementCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for query, stmt := range c.bySQL {
		errs = append(errs, stmt.Close())
		delete(c.bySQL, query)
	}
	return errors.Join(errs...)
}

// Size reports how many statements are cached.
func (c *PreparedStatementCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySQL)
}
