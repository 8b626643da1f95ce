package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/containerd/log"
)

// sqlRepository carries the database handle and statement cache shared by
// the concrete repositories
type sqlRepository struct {
	db    *sql.DB
	stmts *PreparedStatementCache
}

func newSQLRepository(db *sql.DB, stmts *PreparedStatementCache) sqlRepository {
	if stmts == nil {
		stmts = NewPreparedStatementCache(db)
	}
	return sqlRepository{db: db, stmts: stmts}
}

// queryRow runs a cached single-row query.
func (r sqlRepository) queryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	stmt, err := r.stmts.Get(ctx, query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryRowContext(ctx, args...), nil
}

// query runs a cached multi-row query.
func (r sqlRepository) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, err := r.stmts.Get(ctx, query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (r sqlRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.G(ctx).WithError(err).Warn("failed to roll back transaction")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		log.G(ctx).WithError(err).Warn("failed to close rows")
	}
}

// isNotFoundError reports whether err is the driver's no-rows error.
func isNotFoundError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// NewRepositories builds every repository over db with one shared statement
// cache.
func NewRepositories(db *sql.DB) *Repositories {
	stmts := NewPreparedStatementCache(db)
	return &Repositories{
		Machines:     newMachineRepository(db, stmts),
		NetworkSpecs: newNetworkSpecRepository(db, stmts),
		Adapters:     newAdapterRepository(db, stmts),
		Deliveries:   newDeliveryRepository(db, stmts),
	}
}
