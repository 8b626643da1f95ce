package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// AdapterRepository stores the provider's adapter listing for each machine
type AdapterRepository interface {
	FindByMachineID(ctx context.Context, machineID int64) ([]domain.AdapterInfo, error)
	ReplaceForMachine(ctx context.Context, machineID int64, adapters []domain.AdapterInfo) error
}

type adapterRepositoryImpl struct {
	sqlRepository
}

// NewAdapterRepository creates a new adapter repository
func NewAdapterRepository(db *sql.DB) AdapterRepository {
	return newAdapterRepository(db, nil)
}

func newAdapterRepository(db *sql.DB, stmts *PreparedStatementCache) *adapterRepositoryImpl {
	return &adapterRepositoryImpl{sqlRepository: newSQLRepository(db, stmts)}
}

// FindByMachineID returns the machine's adapters in provider order
func (r *adapterRepositoryImpl) FindByMachineID(ctx context.Context, machineID int64) ([]domain.AdapterInfo, error) {
	rows, err := r.query(ctx,
		"SELECT adapter_number, kind, mac_address FROM adapters WHERE machine_id = ? ORDER BY adapter_number",
		machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list adapters: %w", err)
	}
	defer closeRows(ctx, rows)

	adapters := []domain.AdapterInfo{}
	for rows.Next() {
		var a domain.AdapterInfo
		if err := rows.Scan(&a.AdapterNumber, &a.Kind, &a.MACAddress); err != nil {
			return nil, fmt.Errorf("failed to scan adapter: %w", err)
		}
		adapters = append(adapters, a)
	}
	return adapters, rows.Err()
}

// ReplaceForMachine replaces the stored adapter listing
func (r *adapterRepositoryImpl) ReplaceForMachine(ctx context.Context, machineID int64, adapters []domain.AdapterInfo) error {
	seen := make(map[int]bool, len(adapters))
	for _, a := range adapters {
		if a.AdapterNumber < 1 {
			return fmt.Errorf("adapter number %d must be at least 1: %w", a.AdapterNumber, ErrInvalidEntity)
		}
		if a.Kind == "" {
			return fmt.Errorf("adapter %d has no kind: %w", a.AdapterNumber, ErrInvalidEntity)
		}
		if seen[a.AdapterNumber] {
			return fmt.Errorf("adapter %d listed twice: %w", a.AdapterNumber, ErrInvalidEntity)
		}
		seen[a.AdapterNumber] = true
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := machineExists(ctx, tx, machineID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM adapters WHERE machine_id = ?", machineID); err != nil {
			return fmt.Errorf("failed to clear adapters: %w", err)
		}
		for _, a := range adapters {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO adapters (machine_id, adapter_number, kind, mac_address) VALUES (?, ?, ?, ?)",
				machineID, a.AdapterNumber, a.Kind, a.MACAddress)
			if err != nil {
				return fmt.Errorf("failed to insert adapter: %w", err)
			}
		}
		return nil
	})
}
