package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// NetworkSpecRepository stores the networks requested for each machine
type NetworkSpecRepository interface {
	FindByMachineID(ctx context.Context, machineID int64) ([]domain.NetworkSpec, error)
	// ReplaceForMachine swaps the machine's specs for specs atomically.
	ReplaceForMachine(ctx context.Context, machineID int64, specs []domain.NetworkSpec) error
}

type networkSpecRepositoryImpl struct {
	sqlRepository
}

// NewNetworkSpecRepository creates a new network spec repository
func NewNetworkSpecRepository(db *sql.DB) NetworkSpecRepository {
	return newNetworkSpecRepository(db, nil)
}

func newNetworkSpecRepository(db *sql.DB, stmts *PreparedStatementCache) *networkSpecRepositoryImpl {
	return &networkSpecRepositoryImpl{sqlRepository: newSQLRepository(db, stmts)}
}

// FindByMachineID returns the machine's specs ordered by interface index
func (r *networkSpecRepositoryImpl) FindByMachineID(ctx context.Context, machineID int64) ([]domain.NetworkSpec, error) {
	rows, err := r.query(ctx,
		"SELECT interface_index, type, ip, netmask FROM network_specs WHERE machine_id = ? ORDER BY interface_index",
		machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list network specs: %w", err)
	}
	defer closeRows(ctx, rows)

	specs := []domain.NetworkSpec{}
	for rows.Next() {
		var s domain.NetworkSpec
		if err := rows.Scan(&s.InterfaceIndex, &s.Type, &s.IP, &s.Netmask); err != nil {
			return nil, fmt.Errorf("failed to scan network spec: %w", err)
		}
		specs = append(specs, s)
	}
	return specs, rows.Err()
}

// ReplaceForMachine validates specs and replaces the stored set
func (r *networkSpecRepositoryImpl) ReplaceForMachine(ctx context.Context, machineID int64, specs []domain.NetworkSpec) error {
	seen := make(map[int]bool, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEntity, err)
		}
		if seen[s.InterfaceIndex] {
			return fmt.Errorf("interface %d listed twice: %w", s.InterfaceIndex, ErrInvalidEntity)
		}
		seen[s.InterfaceIndex] = true
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := machineExists(ctx, tx, machineID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM network_specs WHERE machine_id = ?", machineID); err != nil {
			return fmt.Errorf("failed to clear network specs: %w", err)
		}
		for _, s := range specs {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO network_specs (machine_id, interface_index, type, ip, netmask) VALUES (?, ?, ?, ?, ?)",
				machineID, s.InterfaceIndex, s.Type, s.IP, s.Netmask)
			if err != nil {
				return fmt.Errorf("failed to insert network spec: %w", err)
			}
		}
		return nil
	})
}

func machineExists(ctx context.Context, tx *sql.Tx, machineID int64) error {
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM machines WHERE id = ?", machineID).Scan(&count); err != nil {
		return fmt.Errorf("failed to check machine existence: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("machine with ID %d: %w", machineID, ErrNotFound)
	}
	return nil
}
