package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// DeliveryRepository keeps the history of documents delivered to machines
type DeliveryRepository interface {
	// Record stores d, assigning an ID when it has none.
	Record(ctx context.Context, d domain.Delivery) (domain.Delivery, error)
	// FindByMachineID returns the machine's deliveries, newest first.
	FindByMachineID(ctx context.Context, machineID int64) ([]domain.Delivery, error)
}

type deliveryRepositoryImpl struct {
	sqlRepository
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db *sql.DB) DeliveryRepository {
	return newDeliveryRepository(db, nil)
}

func newDeliveryRepository(db *sql.DB, stmts *PreparedStatementCache) *deliveryRepositoryImpl {
	return &deliveryRepositoryImpl{sqlRepository: newSQLRepository(db, stmts)}
}

// Record inserts a delivery
func (r *deliveryRepositoryImpl) Record(ctx context.Context, d domain.Delivery) (domain.Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else if _, err := uuid.Parse(d.ID); err != nil {
		return domain.Delivery{}, fmt.Errorf("delivery ID %q is not a UUID: %w", d.ID, ErrInvalidEntity)
	}
	if d.Path == "" || d.Unit == "" {
		return domain.Delivery{}, fmt.Errorf("delivery path and unit are required: %w", ErrInvalidEntity)
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := machineExists(ctx, tx, d.MachineID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO deliveries (id, machine_id, path, unit, checksum) VALUES (?, ?, ?, ?, ?)",
			d.ID, d.MachineID, d.Path, d.Unit, d.Checksum)
		if err != nil {
			return fmt.Errorf("failed to record delivery: %w", err)
		}
		return tx.QueryRowContext(ctx, "SELECT created_at FROM deliveries WHERE id = ?", d.ID).Scan(&d.CreatedAt)
	})
	if err != nil {
		return domain.Delivery{}, err
	}
	return d, nil
}

// FindByMachineID lists deliveries for a machine
func (r *deliveryRepositoryImpl) FindByMachineID(ctx context.Context, machineID int64) ([]domain.Delivery, error) {
	rows, err := r.query(ctx,
		"SELECT id, machine_id, path, unit, checksum, created_at FROM deliveries WHERE machine_id = ? ORDER BY created_at DESC, rowid DESC",
		machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer closeRows(ctx, rows)

	deliveries := []domain.Delivery{}
	for rows.Next() {
		var d domain.Delivery
		if err := rows.Scan(&d.ID, &d.MachineID, &d.Path, &d.Unit, &d.Checksum, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
