package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jbweber/homelab/guestcfg/internal/domain"
)

// MachineRepository defines domain-specific operations for machines
type MachineRepository interface {
	Repository[domain.Machine, int64]
	FindByName(ctx context.Context, name string) (domain.Machine, error)
	// FindByHost finds the machine whose address is host, with or without a
	// port suffix.
	FindByHost(ctx context.Context, host string) (domain.Machine, error)
}

// machineRepositoryImpl implements MachineRepository
type machineRepositoryImpl struct {
	sqlRepository
}

const machineColumns = "id, name, hostname, address, ssh_user, mac_capable"

// NewMachineRepository creates a new machine repository
func NewMachineRepository(db *sql.DB) MachineRepository {
	return newMachineRepository(db, nil)
}

func newMachineRepository(db *sql.DB, stmts *PreparedStatementCache) *machineRepositoryImpl {
	return &machineRepositoryImpl{sqlRepository: newSQLRepository(db, stmts)}
}

func validateMachine(m domain.Machine) error {
	if m.Name == "" {
		return fmt.Errorf("machine name is required: %w", ErrInvalidEntity)
	}
	if m.Hostname == "" {
		return fmt.Errorf("machine hostname is required: %w", ErrInvalidEntity)
	}
	if m.Address == "" {
		return fmt.Errorf("machine address is required: %w", ErrInvalidEntity)
	}
	return nil
}

// Save creates or updates a machine
func (r *machineRepositoryImpl) Save(ctx context.Context, m domain.Machine) (domain.Machine, error) {
	if m.SSHUser == "" {
		m.SSHUser = "core"
	}
	if err := validateMachine(m); err != nil {
		return domain.Machine{}, err
	}

	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM machines WHERE name = ? AND id != ?", m.Name, m.ID).Scan(&count)
	if err != nil {
		return domain.Machine{}, fmt.Errorf("failed to check for duplicate machine name: %w", err)
	}
	if count > 0 {
		return domain.Machine{}, fmt.Errorf("machine with name '%s': %w", m.Name, ErrDuplicate)
	}

	if m.ID == 0 {
		return r.create(ctx, m)
	}
	return r.update(ctx, m)
}

func (r *machineRepositoryImpl) create(ctx context.Context, m domain.Machine) (domain.Machine, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO machines (name, hostname, address, ssh_user, mac_capable) VALUES (?, ?, ?, ?, ?)",
		m.Name, m.Hostname, m.Address, m.SSHUser, m.MACCapable)
	if err != nil {
		return domain.Machine{}, fmt.Errorf("failed to create machine: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Machine{}, fmt.Errorf("failed to get machine ID: %w", err)
	}
	m.ID = id
	return m, nil
}

func (r *machineRepositoryImpl) update(ctx context.Context, m domain.Machine) (domain.Machine, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE machines SET name = ?, hostname = ?, address = ?, ssh_user = ?, mac_capable = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		m.Name, m.Hostname, m.Address, m.SSHUser, m.MACCapable, m.ID)
	if err != nil {
		return domain.Machine{}, fmt.Errorf("failed to update machine: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Machine{}, fmt.Errorf("machine with ID %d: %w", m.ID, ErrNotFound)
	}
	return m, nil
}

func scanMachine(row interface{ Scan(...any) error }) (domain.Machine, error) {
	var m domain.Machine
	err := row.Scan(&m.ID, &m.Name, &m.Hostname, &m.Address, &m.SSHUser, &m.MACCapable)
	return m, err
}

func (r *machineRepositoryImpl) findOne(ctx context.Context, what string, query string, args ...any) (domain.Machine, error) {
	row, err := r.queryRow(ctx, query, args...)
	if err != nil {
		return domain.Machine{}, fmt.Errorf("failed to find machine: %w", err)
	}
	m, err := scanMachine(row)
	if err != nil {
		if isNotFoundError(err) {
			return domain.Machine{}, fmt.Errorf("machine with %s: %w", what, ErrNotFound)
		}
		return domain.Machine{}, fmt.Errorf("failed to find machine: %w", err)
	}
	return m, nil
}

// FindByID retrieves a machine by its ID
func (r *machineRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Machine, error) {
	return r.findOne(ctx, fmt.Sprintf("ID %d", id), "SELECT "+machineColumns+" FROM machines WHERE id = ?", id)
}

// FindByName retrieves a machine by its name
func (r *machineRepositoryImpl) FindByName(ctx context.Context, name string) (domain.Machine, error) {
	return r.findOne(ctx, "name "+name, "SELECT "+machineColumns+" FROM machines WHERE name = ?", name)
}

// FindByHost retrieves a machine by the host part of its address
func (r *machineRepositoryImpl) FindByHost(ctx context.Context, host string) (domain.Machine, error) {
	return r.findOne(ctx, "host "+host,
		"SELECT "+machineColumns+" FROM machines WHERE address = ? OR address LIKE ? ORDER BY id LIMIT 1",
		host, host+":%")
}

// FindAll retrieves all machines
func (r *machineRepositoryImpl) FindAll(ctx context.Context) ([]domain.Machine, error) {
	rows, err := r.query(ctx, "SELECT "+machineColumns+" FROM machines ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	defer closeRows(ctx, rows)

	machines := []domain.Machine{}
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// DeleteByID removes a machine and everything recorded for it
func (r *machineRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"deliveries", "adapters", "network_specs"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE machine_id = ?", id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM machines WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete machine: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("machine with ID %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// ExistsByID checks if a machine exists by its ID
func (r *machineRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM machines WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check machine existence: %w", err)
	}
	return count > 0, nil
}
