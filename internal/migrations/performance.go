package migrations

import (
	"database/sql"
)

// GetPerformanceMigrations returns performance optimization migrations
func GetPerformanceMigrations() []Migration {
	return []Migration{
		{
			Version: 10,
			Name:    "add_performance_indices",
			Up: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					"CREATE INDEX IF NOT EXISTS idx_machines_address ON machines(address)",
					"CREATE INDEX IF NOT EXISTS idx_network_specs_machine_id ON network_specs(machine_id)",
					"CREATE INDEX IF NOT EXISTS idx_adapters_machine_id ON adapters(machine_id)",
					"CREATE INDEX IF NOT EXISTS idx_deliveries_machine_id ON deliveries(machine_id, created_at)",
				})
			},
			Down: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					"DROP INDEX IF EXISTS idx_machines_address",
					"DROP INDEX IF EXISTS idx_network_specs_machine_id",
					"DROP INDEX IF EXISTS idx_adapters_machine_id",
					"DROP INDEX IF EXISTS idx_deliveries_machine_id",
				})
			},
		},
	}
}
