package migrations

import (
	"database/sql"
)

// GetInitialMigrations returns the schema migrations for the guest inventory
func GetInitialMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_inventory_tables",
			Up: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					`CREATE TABLE machines (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						hostname TEXT NOT NULL,
						address TEXT NOT NULL,
						ssh_user TEXT NOT NULL DEFAULT 'core',
						mac_capable INTEGER NOT NULL DEFAULT 0,
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE TABLE network_specs (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						machine_id INTEGER NOT NULL,
						interface_index INTEGER NOT NULL CHECK (interface_index >= 0),
						type TEXT NOT NULL CHECK (type IN ('static', 'dhcp')),
						ip TEXT NOT NULL DEFAULT '',
						netmask TEXT NOT NULL DEFAULT '',
						FOREIGN KEY (machine_id) REFERENCES machines(id),
						UNIQUE (machine_id, interface_index)
					)`,
					`CREATE TABLE adapters (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						machine_id INTEGER NOT NULL,
						adapter_number INTEGER NOT NULL CHECK (adapter_number >= 1),
						kind TEXT NOT NULL,
						mac_address TEXT NOT NULL DEFAULT '',
						FOREIGN KEY (machine_id) REFERENCES machines(id),
						UNIQUE (machine_id, adapter_number)
					)`,
				})
			},
			Down: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					`DROP TABLE IF EXISTS adapters`,
					`DROP TABLE IF EXISTS network_specs`,
					`DROP TABLE IF EXISTS machines`,
				})
			},
		},
		{
			Version: 2,
			Name:    "create_deliveries_table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE deliveries (
						id TEXT PRIMARY KEY,
						machine_id INTEGER NOT NULL,
						path TEXT NOT NULL,
						unit TEXT NOT NULL,
						checksum TEXT NOT NULL,
						created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
						FOREIGN KEY (machine_id) REFERENCES machines(id)
					)
				`)
				return err
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS deliveries`)
				return err
			},
		},
	}
}
