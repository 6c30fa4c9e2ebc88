package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered schema history. Compiled in rather than
// loaded from disk so the binary is self-contained.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_sessions",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				label TEXT NOT NULL DEFAULT '',
				started_at INTEGER NOT NULL,
				ended_at INTEGER,
				sample_count INTEGER NOT NULL DEFAULT 0,
				rejected_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
		`,
	},
	{
		Version: 2,
		Name:    "create_dwells",
		SQL: `
			CREATE TABLE IF NOT EXISTS dwells (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				anchor_lat REAL NOT NULL,
				anchor_lon REAL NOT NULL,
				start_time INTEGER NOT NULL,
				end_time INTEGER NOT NULL,
				duration_s INTEGER NOT NULL,
				confidence TEXT NOT NULL,
				sample_count INTEGER NOT NULL DEFAULT 0,
				is_revisit INTEGER NOT NULL DEFAULT 0,
				revisit_of TEXT NOT NULL DEFAULT '',
				venue_name TEXT NOT NULL DEFAULT '',
				venue_override TEXT NOT NULL DEFAULT '',
				nearby_venues TEXT NOT NULL DEFAULT '[]',
				rating INTEGER NOT NULL DEFAULT 0,
				note TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_dwells_session ON dwells(session_id);
			CREATE INDEX IF NOT EXISTS idx_dwells_start_time ON dwells(start_time);
		`,
	},
	{
		Version: 3,
		Name:    "create_route_points",
		SQL: `
			CREATE TABLE IF NOT EXISTS route_points (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				latitude REAL NOT NULL,
				longitude REAL NOT NULL,
				recorded_at INTEGER NOT NULL,
				accuracy REAL NOT NULL DEFAULT 0,
				vertical_accuracy REAL NOT NULL DEFAULT 0,
				speed REAL NOT NULL DEFAULT -1
			);
			CREATE INDEX IF NOT EXISTS idx_route_points_session ON route_points(session_id);
		`,
	},
}

// RunMigrations applies all pending migrations in order.
func RunMigrations(db *sql.DB) error {
	if err := initMigrationsTable(db); err != nil {
		return err
	}

	applied, err := appliedMigrations(db)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := applyMigration(db, migration); err != nil {
			return err
		}
	}

	return nil
}

func initMigrationsTable(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func appliedMigrations(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func applyMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(migration.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	if _, err := tx.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", migration.Version, migration.Name); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}

	log.Printf("[Database] Applied migration %d: %s", migration.Version, migration.Name)
	return nil
}
