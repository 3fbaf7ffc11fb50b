// Package migrations holds the schema migrations for the scheduler database
// and a minimal migrator that applies them transactionally.
package migrations

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration is one reversible schema change.
type Migration struct {
	Name    string
	UpSQL   string
	DownSQL string
}

// Migrator applies and rolls back migrations against a database.
type Migrator struct {
	db *sql.DB
}

// New creates a new Migrator
func New(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the migrations bookkeeping table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.Exec(query)
	return err
}

// Applied returns the set of migration names already applied.
func (m *Migrator) Applied() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT name FROM migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// run executes a migration's SQL and its bookkeeping statement in one
// transaction.
func (m *Migrator) run(mig *Migration, migSQL, recordQuery string, recordArgs ...interface{}) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migSQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", mig.Name, err)
	}
	if _, err := tx.Exec(recordQuery, recordArgs...); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", mig.Name, err)
	}
	return tx.Commit()
}

// Migrate applies all pending migrations in order.
func (m *Migrator) Migrate(migrations []*Migration) error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	applied, err := m.Applied()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	for _, mig := range migrations {
		if applied[mig.Name] {
			continue
		}
		if err := m.run(mig, mig.UpSQL, `INSERT INTO migrations (name) VALUES ($1)`, mig.Name); err != nil {
			return err
		}
		log.Printf("Applied migration: %s", mig.Name)
	}
	return nil
}

// Rollback rolls back the most recently applied migration.
func (m *Migrator) Rollback(migrations []*Migration) error {
	applied, err := m.Applied()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		mig := migrations[i]
		if !applied[mig.Name] {
			continue
		}
		if err := m.run(mig, mig.DownSQL, `DELETE FROM migrations WHERE name = $1`, mig.Name); err != nil {
			return err
		}
		log.Printf("Rolled back migration: %s", mig.Name)
		return nil
	}
	return fmt.Errorf("no migrations to rollback")
}
