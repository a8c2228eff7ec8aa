package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS scans (
					id TEXT PRIMARY KEY,
					scanned_at DATETIME NOT NULL,
					total_estimated_refund INTEGER NOT NULL DEFAULT 0,
					data_completeness INTEGER NOT NULL DEFAULT 0,
					data_sources TEXT NOT NULL DEFAULT '{}'
				)`,
				`CREATE TABLE IF NOT EXISTS opportunities (
					id TEXT PRIMARY KEY,
					scan_id TEXT NOT NULL,
					tax_benefit_code TEXT NOT NULL,
					title TEXT NOT NULL,
					description TEXT,
					estimated_refund INTEGER NOT NULL DEFAULT 0,
					confidence INTEGER NOT NULL DEFAULT 0,
					difficulty TEXT NOT NULL,
					data_source TEXT NOT NULL,
					applicable_years TEXT NOT NULL DEFAULT '[]',
					status TEXT NOT NULL,
					worksheet TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (scan_id) REFERENCES scans(id)
				)`,
				`CREATE INDEX idx_opportunities_scan ON opportunities(scan_id)`,
				`CREATE INDEX idx_opportunities_status ON opportunities(status)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Index opportunities by benefit code",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_opportunities_code ON opportunities(tax_benefit_code)`)
			return err
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
