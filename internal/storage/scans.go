package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yeonjae-dev/bizradar/internal/common"
	"github.com/yeonjae-dev/bizradar/internal/model"
)

// SaveScan stores a scan and all of its opportunities in one transaction.
func (s *SQLiteStore) SaveScan(ctx context.Context, scan *model.TaxScan) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if scan == nil || scan.ID == "" {
		return fmt.Errorf("scan with an ID is required")
	}

	sources, err := json.Marshal(scan.DataSources)
	if err != nil {
		return fmt.Errorf("failed to encode data sources: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO scans (id, scanned_at, total_estimated_refund, data_completeness, data_sources)
		 VALUES (?, ?, ?, ?, ?)`,
		scan.ID, scan.ScannedAt, scan.TotalEstimatedRefund, scan.DataCompleteness, string(sources)); err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}

	for i := range scan.Opportunities {
		if err := upsertOpportunityTx(ctx, tx, scan.ID, &scan.Opportunities[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan: %w", err)
	}
	return nil
}

func upsertOpportunityTx(ctx context.Context, tx *sql.Tx, scanID string, opp *model.Opportunity) error {
	years, err := json.Marshal(opp.ApplicableYears)
	if err != nil {
		return fmt.Errorf("failed to encode applicable years: %w", err)
	}

	var worksheet sql.NullString
	if opp.Worksheet != nil {
		raw, err := json.Marshal(opp.Worksheet)
		if err != nil {
			return fmt.Errorf("failed to encode worksheet: %w", err)
		}
		worksheet = sql.NullString{String: string(raw), Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO opportunities
		 (id, scan_id, tax_benefit_code, title, description, estimated_refund, confidence,
		  difficulty, data_source, applicable_years, status, worksheet, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		opp.ID, scanID, opp.TaxBenefitCode, opp.Title, opp.Description,
		opp.EstimatedRefund, opp.Confidence, opp.Difficulty, opp.DataSource,
		string(years), opp.Status, worksheet, opp.CreatedAt, opp.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// GetScan loads a scan with its opportunities.
func (s *SQLiteStore) GetScan(ctx context.Context, id string) (*model.TaxScan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var scan model.TaxScan
	var sources string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, scanned_at, total_estimated_refund, data_completeness, data_sources
		 FROM scans WHERE id = ?`, id).
		Scan(&scan.ID, &scan.ScannedAt, &scan.TotalEstimatedRefund, &scan.DataCompleteness, &sources)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scan: %w", err)
	}

	if err := json.Unmarshal([]byte(sources), &scan.DataSources); err != nil {
		return nil, fmt.Errorf("failed to decode data sources: %w", err)
	}

	opps, err := s.opportunitiesForScan(ctx, id)
	if err != nil {
		return nil, err
	}
	scan.Opportunities = opps
	return &scan, nil
}

// LatestScan returns the most recent scan, or ErrNotFound when none exist.
func (s *SQLiteStore) LatestScan(ctx context.Context) (*model.TaxScan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM scans ORDER BY scanned_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no scans: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest scan: %w", err)
	}
	return s.GetScan(ctx, id)
}

// ListScans returns all scans, newest first, without their opportunities.
func (s *SQLiteStore) ListScans(ctx context.Context) ([]model.TaxScan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scanned_at, total_estimated_refund, data_completeness, data_sources
		 FROM scans ORDER BY scanned_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scans []model.TaxScan
	for rows.Next() {
		var scan model.TaxScan
		var sources string
		if err := rows.Scan(&scan.ID, &scan.ScannedAt, &scan.TotalEstimatedRefund,
			&scan.DataCompleteness, &sources); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &scan.DataSources); err != nil {
			return nil, fmt.Errorf("failed to decode data sources: %w", err)
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

func (s *SQLiteStore) opportunitiesForScan(ctx context.Context, scanID string) ([]model.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tax_benefit_code, title, description, estimated_refund, confidence,
		        difficulty, data_source, applicable_years, status, worksheet, created_at, updated_at
		 FROM opportunities WHERE scan_id = ? ORDER BY estimated_refund DESC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load opportunities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var opps []model.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		opps = append(opps, *opp)
	}
	return opps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (*model.Opportunity, error) {
	var opp model.Opportunity
	var years string
	var worksheet sql.NullString
	var description sql.NullString
	var createdAt, updatedAt time.Time

	if err := row.Scan(&opp.ID, &opp.TaxBenefitCode, &opp.Title, &description,
		&opp.EstimatedRefund, &opp.Confidence, &opp.Difficulty, &opp.DataSource,
		&years, &opp.Status, &worksheet, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan opportunity: %w", err)
	}

	opp.Description = description.String
	opp.CreatedAt = createdAt
	opp.UpdatedAt = updatedAt
	if err := json.Unmarshal([]byte(years), &opp.ApplicableYears); err != nil {
		return nil, fmt.Errorf("failed to decode applicable years: %w", err)
	}
	if worksheet.Valid {
		var ws model.Worksheet
		if err := json.Unmarshal([]byte(worksheet.String), &ws); err != nil {
			return nil, fmt.Errorf("failed to decode worksheet: %w", err)
		}
		opp.Worksheet = &ws
	}
	return &opp, nil
}

// GetOpportunity loads one opportunity belonging to a scan.
func (s *SQLiteStore) GetOpportunity(ctx context.Context, scanID, oppID string) (*model.Opportunity, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, tax_benefit_code, title, description, estimated_refund, confidence,
		        difficulty, data_source, applicable_years, status, worksheet, created_at, updated_at
		 FROM opportunities WHERE scan_id = ? AND id = ?`, scanID, oppID)

	opp, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("opportunity %s: %w", oppID, common.ErrNotFound)
		}
		return nil, err
	}
	return opp, nil
}

// UpdateOpportunity persists status, refund, and worksheet changes.
func (s *SQLiteStore) UpdateOpportunity(ctx context.Context, scanID string, opp *model.Opportunity) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if opp == nil || opp.ID == "" {
		return fmt.Errorf("opportunity with an ID is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertOpportunityTx(ctx, tx, scanID, opp); err != nil {
		return err
	}

	// Keep the scan-level total consistent with the member that changed.
	if _, err := tx.ExecContext(ctx,
		`UPDATE scans SET total_estimated_refund = (
			SELECT COALESCE(SUM(estimated_refund), 0)
			FROM opportunities WHERE scan_id = ? AND status != ?
		 ) WHERE id = ?`, scanID, model.StatusDismissed, scanID); err != nil {
		return fmt.Errorf("failed to refresh scan total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit opportunity update: %w", err)
	}
	return nil
}
