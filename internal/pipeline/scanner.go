package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/service"
)

// Fiscal data source notes. A source counts as available when its note
// exists; each contributes equally to data completeness, as does the
// company profile itself.
var fiscalSources = map[string]string{
	"nps":  "fiscal/nps",
	"dart": "fiscal/dart",
	"ei":   "fiscal/ei",
}

// Scanner runs tax-opportunity scans and persists their results.
type Scanner struct {
	notes    service.NoteStore
	analyzer service.Analyzer
	scans    service.ScanStore
}

// NewScanner creates a scanner.
func NewScanner(notes service.NoteStore, analyzer service.Analyzer, scans service.ScanStore) *Scanner {
	return &Scanner{notes: notes, analyzer: analyzer, scans: scans}
}

// Scan detects refund opportunities from the available fiscal data and
// the company profile, and saves the resulting scan.
func (s *Scanner) Scan(ctx context.Context) (*model.TaxScan, error) {
	var profile model.CompanyProfile
	if _, err := s.notes.Read(ctx, profileSlug, &profile); err != nil {
		return nil, fmt.Errorf("failed to load company profile: %w", err)
	}

	sources := make(map[string]bool, len(fiscalSources))
	available := 0
	for name, slug := range fiscalSources {
		ok, err := s.notes.Exists(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s data: %w", name, err)
		}
		sources[name] = ok
		if ok {
			available++
		}
	}

	// Profile plus three fiscal sources, 25 points each
	completeness := 25 + 25*available

	opportunities, err := s.analyzer.AnalyzeTaxOpportunities(ctx, profile, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze tax opportunities: %w", err)
	}

	scan := &model.TaxScan{
		ID:               uuid.NewString(),
		ScannedAt:        time.Now(),
		DataSources:      sources,
		DataCompleteness: completeness,
		Opportunities:    opportunities,
	}
	scan.RecomputeTotal()

	if err := s.scans.SaveScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("failed to save scan: %w", err)
	}
	slog.Info("Tax scan completed",
		"scan_id", scan.ID,
		"opportunities", len(scan.Opportunities),
		"total_refund", scan.TotalEstimatedRefund,
		"completeness", scan.DataCompleteness)
	return scan, nil
}
