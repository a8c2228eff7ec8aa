// Package worksheet maintains the refund worksheets behind tax
// opportunities: generation, user overrides with full recomputation, and
// read-side registry views over a scan's opportunities.
package worksheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/service"
)

// Worksheet operation errors.
var (
	ErrNoWorksheet     = errors.New("opportunity has no worksheet")
	ErrWorksheetExists = errors.New("opportunity already has a worksheet")
	ErrUnknownLineItem = errors.New("unknown line item key")
	ErrNotEditable     = errors.New("line item is not editable")
	ErrNotIdentified   = errors.New("worksheet generation requires identified status")
)

// Engine generates and mutates worksheets. Every mutation goes through
// validate-then-apply on a clone, so a rejected operation leaves the
// stored state untouched, and EstimatedRefund always mirrors the
// worksheet total once one exists.
type Engine struct {
	notes    service.NoteStore
	analyzer service.Analyzer
	scans    service.ScanStore
}

// NewEngine creates a worksheet engine.
func NewEngine(notes service.NoteStore, analyzer service.Analyzer, scans service.ScanStore) *Engine {
	return &Engine{notes: notes, analyzer: analyzer, scans: scans}
}

// Generate builds the worksheet for an identified opportunity and moves
// it to reviewing. Generation is not idempotent; an existing worksheet is
// rejected rather than regenerated.
func (e *Engine) Generate(ctx context.Context, scanID, oppID string) (*model.Opportunity, error) {
	opp, err := e.scans.GetOpportunity(ctx, scanID, oppID)
	if err != nil {
		return nil, err
	}
	if opp.Worksheet != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorksheetExists, oppID)
	}
	if opp.Status != model.StatusIdentified {
		return nil, fmt.Errorf("%w: status is %s", ErrNotIdentified, opp.Status)
	}

	var profile model.CompanyProfile
	if _, err := e.notes.Read(ctx, "company/profile", &profile); err != nil {
		return nil, fmt.Errorf("failed to load company profile: %w", err)
	}

	ws, err := e.analyzer.GenerateWorksheet(ctx, profile, *opp)
	if err != nil {
		return nil, fmt.Errorf("failed to generate worksheet: %w", err)
	}
	ws.Recompute()

	opp.Worksheet = ws
	opp.EstimatedRefund = ws.TotalRefund
	if err := opp.TransitionTo(model.StatusReviewing); err != nil {
		return nil, err
	}
	if err := e.scans.UpdateOpportunity(ctx, scanID, opp); err != nil {
		return nil, fmt.Errorf("failed to save worksheet: %w", err)
	}
	slog.Info("Worksheet generated",
		"scan_id", scanID,
		"opportunity_id", oppID,
		"total_refund", ws.TotalRefund)
	return opp, nil
}

// ApplyOverride replaces one editable line item's value and recomputes
// subtotals and the total.
func (e *Engine) ApplyOverride(ctx context.Context, scanID, oppID, key string, value int64) (*model.Opportunity, error) {
	return e.ApplyOverrides(ctx, scanID, oppID, map[string]int64{key: value})
}

// ApplyOverrides applies a batch of overrides atomically: every key is
// validated before any value changes, so either all overrides apply or
// none do.
func (e *Engine) ApplyOverrides(ctx context.Context, scanID, oppID string, overrides map[string]int64) (*model.Opportunity, error) {
	if len(overrides) == 0 {
		return nil, fmt.Errorf("no overrides supplied")
	}

	opp, err := e.scans.GetOpportunity(ctx, scanID, oppID)
	if err != nil {
		return nil, err
	}
	if opp.Worksheet == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoWorksheet, oppID)
	}

	ws := opp.Worksheet.Clone()
	for key := range overrides {
		item, ok := ws.Item(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLineItem, key)
		}
		if !item.Editable {
			return nil, fmt.Errorf("%w: %s", ErrNotEditable, key)
		}
	}
	for key, value := range overrides {
		item, _ := ws.Item(key)
		item.Value = value
		item.Source = model.LineFromUser
		ws.UserOverrides[key] = value
	}
	ws.Recompute()

	opp.Worksheet = ws
	opp.EstimatedRefund = ws.TotalRefund
	opp.UpdatedAt = time.Now()
	if err := e.scans.UpdateOpportunity(ctx, scanID, opp); err != nil {
		return nil, fmt.Errorf("failed to save worksheet: %w", err)
	}
	return opp, nil
}

// UpdateStatus applies one status transition.
func (e *Engine) UpdateStatus(ctx context.Context, scanID, oppID string, status model.OpportunityStatus) (*model.Opportunity, error) {
	opp, err := e.scans.GetOpportunity(ctx, scanID, oppID)
	if err != nil {
		return nil, err
	}
	if err := opp.TransitionTo(status); err != nil {
		return nil, err
	}
	if err := e.scans.UpdateOpportunity(ctx, scanID, opp); err != nil {
		return nil, fmt.Errorf("failed to save status: %w", err)
	}
	slog.Info("Opportunity status updated",
		"scan_id", scanID,
		"opportunity_id", oppID,
		"status", status)
	return opp, nil
}
