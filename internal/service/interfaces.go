// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/yeonjae-dev/bizradar/internal/model"
)

// NoteStore is a key/value document store keyed by slug. Each document is
// structured metadata (frontmatter) plus free-text content. Writes are
// atomic from the caller's point of view.
type NoteStore interface {
	Exists(ctx context.Context, slug string) (bool, error)
	// Read decodes the document's frontmatter into meta (ignored when nil)
	// and returns the body content.
	Read(ctx context.Context, slug string, meta any) (string, error)
	Write(ctx context.Context, slug string, meta any, content string) error
	// List returns the slugs under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ProgramSource supplies raw candidate program records. Availability and
// schema are opaque; FetchAll failing wholesale is an infrastructure
// failure, not a per-item one.
type ProgramSource interface {
	FetchAll(ctx context.Context) ([]model.RawProgram, error)
	FetchDetail(ctx context.Context, externalID string) (model.ProgramDetail, error)
}

// Analyzer is the opaque scoring/estimation oracle. Every call may fail;
// callers count failures instead of propagating them as run failures.
type Analyzer interface {
	AnalyzeFit(ctx context.Context, profile model.CompanyProfile, program model.Program) (model.FitAnalysis, error)
	Summarize(ctx context.Context, program model.Program) (string, error)
	AnalyzeTaxOpportunities(ctx context.Context, profile model.CompanyProfile, sources map[string]bool) ([]model.Opportunity, error)
	GenerateWorksheet(ctx context.Context, profile model.CompanyProfile, opp model.Opportunity) (*model.Worksheet, error)
}

// ScanStore persists tax scans and their opportunities.
type ScanStore interface {
	SaveScan(ctx context.Context, scan *model.TaxScan) error
	GetScan(ctx context.Context, id string) (*model.TaxScan, error)
	LatestScan(ctx context.Context) (*model.TaxScan, error)
	ListScans(ctx context.Context) ([]model.TaxScan, error)
	GetOpportunity(ctx context.Context, scanID, oppID string) (*model.Opportunity, error)
	UpdateOpportunity(ctx context.Context, scanID string, opp *model.Opportunity) error
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
