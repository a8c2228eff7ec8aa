package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yeonjae-dev/bizradar/internal/common"
	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/pace"
	"github.com/yeonjae-dev/bizradar/internal/service"
)

const (
	profileSlug   = "company/profile"
	programPrefix = "programs/"

	defaultAnalyzerInterval = 2 * time.Second
)

// phaseWeights drive the overall percent calculation. The analyzer-bound
// phases dominate wall-clock time, so they carry most of the weight.
var phaseWeights = map[model.SyncPhase]int{
	model.PhaseCollect:     10,
	model.PhasePrescreen:   10,
	model.PhaseCrawlEnrich: 20,
	model.PhaseAIEnrich:    30,
	model.PhaseFitAnalysis: 30,
}

func phaseStart(phase model.SyncPhase) int {
	start := 0
	for p := model.PhaseCollect; p < phase; p++ {
		start += phaseWeights[p]
	}
	return start
}

func percentFor(phase model.SyncPhase, current, total int) int {
	start := phaseStart(phase)
	weight := phaseWeights[phase]
	if total <= 0 || current >= total {
		return start + weight
	}
	return start + weight*current/total
}

// SyncParams are the caller-supplied parameters of a sync run.
type SyncParams struct {
	ForceReanalyze bool `json:"forceReanalyze"`
}

// AnalyzeParams are the caller-supplied parameters of an analyze-all run.
type AnalyzeParams struct {
	MinFitScore int `json:"minFitScore"`
	MaxCount    int `json:"maxCount"`
}

// Runner executes pipeline runs: the five-phase sync and the single-phase
// analyze-all. Items are processed sequentially and analyzer calls are
// paced; a single item's failure is counted and the run continues.
type Runner struct {
	notes    service.NoteStore
	source   service.ProgramSource
	analyzer service.Analyzer
	limiter  *pace.Limiter
	retry    service.RetryOptions
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	// AnalyzerInterval is the minimum delay between analyzer calls.
	AnalyzerInterval time.Duration
	Retry            service.RetryOptions
}

// NewRunner creates a pipeline runner.
func NewRunner(notes service.NoteStore, source service.ProgramSource, analyzer service.Analyzer, cfg RunnerConfig) *Runner {
	interval := cfg.AnalyzerInterval
	if interval == 0 {
		interval = defaultAnalyzerInterval
	}
	return &Runner{
		notes:    notes,
		source:   source,
		analyzer: analyzer,
		limiter:  pace.NewLimiter(interval),
		retry:    cfg.Retry,
	}
}

// NewRunnerWithLimiter creates a runner with a caller-supplied limiter.
// Used by tests to inject a fake clock.
func NewRunnerWithLimiter(notes service.NoteStore, source service.ProgramSource, analyzer service.Analyzer, limiter *pace.Limiter, retry service.RetryOptions) *Runner {
	return &Runner{notes: notes, source: source, analyzer: analyzer, limiter: limiter, retry: retry}
}

// progress emits one frame; a send failure means the client disconnected
// and the run must stop scheduling work.
func (r *Runner) progress(emit Emitter, phase model.SyncPhase, current, total int, label string) error {
	err := emit.Progress(model.Progress{
		Stage:     phase.String(),
		ItemLabel: label,
		Current:   current,
		Total:     total,
		Percent:   percentFor(phase, current, total),
		Phase:     int(phase),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrRunAborted, err)
	}
	return nil
}

func (r *Runner) loadProfile(ctx context.Context) (model.CompanyProfile, error) {
	var profile model.CompanyProfile
	if _, err := r.notes.Read(ctx, profileSlug, &profile); err != nil {
		return model.CompanyProfile{}, fmt.Errorf("failed to load company profile: %w", err)
	}
	return profile, nil
}

// Sync executes the full five-phase refresh. The returned stats match the
// payload of the complete frame. An error return means the run failed
// before processing (infrastructure) or was aborted by the client.
func (r *Runner) Sync(ctx context.Context, params SyncParams, emit Emitter) (*model.SyncStats, error) {
	stats := &model.SyncStats{
		StartedAt:      time.Now(),
		ForceReanalyze: params.ForceReanalyze,
		PerPhase:       make(map[string]model.PhaseCounters),
	}

	profile, err := r.loadProfile(ctx)
	if err != nil {
		_ = emit.Error(err.Error())
		return nil, err
	}

	raw, err := r.source.FetchAll(ctx)
	if err != nil {
		err = fmt.Errorf("failed to fetch program listings: %w", err)
		_ = emit.Error(err.Error())
		return nil, err
	}
	stats.TotalFetched = len(raw)
	slog.Info("Sync run started", "fetched", len(raw), "force", params.ForceReanalyze)

	// P1: collect listings into the note store
	var programs []*model.Program
	var collect model.PhaseCounters
	if len(raw) == 0 {
		if err := r.progress(emit, model.PhaseCollect, 0, 0, ""); err != nil {
			return nil, err
		}
	}
	for i, rp := range raw {
		prog, created, err := r.collectOne(ctx, rp)
		if err != nil {
			slog.Warn("Failed to collect program", "id", rp.ExternalID, "error", err)
			collect.Errors++
			stats.Errors++
		} else {
			if created {
				collect.Created++
				stats.Created++
			} else {
				collect.Updated++
				stats.Updated++
			}
			programs = append(programs, prog)
		}
		if err := r.progress(emit, model.PhaseCollect, i+1, len(raw), rp.Title); err != nil {
			return nil, err
		}
	}
	stats.PerPhase[model.PhaseCollect.String()] = collect

	// P2: prescreen against the company profile
	var prescreen model.PhaseCounters
	var work []*model.Program
	if len(programs) == 0 {
		if err := r.progress(emit, model.PhasePrescreen, 0, 0, ""); err != nil {
			return nil, err
		}
	}
	for i, prog := range programs {
		excluded := prescreenExcludes(profile, prog)
		if excluded != prog.Excluded {
			prog.Excluded = excluded
			if err := r.writeProgram(ctx, prog); err != nil {
				prescreen.Errors++
				stats.Errors++
			} else {
				prescreen.Updated++
			}
		}
		if excluded {
			prescreen.Skipped++
		} else {
			work = append(work, prog)
		}
		if err := r.progress(emit, model.PhasePrescreen, i+1, len(programs), prog.Title); err != nil {
			return nil, err
		}
	}
	stats.PerPhase[model.PhasePrescreen.String()] = prescreen

	// Items already analyzed are skipped for the remaining phases unless
	// the caller forces reprocessing.
	var pending []*model.Program
	for _, prog := range work {
		if prog.Status == model.StatusAnalyzed && !params.ForceReanalyze {
			stats.Skipped++
			continue
		}
		pending = append(pending, prog)
	}

	// P3: crawl per-program detail pages
	var crawl model.PhaseCounters
	if len(pending) == 0 {
		if err := r.progress(emit, model.PhaseCrawlEnrich, 0, 0, ""); err != nil {
			return nil, err
		}
	}
	for i, prog := range pending {
		detail, err := r.source.FetchDetail(ctx, prog.ExternalID)
		if err != nil {
			slog.Warn("Failed to fetch program detail", "id", prog.ExternalID, "error", err)
			crawl.Errors++
			stats.Errors++
		} else {
			prog.Description = detail.Description
			prog.Attachments = len(detail.Attachments)
			stats.AttachmentsDownloaded += len(detail.Attachments)
			if err := r.writeProgram(ctx, prog); err != nil {
				crawl.Errors++
				stats.Errors++
			} else {
				crawl.Updated++
			}
		}
		if err := r.progress(emit, model.PhaseCrawlEnrich, i+1, len(pending), prog.Title); err != nil {
			return nil, err
		}
	}
	stats.PerPhase[model.PhaseCrawlEnrich.String()] = crawl

	// P4: AI summaries
	var enrich model.PhaseCounters
	var scored []*model.Program
	if len(pending) == 0 {
		if err := r.progress(emit, model.PhaseAIEnrich, 0, 0, ""); err != nil {
			return nil, err
		}
	}
	for i, prog := range pending {
		stats.Processed++
		if err := r.summarizeOne(ctx, prog); err != nil {
			slog.Warn("Failed to summarize program", "slug", prog.Slug(), "error", err)
			r.markError(ctx, prog)
			enrich.Errors++
			stats.Errors++
		} else {
			enrich.Updated++
			scored = append(scored, prog)
		}
		if err := r.progress(emit, model.PhaseAIEnrich, i+1, len(pending), prog.Title); err != nil {
			return nil, err
		}
	}
	stats.PerPhase[model.PhaseAIEnrich.String()] = enrich

	// P5: fit analysis
	var fit model.PhaseCounters
	if len(scored) == 0 {
		if err := r.progress(emit, model.PhaseFitAnalysis, 0, 0, ""); err != nil {
			return nil, err
		}
	}
	for i, prog := range scored {
		if err := r.analyzeOne(ctx, profile, prog); err != nil {
			slog.Warn("Failed to analyze program fit", "slug", prog.Slug(), "error", err)
			r.markError(ctx, prog)
			fit.Errors++
			stats.Errors++
		} else {
			fit.Updated++
			stats.Analyzed++
		}
		if err := r.progress(emit, model.PhaseFitAnalysis, i+1, len(scored), prog.Title); err != nil {
			return nil, err
		}
	}
	stats.PerPhase[model.PhaseFitAnalysis.String()] = fit

	stats.CompletedAt = time.Now()
	if err := emit.Complete(stats); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRunAborted, err)
	}
	slog.Info("Sync run completed",
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"analyzed", stats.Analyzed,
		"errors", stats.Errors)
	return stats, nil
}

// collectOne merges one raw listing into the note store. Analysis fields
// and status survive re-syncs so the idempotent skip keeps working.
func (r *Runner) collectOne(ctx context.Context, raw model.RawProgram) (*model.Program, bool, error) {
	slug := programPrefix + model.Slugify(raw.Title, raw.Agency)

	var prog model.Program
	body, err := r.notes.Read(ctx, slug, &prog)
	created := false
	switch {
	case err == nil:
		prog.Description = body
	case isNotFound(err):
		created = true
	default:
		return nil, false, fmt.Errorf("failed to read program note: %w", err)
	}

	prog.ExternalID = raw.ExternalID
	prog.Title = raw.Title
	prog.Agency = raw.Agency
	prog.Category = raw.Category
	prog.TargetRegion = raw.TargetRegion
	prog.TargetIndustry = raw.TargetIndustry
	prog.SupportAmount = raw.SupportAmount
	prog.DetailURL = raw.DetailURL
	prog.SyncedAt = time.Now()
	if deadline, err := time.Parse("2006-01-02", raw.Deadline); err == nil {
		prog.Deadline = deadline
	}
	if prog.Status == "" {
		prog.Status = model.StatusSynced
	}

	if err := r.writeProgram(ctx, &prog); err != nil {
		return nil, false, err
	}
	return &prog, created, nil
}

func (r *Runner) summarizeOne(ctx context.Context, prog *model.Program) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	var summary string
	err := common.WithRetry(ctx, func() error {
		var err error
		summary, err = r.analyzer.Summarize(ctx, *prog)
		return err
	}, r.retry)
	if err != nil {
		return err
	}
	prog.AISummary = summary
	return r.writeProgram(ctx, prog)
}

func (r *Runner) analyzeOne(ctx context.Context, profile model.CompanyProfile, prog *model.Program) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	var fit model.FitAnalysis
	err := common.WithRetry(ctx, func() error {
		var err error
		fit, err = r.analyzer.AnalyzeFit(ctx, profile, *prog)
		return err
	}, r.retry)
	if err != nil {
		return err
	}

	prog.FitScore = fit.Score
	prog.Eligibility = fit.Eligibility
	prog.Strengths = fit.Strengths
	prog.Weaknesses = fit.Weaknesses
	prog.Advice = fit.Advice
	prog.Status = model.StatusAnalyzed
	prog.AnalyzedAt = time.Now()
	return r.writeProgram(ctx, prog)
}

// markError records a failed enrichment. The error status is not treated
// as terminal, so the next run retries the item.
func (r *Runner) markError(ctx context.Context, prog *model.Program) {
	prog.Status = model.StatusError
	if err := r.writeProgram(ctx, prog); err != nil {
		slog.Debug("Failed to record error status", "slug", prog.Slug(), "error", err)
	}
}

func (r *Runner) writeProgram(ctx context.Context, prog *model.Program) error {
	slug := programPrefix + prog.Slug()
	if err := r.notes.Write(ctx, slug, prog, prog.Description); err != nil {
		return fmt.Errorf("failed to write program note: %w", err)
	}
	return nil
}

// prescreenExcludes applies the cheap keyword screen that drops programs
// whose support target plainly excludes the company, before any analyzer
// spend.
func prescreenExcludes(profile model.CompanyProfile, prog *model.Program) bool {
	if prog.TargetRegion != "" && profile.Region != "" &&
		!strings.Contains(prog.TargetRegion, "전국") &&
		!strings.Contains(prog.TargetRegion, profile.Region) {
		return true
	}
	if prog.TargetIndustry != "" && profile.Industry != "" &&
		!strings.Contains(prog.TargetIndustry, "전업종") &&
		!industryOverlaps(prog.TargetIndustry, profile.Industry) {
		return true
	}
	return false
}

func industryOverlaps(target, industry string) bool {
	for _, word := range strings.Fields(industry) {
		if strings.Contains(target, word) {
			return true
		}
	}
	return false
}

// AnalyzeAll re-runs fit analysis over stored programs as a single-phase
// run. Programs already analyzed are skipped; MaxCount caps the batch and
// MinFitScore marks low scorers excluded.
func (r *Runner) AnalyzeAll(ctx context.Context, params AnalyzeParams, emit Emitter) (*model.AnalyzeStats, error) {
	stats := &model.AnalyzeStats{StartedAt: time.Now()}

	profile, err := r.loadProfile(ctx)
	if err != nil {
		_ = emit.Error(err.Error())
		return nil, err
	}

	slugs, err := r.notes.List(ctx, programPrefix)
	if err != nil {
		err = fmt.Errorf("failed to list programs: %w", err)
		_ = emit.Error(err.Error())
		return nil, err
	}

	var pending []*model.Program
	for _, slug := range slugs {
		var prog model.Program
		body, err := r.notes.Read(ctx, slug, &prog)
		if err != nil {
			slog.Warn("Failed to read program note", "slug", slug, "error", err)
			stats.Errors++
			continue
		}
		prog.Description = body
		stats.Total++
		if prog.Excluded || prog.Status == model.StatusAnalyzed {
			stats.Skipped++
			continue
		}
		if params.MaxCount > 0 && len(pending) >= params.MaxCount {
			stats.Skipped++
			continue
		}
		pending = append(pending, &prog)
	}

	if len(pending) == 0 {
		if err := emit.Progress(model.Progress{Stage: "analyze", Percent: 100, Phase: 1}); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrRunAborted, err)
		}
	}
	for i, prog := range pending {
		if err := r.analyzeOne(ctx, profile, prog); err != nil {
			slog.Warn("Failed to analyze program fit", "slug", prog.Slug(), "error", err)
			r.markError(ctx, prog)
			stats.Errors++
		} else {
			if params.MinFitScore > 0 && prog.FitScore < params.MinFitScore {
				prog.Excluded = true
				if err := r.writeProgram(ctx, prog); err != nil {
					slog.Debug("Failed to record exclusion", "slug", prog.Slug(), "error", err)
				}
			}
			stats.Analyzed++
		}
		err := emit.Progress(model.Progress{
			Stage:     "analyze",
			ItemLabel: prog.Title,
			Current:   i + 1,
			Total:     len(pending),
			Percent:   100 * (i + 1) / len(pending),
			Phase:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrRunAborted, err)
		}
	}

	stats.CompletedAt = time.Now()
	if err := emit.Complete(stats); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRunAborted, err)
	}
	return stats, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
