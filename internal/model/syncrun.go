package model

import "time"

// SyncPhase is one stage of the fixed sync pipeline.
type SyncPhase int

// Pipeline phases in execution order.
const (
	PhaseCollect SyncPhase = iota + 1
	PhasePrescreen
	PhaseCrawlEnrich
	PhaseAIEnrich
	PhaseFitAnalysis
)

func (p SyncPhase) String() string {
	switch p {
	case PhaseCollect:
		return "collect"
	case PhasePrescreen:
		return "prescreen"
	case PhaseCrawlEnrich:
		return "crawl-enrich"
	case PhaseAIEnrich:
		return "ai-enrich"
	case PhaseFitAnalysis:
		return "fit-analysis"
	default:
		return "unknown"
	}
}

// Progress is one advisory progress report. Emitted many times per run and
// never persisted.
type Progress struct {
	Stage     string `json:"stage"`
	ItemLabel string `json:"itemLabel"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
	Phase     int    `json:"phase"`
}

// PhaseCounters tallies item outcomes within a single phase.
type PhaseCounters struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// SyncStats is the aggregate result of a sync run, carried in the
// terminal complete frame.
type SyncStats struct {
	StartedAt             time.Time                `json:"startedAt"`
	CompletedAt           time.Time                `json:"completedAt"`
	PerPhase              map[string]PhaseCounters `json:"perPhaseCounts"`
	TotalFetched          int                      `json:"totalFetched"`
	Created               int                      `json:"created"`
	Updated               int                      `json:"updated"`
	Processed             int                      `json:"processed"`
	Skipped               int                      `json:"skipped"`
	Analyzed              int                      `json:"analyzed"`
	Errors                int                      `json:"errors"`
	AttachmentsDownloaded int                      `json:"attachmentsDownloaded"`
	ForceReanalyze        bool                     `json:"forceReanalyze"`
}

// AnalyzeStats is the aggregate result of an analyze-all run.
type AnalyzeStats struct {
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Total       int       `json:"total"`
	Analyzed    int       `json:"analyzed"`
	Skipped     int       `json:"skipped"`
	Errors      int       `json:"errors"`
}
