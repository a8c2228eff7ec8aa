// Package model defines the core domain types shared across the application.
package model

import (
	"regexp"
	"strings"
	"time"
)

// ProgramStatus is the persisted processing status of a program record.
type ProgramStatus string

// Program statuses. A program moves from synced to analyzed; error marks a
// record whose last enrichment attempt failed.
const (
	StatusSynced   ProgramStatus = "synced"
	StatusAnalyzed ProgramStatus = "analyzed"
	StatusError    ProgramStatus = "error"
)

// RawProgram is one untrusted candidate record as returned by the portal.
type RawProgram struct {
	ExternalID     string `json:"id"`
	Title          string `json:"title"`
	Agency         string `json:"agency"`
	Category       string `json:"category"`
	TargetRegion   string `json:"targetRegion"`
	TargetIndustry string `json:"targetIndustry"`
	SupportAmount  int64  `json:"supportAmount"`
	Deadline       string `json:"deadline"`
	DetailURL      string `json:"detailUrl"`
}

// ProgramDetail is the per-program enrichment fetched during crawling.
type ProgramDetail struct {
	Description string   `json:"description"`
	Attachments []string `json:"attachments"`
	Contact     string   `json:"contact"`
}

// Program is a subsidy program record tracked in the note store.
// The metadata fields are persisted as frontmatter; Description is the
// note body.
type Program struct {
	SyncedAt       time.Time     `yaml:"syncedAt" json:"syncedAt"`
	AnalyzedAt     time.Time     `yaml:"analyzedAt,omitempty" json:"analyzedAt,omitempty"`
	Deadline       time.Time     `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	ExternalID     string        `yaml:"externalId" json:"externalId"`
	Title          string        `yaml:"title" json:"title"`
	Agency         string        `yaml:"agency" json:"agency"`
	Category       string        `yaml:"category" json:"category"`
	TargetRegion   string        `yaml:"targetRegion,omitempty" json:"targetRegion,omitempty"`
	TargetIndustry string        `yaml:"targetIndustry,omitempty" json:"targetIndustry,omitempty"`
	DetailURL      string        `yaml:"detailUrl,omitempty" json:"detailUrl,omitempty"`
	Status         ProgramStatus `yaml:"status" json:"status"`
	Eligibility    string        `yaml:"eligibility,omitempty" json:"eligibility,omitempty"`
	Advice         string        `yaml:"advice,omitempty" json:"advice,omitempty"`
	AISummary      string        `yaml:"aiSummary,omitempty" json:"aiSummary,omitempty"`
	Strengths      []string      `yaml:"strengths,omitempty" json:"strengths,omitempty"`
	Weaknesses     []string      `yaml:"weaknesses,omitempty" json:"weaknesses,omitempty"`
	SupportAmount  int64         `yaml:"supportAmount" json:"supportAmount"`
	FitScore       int           `yaml:"fitScore,omitempty" json:"fitScore,omitempty"`
	Attachments    int           `yaml:"attachments,omitempty" json:"attachments,omitempty"`
	Excluded       bool          `yaml:"excluded,omitempty" json:"excluded,omitempty"`
	Description    string        `yaml:"-" json:"description,omitempty"`
}

var slugScrub = regexp.MustCompile(`[^a-z0-9가-힣]+`)

// Slugify turns a program title and agency into a stable note slug.
func Slugify(title, agency string) string {
	s := strings.ToLower(strings.TrimSpace(agency + " " + title))
	s = slugScrub.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 80 {
		s = s[:80]
		s = strings.Trim(s, "-")
	}
	return s
}

// Slug returns the note store key for this program.
func (p *Program) Slug() string {
	return Slugify(p.Title, p.Agency)
}

// FitAnalysis is the analyzer's fit verdict for one program.
type FitAnalysis struct {
	Dimensions  map[string]int `json:"dimensions"`
	Eligibility string         `json:"eligibility"`
	Advice      string         `json:"advice"`
	Strengths   []string       `json:"strengths"`
	Weaknesses  []string       `json:"weaknesses"`
	Score       int            `json:"score"`
}

// CompanyProfile describes the business the programs are matched against.
type CompanyProfile struct {
	Name           string `yaml:"name" json:"name"`
	BusinessNumber string `yaml:"businessNumber" json:"businessNumber"`
	Industry       string `yaml:"industry" json:"industry"`
	Region         string `yaml:"region" json:"region"`
	FoundedYear    int    `yaml:"foundedYear" json:"foundedYear"`
	Employees      int    `yaml:"employees" json:"employees"`
	AnnualRevenue  int64  `yaml:"annualRevenue" json:"annualRevenue"`
}
