package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when an opportunity status change is not
// in the allowed transition set. The status is left unchanged.
var ErrInvalidTransition = errors.New("invalid status transition")

// OpportunityStatus is the life cycle state of a tax-refund opportunity.
type OpportunityStatus string

// Opportunity statuses. Received and dismissed are terminal.
const (
	StatusIdentified OpportunityStatus = "identified"
	StatusReviewing  OpportunityStatus = "reviewing"
	StatusFiled      OpportunityStatus = "filed"
	StatusReceived   OpportunityStatus = "received"
	StatusDismissed  OpportunityStatus = "dismissed"
)

// Difficulty grades how hard an opportunity is to actually claim.
type Difficulty string

// Difficulty levels.
const (
	DifficultyEasy     Difficulty = "EASY"
	DifficultyModerate Difficulty = "MODERATE"
	DifficultyComplex  Difficulty = "COMPLEX"
)

// DataSource identifies which upstream supplied the evidence behind an
// opportunity or line item.
type DataSource string

// Data sources.
const (
	SourceNPS       DataSource = "NPS_API"
	SourceDART      DataSource = "DART_API"
	SourceEI        DataSource = "EI_API"
	SourceProfile   DataSource = "COMPANY_PROFILE"
	SourceEstimated DataSource = "ESTIMATED"
)

// validTransitions is the complete set of allowed status changes.
// Everything else is rejected.
var validTransitions = map[OpportunityStatus]map[OpportunityStatus]bool{
	StatusIdentified: {StatusReviewing: true, StatusDismissed: true},
	StatusReviewing:  {StatusFiled: true, StatusDismissed: true},
	StatusFiled:      {StatusReceived: true, StatusDismissed: true},
	StatusReceived:   {},
	StatusDismissed:  {},
}

// IsTerminal reports whether no further transitions are allowed.
func (s OpportunityStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// CanTransitionTo reports whether the transition s -> next is allowed.
func (s OpportunityStatus) CanTransitionTo(next OpportunityStatus) bool {
	return validTransitions[s][next]
}

// Opportunity is one detected tax-refund candidate with its own status
// life cycle. Once Worksheet is non-nil, EstimatedRefund mirrors
// Worksheet.TotalRefund; the worksheet is the source of truth.
type Opportunity struct {
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	ID              string            `json:"id"`
	TaxBenefitCode  string            `json:"taxBenefitCode"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Status          OpportunityStatus `json:"status"`
	Difficulty      Difficulty        `json:"difficulty"`
	DataSource      DataSource        `json:"dataSource"`
	ApplicableYears []int             `json:"applicableYears"`
	Worksheet       *Worksheet        `json:"worksheet,omitempty"`
	EstimatedRefund int64             `json:"estimatedRefund"`
	Confidence      int               `json:"confidence"`
}

// TransitionTo applies a status change after validating it against the
// transition table. On rejection the status is untouched.
func (o *Opportunity) TransitionTo(next OpportunityStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	return nil
}
