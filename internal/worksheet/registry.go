package worksheet

import (
	"sort"

	"github.com/yeonjae-dev/bizradar/internal/model"
)

// Filter selects opportunities from a scan. Zero values match everything.
type Filter struct {
	Status        model.OpportunityStatus
	DataSource    model.DataSource
	Difficulty    model.Difficulty
	MinConfidence int
}

func (f Filter) matches(opp *model.Opportunity) bool {
	if f.Status != "" && opp.Status != f.Status {
		return false
	}
	if f.DataSource != "" && opp.DataSource != f.DataSource {
		return false
	}
	if f.Difficulty != "" && opp.Difficulty != f.Difficulty {
		return false
	}
	if opp.Confidence < f.MinConfidence {
		return false
	}
	return true
}

// SortOrder picks how a registry view is sorted.
type SortOrder int

// Sort orders. Both sort descending; the secondary key breaks ties so the
// view is deterministic.
const (
	SortByRefund SortOrder = iota
	SortByConfidence
)

// View returns the scan's opportunities matching the filter, sorted. The
// result holds copies; mutations go through the Engine.
func View(scan *model.TaxScan, filter Filter, order SortOrder) []model.Opportunity {
	var out []model.Opportunity
	for i := range scan.Opportunities {
		if filter.matches(&scan.Opportunities[i]) {
			out = append(out, scan.Opportunities[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		switch order {
		case SortByConfidence:
			if a.Confidence != b.Confidence {
				return a.Confidence > b.Confidence
			}
			return a.EstimatedRefund > b.EstimatedRefund
		default:
			if a.EstimatedRefund != b.EstimatedRefund {
				return a.EstimatedRefund > b.EstimatedRefund
			}
			return a.Confidence > b.Confidence
		}
	})
	return out
}
