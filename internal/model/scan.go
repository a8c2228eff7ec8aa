package model

import "time"

// TaxScan is the result of one tax-opportunity scan. The scan itself is
// immutable once written; its opportunities mutate independently as their
// statuses and worksheets evolve.
type TaxScan struct {
	ScannedAt            time.Time       `json:"scannedAt"`
	ID                   string          `json:"id"`
	DataSources          map[string]bool `json:"dataSources"`
	Opportunities        []Opportunity   `json:"opportunities"`
	TotalEstimatedRefund int64           `json:"totalEstimatedRefund"`
	DataCompleteness     int             `json:"dataCompleteness"`
}

// RecomputeTotal refreshes the scan-level refund total from its
// opportunities, skipping dismissed ones.
func (s *TaxScan) RecomputeTotal() {
	var total int64
	for i := range s.Opportunities {
		if s.Opportunities[i].Status == StatusDismissed {
			continue
		}
		total += s.Opportunities[i].EstimatedRefund
	}
	s.TotalEstimatedRefund = total
}

// Opportunity returns the opportunity with the given ID.
func (s *TaxScan) Opportunity(id string) (*Opportunity, bool) {
	for i := range s.Opportunities {
		if s.Opportunities[i].ID == id {
			return &s.Opportunities[i], true
		}
	}
	return nil, false
}
