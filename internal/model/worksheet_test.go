package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorksheetRecompute(t *testing.T) {
	tests := []struct {
		name          string
		worksheet     Worksheet
		wantSubtotals []int64
		wantTotal     int64
	}{
		{
			name: "single subtotal over two lines",
			worksheet: Worksheet{
				LineItems: []LineItem{
					{Key: "salary", Value: 30_000_000, Editable: true},
					{Key: "bonus", Value: 5_000_000},
				},
				Subtotals: []Subtotal{
					{Label: "total", Keys: []string{"salary", "bonus"}},
				},
			},
			wantSubtotals: []int64{35_000_000},
			wantTotal:     35_000_000,
		},
		{
			name: "multiple groups sum into total",
			worksheet: Worksheet{
				LineItems: []LineItem{
					{Key: "rd_wages", Value: 120_000_000},
					{Key: "rd_materials", Value: 40_000_000},
					{Key: "hires", Value: 3, Unit: "명"},
					{Key: "credit_per_hire", Value: 7_000_000},
				},
				Subtotals: []Subtotal{
					{Label: "R&D credit base", Keys: []string{"rd_wages", "rd_materials"}},
					{Label: "employment credit", Keys: []string{"credit_per_hire"}},
				},
			},
			wantSubtotals: []int64{160_000_000, 7_000_000},
			wantTotal:     167_000_000,
		},
		{
			name: "no subtotals falls back to numeric line sum",
			worksheet: Worksheet{
				LineItems: []LineItem{
					{Key: "refund", Value: 2_000_000},
					{Key: "note", Text: "2022 귀속분", Source: LineFromTaxLaw},
					{Key: "penalty", Value: -150_000},
				},
			},
			wantSubtotals: nil,
			wantTotal:     1_850_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.worksheet.Recompute()
			for i, want := range tt.wantSubtotals {
				assert.Equal(t, want, tt.worksheet.Subtotals[i].Amount)
			}
			assert.Equal(t, tt.wantTotal, tt.worksheet.TotalRefund)
		})
	}
}

func TestWorksheetCloneIsDeep(t *testing.T) {
	ws := Worksheet{
		LineItems: []LineItem{{Key: "salary", Value: 100, Editable: true}},
		Subtotals: []Subtotal{{Label: "total", Keys: []string{"salary"}}},
		UserOverrides: map[string]int64{
			"salary": 100,
		},
	}
	ws.Recompute()

	clone := ws.Clone()
	clone.LineItems[0].Value = 999
	clone.Subtotals[0].Keys[0] = "other"
	clone.UserOverrides["salary"] = 999

	assert.Equal(t, int64(100), ws.LineItems[0].Value)
	assert.Equal(t, "salary", ws.Subtotals[0].Keys[0])
	assert.Equal(t, int64(100), ws.UserOverrides["salary"])
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "sba-export-voucher-2026", Slugify("Export Voucher 2026", "SBA"))
	assert.Equal(t, "중기부-수출바우처", Slugify("수출바우처", "중기부"))
	assert.NotEmpty(t, Slugify("!!!", "agency"))
}
