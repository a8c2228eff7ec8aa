package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeonjae-dev/bizradar/internal/common"
	"github.com/yeonjae-dev/bizradar/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleScan() *model.TaxScan {
	scan := &model.TaxScan{
		ID:               "scan-1",
		ScannedAt:        time.Now().UTC().Truncate(time.Second),
		DataCompleteness: 75,
		DataSources:      map[string]bool{"nps": true, "dart": true, "ei": false},
		Opportunities: []model.Opportunity{
			{
				ID:              "opp-1",
				TaxBenefitCode:  "조특법 §29-7",
				Title:           "고용증대 세액공제",
				EstimatedRefund: 21_000_000,
				Confidence:      85,
				Difficulty:      model.DifficultyModerate,
				DataSource:      model.SourceNPS,
				ApplicableYears: []int{2022, 2023},
				Status:          model.StatusIdentified,
				CreatedAt:       time.Now().UTC().Truncate(time.Second),
				UpdatedAt:       time.Now().UTC().Truncate(time.Second),
			},
			{
				ID:              "opp-2",
				TaxBenefitCode:  "조특법 §10",
				Title:           "연구인력개발비 세액공제",
				EstimatedRefund: 48_000_000,
				Confidence:      60,
				Difficulty:      model.DifficultyComplex,
				DataSource:      model.SourceEstimated,
				ApplicableYears: []int{2023},
				Status:          model.StatusIdentified,
				CreatedAt:       time.Now().UTC().Truncate(time.Second),
				UpdatedAt:       time.Now().UTC().Truncate(time.Second),
			},
		},
	}
	scan.RecomputeTotal()
	return scan
}

func TestSaveAndGetScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scan := sampleScan()
	require.NoError(t, store.SaveScan(ctx, scan))

	got, err := store.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, scan.ID, got.ID)
	assert.Equal(t, 75, got.DataCompleteness)
	assert.Equal(t, map[string]bool{"nps": true, "dart": true, "ei": false}, got.DataSources)
	require.Len(t, got.Opportunities, 2)
	// Ordered by refund, largest first
	assert.Equal(t, "opp-2", got.Opportunities[0].ID)
	assert.Equal(t, []int{2022, 2023}, got.Opportunities[1].ApplicableYears)
	assert.Nil(t, got.Opportunities[0].Worksheet)
}

func TestGetScanNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetScan(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestLatestScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := sampleScan()
	older.ID = "scan-old"
	older.ScannedAt = time.Now().Add(-48 * time.Hour)
	older.Opportunities = nil
	require.NoError(t, store.SaveScan(ctx, older))
	require.NoError(t, store.SaveScan(ctx, sampleScan()))

	latest, err := store.LatestScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scan-1", latest.ID)

	scans, err := store.ListScans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, "scan-1", scans[0].ID)
}

func TestLatestScanEmpty(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LatestScan(context.Background())
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateOpportunityWithWorksheet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveScan(ctx, sampleScan()))

	opp, err := store.GetOpportunity(ctx, "scan-1", "opp-1")
	require.NoError(t, err)

	opp.Worksheet = &model.Worksheet{
		Title: "고용증대 세액공제 산출",
		LineItems: []model.LineItem{
			{Key: "hires", Label: "증가 인원", Value: 3, Unit: "명", Source: model.LineFromNPS, Editable: true},
			{Key: "credit_per_hire", Label: "1인당 공제액", Value: 7_000_000, Source: model.LineFromTaxLaw},
		},
		Subtotals:     []model.Subtotal{{Label: "공제액", Keys: []string{"credit_per_hire"}}},
		UserOverrides: map[string]int64{},
	}
	opp.Worksheet.Recompute()
	opp.EstimatedRefund = opp.Worksheet.TotalRefund
	require.NoError(t, opp.TransitionTo(model.StatusReviewing))
	require.NoError(t, store.UpdateOpportunity(ctx, "scan-1", opp))

	got, err := store.GetOpportunity(ctx, "scan-1", "opp-1")
	require.NoError(t, err)
	require.NotNil(t, got.Worksheet)
	assert.Equal(t, model.StatusReviewing, got.Status)
	assert.Equal(t, int64(7_000_000), got.EstimatedRefund)
	assert.Equal(t, got.Worksheet.TotalRefund, got.EstimatedRefund)

	// Scan total follows the opportunity update
	scan, err := store.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(48_000_000+7_000_000), scan.TotalEstimatedRefund)
}

func TestUpdateOpportunityDismissedExcludedFromTotal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveScan(ctx, sampleScan()))

	opp, err := store.GetOpportunity(ctx, "scan-1", "opp-2")
	require.NoError(t, err)
	require.NoError(t, opp.TransitionTo(model.StatusDismissed))
	require.NoError(t, store.UpdateOpportunity(ctx, "scan-1", opp))

	scan, err := store.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(21_000_000), scan.TotalEstimatedRefund)
}

func TestGetOpportunityNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveScan(ctx, sampleScan()))

	_, err := store.GetOpportunity(ctx, "scan-1", "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}
