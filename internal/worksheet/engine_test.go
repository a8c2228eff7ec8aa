package worksheet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeonjae-dev/bizradar/internal/common"
	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/notestore"
	"github.com/yeonjae-dev/bizradar/internal/service"
	"github.com/yeonjae-dev/bizradar/internal/storage"
)

type stubAnalyzer struct {
	worksheet *model.Worksheet
	err       error
	calls     int
}

func (s *stubAnalyzer) AnalyzeFit(context.Context, model.CompanyProfile, model.Program) (model.FitAnalysis, error) {
	return model.FitAnalysis{}, nil
}

func (s *stubAnalyzer) Summarize(context.Context, model.Program) (string, error) {
	return "", nil
}

func (s *stubAnalyzer) AnalyzeTaxOpportunities(context.Context, model.CompanyProfile, map[string]bool) ([]model.Opportunity, error) {
	return nil, nil
}

func (s *stubAnalyzer) GenerateWorksheet(context.Context, model.CompanyProfile, model.Opportunity) (*model.Worksheet, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.worksheet.Clone(), nil
}

func payrollWorksheet() *model.Worksheet {
	return &model.Worksheet{
		Title: "고용증대 세액공제 산출",
		LineItems: []model.LineItem{
			{Key: "salary", Label: "총 급여", Value: 30_000_000, Source: model.LineFromNPS, Editable: true},
			{Key: "bonus", Label: "상여금", Value: 5_000_000, Source: model.LineFromProfile, Editable: false},
		},
		Subtotals:     []model.Subtotal{{Label: "합계", Keys: []string{"salary", "bonus"}}},
		UserOverrides: map[string]int64{},
	}
}

func newTestEngine(t *testing.T, an service.Analyzer) (*Engine, service.ScanStore) {
	t.Helper()
	ctx := context.Background()

	notes, err := notestore.New(t.TempDir())
	require.NoError(t, err)
	profile := model.CompanyProfile{Name: "테크스타트", Industry: "소프트웨어"}
	require.NoError(t, notes.Write(ctx, "company/profile", &profile, ""))

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { _ = store.Close() })

	scan := &model.TaxScan{
		ID:        "scan-1",
		ScannedAt: time.Now(),
		Opportunities: []model.Opportunity{
			{ID: "opp-1", TaxBenefitCode: "조특법 §29-7", Title: "고용증대 세액공제",
				EstimatedRefund: 20_000_000, Status: model.StatusIdentified},
		},
	}
	scan.RecomputeTotal()
	require.NoError(t, store.SaveScan(ctx, scan))

	return NewEngine(notes, an, store), store
}

func TestGenerate(t *testing.T) {
	an := &stubAnalyzer{worksheet: payrollWorksheet()}
	engine, store := newTestEngine(t, an)
	ctx := context.Background()

	opp, err := engine.Generate(ctx, "scan-1", "opp-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusReviewing, opp.Status)
	require.NotNil(t, opp.Worksheet)
	assert.Equal(t, int64(35_000_000), opp.Worksheet.TotalRefund)
	assert.Equal(t, opp.Worksheet.TotalRefund, opp.EstimatedRefund,
		"estimated refund mirrors the worksheet total")

	// Persisted
	saved, err := store.GetOpportunity(ctx, "scan-1", "opp-1")
	require.NoError(t, err)
	require.NotNil(t, saved.Worksheet)
	assert.Equal(t, int64(35_000_000), saved.EstimatedRefund)
}

func TestGenerateRejectsExistingWorksheet(t *testing.T) {
	an := &stubAnalyzer{worksheet: payrollWorksheet()}
	engine, _ := newTestEngine(t, an)
	ctx := context.Background()

	_, err := engine.Generate(ctx, "scan-1", "opp-1")
	require.NoError(t, err)

	_, err = engine.Generate(ctx, "scan-1", "opp-1")
	require.ErrorIs(t, err, ErrWorksheetExists)
	assert.Equal(t, 1, an.calls)
}

func TestGenerateUnknownOpportunity(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAnalyzer{worksheet: payrollWorksheet()})
	_, err := engine.Generate(context.Background(), "scan-1", "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestApplyOverride(t *testing.T) {
	engine, store := newTestEngine(t, &stubAnalyzer{worksheet: payrollWorksheet()})
	ctx := context.Background()
	_, err := engine.Generate(ctx, "scan-1", "opp-1")
	require.NoError(t, err)

	opp, err := engine.ApplyOverride(ctx, "scan-1", "opp-1", "salary", 40_000_000)
	require.NoError(t, err)

	assert.Equal(t, int64(45_000_000), opp.Worksheet.TotalRefund)
	assert.Equal(t, int64(45_000_000), opp.EstimatedRefund)

	salary, _ := opp.Worksheet.Item("salary")
	assert.Equal(t, int64(40_000_000), salary.Value)
	assert.Equal(t, model.LineFromUser, salary.Source)
	bonus, _ := opp.Worksheet.Item("bonus")
	assert.Equal(t, int64(5_000_000), bonus.Value, "untouched line items keep their value")
	assert.Equal(t, map[string]int64{"salary": 40_000_000}, opp.Worksheet.UserOverrides)

	// Scan total follows
	scan, err := store.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(45_000_000), scan.TotalEstimatedRefund)
}

func TestApplyOverrideRejectsNonEditable(t *testing.T) {
	engine, store := newTestEngine(t, &stubAnalyzer{worksheet: payrollWorksheet()})
	ctx := context.Background()
	_, err := engine.Generate(ctx, "scan-1", "opp-1")
	require.NoError(t, err)

	_, err = engine.ApplyOverride(ctx, "scan-1", "opp-1", "bonus", 1)
	require.ErrorIs(t, err, ErrNotEditable)

	_, err = engine.ApplyOverride(ctx, "scan-1", "opp-1", "missing", 1)
	require.ErrorIs(t, err, ErrUnknownLineItem)

	// Stored worksheet is untouched after rejections
	saved, err := store.GetOpportunity(ctx, "scan-1", "opp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(35_000_000), saved.Worksheet.TotalRefund)
	assert.Empty(t, saved.Worksheet.UserOverrides)
}

func TestApplyOverridesAllOrNothing(t *testing.T) {
	engine, store := newTestEngine(t, &stubAnalyzer{worksheet: payrollWorksheet()})
	ctx := context.Background()
	_, err := engine.Generate(ctx, "scan-1", "opp-1")
	require.NoError(t, err)

	_, err = engine.ApplyOverrides(ctx, "scan-1", "opp-1", map[string]int64{
		"salary": 40_000_000,
		"bonus":  9_000_000, // not editable, poisons the whole batch
	})
	require.ErrorIs(t, err, ErrNotEditable)

	saved, err := store.GetOpportunity(ctx, "scan-1", "opp-1")
	require.NoError(t, err)
	salary, _ := saved.Worksheet.Item("salary")
	assert.Equal(t, int64(30_000_000), salary.Value, "no partial application")
}

func TestApplyOverrideWithoutWorksheet(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAnalyzer{worksheet: payrollWorksheet()})
	_, err := engine.ApplyOverride(context.Background(), "scan-1", "opp-1", "salary", 1)
	require.ErrorIs(t, err, ErrNoWorksheet)
}

func TestOverrideTotalStaysConsistent(t *testing.T) {
	engine, _ := newTestEngine(t, &stubAnalyzer{worksheet: payrollWorksheet()})
	ctx := context.Background()
	_, err := engine.Generate(ctx, "scan-1", "opp-1")
	require.NoError(t, err)

	values := []int64{10_000_000, 80_000_000, 0, 55_000_000}
	for _, v := range values {
		opp, err := engine.ApplyOverride(ctx, "scan-1", "opp-1", "salary", v)
		require.NoError(t, err)

		// Recompute from scratch and compare with the stored total
		check := opp.Worksheet.Clone()
		check.Recompute()
		assert.Equal(t, check.TotalRefund, opp.Worksheet.TotalRefund)
		assert.Equal(t, v+5_000_000, opp.Worksheet.TotalRefund)
	}
}

func TestUpdateStatus(t *testing.T) {
	engine, store := newTestEngine(t, &stubAnalyzer{worksheet: payrollWorksheet()})
	ctx := context.Background()
	_, err := engine.Generate(ctx, "scan-1", "opp-1")
	require.NoError(t, err)

	opp, err := engine.UpdateStatus(ctx, "scan-1", "opp-1", model.StatusFiled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFiled, opp.Status)

	// filed -> reviewing is not in the transition set
	_, err = engine.UpdateStatus(ctx, "scan-1", "opp-1", model.StatusReviewing)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	saved, err := store.GetOpportunity(ctx, "scan-1", "opp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFiled, saved.Status, "rejected transition leaves status unchanged")
}
