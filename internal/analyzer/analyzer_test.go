package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeonjae-dev/bizradar/internal/model"
)

var testProfile = model.CompanyProfile{
	Name:          "테크스타트",
	Industry:      "소프트웨어 개발",
	Region:        "서울",
	FoundedYear:   2019,
	Employees:     24,
	AnnualRevenue: 3_200_000_000,
}

func TestAnalyzeFit(t *testing.T) {
	client := NewMockClient()
	client.Respond("subsidy program analyst", "```json\n"+
		`{"score": 82, "eligibility": "신청 가능", "dimensions": {"region": 100, "industry": 90},
		  "strengths": ["업종 일치"], "weaknesses": ["업력 부족"], "advice": "증빙 준비"}`+"\n```")
	a := NewWithClient(client, time.Minute)

	fit, err := a.AnalyzeFit(context.Background(), testProfile, model.Program{
		Title:  "청년창업 지원사업",
		Agency: "중소벤처기업부",
	})
	require.NoError(t, err)
	assert.Equal(t, 82, fit.Score)
	assert.Equal(t, "신청 가능", fit.Eligibility)
	assert.Equal(t, 100, fit.Dimensions["region"])
	assert.Equal(t, []string{"업종 일치"}, fit.Strengths)
}

func TestAnalyzeFitRejectsOutOfRangeScore(t *testing.T) {
	client := NewMockClient()
	client.Respond("subsidy program analyst", `{"score": 140}`)
	a := NewWithClient(client, time.Minute)

	_, err := a.AnalyzeFit(context.Background(), testProfile, model.Program{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestAnalyzeFitMalformedJSON(t *testing.T) {
	client := NewMockClient()
	client.DefaultResponse = "죄송하지만 분석할 수 없습니다."
	a := NewWithClient(client, time.Minute)

	_, err := a.AnalyzeFit(context.Background(), testProfile, model.Program{Title: "x"})
	require.Error(t, err)
}

func TestCompleteCachesResponses(t *testing.T) {
	client := NewMockClient()
	client.Respond("summarize", "지원사업 요약입니다.")
	a := NewWithClient(client, time.Minute)

	program := model.Program{Title: "수출바우처", Agency: "산업통상자원부"}
	first, err := a.Summarize(context.Background(), program)
	require.NoError(t, err)
	second, err := a.Summarize(context.Background(), program)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.CallCount())

	// A different program misses the cache
	_, err = a.Summarize(context.Background(), model.Program{Title: "다른 사업"})
	require.NoError(t, err)
	assert.Equal(t, 2, client.CallCount())
}

func TestAnalyzeTaxOpportunities(t *testing.T) {
	client := NewMockClient()
	client.Respond("tax specialist", `{"opportunities": [
		{"taxBenefitCode": "조특법 §29-7", "title": "고용증대 세액공제",
		 "estimatedRefund": 21000000, "confidence": 85, "difficulty": "MODERATE",
		 "dataSource": "NPS_API", "applicableYears": [2022, 2023]},
		{"taxBenefitCode": "", "title": "코드 없는 항목"},
		{"taxBenefitCode": "조특법 §10", "title": "연구인력개발비 세액공제",
		 "estimatedRefund": 48000000, "confidence": 130, "difficulty": "COMPLEX",
		 "dataSource": "ESTIMATED", "applicableYears": [2023]}
	]}`)
	a := NewWithClient(client, time.Minute)

	opps, err := a.AnalyzeTaxOpportunities(context.Background(), testProfile,
		map[string]bool{"nps": true, "dart": false})
	require.NoError(t, err)
	require.Len(t, opps, 2, "entries without a benefit code are dropped")

	first := opps[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, model.StatusIdentified, first.Status)
	assert.Equal(t, model.SourceNPS, first.DataSource)
	assert.Equal(t, int64(21_000_000), first.EstimatedRefund)
	assert.Equal(t, 100, opps[1].Confidence, "confidence is clamped to 100")
	assert.NotEqual(t, opps[0].ID, opps[1].ID)
}

func TestGenerateWorksheetRecomputesTotals(t *testing.T) {
	client := NewMockClient()
	client.Respond("calculation worksheet", `{"title": "고용증대 세액공제 산출",
		"lineItems": [
			{"key": "hires", "label": "증가 인원", "value": 3, "unit": "명", "source": "NPS_API", "editable": true},
			{"key": "credit_per_hire", "label": "1인당 공제액", "value": 7000000, "source": "TAX_LAW"}
		],
		"subtotals": [{"label": "공제액", "keys": ["credit_per_hire"]}],
		"assumptions": ["상시근로자 기준"]}`)
	a := NewWithClient(client, time.Minute)

	ws, err := a.GenerateWorksheet(context.Background(), testProfile, model.Opportunity{
		ID:             "opp-1",
		TaxBenefitCode: "조특법 §29-7",
		Title:          "고용증대 세액공제",
	})
	require.NoError(t, err)
	require.Len(t, ws.LineItems, 2)
	assert.Equal(t, int64(7_000_000), ws.TotalRefund)
	assert.NotNil(t, ws.UserOverrides)
	assert.True(t, ws.LineItems[0].Editable)
}

func TestGenerateWorksheetRejectsDuplicateKeys(t *testing.T) {
	client := NewMockClient()
	client.Respond("calculation worksheet", `{"title": "t", "lineItems": [
		{"key": "a", "value": 1}, {"key": "a", "value": 2}]}`)
	a := NewWithClient(client, time.Minute)

	_, err := a.GenerateWorksheet(context.Background(), testProfile, model.Opportunity{ID: "opp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unique keys")
}

func TestGenerateWorksheetEmpty(t *testing.T) {
	client := NewMockClient()
	client.Respond("calculation worksheet", `{"title": "t", "lineItems": []}`)
	a := NewWithClient(client, time.Minute)

	_, err := a.GenerateWorksheet(context.Background(), testProfile, model.Opportunity{ID: "opp-1"})
	require.Error(t, err)
}

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.input))
		})
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := newClient(Config{Provider: "palantir"})
	require.Error(t, err)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := newClient(Config{Provider: "anthropic"})
	require.Error(t, err)
}
