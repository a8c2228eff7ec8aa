package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/yeonjae-dev/bizradar/internal/model"
)

const (
	fitSystemPrompt = "You are a government subsidy program analyst for Korean SMEs. " +
		"Score how well a program fits the company and respond only with JSON in the exact shape requested."
	taxSystemPrompt = "You are a Korean corporate tax specialist. Identify retroactive " +
		"tax-refund opportunities and respond only with JSON in the exact shape requested."
	worksheetSystemPrompt = "You are a Korean corporate tax specialist. Produce a refund " +
		"calculation worksheet and respond only with JSON in the exact shape requested."
	summarySystemPrompt = "You summarize Korean government subsidy program listings in two sentences. " +
		"Respond with the summary text only."
)

// Analyzer implements service.Analyzer over a raw LLM client with a
// response cache, so re-running a pipeline does not re-pay for prompts
// that were already answered.
type Analyzer struct {
	client Client
	cache  *gocache.Cache
}

// New creates an analyzer from configuration.
func New(cfg Config) (*Analyzer, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, cfg.CacheTTL), nil
}

// NewWithClient creates an analyzer around an existing client. Used by
// tests to substitute a stub provider.
func NewWithClient(client Client, cacheTTL time.Duration) *Analyzer {
	if cacheTTL == 0 {
		cacheTTL = 15 * time.Minute
	}
	return &Analyzer{
		client: client,
		cache:  gocache.New(cacheTTL, 5*time.Minute),
	}
}

// complete runs one cached completion.
func (a *Analyzer) complete(ctx context.Context, system, prompt string) (string, error) {
	key := cacheKey(system, prompt)
	if cached, found := a.cache.Get(key); found {
		if text, ok := cached.(string); ok {
			slog.Debug("Analyzer cache hit", "key", key[:12])
			return text, nil
		}
	}

	text, err := a.client.Complete(ctx, system, prompt)
	if err != nil {
		return "", err
	}

	a.cache.Set(key, text, gocache.DefaultExpiration)
	return text, nil
}

func cacheKey(system, prompt string) string {
	sum := sha256.Sum256([]byte(system + "\x00" + prompt))
	return fmt.Sprintf("%x", sum)
}

// AnalyzeFit scores how well one program fits the company.
func (a *Analyzer) AnalyzeFit(ctx context.Context, profile model.CompanyProfile, program model.Program) (model.FitAnalysis, error) {
	prompt := fmt.Sprintf(`Company:
- name: %s
- industry: %s
- region: %s
- employees: %d
- founded: %d
- annual revenue (KRW): %d

Program:
- title: %s
- agency: %s
- category: %s
- target region: %s
- target industry: %s
- support amount (KRW): %d
- description: %s

Respond with JSON: {"score": 0-100, "eligibility": string, "dimensions": {string: 0-100}, "strengths": [string], "weaknesses": [string], "advice": string}`,
		profile.Name, profile.Industry, profile.Region, profile.Employees, profile.FoundedYear, profile.AnnualRevenue,
		program.Title, program.Agency, program.Category, program.TargetRegion, program.TargetIndustry,
		program.SupportAmount, program.Description)

	content, err := a.complete(ctx, fitSystemPrompt, prompt)
	if err != nil {
		return model.FitAnalysis{}, err
	}

	var fit model.FitAnalysis
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &fit); err != nil {
		return model.FitAnalysis{}, fmt.Errorf("failed to parse fit analysis: %w", err)
	}
	if fit.Score < 0 || fit.Score > 100 {
		return model.FitAnalysis{}, fmt.Errorf("fit score %d out of range", fit.Score)
	}
	return fit, nil
}

// Summarize produces a short description of a program listing.
func (a *Analyzer) Summarize(ctx context.Context, program model.Program) (string, error) {
	prompt := fmt.Sprintf("Title: %s\nAgency: %s\nCategory: %s\n\n%s",
		program.Title, program.Agency, program.Category, program.Description)

	content, err := a.complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// taxOpportunityPayload mirrors the JSON shape the model is asked for.
type taxOpportunityPayload struct {
	TaxBenefitCode  string `json:"taxBenefitCode"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	EstimatedRefund int64  `json:"estimatedRefund"`
	Confidence      int    `json:"confidence"`
	Difficulty      string `json:"difficulty"`
	DataSource      string `json:"dataSource"`
	ApplicableYears []int  `json:"applicableYears"`
}

// AnalyzeTaxOpportunities detects refund opportunities from the company
// profile and the set of fiscal data sources that responded.
func (a *Analyzer) AnalyzeTaxOpportunities(ctx context.Context, profile model.CompanyProfile, sources map[string]bool) ([]model.Opportunity, error) {
	available := make([]string, 0, len(sources))
	for name, ok := range sources {
		if ok {
			available = append(available, name)
		}
	}

	prompt := fmt.Sprintf(`Company:
- name: %s
- industry: %s
- employees: %d
- founded: %d
- annual revenue (KRW): %d

Available fiscal data sources: %s

List retroactive tax-refund opportunities under Korean tax law. Respond with JSON:
{"opportunities": [{"taxBenefitCode": string, "title": string, "description": string, "estimatedRefund": KRW int, "confidence": 0-100, "difficulty": "EASY"|"MODERATE"|"COMPLEX", "dataSource": "NPS_API"|"DART_API"|"EI_API"|"COMPANY_PROFILE"|"ESTIMATED", "applicableYears": [int]}]}`,
		profile.Name, profile.Industry, profile.Employees, profile.FoundedYear, profile.AnnualRevenue,
		strings.Join(available, ", "))

	content, err := a.complete(ctx, taxSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Opportunities []taxOpportunityPayload `json:"opportunities"`
	}
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tax opportunities: %w", err)
	}

	now := time.Now()
	opps := make([]model.Opportunity, 0, len(parsed.Opportunities))
	for _, p := range parsed.Opportunities {
		if p.TaxBenefitCode == "" || p.Title == "" {
			slog.Warn("Dropping opportunity without code or title")
			continue
		}
		opps = append(opps, model.Opportunity{
			ID:              uuid.NewString(),
			TaxBenefitCode:  p.TaxBenefitCode,
			Title:           p.Title,
			Description:     p.Description,
			EstimatedRefund: p.EstimatedRefund,
			Confidence:      clampPercent(p.Confidence),
			Difficulty:      model.Difficulty(p.Difficulty),
			DataSource:      model.DataSource(p.DataSource),
			ApplicableYears: p.ApplicableYears,
			Status:          model.StatusIdentified,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return opps, nil
}

// worksheetPayload mirrors the JSON shape the model is asked for.
type worksheetPayload struct {
	Title     string `json:"title"`
	LineItems []struct {
		Key      string `json:"key"`
		Label    string `json:"label"`
		Value    int64  `json:"value"`
		Text     string `json:"text"`
		Unit     string `json:"unit"`
		Source   string `json:"source"`
		Editable bool   `json:"editable"`
	} `json:"lineItems"`
	Subtotals []struct {
		Label string   `json:"label"`
		Keys  []string `json:"keys"`
	} `json:"subtotals"`
	Assumptions []string `json:"assumptions"`
}

// GenerateWorksheet builds the line-item breakdown for one opportunity.
// Totals are recomputed locally; the model only supplies structure and
// input values.
func (a *Analyzer) GenerateWorksheet(ctx context.Context, profile model.CompanyProfile, opp model.Opportunity) (*model.Worksheet, error) {
	prompt := fmt.Sprintf(`Company: %s (%s, %d employees)
Opportunity: %s (%s)
Estimated refund (KRW): %d
Applicable years: %v

Produce the calculation worksheet. Respond with JSON:
{"title": string, "lineItems": [{"key": string, "label": string, "value": KRW int, "text": string, "unit": string, "source": "NPS_API"|"COMPANY_PROFILE"|"USER_INPUT"|"CALCULATED"|"TAX_LAW", "editable": bool}], "subtotals": [{"label": string, "keys": [string]}], "assumptions": [string]}`,
		profile.Name, profile.Industry, profile.Employees,
		opp.Title, opp.TaxBenefitCode, opp.EstimatedRefund, opp.ApplicableYears)

	content, err := a.complete(ctx, worksheetSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var parsed worksheetPayload
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse worksheet: %w", err)
	}
	if len(parsed.LineItems) == 0 {
		return nil, fmt.Errorf("worksheet has no line items")
	}

	ws := &model.Worksheet{
		Title:         parsed.Title,
		Assumptions:   parsed.Assumptions,
		UserOverrides: map[string]int64{},
	}
	seen := make(map[string]bool, len(parsed.LineItems))
	for _, li := range parsed.LineItems {
		if li.Key == "" || seen[li.Key] {
			return nil, fmt.Errorf("worksheet line items must have unique keys")
		}
		seen[li.Key] = true
		ws.LineItems = append(ws.LineItems, model.LineItem{
			Key:      li.Key,
			Label:    li.Label,
			Value:    li.Value,
			Text:     li.Text,
			Unit:     li.Unit,
			Source:   model.LineItemSource(li.Source),
			Editable: li.Editable,
		})
	}
	for _, st := range parsed.Subtotals {
		ws.Subtotals = append(ws.Subtotals, model.Subtotal{Label: st.Label, Keys: st.Keys})
	}

	ws.Recompute()
	return ws, nil
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
