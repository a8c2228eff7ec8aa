// Package source implements the public portal client that supplies raw
// subsidy program listings.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yeonjae-dev/bizradar/internal/common"
	"github.com/yeonjae-dev/bizradar/internal/model"
)

const defaultPageSize = 100

// PortalClient fetches program listings from the government portal API.
type PortalClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
}

// PortalConfig configures a PortalClient.
type PortalConfig struct {
	BaseURL  string
	APIKey   string
	PageSize int
	Timeout  time.Duration
}

// NewPortalClient creates a new portal client.
func NewPortalClient(cfg PortalConfig) (*PortalClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: portal base URL is required", common.ErrMissingConfig)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &PortalClient{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// listResponse is one page of the portal's listing endpoint.
type listResponse struct {
	Items      []model.RawProgram `json:"items"`
	Page       int                `json:"page"`
	TotalPages int                `json:"totalPages"`
}

// FetchAll retrieves every program listing, following pagination. Any
// transport or decode failure aborts the whole fetch.
func (c *PortalClient) FetchAll(ctx context.Context) ([]model.RawProgram, error) {
	var all []model.RawProgram
	for page := 1; ; page++ {
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Items...)
		if resp.TotalPages == 0 || page >= resp.TotalPages {
			break
		}
	}
	return all, nil
}

func (c *PortalClient) fetchPage(ctx context.Context, page int) (*listResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(c.pageSize))

	var resp listResponse
	if err := c.getJSON(ctx, "/api/programs?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchDetail retrieves the enrichment record for one program.
func (c *PortalClient) FetchDetail(ctx context.Context, externalID string) (model.ProgramDetail, error) {
	if externalID == "" {
		return model.ProgramDetail{}, fmt.Errorf("external ID is required")
	}

	var detail model.ProgramDetail
	if err := c.getJSON(ctx, "/api/programs/"+url.PathEscape(externalID), &detail); err != nil {
		return model.ProgramDetail{}, err
	}
	return detail, nil
}

func (c *PortalClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrSourceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", common.ErrSourceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: portal rate limited", common.ErrRateLimit)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: portal returned status %d", common.ErrSourceUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", common.ErrSourceUnavailable, err)
	}
	return nil
}
