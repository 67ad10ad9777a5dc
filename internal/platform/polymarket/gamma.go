// Package polymarket reads market listings from the Polymarket Gamma API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

// DefaultGammaURL is the public Gamma API root.
const DefaultGammaURL = "https://gamma-api.polymarket.com"

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	pageSize   int
	maxPages   int
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client. pageSize and maxPages bound
// one listing; zero values mean 500 and 20.
func NewGammaClient(baseURL string, pageSize, maxPages int) *GammaClient {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	if maxPages <= 0 {
		maxPages = 20
	}
	return &GammaClient{
		baseURL:  baseURL,
		pageSize: pageSize,
		maxPages: maxPages,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Venue identifies the listing source.
func (g *GammaClient) Venue() domain.Venue { return domain.VenuePolymarket }

// GetMarkets returns one page of open markets.
func (g *GammaClient) GetMarkets(ctx context.Context, limit, offset int) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	return apiMarkets, nil
}

// ListOpenMarkets pages through every open market, up to maxPages pages.
func (g *GammaClient) ListOpenMarkets(ctx context.Context) ([]domain.EligibleMarket, error) {
	var out []domain.EligibleMarket
	for page := 0; page < g.maxPages; page++ {
		batch, err := g.GetMarkets(ctx, g.pageSize, page*g.pageSize)
		if err != nil {
			return out, err
		}
		for i := range batch {
			if batch[i].Open() {
				out = append(out, batch[i].ToEligible())
			}
		}
		if len(batch) < g.pageSize {
			break
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
