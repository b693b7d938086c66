// Package coingecko fetches a USD reference price for the path's entry token
// from the CoinGecko simple-price API, or any endpoint that speaks the same
// response shape. The price is recorded alongside each quote round for later
// inspection; it never feeds the trade decision.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultTimeout bounds a single price fetch. A slow feed must not hold up
// the quote phase.
const defaultTimeout = 10 * time.Second

// apiKeyHeader is the demo-tier CoinGecko authentication header.
const apiKeyHeader = "x-cg-demo-api-key"

// apiKeyPlaceholder is substituted in the price URL when present, for
// endpoints that carry the key as a query parameter instead of a header.
const apiKeyPlaceholder = "{api_key}"

// Client is an HTTP client for a simple-price endpoint. The configured URL is
// the complete query, e.g.
// "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd".
type Client struct {
	priceURL   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a price feed client. apiKey may be empty for keyless
// endpoints; timeout <= 0 falls back to the default.
func NewClient(priceURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		priceURL: strings.TrimSpace(priceURL),
		apiKey:   strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RefPrice fetches the configured quote and returns its USD value. The
// response is expected to be the CoinGecko simple-price shape,
// {"<id>": {"usd": <price>}}; the first usd entry found is returned.
func (c *Client) RefPrice(ctx context.Context) (float64, error) {
	url := c.priceURL
	if strings.Contains(url, apiKeyPlaceholder) {
		url = strings.ReplaceAll(url, apiKeyPlaceholder, c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" && !strings.Contains(c.priceURL, apiKeyPlaceholder) {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko: fetch price: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("coingecko: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coingecko: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var quotes map[string]map[string]float64
	if err := json.Unmarshal(body, &quotes); err != nil {
		return 0, fmt.Errorf("coingecko: decode response: %w", err)
	}
	for _, currencies := range quotes {
		if usd, ok := currencies["usd"]; ok {
			return usd, nil
		}
	}
	return 0, fmt.Errorf("coingecko: no usd quote in response")
}
