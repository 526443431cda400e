// Package rates implements the external exchange-rate source over HTTP.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultBaseURL is the public endpoint serving daily rate tables; the
// base currency code is appended as the final path segment.
const DefaultBaseURL = "https://open.er-api.com/v6/latest"

// Client fetches a full "base -> all currencies" rate table with a single
// GET per call. The source is treated as unreliable: one attempt, a
// bounded timeout, and every failure reported to the caller, who degrades
// to cached or built-in rates.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// payload is the provider's response shape: a success indicator plus the
// rate mapping.
type payload struct {
	Result string             `json:"result"`
	Base   string             `json:"base_code"`
	Rates  map[string]float64 `json:"rates"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch implements currency.RateSource.
func (c *Client) Fetch(ctx context.Context, base string) (map[string]float64, error) {
	url := c.baseURL + "/" + base

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var body payload
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rate payload: %w", err)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("rate source reported %q", body.Result)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("rate payload contains no rates")
	}

	return body.Rates, nil
}
