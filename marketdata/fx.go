package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFXBaseURL is the public Frankfurter exchange-rate API.
const DefaultFXBaseURL = "https://api.frankfurter.app"

// FXClient fetches currency exchange rates over HTTP.
type FXClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ RateSource = (*FXClient)(nil)

// FXClientConfig configures the FX client.
type FXClientConfig struct {
	// BaseURL overrides the rate API endpoint. Defaults to Frankfurter.
	BaseURL string

	// Timeout is the HTTP request timeout. Defaults to 10s.
	Timeout time.Duration
}

// NewFXClient creates a new exchange-rate client.
func NewFXClient(cfg FXClientConfig) *FXClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultFXBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &FXClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]json.RawMessage `json:"rates"`
}

// Rate returns the latest from→to exchange rate.
func (c *FXClient) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return decimal.Zero, fmt.Errorf("currency pair incomplete: %q/%q", from, to)
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	endpoint := fmt.Sprintf("%s/latest?%s", c.baseURL, url.Values{
		"from": {from},
		"to":   {to},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decimal.Zero, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed ratesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("unexpected rate response: %w", err)
	}

	raw, ok := parsed.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("pair %s/%s unresolvable", from, to)
	}
	rate, err := decimal.NewFromString(strings.Trim(string(raw), `"`))
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable rate for %s/%s: %w", from, to, err)
	}
	return rate, nil
}
