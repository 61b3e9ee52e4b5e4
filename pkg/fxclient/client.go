/**
 * @description
 * This package provides a client for the hosted FX rate provider. It
 * encapsulates the logic for making authenticated HTTP requests to the
 * provider's rate endpoint, handling response parsing and typed errors.
 * The client satisfies the wizard's RateLookup capability, making the
 * rate lookup an injected, fallible, cancellable dependency instead of a
 * hard-coded constant.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: For the corridor descriptor.
 */
package fxclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/velopay/remittance-service/internal/domain"
)

// Client is a client for the FX rate provider API.
type Client struct {
	BaseURL      string
	APIKey       string
	BaseCurrency string
	HTTPClient   *http.Client
}

// NewClient creates a new FX provider client. baseCurrency is the home
// currency every quote is priced from (AED for this service).
func NewClient(baseURL, apiKey, baseCurrency string) *Client {
	return &Client{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		BaseCurrency: baseCurrency,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RateResponse is the expected response from the provider's rate endpoint.
type RateResponse struct {
	Data struct {
		Base      string  `json:"base"`
		Quote     string  `json:"quote"`
		Rate      float64 `json:"rate"`
		Timestamp int64   `json:"timestamp"`
	} `json:"data"`
}

// ErrorResponse represents an error from the FX provider API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("fx api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown fx api error"
}

// Rate fetches the current unit conversion rate from the home currency to
// the destination corridor's currency.
func (c *Client) Rate(ctx context.Context, country domain.CountryDescriptor) (float64, error) {
	url := fmt.Sprintf("%s/v1/rates/%s/%s", c.BaseURL, c.BaseCurrency, country.CurrencyCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && len(apiErr.Errors) > 0 {
			return 0, &apiErr
		}
		return 0, fmt.Errorf("fx api returned status %d", resp.StatusCode)
	}

	var rateResp RateResponse
	if err := json.Unmarshal(body, &rateResp); err != nil {
		return 0, fmt.Errorf("fx rate response parse failed: %w", err)
	}
	if rateResp.Data.Rate <= 0 {
		return 0, fmt.Errorf("fx api returned non-positive rate %v for %s", rateResp.Data.Rate, country.CurrencyCode)
	}
	return rateResp.Data.Rate, nil
}
