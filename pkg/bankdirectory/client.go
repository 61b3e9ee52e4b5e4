/**
 * @description
 * This package provides a client for the bank directory service that
 * resolves an IBAN into full bank details (bank name, account title, SWIFT
 * code, branch, address). It satisfies the wizard's BankResolver capability:
 * resolution is a fallible, cancellable network call, not a guaranteed
 * synchronous success.
 *
 * A StaticResolver is also provided for development and test environments
 * where no directory is configured; it returns fixed placeholder details
 * behind the same interface.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: For the bank details model.
 */
package bankdirectory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/velopay/remittance-service/internal/domain"
)

// ErrIBANNotFound is returned when the directory has no record for an IBAN.
var ErrIBANNotFound = errors.New("iban not found in bank directory")

// Client is a client for the bank directory API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new bank directory client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ResolutionRequest is the payload for an IBAN resolution.
type ResolutionRequest struct {
	Data struct {
		IBAN string `json:"iban"`
	} `json:"data"`
}

// ResolutionResponse is the expected response from the resolution endpoint.
type ResolutionResponse struct {
	Data struct {
		BankName     string `json:"bank_name"`
		AccountTitle string `json:"account_title"`
		SwiftCode    string `json:"swift_code"`
		Branch       string `json:"branch"`
		Address      string `json:"address"`
	} `json:"data"`
}

// ErrorResponse represents an error from the bank directory API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("bank directory error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown bank directory error"
}

// Resolve looks up the bank details behind an IBAN.
func (c *Client) Resolve(ctx context.Context, iban string) (*domain.BankDetails, error) {
	var payload ResolutionRequest
	payload.Data.IBAN = iban
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/iban/resolutions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrIBANNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if jsonErr := json.Unmarshal(respBody, &apiErr); jsonErr == nil && len(apiErr.Errors) > 0 {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("bank directory returned status %d", resp.StatusCode)
	}

	var resolution ResolutionResponse
	if err := json.Unmarshal(respBody, &resolution); err != nil {
		return nil, fmt.Errorf("bank directory response parse failed: %w", err)
	}
	if resolution.Data.BankName == "" {
		return nil, ErrIBANNotFound
	}

	return &domain.BankDetails{
		BankName:     resolution.Data.BankName,
		AccountTitle: resolution.Data.AccountTitle,
		SwiftCode:    resolution.Data.SwiftCode,
		Branch:       resolution.Data.Branch,
		Address:      resolution.Data.Address,
	}, nil
}

// StaticResolver returns fixed placeholder bank details for every IBAN.
// Used when no bank directory is configured.
type StaticResolver struct{}

func (StaticResolver) Resolve(ctx context.Context, iban string) (*domain.BankDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &domain.BankDetails{
		BankName:     "Emirates National Bank",
		AccountTitle: "Account Holder",
		SwiftCode:    "EBILAEAD",
		Branch:       "Main Branch",
		Address:      "Dubai, UAE",
	}, nil
}
