// Package gateway implements the HTTP client for the external payment provider.
// The provider is treated as a black box: the only trusted signal about a
// transaction's outcome is the response to a verify call.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"backoffice/internal/core"

	"github.com/shopspring/decimal"
)

const defaultTimeout = 15 * time.Second

// Client talks to the payment provider's REST API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

var _ core.PaymentGateway = (*Client)(nil)

// NewClient builds a provider client. baseURL is the API root without a
// trailing slash, secretKey the bearer credential.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type initializePayload struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	Customer  struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Phone string `json:"phone,omitempty"`
	} `json:"customer"`
}

type initializeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
		ID   string `json:"id"`
	} `json:"data"`
}

type verifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status   string          `json:"status"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Card     struct {
			Type  string `json:"type"`
			Last4 string `json:"last_4digits"`
		} `json:"card"`
	} `json:"data"`
}

// Initialize starts a hosted checkout session and returns the redirect link
// plus the provider's transaction id.
func (c *Client) Initialize(ctx context.Context, req core.GatewayInitRequest) (*core.GatewayInitResult, error) {
	payload := initializePayload{
		Amount:    req.Amount.String(),
		Currency:  req.Currency,
		Reference: req.Reference,
	}
	payload.Customer.Email = req.Customer.Email
	payload.Customer.Name = req.Customer.Name
	payload.Customer.Phone = req.Customer.Phone

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode initialize payload: %w", err)
	}

	var resp initializeResponse
	if err := c.do(ctx, http.MethodPost, "/payments", body, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("gateway rejected initialization: %s", resp.Message)
	}
	if resp.Data.Link == "" {
		return nil, fmt.Errorf("gateway returned no payment link for reference %s", req.Reference)
	}
	return &core.GatewayInitResult{
		PaymentLink: resp.Data.Link,
		ExternalRef: resp.Data.ID,
	}, nil
}

// Verify fetches the provider's authoritative record for a transaction
// reference. Callers must treat anything other than a "successful" status with
// a matching amount as not paid.
func (c *Client) Verify(ctx context.Context, reference string) (*core.GatewayVerifyResult, error) {
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)

	var resp verifyResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("gateway verification rejected for %s: %s", reference, resp.Message)
	}
	return &core.GatewayVerifyResult{
		Status:    resp.Data.Status,
		Amount:    resp.Data.Amount,
		Currency:  resp.Data.Currency,
		CardType:  resp.Data.Card.Type,
		CardLast4: resp.Data.Card.Last4,
	}, nil
}

// do issues one request with auth headers and decodes the JSON response.
// Transport-level failures are retried once; HTTP error statuses are not, since
// the provider has already seen the request.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		resp, err = c.send(ctx, method, path, body)
		if err != nil {
			return fmt.Errorf("gateway request %s %s failed after retry: %w", method, path, err)
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
