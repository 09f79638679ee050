// Package billing talks to the billing backend: login, bill queries, and
// payments. It owns the per-subscriber token cache and the dispatcher that
// executes structured intents, classifying every failure so nothing raw
// escapes to the caller.
package billing

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"billgate/internal/config"
)

// APIError is a non-2xx response from the billing backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("billing backend returned status %d: %s", e.StatusCode, e.Body)
}

// RateLimited reports whether the backend rejected the call for exceeding
// its request quota.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// BadRequest reports whether the backend rejected the request shape or
// semantics (any 400-class status).
func (e *APIError) BadRequest() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Client is an HTTP client for the billing backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a billing backend client. All calls share one pooled
// transport with the configured timeout; InsecureSkipVerify supports local
// backends with self-signed certificates.
func NewClient(cfg config.BillingConfig, log *slog.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // local backend support
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		log: log.With("component", "billing_client"),
	}
}

// loginResponse is the backend's answer to a login call.
type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges a subscriber phone number for a bearer token.
func (c *Client) Login(ctx context.Context, phoneNumber string) (string, error) {
	var resp loginResponse
	body := map[string]string{"phoneNumber": phoneNumber}
	if err := c.do(ctx, http.MethodPost, "/Auth/login", "", nil, body, &resp); err != nil {
		return "", fmt.Errorf("login failed for %s: %w", phoneNumber, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login for %s returned no token", phoneNumber)
	}
	return resp.Token, nil
}

// FetchBill retrieves the bill for the token's subscriber and the given
// period.
func (c *Client) FetchBill(ctx context.Context, token, month string) (*BillResponse, error) {
	var resp BillResponse
	query := url.Values{"month": {month}}
	if err := c.do(ctx, http.MethodGet, "/Subscriber/bills", token, query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchDetailedBills retrieves a page of the subscriber's itemized bills.
func (c *Client) FetchDetailedBills(ctx context.Context, token string, page, pageSize int) (*DetailedBillsResponse, error) {
	var resp DetailedBillsResponse
	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(pageSize)},
	}
	if err := c.do(ctx, http.MethodGet, "/Subscriber/bills/detailed", token, query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pay submits a payment for the given subscriber and period.
func (c *Client) Pay(ctx context.Context, token, phoneNumber, month string, amount float64) (*PaymentResponse, error) {
	var resp PaymentResponse
	body := map[string]any{
		"phoneNumber":   phoneNumber,
		"month":         month,
		"paymentAmount": amount,
	}
	if err := c.do(ctx, http.MethodPost, "/Payment/pay", token, nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs one backend call. Non-2xx statuses become *APIError; transport
// failures are returned as-is for the dispatcher's connectivity
// classification.
func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "Billing backend call failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("billing backend unreachable: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WarnContext(ctx, "Error closing response body", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.log.DebugContext(ctx, "Billing backend call finished",
		"method", method, "path", path, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode backend response: %w", err)
		}
	}
	return nil
}
