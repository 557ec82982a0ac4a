package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pix-gateway/internal/core/ports"

	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials is the decrypted credentials blob stored on an acquirer.
type Credentials struct {
	APIKey   string `json:"api_key"`
	ClientID string `json:"client_id,omitempty"`
}

// StatusError is returned when the acquirer answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("acquirer returned http %d", e.StatusCode)
	}
	return fmt.Sprintf("acquirer returned http %d: %s", e.StatusCode, e.Body)
}

type chargeRequest struct {
	Amount      int64     `json:"amount"`
	Description string    `json:"description,omitempty"`
	Customer    *customer `json:"customer,omitempty"`
	CallbackURL string    `json:"callback_url,omitempty"`
	ReferenceID string    `json:"reference_id"`
}

type customer struct {
	Name     string `json:"name,omitempty"`
	Document string `json:"document,omitempty"`
}

type chargeResponse struct {
	ID         string     `json:"id"`
	PixPayload string     `json:"pix_payload"`
	QRCode     string     `json:"qr_code"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// HTTPClient is a JSON REST client for one acquirer.
type HTTPClient struct {
	code    string
	baseURL string
	creds   Credentials
	http    HTTPDoer
	limiter *rate.Limiter
}

// NewHTTPClient creates a client for the acquirer API rooted at baseURL.
// limiter may be nil for unthrottled calls.
func NewHTTPClient(code, baseURL string, creds Credentials, doer HTTPDoer, limiter *rate.Limiter) *HTTPClient {
	return &HTTPClient{
		code:    code,
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    doer,
		limiter: limiter,
	}
}

// CreateCharge issues a PIX charge at the acquirer.
func (c *HTTPClient) CreateCharge(ctx context.Context, req ports.ChargeRequest) (*ports.ChargeResult, error) {
	body := chargeRequest{
		Amount:      req.AmountMinor,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		ReferenceID: req.ReferenceID,
	}
	if req.CustomerName != "" || req.CustomerDocument != "" {
		body.Customer = &customer{Name: req.CustomerName, Document: req.CustomerDocument}
	}

	var resp chargeResponse
	if err := c.do(ctx, http.MethodPost, "/charges", body, &resp); err != nil {
		return nil, err
	}

	payload := resp.PixPayload
	if payload == "" {
		payload = resp.QRCode
	}
	return &ports.ChargeResult{
		ProviderID: resp.ID,
		PixPayload: payload,
		ExpiresAt:  resp.ExpiresAt,
	}, nil
}

// CancelCharge cancels a pending charge at the acquirer.
func (c *HTTPClient) CancelCharge(ctx context.Context, providerID string) error {
	return c.do(ctx, http.MethodPost, "/charges/"+url.PathEscape(providerID)+"/cancel", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limiter: %w", c.code, err)
		}
	}

	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.APIKey)
	}
	if c.creds.ClientID != "" {
		req.Header.Set("X-Client-Id", c.creds.ClientID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
