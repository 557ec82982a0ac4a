package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pix-gateway/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestHTTPClient_CreateCharge(t *testing.T) {
	var got chargeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/charges", r.URL.Path)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		assert.Equal(t, "client-9", r.Header.Get("X-Client-Id"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ch_1","qr_code":"000201...","expires_at":"2026-10-18T12:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("acme", srv.URL+"/v2/", Credentials{APIKey: "key-123", ClientID: "client-9"}, srv.Client(), nil)
	res, err := c.CreateCharge(context.Background(), ports.ChargeRequest{
		AmountMinor:      1050,
		Description:      "order 42",
		CustomerName:     "Maria",
		CustomerDocument: "12345678909",
		CallbackURL:      "https://gw.example.com/webhooks/acme",
		ReferenceID:      "PEDIDO42",
	})
	require.NoError(t, err)

	assert.Equal(t, "ch_1", res.ProviderID)
	assert.Equal(t, "000201...", res.PixPayload)
	require.NotNil(t, res.ExpiresAt)
	assert.True(t, res.ExpiresAt.Equal(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)))

	assert.Equal(t, int64(1050), got.Amount)
	assert.Equal(t, "PEDIDO42", got.ReferenceID)
	require.NotNil(t, got.Customer)
	assert.Equal(t, "Maria", got.Customer.Name)
}

func TestHTTPClient_PrefersPixPayloadOverQRCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ch_2","pix_payload":"PAYLOAD","qr_code":"IMAGE"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("acme", srv.URL, Credentials{}, srv.Client(), nil)
	res, err := c.CreateCharge(context.Background(), ports.ChargeRequest{AmountMinor: 100, ReferenceID: "R1"})
	require.NoError(t, err)
	assert.Equal(t, "PAYLOAD", res.PixPayload)
	assert.Nil(t, res.ExpiresAt)
}

func TestHTTPClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	c := NewHTTPClient("acme", srv.URL, Credentials{}, srv.Client(), nil)
	_, err := c.CreateCharge(context.Background(), ports.ChargeRequest{AmountMinor: 100})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Contains(t, err.Error(), "http 503")
	assert.Contains(t, err.Error(), "maintenance")
}

func TestHTTPClient_CancelCharge(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient("acme", srv.URL, Credentials{}, srv.Client(), nil)
	require.NoError(t, c.CancelCharge(context.Background(), "ch/1"))
	assert.Equal(t, "/charges/ch%2F1/cancel", path)
}

func TestHTTPClient_RespectsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewHTTPClient("acme", srv.URL, Credentials{}, srv.Client(), nil)
	_, err := c.CreateCharge(ctx, ports.ChargeRequest{AmountMinor: 100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPClient_LimiterWaitFailsOnCancelledContext(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	// one token per hour; the first call drains the burst
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	c := NewHTTPClient("acme", srv.URL, Credentials{}, srv.Client(), limiter)
	require.NoError(t, c.CancelCharge(context.Background(), "ch_1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.CancelCharge(ctx, "ch_2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Equal(t, 1, calls)
}
