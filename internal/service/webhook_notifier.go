package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// DefaultWebhookRetryIntervals is the back-off between merchant webhook attempts.
var DefaultWebhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

const (
	// SignatureHeader carries "sha256=<hex hmac>" of the request body.
	SignatureHeader = "X-Signature"
	EventTypeHeader = "X-Event-Type"
)

// WebhookPayload is the JSON body posted to a merchant's webhook_url.
type WebhookPayload struct {
	EventType domain.NotificationType `json:"event_type"`
	Data      WebhookPayloadData      `json:"data"`
}

// WebhookPayloadData holds the resource details in the webhook.
type WebhookPayloadData struct {
	ID           string `json:"id"`
	ResourceType string `json:"resource_type"`
	ReferenceID  string `json:"reference_id"`
	ProviderID   string `json:"provider_id"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	NetAmount    int64  `json:"net_amount"`
	Currency     string `json:"currency"`
	Timestamp    int64  `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookNotifier posts signed notifications to merchants, retrying in the background.
type WebhookNotifier struct {
	merchantRepo ports.MerchantRepository
	encSvc       ports.EncryptionService
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	intervals    []time.Duration
	log          zerolog.Logger
}

// NewWebhookNotifier creates a new WebhookNotifier. Nil intervals use DefaultWebhookRetryIntervals.
func NewWebhookNotifier(
	merchantRepo ports.MerchantRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	intervals []time.Duration,
	log zerolog.Logger,
) *WebhookNotifier {
	if intervals == nil {
		intervals = DefaultWebhookRetryIntervals
	}
	return &WebhookNotifier{
		merchantRepo: merchantRepo,
		encSvc:       encSvc,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		intervals:    intervals,
		log:          log,
	}
}

// Notify signs the notification and schedules delivery. Merchants without a webhook_url are skipped.
func (s *WebhookNotifier) Notify(ctx context.Context, n *domain.Notification) error {
	merchant, err := s.merchantRepo.GetByID(ctx, n.MerchantID)
	if err != nil {
		s.log.Error().Err(err).Str("merchant_id", n.MerchantID.String()).Msg("webhook: failed to fetch merchant")
		return fmt.Errorf("get merchant: %w", err)
	}
	if merchant == nil || merchant.WebhookURL == nil || *merchant.WebhookURL == "" {
		s.log.Debug().Str("merchant_id", n.MerchantID.String()).Msg("webhook: no webhook URL configured, skipping")
		return nil
	}

	secret, err := s.encSvc.Decrypt(merchant.WebhookSecretEnc)
	if err != nil {
		s.log.Error().Err(err).Msg("webhook: failed to decrypt merchant webhook secret")
		return fmt.Errorf("decrypt webhook secret: %w", err)
	}

	body, err := json.Marshal(WebhookPayload{
		EventType: n.Type,
		Data: WebhookPayloadData{
			ID:           n.ResourceID.String(),
			ResourceType: string(n.ResourceType),
			ReferenceID:  n.ReferenceID,
			ProviderID:   n.ProviderID,
			Status:       n.Status,
			Amount:       n.Amount,
			NetAmount:    n.NetAmount,
			Currency:     "BRL",
			Timestamp:    n.OccurredAt.Unix(),
		},
	})
	if err != nil {
		return fmt.Errorf("marshal webhook: %w", err)
	}
	signature := signaturePrefix + s.sigSvc.Sign(secret, string(body))

	go s.deliverWithRetries(*merchant.WebhookURL, body, signature, n)

	return nil
}

// deliverWithRetries posts body until a 2xx or the intervals run out.
func (s *WebhookNotifier) deliverWithRetries(url string, body []byte, signature string, n *domain.Notification) {
	id := n.ResourceID.String()

	for attempt := 0; attempt <= len(s.intervals); attempt++ {
		if attempt > 0 {
			time.Sleep(s.intervals[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			s.log.Error().Err(err).Str("resource_id", id).Msg("webhook: failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(SignatureHeader, signature)
		req.Header.Set(EventTypeHeader, string(n.Type))

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.log.Warn().Err(err).Str("resource_id", id).Int("attempt", attempt+1).Msg("webhook: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.log.Info().Str("resource_id", id).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: delivered successfully")
			return
		}

		s.log.Warn().Str("resource_id", id).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: non-2xx response, retrying")
	}

	s.log.Error().Str("resource_id", id).Msg("webhook: all retry attempts exhausted")
}

// MultiNotifier fans a notification out to every notifier and joins their errors.
type MultiNotifier []ports.Notifier

func (m MultiNotifier) Notify(ctx context.Context, n *domain.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
