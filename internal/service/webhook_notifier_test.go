package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"
	"pix-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func okResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}
}

func paidNotification(merchantID uuid.UUID) *domain.Notification {
	return &domain.Notification{
		ID:           uuid.New(),
		Type:         domain.NotificationChargePaid,
		MerchantID:   merchantID,
		ResourceType: domain.ResourceTypeTransaction,
		ResourceID:   uuid.New(),
		ProviderID:   "prov-1",
		ReferenceID:  "REF1",
		Status:       "PAID",
		Amount:       10000,
		NetAmount:    9750,
		OccurredAt:   time.Now(),
	}
}

func TestWebhookNotifier_Notify_SignsAndDelivers(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantRepo := mocks.NewMockMerchantRepository(ctrl)
	encSvc := mocks.NewMockEncryptionService(ctrl)
	sigSvc := NewHMACSignatureService()

	merchantID := uuid.New()
	url := "https://merchant.example.com/pix"
	merchantRepo.EXPECT().GetByID(gomock.Any(), merchantID).Return(&domain.Merchant{
		ID:               merchantID,
		WebhookURL:       &url,
		WebhookSecretEnc: "enc",
	}, nil)
	encSvc.EXPECT().Decrypt("enc").Return("whsec", nil)

	delivered := make(chan *http.Request, 1)
	var body []byte
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		body, _ = io.ReadAll(req.Body)
		delivered <- req
		return okResponse(http.StatusOK), nil
	}}

	n := NewWebhookNotifier(merchantRepo, encSvc, sigSvc, client, []time.Duration{}, zerolog.Nop())
	require.NoError(t, n.Notify(context.Background(), paidNotification(merchantID)))

	select {
	case req := <-delivered:
		assert.Equal(t, url, req.URL.String())
		assert.Equal(t, "CHARGE_PAID", req.Header.Get(EventTypeHeader))
		assert.True(t, sigSvc.Verify("whsec", string(body), req.Header.Get(SignatureHeader)))

		var payload WebhookPayload
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, int64(9750), payload.Data.NetAmount)
		assert.Equal(t, "BRL", payload.Data.Currency)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestWebhookNotifier_Notify_NoURLSkips(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantRepo := mocks.NewMockMerchantRepository(ctrl)
	merchantID := uuid.New()
	merchantRepo.EXPECT().GetByID(gomock.Any(), merchantID).Return(&domain.Merchant{ID: merchantID}, nil)

	client := &mockHTTPClient{doFunc: func(*http.Request) (*http.Response, error) {
		t.Error("no request expected")
		return okResponse(http.StatusOK), nil
	}}

	n := NewWebhookNotifier(merchantRepo, mocks.NewMockEncryptionService(ctrl), NewHMACSignatureService(), client, nil, zerolog.Nop())
	assert.NoError(t, n.Notify(context.Background(), paidNotification(merchantID)))
}

func TestWebhookNotifier_RetriesUntilSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantRepo := mocks.NewMockMerchantRepository(ctrl)
	encSvc := mocks.NewMockEncryptionService(ctrl)
	merchantID := uuid.New()
	url := "https://merchant.example.com/pix"
	merchantRepo.EXPECT().GetByID(gomock.Any(), merchantID).Return(&domain.Merchant{ID: merchantID, WebhookURL: &url}, nil)
	encSvc.EXPECT().Decrypt(gomock.Any()).Return("whsec", nil)

	var calls atomic.Int32
	done := make(chan struct{})
	client := &mockHTTPClient{doFunc: func(*http.Request) (*http.Response, error) {
		switch calls.Add(1) {
		case 1:
			return nil, errors.New("connection refused")
		case 2:
			return okResponse(http.StatusBadGateway), nil
		default:
			close(done)
			return okResponse(http.StatusNoContent), nil
		}
	}}

	intervals := []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	n := NewWebhookNotifier(merchantRepo, encSvc, NewHMACSignatureService(), client, intervals, zerolog.Nop())
	require.NoError(t, n.Notify(context.Background(), paidNotification(merchantID)))

	select {
	case <-done:
		assert.Equal(t, int32(3), calls.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("webhook retries did not complete")
	}
}

func TestWebhookNotifier_MerchantLookupError(t *testing.T) {
	ctrl := gomock.NewController(t)
	merchantRepo := mocks.NewMockMerchantRepository(ctrl)
	merchantRepo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	n := NewWebhookNotifier(merchantRepo, mocks.NewMockEncryptionService(ctrl), NewHMACSignatureService(), &mockHTTPClient{}, nil, zerolog.Nop())
	assert.Error(t, n.Notify(context.Background(), paidNotification(uuid.New())))
}

func TestMultiNotifier_JoinsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockNotifier(ctrl)
	b := mocks.NewMockNotifier(ctrl)
	n := paidNotification(uuid.New())

	a.EXPECT().Notify(gomock.Any(), n).Return(errors.New("kafka down"))
	b.EXPECT().Notify(gomock.Any(), n).Return(nil)

	err := MultiNotifier{a, b}.Notify(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka down")

	var _ ports.Notifier = MultiNotifier{}
}
