package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pix-gateway/internal/adapter/http/middleware"
	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"
	"pix-gateway/internal/core/ports/mocks"
	"pix-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext(method, path string, body []byte, merchantID *uuid.UUID) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if merchantID != nil {
		c.Set(middleware.CtxMerchantID, *merchantID)
	}
	return c, w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data envelope: %s", w.Body.String())
	return data
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

func sampleCharge(merchantID uuid.UUID) *domain.Transaction {
	return &domain.Transaction{
		ID:          uuid.New(),
		MerchantID:  merchantID,
		AcquirerID:  uuid.New(),
		Direction:   domain.DirectionCashIn,
		Amount:      10000,
		FeeAmount:   99,
		NetAmount:   9901,
		Status:      domain.TransactionStatusPending,
		ProviderID:  "acq_123",
		ReferenceID: "REF123",
		PixPayload:  "000201...",
		CreatedAt:   time.Now().UTC(),
	}
}

// --- Charge Handler Tests ---

func TestCreateCharge_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockChargeService(ctrl)
	h := NewChargeHandler(svc)
	merchantID := uuid.New()
	txn := sampleCharge(merchantID)

	svc.EXPECT().CreateCharge(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in ports.ChargeInput) (*domain.Transaction, error) {
			assert.Equal(t, merchantID, in.MerchantID)
			assert.Equal(t, int64(10000), in.Amount)
			require.NotNil(t, in.CustomerDocument)
			assert.Equal(t, "12345678901", *in.CustomerDocument)
			require.NotNil(t, in.Description)
			assert.Equal(t, "order 42", *in.Description)
			return txn, nil
		})

	body := []byte(`{"amount":10000,"description":"  order 42 ","customer_document":"123.456.789-01"}`)
	c, w := newContext(http.MethodPost, "/api/v1/charges", body, &merchantID)

	h.CreateCharge(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, txn.ID.String(), data["id"])
	assert.Equal(t, "PENDING", data["status"])
	assert.Equal(t, float64(99), data["fee_amount"])
	assert.Equal(t, "000201...", data["pix_payload"])
}

func TestCreateCharge_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewChargeHandler(mocks.NewMockChargeService(ctrl))
	merchantID := uuid.New()

	cases := map[string]string{
		"missing amount":   `{}`,
		"negative amount":  `{"amount":-5}`,
		"bad direction":    `{"amount":100,"direction":"SIDEWAYS"}`,
		"bad reference id": `{"amount":100,"reference_id":"has-dash"}`,
		"bad document":     `{"amount":100,"customer_document":"123"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, w := newContext(http.MethodPost, "/api/v1/charges", []byte(body), &merchantID)
			h.CreateCharge(c)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "PAY_002", decodeErrorCode(t, w))
		})
	}
}

func TestCreateCharge_NoMerchant(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewChargeHandler(mocks.NewMockChargeService(ctrl))
	c, w := newContext(http.MethodPost, "/api/v1/charges", []byte(`{"amount":100}`), nil)

	h.CreateCharge(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateCharge_AllAcquirersFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockChargeService(ctrl)
	h := NewChargeHandler(svc)
	merchantID := uuid.New()

	svc.EXPECT().CreateCharge(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrAllAcquirersFailed(errors.New("timeout")))

	c, w := newContext(http.MethodPost, "/api/v1/charges", []byte(`{"amount":100}`), &merchantID)
	h.CreateCharge(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "PIX_002", decodeErrorCode(t, w))
}

func TestGetCharge(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockChargeService(ctrl)
	h := NewChargeHandler(svc)
	merchantID := uuid.New()
	txn := sampleCharge(merchantID)

	t.Run("found", func(t *testing.T) {
		svc.EXPECT().GetCharge(gomock.Any(), merchantID, txn.ID).Return(txn, nil)

		c, w := newContext(http.MethodGet, "/api/v1/charges/"+txn.ID.String(), nil, &merchantID)
		c.Params = gin.Params{{Key: "id", Value: txn.ID.String()}}
		h.GetCharge(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, txn.ID.String(), decodeData(t, w)["id"])
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		c, w := newContext(http.MethodGet, "/api/v1/charges/nope", nil, &merchantID)
		c.Params = gin.Params{{Key: "id", Value: "nope"}}
		h.GetCharge(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		id := uuid.New()
		svc.EXPECT().GetCharge(gomock.Any(), merchantID, id).Return(nil, apperror.ErrNotFound("charge"))

		c, w := newContext(http.MethodGet, "/api/v1/charges/"+id.String(), nil, &merchantID)
		c.Params = gin.Params{{Key: "id", Value: id.String()}}
		h.GetCharge(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "PAY_004", decodeErrorCode(t, w))
	})
}

func TestCreateDeposit_ForcesCashIn(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockChargeService(ctrl)
	h := NewChargeHandler(svc)
	merchantID := uuid.New()
	dep := &domain.Deposit{
		ID:         uuid.New(),
		MerchantID: merchantID,
		AcquirerID: uuid.New(),
		Amount:     5000,
		Status:     domain.DepositStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	svc.EXPECT().CreateDeposit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in ports.ChargeInput) (*domain.Deposit, error) {
			assert.Equal(t, domain.DirectionCashIn, in.Direction)
			assert.Equal(t, int64(5000), in.Amount)
			return dep, nil
		})

	c, w := newContext(http.MethodPost, "/api/v1/deposits", []byte(`{"amount":5000}`), &merchantID)
	h.CreateDeposit(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, dep.ID.String(), decodeData(t, w)["id"])
}

func TestCancelDeposit_NotCancellable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockChargeService(ctrl)
	h := NewChargeHandler(svc)
	merchantID := uuid.New()
	id := uuid.New()

	svc.EXPECT().CancelDeposit(gomock.Any(), merchantID, id).Return(nil, apperror.ErrDepositNotCancellable())

	c, w := newContext(http.MethodPost, "/api/v1/deposits/"+id.String()+"/cancel", nil, &merchantID)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.CancelDeposit(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PIX_005", decodeErrorCode(t, w))
}

// --- Wallet Handler Tests ---

func TestGetBalance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mocks.NewMockWalletService(ctrl)
	h := NewWalletHandler(svc)
	merchantID := uuid.New()

	svc.EXPECT().GetBalance(gomock.Any(), merchantID).Return(&domain.Wallet{
		MerchantID:    merchantID,
		Balance:       12345,
		FrozenBalance: 100,
		TotalFeesPaid: 7,
	}, nil)

	c, w := newContext(http.MethodGet, "/api/v1/wallets/balance", nil, &merchantID)
	h.GetBalance(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(12345), data["balance"])
	assert.Equal(t, float64(100), data["frozen_balance"])
	assert.Equal(t, "BRL", data["currency"])
}

// --- Webhook Handler Tests ---

type webhookFixture struct {
	acquirers  *mocks.MockAcquirerRepository
	enc        *mocks.MockEncryptionService
	sig        *mocks.MockSignatureService
	reconciler *mocks.MockReconcilerService
	handler    *WebhookHandler
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	ctrl := gomock.NewController(t)
	f := &webhookFixture{
		acquirers:  mocks.NewMockAcquirerRepository(ctrl),
		enc:        mocks.NewMockEncryptionService(ctrl),
		sig:        mocks.NewMockSignatureService(ctrl),
		reconciler: mocks.NewMockReconcilerService(ctrl),
	}
	f.handler = NewWebhookHandler(f.acquirers, f.enc, f.sig, f.reconciler, zerolog.Nop())
	return f
}

func webhookContext(code string, body []byte, signature string) (*gin.Context, *httptest.ResponseRecorder) {
	c, w := newContext(http.MethodPost, "/webhooks/"+code, body, nil)
	c.Params = gin.Params{{Key: "acquirer", Value: code}}
	if signature != "" {
		c.Request.Header.Set(SignatureHeader, signature)
	}
	return c, w
}

func TestWebhook_AppliedWithValidSignature(t *testing.T) {
	f := newWebhookFixture(t)
	acq := &domain.Acquirer{ID: uuid.New(), Code: "acme", IsActive: true, WebhookSecretEnc: "enc-secret"}
	body := []byte(`{"event":"charge.paid","provider_id":"acme_1","status":"paid","end_to_end_id":"E123"}`)
	txID := uuid.New()

	f.acquirers.EXPECT().GetByCode(gomock.Any(), "acme").Return(acq, nil)
	f.enc.EXPECT().Decrypt("enc-secret").Return("whsec", nil)
	f.sig.EXPECT().Verify("whsec", string(body), "sha256=abc").Return(true)
	f.reconciler.EXPECT().HandleEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev ports.ProviderEvent) (*ports.ReconcileResult, error) {
			require.NotNil(t, ev.AcquirerID)
			assert.Equal(t, acq.ID, *ev.AcquirerID)
			assert.Equal(t, "acme_1", ev.ProviderID)
			assert.Equal(t, "paid", ev.Status)
			return &ports.ReconcileResult{
				Outcome:      domain.EventOutcomeApplied,
				ResourceType: domain.ResourceTypeTransaction,
				ResourceID:   &txID,
				Status:       "PAID",
			}, nil
		})

	c, w := webhookContext("acme", body, "sha256=abc")
	f.handler.Receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "APPLIED", data["outcome"])
	assert.Equal(t, txID.String(), data["resource_id"])
}

func TestWebhook_SignatureMismatch(t *testing.T) {
	f := newWebhookFixture(t)
	acq := &domain.Acquirer{ID: uuid.New(), Code: "acme", IsActive: true, WebhookSecretEnc: "enc-secret"}
	body := []byte(`{"provider_id":"acme_1","status":"paid"}`)

	f.acquirers.EXPECT().GetByCode(gomock.Any(), "acme").Return(acq, nil)
	f.enc.EXPECT().Decrypt("enc-secret").Return("whsec", nil)
	f.sig.EXPECT().Verify("whsec", string(body), "bad").Return(false)

	c, w := webhookContext("acme", body, "bad")
	f.handler.Receive(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SEC_002", decodeErrorCode(t, w))
}

func TestWebhook_UnsignedRejectedOutsideSandbox(t *testing.T) {
	for _, env := range []domain.Environment{domain.EnvironmentProduction, ""} {
		t.Run(string(env), func(t *testing.T) {
			f := newWebhookFixture(t)
			acq := &domain.Acquirer{ID: uuid.New(), Code: "live", IsActive: true, Environment: env}
			f.acquirers.EXPECT().GetByCode(gomock.Any(), "live").Return(acq, nil)

			c, w := webhookContext("live", []byte(`{"provider_id":"p1","status":"paid"}`), "")
			f.handler.Receive(c)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "SEC_002", decodeErrorCode(t, w))
		})
	}
}

func TestWebhook_UnknownAcquirer(t *testing.T) {
	f := newWebhookFixture(t)
	f.acquirers.EXPECT().GetByCode(gomock.Any(), "ghost").Return(nil, nil)

	c, w := webhookContext("ghost", []byte(`{}`), "")
	f.handler.Receive(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhook_MalformedEvent(t *testing.T) {
	f := newWebhookFixture(t)
	acq := &domain.Acquirer{ID: uuid.New(), Code: "open", IsActive: true, Environment: domain.EnvironmentSandbox}
	f.acquirers.EXPECT().GetByCode(gomock.Any(), "open").Return(acq, nil)

	c, w := webhookContext("open", []byte(`{"status":"paid"}`), "")
	f.handler.Receive(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_Outcomes(t *testing.T) {
	cases := []struct {
		name     string
		result   *ports.ReconcileResult
		err      error
		wantCode int
	}{
		{"duplicate", &ports.ReconcileResult{Outcome: domain.EventOutcomeDuplicate, ResourceType: domain.ResourceTypeTransaction}, nil, http.StatusOK},
		{"unresolved", &ports.ReconcileResult{Outcome: domain.EventOutcomeUnresolved, ResourceType: domain.ResourceTypeNone}, nil, http.StatusOK},
		{"ignored", &ports.ReconcileResult{Outcome: domain.EventOutcomeIgnored, ResourceType: domain.ResourceTypeTransaction}, nil, http.StatusOK},
		{"invalid transition", nil, apperror.ErrInvalidTransition("PENDING", "REFUNDED"), http.StatusConflict},
		{"persistence failure", nil, apperror.ErrDatabaseError(errors.New("down")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			acq := &domain.Acquirer{ID: uuid.New(), Code: "open", IsActive: true, Environment: domain.EnvironmentSandbox}
			f.acquirers.EXPECT().GetByCode(gomock.Any(), "open").Return(acq, nil)
			f.reconciler.EXPECT().HandleEvent(gomock.Any(), gomock.Any()).Return(tc.result, tc.err)

			c, w := webhookContext("open", []byte(`{"provider_id":"p1","status":"paid"}`), "")
			f.handler.Receive(c)

			assert.Equal(t, tc.wantCode, w.Code)
		})
	}
}

// --- Health Tests ---

func TestHealthCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ok := mocks.NewMockHealthChecker(ctrl)
	ok.EXPECT().Name().Return("postgres").AnyTimes()
	ok.EXPECT().Ping(gomock.Any()).Return(nil).AnyTimes()

	bad := mocks.NewMockHealthChecker(ctrl)
	bad.EXPECT().Name().Return("redis").AnyTimes()
	bad.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused")).AnyTimes()

	t.Run("healthy", func(t *testing.T) {
		c, w := newContext(http.MethodGet, "/health", nil, nil)
		HealthCheck(ok)(c)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("degraded", func(t *testing.T) {
		c, w := newContext(http.MethodGet, "/health", nil, nil)
		HealthCheck(ok, bad)(c)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp["status"])
		deps := resp["dependencies"].(map[string]interface{})
		assert.Equal(t, "unhealthy", deps["redis"].(map[string]interface{})["status"])
	})
}

// --- Router Tests ---

func TestSetupRouter_RequiresToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	r := SetupRouter(RouterDeps{
		ChargeSvc:  mocks.NewMockChargeService(ctrl),
		WalletSvc:  mocks.NewMockWalletService(ctrl),
		Reconciler: mocks.NewMockReconcilerService(ctrl),
		Acquirers:  mocks.NewMockAcquirerRepository(ctrl),
		EncSvc:     mocks.NewMockEncryptionService(ctrl),
		SigSvc:     mocks.NewMockSignatureService(ctrl),
		TokenSvc:   tokenSvc,
		Logger:     zerolog.Nop(),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wallets/balance", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
