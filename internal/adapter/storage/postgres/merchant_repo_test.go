package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestMerchant() *domain.Merchant {
	return &domain.Merchant{
		ID:               uuid.New(),
		Name:             "Loja Exemplo",
		PixKey:           "11999999999",
		City:             "Sao Paulo",
		WebhookURL:       strPtr("https://example.com/webhook"),
		WebhookSecretEnc: "enc_secret",
		Status:           domain.MerchantStatusActive,
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
		UpdatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	}
}

func merchantColumns() []string {
	return []string{"id", "name", "pix_key", "city", "webhook_url", "webhook_secret_enc", "fee_scheme", "status", "created_at", "updated_at"}
}

func TestMerchantRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMerchantRepo(mock)
	m := newTestMerchant()

	mock.ExpectExec("INSERT INTO merchants").
		WithArgs(m.ID, m.Name, m.PixKey, m.City, m.WebhookURL, m.WebhookSecretEnc,
			[]byte(nil), m.Status, m.CreatedAt, m.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), m)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantRepo_GetByID_WithFeeScheme(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMerchantRepo(mock)
	m := newTestMerchant()
	scheme := []byte(`{"type":"PERCENTAGE","cash_in_percentage":"1.99","cash_in_fixed":"0","cash_out_percentage":"0","cash_out_fixed":"0","min_fee":"0.10"}`)

	mock.ExpectQuery("SELECT .+ FROM merchants WHERE id").
		WithArgs(m.ID).
		WillReturnRows(pgxmock.NewRows(merchantColumns()).AddRow(
			m.ID, m.Name, m.PixKey, m.City, m.WebhookURL, m.WebhookSecretEnc,
			scheme, m.Status, m.CreatedAt, m.UpdatedAt,
		))

	result, err := repo.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, m.PixKey, result.PixKey)
	require.NotNil(t, result.FeeScheme)
	assert.Equal(t, domain.FeeTypePercentage, result.FeeScheme.Type)
	assert.True(t, decimal.RequireFromString("1.99").Equal(result.FeeScheme.CashInPercentage))
	assert.Nil(t, result.FeeScheme.MaxFee)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMerchantRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM merchants WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(merchantColumns()))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerchantRepo_GetByID_DBError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMerchantRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM merchants WHERE id").
		WithArgs(id).
		WillReturnError(errors.New("connection refused"))

	result, err := repo.GetByID(context.Background(), id)
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "get merchant by id")
}
