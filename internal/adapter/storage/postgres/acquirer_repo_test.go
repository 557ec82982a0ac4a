package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAcquirer(code string) *domain.Acquirer {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Acquirer{
		ID:               uuid.New(),
		Code:             code,
		Name:             "Acquirer " + code,
		BaseURL:          "https://" + code + ".example.com",
		CredentialsEnc:   "enc_creds",
		WebhookSecretEnc: "enc_whsec",
		Environment:      domain.EnvironmentSandbox,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func acquirerColumns() []string {
	return []string{"id", "code", "name", "base_url", "credentials_enc", "webhook_secret_enc", "environment", "is_active", "created_at", "updated_at"}
}

func TestAcquirerRepo_GetByCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAcquirerRepo(mock)
	a := newTestAcquirer("alpha")

	mock.ExpectQuery("SELECT .+ FROM acquirers WHERE code").
		WithArgs("alpha").
		WillReturnRows(pgxmock.NewRows(acquirerColumns()).AddRow(
			a.ID, a.Code, a.Name, a.BaseURL, a.CredentialsEnc, a.WebhookSecretEnc, a.Environment,
			a.IsActive, a.CreatedAt, a.UpdatedAt,
		))

	result, err := repo.GetByCode(context.Background(), "alpha")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID, result.ID)
	assert.Equal(t, "enc_whsec", result.WebhookSecretEnc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquirerRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAcquirerRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM acquirers WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(acquirerColumns()))

	result, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestAcquirerRepo_ListActiveAssignments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAcquirerRepo(mock)
	merchantID := uuid.New()
	alpha, beta := newTestAcquirer("alpha"), newTestAcquirer("beta")
	created := time.Now().UTC().Truncate(time.Microsecond)
	failedAt := created.Add(-time.Minute)

	cols := []string{"id", "merchant_id", "acquirer_id", "priority", "weight", "is_active",
		"failure_count", "last_failure_at", "created_at",
		"a_id", "code", "name", "base_url", "credentials_enc", "webhook_secret_enc", "environment",
		"a_is_active", "a_created_at", "a_updated_at"}
	rows := pgxmock.NewRows(cols)
	for i, a := range []*domain.Acquirer{alpha, beta} {
		var last *time.Time
		if i == 1 {
			last = &failedAt
		}
		rows.AddRow(uuid.New(), merchantID, a.ID, i+1, 100, true,
			i, last, created,
			a.ID, a.Code, a.Name, a.BaseURL, a.CredentialsEnc, a.WebhookSecretEnc, a.Environment,
			a.IsActive, a.CreatedAt, a.UpdatedAt)
	}

	mock.ExpectQuery("SELECT .+ FROM merchant_acquirers ma JOIN acquirers a").
		WithArgs(merchantID).
		WillReturnRows(rows)

	result, err := repo.ListActiveAssignments(context.Background(), merchantID)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, 1, result[0].Priority)
	assert.Equal(t, "alpha", result[0].Acquirer.Code)
	assert.Nil(t, result[0].LastFailureAt)
	assert.Equal(t, "beta", result[1].Acquirer.Code)
	assert.Equal(t, 1, result[1].FailureCount)
	require.NotNil(t, result[1].LastFailureAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquirerRepo_ListActiveAssignments_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAcquirerRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM merchant_acquirers").
		WillReturnError(errors.New("connection refused"))

	_, err = repo.ListActiveAssignments(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "list acquirer assignments")
}

func TestAcquirerRepo_GetLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAcquirerRepo(mock)
	acquirerID := uuid.New()
	daily := int64(1000000)

	mock.ExpectQuery("SELECT .+ FROM acquirer_limits").
		WithArgs(acquirerID, domain.DirectionCashIn).
		WillReturnRows(pgxmock.NewRows([]string{"acquirer_id", "direction", "min_amount", "max_amount", "daily_limit", "monthly_limit"}).
			AddRow(acquirerID, domain.DirectionCashIn, (*int64)(nil), (*int64)(nil), &daily, (*int64)(nil)))

	l, err := repo.GetLimit(context.Background(), acquirerID, domain.DirectionCashIn)
	require.NoError(t, err)
	require.NotNil(t, l)
	require.NotNil(t, l.DailyLimit)
	assert.Equal(t, daily, *l.DailyLimit)
	assert.Nil(t, l.MaxAmount)
	assert.True(t, l.HasVolumeCaps())
}

func TestAcquirerRepo_GetLimit_None(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAcquirerRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM acquirer_limits").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"acquirer_id", "direction", "min_amount", "max_amount", "daily_limit", "monthly_limit"}))

	l, err := repo.GetLimit(context.Background(), uuid.New(), domain.DirectionCashOut)
	assert.NoError(t, err)
	assert.Nil(t, l)
}

func TestAcquirerRepo_RecordFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAcquirerRepo(mock)
	assignmentID := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE merchant_acquirers SET failure_count = failure_count \\+ 1").
		WithArgs(at, assignmentID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.RecordFailure(context.Background(), assignmentID, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
