package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEventRepo(mock)
	resourceID := uuid.New()
	e := &domain.InboundEvent{
		ID:           uuid.New(),
		EventType:    "charge.updated",
		ProviderID:   "prov-1",
		Status:       "paid",
		RawPayload:   json.RawMessage(`{"id":"prov-1","status":"paid"}`),
		ResourceType: domain.ResourceTypeTransaction,
		ResourceID:   &resourceID,
		Outcome:      domain.EventOutcomeApplied,
		ReceivedAt:   time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbound_events").
		WithArgs(e.ID, e.AcquirerID, e.EventType, e.ProviderID, e.Status, e.EndToEndID, e.PaidAt,
			[]byte(e.RawPayload), e.ResourceType, e.ResourceID, e.Outcome, e.ReceivedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), dbTx, e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_Create_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewEventRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbound_events").WillReturnError(errors.New("disk full"))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), dbTx, &domain.InboundEvent{ID: uuid.New(), Outcome: domain.EventOutcomeUnresolved})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insert inbound event")
}

func TestHealthCheck_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hc := NewHealthCheck(mock)
	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))

	assert.NoError(t, hc.Ping(context.Background()))
	assert.Equal(t, "postgresql", hc.Name())
}

func TestTransactor_Begin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := NewTransactor(mock).Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
