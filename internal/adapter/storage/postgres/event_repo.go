package postgres

import (
	"context"

	"pix-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a PostgreSQL-backed EventRepository.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Create records an inbound provider event in the same transaction as its effects.
func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.InboundEvent) error {
	var raw []byte
	if len(e.RawPayload) > 0 {
		raw = e.RawPayload
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO inbound_events
		(id, acquirer_id, event_type, provider_id, status, end_to_end_id, paid_at, raw_payload,
		 resource_type, resource_id, outcome, received_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.AcquirerID, e.EventType, e.ProviderID, e.Status, e.EndToEndID, e.PaidAt, raw,
		e.ResourceType, e.ResourceID, e.Outcome, e.ReceivedAt,
	)
	if err != nil {
		return writeError("insert inbound event", err)
	}
	return nil
}
