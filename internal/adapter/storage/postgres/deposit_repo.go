package postgres

import (
	"context"
	"errors"
	"fmt"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const depositColumnList = `id, merchant_id, acquirer_id, amount, status, provider_id, end_to_end_id, reference_id,
	external_reference, description, customer_name, customer_document, pix_payload, expires_at, paid_at, created_at, updated_at`

// DepositRepo implements ports.DepositRepository.
type DepositRepo struct {
	pool Pool
}

// NewDepositRepo creates a new DepositRepo.
func NewDepositRepo(pool Pool) *DepositRepo {
	return &DepositRepo{pool: pool}
}

// Create inserts a new deposit within a database transaction.
func (r *DepositRepo) Create(ctx context.Context, tx pgx.Tx, d *domain.Deposit) error {
	query := `INSERT INTO deposits (` + depositColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := tx.Exec(ctx, query,
		d.ID, d.MerchantID, d.AcquirerID, d.Amount, d.Status, d.ProviderID, d.EndToEndID, d.ReferenceID,
		d.ExternalReference, d.Description, d.CustomerName, d.CustomerDocument, d.PixPayload, d.ExpiresAt, d.PaidAt,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return writeError("insert deposit", err)
	}
	return nil
}

// GetByID fetches a deposit by UUID.
func (r *DepositRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deposit, error) {
	query := `SELECT ` + depositColumnList + ` FROM deposits WHERE id = $1`
	return scanDeposit(r.pool.QueryRow(ctx, query, id))
}

// GetByExternalReference fetches a merchant's deposit by its own reference.
func (r *DepositRepo) GetByExternalReference(ctx context.Context, merchantID uuid.UUID, externalReference string) (*domain.Deposit, error) {
	query := `SELECT ` + depositColumnList + ` FROM deposits WHERE merchant_id = $1 AND external_reference = $2`
	return scanDeposit(r.pool.QueryRow(ctx, query, merchantID, externalReference))
}

// GetByProviderIDForUpdate locks the deposit an acquirer event refers to.
func (r *DepositRepo) GetByProviderIDForUpdate(ctx context.Context, tx pgx.Tx, acquirerID *uuid.UUID, providerID string) (*domain.Deposit, error) {
	if acquirerID != nil {
		query := `SELECT ` + depositColumnList + ` FROM deposits WHERE acquirer_id = $1 AND provider_id = $2 FOR UPDATE`
		return scanDeposit(tx.QueryRow(ctx, query, *acquirerID, providerID))
	}
	query := `SELECT ` + depositColumnList + ` FROM deposits WHERE provider_id = $1
		ORDER BY created_at LIMIT 1 FOR UPDATE`
	return scanDeposit(tx.QueryRow(ctx, query, providerID))
}

// UpdateStatus writes status and settlement fields while the row is still in from.
func (r *DepositRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, d *domain.Deposit, from domain.DepositStatus) (bool, error) {
	query := `UPDATE deposits SET status = $1, end_to_end_id = $2, paid_at = $3, updated_at = $4
		WHERE id = $5 AND status = $6`

	tag, err := tx.Exec(ctx, query, d.Status, d.EndToEndID, d.PaidAt, d.UpdatedAt, d.ID, from)
	if err != nil {
		return false, fmt.Errorf("update deposit status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanDeposit(row pgx.Row) (*domain.Deposit, error) {
	d := &domain.Deposit{}
	err := row.Scan(
		&d.ID, &d.MerchantID, &d.AcquirerID, &d.Amount, &d.Status, &d.ProviderID, &d.EndToEndID, &d.ReferenceID,
		&d.ExternalReference, &d.Description, &d.CustomerName, &d.CustomerDocument, &d.PixPayload, &d.ExpiresAt, &d.PaidAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan deposit: %w", err)
	}
	return d, nil
}
