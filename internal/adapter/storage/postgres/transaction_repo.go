package postgres

import (
	"context"
	"errors"
	"fmt"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumnList = `id, merchant_id, acquirer_id, direction, amount, fee_amount, net_amount, status,
	provider_id, end_to_end_id, reference_id, external_reference, description, customer_name, customer_document,
	pix_payload, refund_shortfall, expires_at, paid_at, created_at, updated_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new charge within a database transaction.
// A repeated (merchant_id, external_reference) surfaces as ports.ErrConflict.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.MerchantID, t.AcquirerID, t.Direction, t.Amount, t.FeeAmount, t.NetAmount, t.Status,
		t.ProviderID, t.EndToEndID, t.ReferenceID, t.ExternalReference, t.Description, t.CustomerName, t.CustomerDocument,
		t.PixPayload, t.RefundShortfall, t.ExpiresAt, t.PaidAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return writeError("insert transaction", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumnList + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByExternalReference fetches a merchant's charge by its own reference.
func (r *TransactionRepo) GetByExternalReference(ctx context.Context, merchantID uuid.UUID, externalReference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumnList + ` FROM transactions WHERE merchant_id = $1 AND external_reference = $2`
	return scanTransaction(r.pool.QueryRow(ctx, query, merchantID, externalReference))
}

// GetByProviderIDForUpdate locks the charge an acquirer event refers to.
// This MUST be called within a transaction.
func (r *TransactionRepo) GetByProviderIDForUpdate(ctx context.Context, tx pgx.Tx, acquirerID *uuid.UUID, providerID string) (*domain.Transaction, error) {
	if acquirerID != nil {
		query := `SELECT ` + transactionColumnList + ` FROM transactions WHERE acquirer_id = $1 AND provider_id = $2 FOR UPDATE`
		return scanTransaction(tx.QueryRow(ctx, query, *acquirerID, providerID))
	}
	query := `SELECT ` + transactionColumnList + ` FROM transactions WHERE provider_id = $1
		ORDER BY created_at LIMIT 1 FOR UPDATE`
	return scanTransaction(tx.QueryRow(ctx, query, providerID))
}

// UpdateStatus writes status and settlement fields while the row is still in from.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, t *domain.Transaction, from domain.TransactionStatus) (bool, error) {
	query := `UPDATE transactions
		SET status = $1, end_to_end_id = $2, paid_at = $3, refund_shortfall = $4, updated_at = $5
		WHERE id = $6 AND status = $7`

	tag, err := tx.Exec(ctx, query, t.Status, t.EndToEndID, t.PaidAt, t.RefundShortfall, t.UpdatedAt, t.ID, from)
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.MerchantID, &t.AcquirerID, &t.Direction, &t.Amount, &t.FeeAmount, &t.NetAmount, &t.Status,
		&t.ProviderID, &t.EndToEndID, &t.ReferenceID, &t.ExternalReference, &t.Description, &t.CustomerName, &t.CustomerDocument,
		&t.PixPayload, &t.RefundShortfall, &t.ExpiresAt, &t.PaidAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}
