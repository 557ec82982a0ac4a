package postgres

import (
	"context"
	"errors"
	"fmt"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumnList = `id, merchant_id, balance, frozen_balance, total_fees_paid, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetByMerchantID fetches a merchant's wallet (non-locking read).
func (r *WalletRepo) GetByMerchantID(ctx context.Context, merchantID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE merchant_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, merchantID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by merchant id: %w", err)
	}
	return w, nil
}

// GetByMerchantIDForUpdate fetches a merchant's wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByMerchantIDForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE merchant_id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, merchantID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by merchant: %w", err)
	}
	return w, nil
}

// CreateIfNotExists inserts w unless the merchant already has a wallet.
// Concurrent first uses race on the unique merchant_id; the loser is a no-op.
func (r *WalletRepo) CreateIfNotExists(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (merchant_id) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		w.ID, w.MerchantID, w.Balance, w.FrozenBalance, w.TotalFeesPaid, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return writeError("insert wallet", err)
	}
	return nil
}

// Update writes the wallet counters within a transaction.
func (r *WalletRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `UPDATE wallets SET balance = $1, frozen_balance = $2, total_fees_paid = $3, updated_at = $4
		WHERE id = $5`

	tag, err := tx.Exec(ctx, query, w.Balance, w.FrozenBalance, w.TotalFeesPaid, w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", w.ID)
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(&w.ID, &w.MerchantID, &w.Balance, &w.FrozenBalance, &w.TotalFeesPaid, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
