package ports

import (
	"context"
	"errors"
	"time"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrConflict is wrapped by repositories when a unique constraint rejects a write.
var ErrConflict = errors.New("unique constraint violation")

// MerchantRepository reads merchants. Registration is owned elsewhere.
type MerchantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	GetByMerchantID(ctx context.Context, merchantID uuid.UUID) (*domain.Wallet, error)
	GetByMerchantIDForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (*domain.Wallet, error)
	// CreateIfNotExists inserts wallet unless the merchant already has one.
	CreateIfNotExists(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	Update(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
}

// TransactionRepository defines persistence operations for PIX charges.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByExternalReference(ctx context.Context, merchantID uuid.UUID, externalReference string) (*domain.Transaction, error)
	// GetByProviderIDForUpdate locks the charge acquirerID knows as providerID.
	// A nil acquirerID matches any acquirer.
	GetByProviderIDForUpdate(ctx context.Context, tx pgx.Tx, acquirerID *uuid.UUID, providerID string) (*domain.Transaction, error)
	// UpdateStatus persists the mutable fields only while the row still has status from.
	// Returns false when the predicate did not match.
	UpdateStatus(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction, from domain.TransactionStatus) (bool, error)
}

// DepositRepository defines persistence operations for deposits.
type DepositRepository interface {
	Create(ctx context.Context, tx pgx.Tx, deposit *domain.Deposit) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Deposit, error)
	GetByExternalReference(ctx context.Context, merchantID uuid.UUID, externalReference string) (*domain.Deposit, error)
	GetByProviderIDForUpdate(ctx context.Context, tx pgx.Tx, acquirerID *uuid.UUID, providerID string) (*domain.Deposit, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, deposit *domain.Deposit, from domain.DepositStatus) (bool, error)
}

// AcquirerRepository reads acquirer routing data and tracks assignment failures.
type AcquirerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Acquirer, error)
	GetByCode(ctx context.Context, code string) (*domain.Acquirer, error)
	// ListActiveAssignments returns active assignments of active acquirers, joined with the acquirer.
	ListActiveAssignments(ctx context.Context, merchantID uuid.UUID) ([]domain.AcquirerAssignment, error)
	GetLimit(ctx context.Context, acquirerID uuid.UUID, direction domain.Direction) (*domain.AcquirerLimit, error)
	RecordFailure(ctx context.Context, assignmentID uuid.UUID, at time.Time) error
}

// EventRepository stores inbound provider events.
type EventRepository interface {
	Create(ctx context.Context, tx pgx.Tx, event *domain.InboundEvent) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
