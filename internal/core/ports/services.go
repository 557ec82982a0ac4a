package ports

import (
	"context"
	"encoding/json"
	"time"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles merchant API tokens.
type TokenService interface {
	Generate(merchantID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	MerchantID uuid.UUID
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// UsageStore tracks volume routed per acquirer and direction in day and month windows.
type UsageStore interface {
	Get(ctx context.Context, acquirerID uuid.UUID, direction domain.Direction, at time.Time) (domain.AcquirerUsage, error)
	Add(ctx context.Context, acquirerID uuid.UUID, direction domain.Direction, amount int64, at time.Time) error
	// Reserve counts amount only if neither cap would be exceeded, in one atomic step.
	// Nil caps are unbounded. The usage returned is the state before the call.
	Reserve(ctx context.Context, acquirerID uuid.UUID, direction domain.Direction, amount int64, at time.Time, dailyCap, monthlyCap *int64) (domain.AcquirerUsage, bool, error)
	Release(ctx context.Context, acquirerID uuid.UUID, direction domain.Direction, amount int64, at time.Time) error
}

// --- Provider Ports ---

// ChargeRequest is what an acquirer needs to issue a PIX charge.
type ChargeRequest struct {
	AmountMinor      int64
	Description      string
	CustomerName     string
	CustomerDocument string
	CallbackURL      string
	ReferenceID      string
}

// ChargeResult is the acquirer's answer to a created charge.
// PixPayload may be empty when the acquirer does not render one.
type ChargeResult struct {
	ProviderID string
	PixPayload string
	ExpiresAt  *time.Time
}

// Provider is a client bound to one acquirer's API.
type Provider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CancelCharge(ctx context.Context, providerID string) error
}

// ProviderFactory builds a Provider for an acquirer record.
type ProviderFactory interface {
	ForAcquirer(ctx context.Context, acquirer *domain.Acquirer) (Provider, error)
}

// Notifier delivers committed state changes downstream.
type Notifier interface {
	Notify(ctx context.Context, n *domain.Notification) error
}

// --- Service Ports (Business Logic) ---

// WalletService applies atomic per-merchant balance mutations.
type WalletService interface {
	Credit(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error)
	Debit(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error)
	Freeze(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error)
	Unfreeze(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error)
	AddFees(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error)
	GetBalance(ctx context.Context, merchantID uuid.UUID) (*domain.Wallet, error)
}

// ChargeService routes charges and deposits across a merchant's acquirers.
type ChargeService interface {
	CreateCharge(ctx context.Context, req ChargeInput) (*domain.Transaction, error)
	GetCharge(ctx context.Context, merchantID, id uuid.UUID) (*domain.Transaction, error)
	CreateDeposit(ctx context.Context, req ChargeInput) (*domain.Deposit, error)
	GetDeposit(ctx context.Context, merchantID, id uuid.UUID) (*domain.Deposit, error)
	CancelDeposit(ctx context.Context, merchantID, id uuid.UUID) (*domain.Deposit, error)
}

// ChargeInput holds validated input for charge and deposit creation.
type ChargeInput struct {
	MerchantID        uuid.UUID
	Amount            int64 // centavos
	Direction         domain.Direction
	Description       *string
	CustomerName      *string
	CustomerDocument  *string
	ExternalReference *string
	ReferenceID       string // optional BR Code txid
}

// ReconcilerService applies provider events to persisted records and wallets.
type ReconcilerService interface {
	HandleEvent(ctx context.Context, event ProviderEvent) (*ReconcileResult, error)
}

// ProviderEvent is a provider callback after signature checks and parsing.
type ProviderEvent struct {
	AcquirerID *uuid.UUID
	EventType  string
	ProviderID string
	Status     string
	EndToEndID *string
	PaidAt     *time.Time
	Raw        json.RawMessage
}

// ReconcileResult reports what HandleEvent did.
type ReconcileResult struct {
	Outcome      domain.EventOutcome
	ResourceType domain.ResourceType
	ResourceID   *uuid.UUID
	Status       string
}
