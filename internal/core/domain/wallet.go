package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInsufficientFunds       = errors.New("insufficient balance")
	ErrInsufficientFrozenFunds = errors.New("insufficient frozen balance")
	ErrNonPositiveAmount       = errors.New("amount must be positive")
)

// Wallet holds a merchant's running counters in centavos.
// Balance never goes negative; Freeze moves funds into FrozenBalance.
type Wallet struct {
	ID            uuid.UUID `json:"id"`
	MerchantID    uuid.UUID `json:"merchant_id"`
	Balance       int64     `json:"balance"`
	FrozenBalance int64     `json:"frozen_balance"`
	TotalFeesPaid int64     `json:"total_fees_paid"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewWallet returns an empty wallet for merchantID.
func NewWallet(merchantID uuid.UUID) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:         uuid.New(),
		MerchantID: merchantID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (w *Wallet) Credit(amount int64) error {
	if amount <= 0 {
		return ErrNonPositiveAmount
	}
	w.Balance += amount
	return nil
}

func (w *Wallet) Debit(amount int64) error {
	if amount <= 0 {
		return ErrNonPositiveAmount
	}
	if w.Balance < amount {
		return ErrInsufficientFunds
	}
	w.Balance -= amount
	return nil
}

func (w *Wallet) Freeze(amount int64) error {
	if amount <= 0 {
		return ErrNonPositiveAmount
	}
	if w.Balance < amount {
		return ErrInsufficientFunds
	}
	w.Balance -= amount
	w.FrozenBalance += amount
	return nil
}

func (w *Wallet) Unfreeze(amount int64) error {
	if amount <= 0 {
		return ErrNonPositiveAmount
	}
	if w.FrozenBalance < amount {
		return ErrInsufficientFrozenFunds
	}
	w.FrozenBalance -= amount
	w.Balance += amount
	return nil
}

func (w *Wallet) AddFees(amount int64) error {
	if amount <= 0 {
		return ErrNonPositiveAmount
	}
	w.TotalFeesPaid += amount
	return nil
}
