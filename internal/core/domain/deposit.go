package domain

import (
	"time"

	"github.com/google/uuid"
)

// DepositStatus represents the lifecycle state of a deposit.
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "PENDING"
	DepositStatusPaid      DepositStatus = "PAID"
	DepositStatusExpired   DepositStatus = "EXPIRED"
	DepositStatusCancelled DepositStatus = "CANCELLED"
)

// Deposit is a merchant wallet top-up paid through a PIX charge. No fees apply.
type Deposit struct {
	ID                uuid.UUID     `json:"id"`
	MerchantID        uuid.UUID     `json:"merchant_id"`
	AcquirerID        uuid.UUID     `json:"acquirer_id"`
	Amount            int64         `json:"amount"` // centavos
	Status            DepositStatus `json:"status"`
	ProviderID        string        `json:"provider_id"`
	EndToEndID        *string       `json:"end_to_end_id,omitempty"`
	ReferenceID       string        `json:"reference_id"`
	ExternalReference *string       `json:"external_reference,omitempty"`
	Description       *string       `json:"description,omitempty"`
	CustomerName      *string       `json:"customer_name,omitempty"`
	CustomerDocument  *string       `json:"customer_document,omitempty"`
	PixPayload        string        `json:"pix_payload"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsCancellable returns true while the deposit has not been settled.
func (d *Deposit) IsCancellable() bool {
	return d.Status == DepositStatusPending
}

// TransitionTo mirrors TransactionStatus.TransitionTo for deposits.
func (s DepositStatus) TransitionTo(next DepositStatus) (bool, error) {
	if s == next {
		return false, nil
	}
	switch s {
	case DepositStatusPending:
		switch next {
		case DepositStatusPaid, DepositStatusExpired, DepositStatusCancelled:
			return true, nil
		}
	case DepositStatusPaid, DepositStatusExpired, DepositStatusCancelled:
		return false, nil
	}
	return false, ErrInvalidTransition
}
