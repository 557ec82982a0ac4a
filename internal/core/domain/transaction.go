package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction tells whether money flows into or out of the merchant.
type Direction string

const (
	DirectionCashIn  Direction = "CASH_IN"
	DirectionCashOut Direction = "CASH_OUT"
)

// TransactionStatus represents the lifecycle state of a PIX charge.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusPaid      TransactionStatus = "PAID"
	TransactionStatusRefused   TransactionStatus = "REFUSED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
	TransactionStatusRefunded  TransactionStatus = "REFUNDED"
)

// Transaction is a PIX charge created through an acquirer.
// Fee and net amounts are fixed at creation and never recomputed.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	MerchantID        uuid.UUID         `json:"merchant_id"`
	AcquirerID        uuid.UUID         `json:"acquirer_id"`
	Direction         Direction         `json:"direction"`
	Amount            int64             `json:"amount"` // centavos
	FeeAmount         int64             `json:"fee_amount"`
	NetAmount         int64             `json:"net_amount"`
	Status            TransactionStatus `json:"status"`
	ProviderID        string            `json:"provider_id"`
	EndToEndID        *string           `json:"end_to_end_id,omitempty"`
	ReferenceID       string            `json:"reference_id"`
	ExternalReference *string           `json:"external_reference,omitempty"`
	Description       *string           `json:"description,omitempty"`
	CustomerName      *string           `json:"customer_name,omitempty"`
	CustomerDocument  *string           `json:"customer_document,omitempty"`
	PixPayload        string            `json:"pix_payload"`
	RefundShortfall   int64             `json:"refund_shortfall,omitempty"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsTerminal returns true if no further transition can change the wallet.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusRefused ||
		t.Status == TransactionStatusCancelled ||
		t.Status == TransactionStatusRefunded
}

// CreditAmount is what a paid charge adds to the merchant balance.
// Charges persisted without fee data fall back to the gross amount.
func (t *Transaction) CreditAmount() int64 {
	if t.NetAmount == 0 && t.FeeAmount == 0 {
		return t.Amount
	}
	return t.NetAmount
}

// TransitionTo decides how an event targeting next applies to the current status.
// Same or superseded targets are no-ops; a refund before payment is rejected.
func (s TransactionStatus) TransitionTo(next TransactionStatus) (bool, error) {
	if s == next {
		return false, nil
	}
	switch s {
	case TransactionStatusPending:
		switch next {
		case TransactionStatusPaid, TransactionStatusRefused, TransactionStatusCancelled:
			return true, nil
		case TransactionStatusRefunded:
			return false, ErrInvalidTransition
		}
	case TransactionStatusPaid:
		if next == TransactionStatusRefunded {
			return true, nil
		}
		return false, nil
	case TransactionStatusRefused, TransactionStatusCancelled, TransactionStatusRefunded:
		return false, nil
	}
	return false, ErrInvalidTransition
}
