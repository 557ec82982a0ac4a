package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType identifies a committed state change merchants can subscribe to.
type NotificationType string

const (
	NotificationChargePaid       NotificationType = "CHARGE_PAID"
	NotificationChargeRefused    NotificationType = "CHARGE_REFUSED"
	NotificationChargeCancelled  NotificationType = "CHARGE_CANCELLED"
	NotificationChargeRefunded   NotificationType = "CHARGE_REFUNDED"
	NotificationDepositPaid      NotificationType = "DEPOSIT_PAID"
	NotificationDepositExpired   NotificationType = "DEPOSIT_EXPIRED"
	NotificationDepositCancelled NotificationType = "DEPOSIT_CANCELLED"
)

// Notification is emitted after a transition has been committed.
type Notification struct {
	ID           uuid.UUID        `json:"id"`
	Type         NotificationType `json:"type"`
	MerchantID   uuid.UUID        `json:"merchant_id"`
	ResourceType ResourceType     `json:"resource_type"`
	ResourceID   uuid.UUID        `json:"resource_id"`
	ProviderID   string           `json:"provider_id"`
	ReferenceID  string           `json:"reference_id"`
	Status       string           `json:"status"`
	Amount       int64            `json:"amount"`
	NetAmount    int64            `json:"net_amount"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// NewTransactionNotification describes a charge after it moved to its current status.
func NewTransactionNotification(tx *Transaction) *Notification {
	types := map[TransactionStatus]NotificationType{
		TransactionStatusPaid:      NotificationChargePaid,
		TransactionStatusRefused:   NotificationChargeRefused,
		TransactionStatusCancelled: NotificationChargeCancelled,
		TransactionStatusRefunded:  NotificationChargeRefunded,
	}
	return &Notification{
		ID:           uuid.New(),
		Type:         types[tx.Status],
		MerchantID:   tx.MerchantID,
		ResourceType: ResourceTypeTransaction,
		ResourceID:   tx.ID,
		ProviderID:   tx.ProviderID,
		ReferenceID:  tx.ReferenceID,
		Status:       string(tx.Status),
		Amount:       tx.Amount,
		NetAmount:    tx.CreditAmount(),
		OccurredAt:   time.Now().UTC(),
	}
}

// NewDepositNotification describes a deposit after it moved to its current status.
func NewDepositNotification(d *Deposit) *Notification {
	types := map[DepositStatus]NotificationType{
		DepositStatusPaid:      NotificationDepositPaid,
		DepositStatusExpired:   NotificationDepositExpired,
		DepositStatusCancelled: NotificationDepositCancelled,
	}
	return &Notification{
		ID:           uuid.New(),
		Type:         types[d.Status],
		MerchantID:   d.MerchantID,
		ResourceType: ResourceTypeDeposit,
		ResourceID:   d.ID,
		ProviderID:   d.ProviderID,
		ReferenceID:  d.ReferenceID,
		Status:       string(d.Status),
		Amount:       d.Amount,
		NetAmount:    d.Amount,
		OccurredAt:   time.Now().UTC(),
	}
}
