package domain

import (
	"time"

	"github.com/google/uuid"
)

// MerchantStatus represents the state of a merchant account.
type MerchantStatus string

const (
	MerchantStatusActive      MerchantStatus = "ACTIVE"
	MerchantStatusSuspended   MerchantStatus = "SUSPENDED"
	MerchantStatusDeactivated MerchantStatus = "DEACTIVATED"
)

// Merchant is read-only here; registration lives in another service.
type Merchant struct {
	ID               uuid.UUID      `json:"id"`
	Name             string         `json:"name"`
	PixKey           string         `json:"pix_key"`
	City             string         `json:"city"`
	WebhookURL       *string        `json:"webhook_url,omitempty"`
	WebhookSecretEnc string         `json:"-"` // Encrypted, never expose
	FeeScheme        *FeeScheme     `json:"fee_scheme,omitempty"`
	Status           MerchantStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsActive returns true if the merchant account is active.
func (m *Merchant) IsActive() bool {
	return m.Status == MerchantStatusActive
}
