package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Environment distinguishes acquirer sandbox credentials from live ones.
type Environment string

const (
	EnvironmentSandbox    Environment = "SANDBOX"
	EnvironmentProduction Environment = "PRODUCTION"
)

var ErrLimitExceeded = errors.New("acquirer limit exceeded")

// Acquirer is an external PIX provider the gateway can route charges to.
type Acquirer struct {
	ID               uuid.UUID   `json:"id"`
	Code             string      `json:"code"` // URL-safe slug, used in webhook routes
	Name             string      `json:"name"`
	BaseURL          string      `json:"base_url"`
	CredentialsEnc   string      `json:"-"`
	WebhookSecretEnc string      `json:"-"`
	Environment      Environment `json:"environment"`
	IsActive         bool        `json:"is_active"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// AcquirerAssignment links a merchant to an acquirer with a routing order.
type AcquirerAssignment struct {
	ID            uuid.UUID  `json:"id"`
	MerchantID    uuid.UUID  `json:"merchant_id"`
	AcquirerID    uuid.UUID  `json:"acquirer_id"`
	Priority      int        `json:"priority"` // lower is tried first
	Weight        int        `json:"weight"`   // higher wins within a priority
	IsActive      bool       `json:"is_active"`
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Acquirer      *Acquirer  `json:"acquirer,omitempty"`
}

// SortAssignments orders by priority asc, weight desc, then creation time and id
// so that the attempt order is total and stable.
func SortAssignments(as []AcquirerAssignment) {
	sort.SliceStable(as, func(i, j int) bool {
		a, b := as[i], as[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// AcquirerUsage is the volume already routed to an acquirer in the current windows.
type AcquirerUsage struct {
	Daily   int64
	Monthly int64
}

// AcquirerLimit bounds what a single acquirer accepts for one direction.
// Nil fields are unbounded.
type AcquirerLimit struct {
	AcquirerID   uuid.UUID `json:"acquirer_id"`
	Direction    Direction `json:"direction"`
	MinAmount    *int64    `json:"min_amount,omitempty"`
	MaxAmount    *int64    `json:"max_amount,omitempty"`
	DailyLimit   *int64    `json:"daily_limit,omitempty"`
	MonthlyLimit *int64    `json:"monthly_limit,omitempty"`
}

// Check returns ErrLimitExceeded when amount does not fit the limit given usage.
func (l *AcquirerLimit) Check(amount int64, usage AcquirerUsage) error {
	if l == nil {
		return nil
	}
	if l.MinAmount != nil && amount < *l.MinAmount {
		return fmt.Errorf("%w: amount %d below minimum %d", ErrLimitExceeded, amount, *l.MinAmount)
	}
	if l.MaxAmount != nil && amount > *l.MaxAmount {
		return fmt.Errorf("%w: amount %d above maximum %d", ErrLimitExceeded, amount, *l.MaxAmount)
	}
	if l.DailyLimit != nil && usage.Daily+amount > *l.DailyLimit {
		return fmt.Errorf("%w: daily limit %d", ErrLimitExceeded, *l.DailyLimit)
	}
	if l.MonthlyLimit != nil && usage.Monthly+amount > *l.MonthlyLimit {
		return fmt.Errorf("%w: monthly limit %d", ErrLimitExceeded, *l.MonthlyLimit)
	}
	return nil
}

// HasVolumeCaps reports whether usage counters are needed to evaluate the limit.
func (l *AcquirerLimit) HasVolumeCaps() bool {
	return l != nil && (l.DailyLimit != nil || l.MonthlyLimit != nil)
}
