package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// ResourceType names what an inbound event resolved to.
type ResourceType string

const (
	ResourceTypeTransaction ResourceType = "TRANSACTION"
	ResourceTypeDeposit     ResourceType = "DEPOSIT"
	ResourceTypeNone        ResourceType = "NONE"
)

// EventOutcome records what the reconciler did with an inbound event.
type EventOutcome string

const (
	EventOutcomeApplied    EventOutcome = "APPLIED"
	EventOutcomeDuplicate  EventOutcome = "DUPLICATE"
	EventOutcomeUnresolved EventOutcome = "UNRESOLVED"
	EventOutcomeIgnored    EventOutcome = "IGNORED"
)

// EventStatus is the provider-agnostic status carried by an inbound event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusPaid      EventStatus = "paid"
	EventStatusRefused   EventStatus = "refused"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusExpired   EventStatus = "expired"
	EventStatusRefunded  EventStatus = "refunded"
	EventStatusUnknown   EventStatus = "unknown"
)

var providerStatusAliases = map[string]EventStatus{
	"pending":    EventStatusPending,
	"processing": EventStatusPending,
	"created":    EventStatusPending,
	"waiting":    EventStatusPending,
	"paid":       EventStatusPaid,
	"approved":   EventStatusPaid,
	"completed":  EventStatusPaid,
	"confirmed":  EventStatusPaid,
	"succeeded":  EventStatusPaid,
	"refused":    EventStatusRefused,
	"rejected":   EventStatusRefused,
	"failed":     EventStatusRefused,
	"denied":     EventStatusRefused,
	"canceled":   EventStatusCancelled,
	"cancelled":  EventStatusCancelled,
	"expired":    EventStatusExpired,
	"refunded":   EventStatusRefunded,
	"returned":   EventStatusRefunded,
	"reversed":   EventStatusRefunded,
}

// NormalizeEventStatus maps a provider status string onto EventStatus.
func NormalizeEventStatus(raw string) EventStatus {
	if s, ok := providerStatusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return EventStatusUnknown
}

// TransactionTarget returns the transaction status an event drives to.
// ok is false when the event carries no transition for charges.
func (s EventStatus) TransactionTarget() (TransactionStatus, bool) {
	switch s {
	case EventStatusPaid:
		return TransactionStatusPaid, true
	case EventStatusRefused:
		return TransactionStatusRefused, true
	case EventStatusCancelled, EventStatusExpired:
		return TransactionStatusCancelled, true
	case EventStatusRefunded:
		return TransactionStatusRefunded, true
	}
	return "", false
}

// DepositTarget returns the deposit status an event drives to.
func (s EventStatus) DepositTarget() (DepositStatus, bool) {
	switch s {
	case EventStatusPaid:
		return DepositStatusPaid, true
	case EventStatusExpired:
		return DepositStatusExpired, true
	case EventStatusCancelled, EventStatusRefused:
		return DepositStatusCancelled, true
	}
	return "", false
}

// InboundEvent is a provider callback as received, plus what it resolved to.
type InboundEvent struct {
	ID           uuid.UUID       `json:"id"`
	AcquirerID   *uuid.UUID      `json:"acquirer_id,omitempty"`
	EventType    string          `json:"event_type"`
	ProviderID   string          `json:"provider_id"`
	Status       string          `json:"status"`
	EndToEndID   *string         `json:"end_to_end_id,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	RawPayload   json.RawMessage `json:"raw_payload,omitempty"`
	ResourceType ResourceType    `json:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty"`
	Outcome      EventOutcome    `json:"outcome"`
	ReceivedAt   time.Time       `json:"received_at"`
}
