package dto

import (
	"time"

	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"
)

const timeLayout = time.RFC3339

// CreateChargeRequest is the request body for POST /api/v1/charges.
type CreateChargeRequest struct {
	Amount            int64   `json:"amount" binding:"required,gt=0"` // centavos
	Direction         string  `json:"direction,omitempty" binding:"omitempty,oneof=CASH_IN CASH_OUT"`
	Description       *string `json:"description,omitempty" binding:"omitempty,max=140"`
	CustomerName      *string `json:"customer_name,omitempty" binding:"omitempty,max=100"`
	CustomerDocument  *string `json:"customer_document,omitempty" binding:"omitempty,pix_document"`
	ExternalReference *string `json:"external_reference,omitempty" binding:"omitempty,max=100,safe_id"`
	ReferenceID       string  `json:"reference_id,omitempty" binding:"omitempty,txid"`
}

// CreateDepositRequest is the request body for POST /api/v1/deposits.
type CreateDepositRequest struct {
	Amount            int64   `json:"amount" binding:"required,gt=0"`
	Description       *string `json:"description,omitempty" binding:"omitempty,max=140"`
	ExternalReference *string `json:"external_reference,omitempty" binding:"omitempty,max=100,safe_id"`
	ReferenceID       string  `json:"reference_id,omitempty" binding:"omitempty,txid"`
}

// ChargeResponse is the response body for a PIX charge.
type ChargeResponse struct {
	ID                string  `json:"id"`
	AcquirerID        string  `json:"acquirer_id"`
	Direction         string  `json:"direction"`
	Amount            int64   `json:"amount"`
	FeeAmount         int64   `json:"fee_amount"`
	NetAmount         int64   `json:"net_amount"`
	Status            string  `json:"status"`
	ProviderID        string  `json:"provider_id"`
	ReferenceID       string  `json:"reference_id"`
	ExternalReference *string `json:"external_reference,omitempty"`
	EndToEndID        *string `json:"end_to_end_id,omitempty"`
	PixPayload        string  `json:"pix_payload"`
	ExpiresAt         *string `json:"expires_at,omitempty"`
	PaidAt            *string `json:"paid_at,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

// DepositResponse is the response body for a wallet deposit.
type DepositResponse struct {
	ID                string  `json:"id"`
	AcquirerID        string  `json:"acquirer_id"`
	Amount            int64   `json:"amount"`
	Status            string  `json:"status"`
	ProviderID        string  `json:"provider_id"`
	ReferenceID       string  `json:"reference_id"`
	ExternalReference *string `json:"external_reference,omitempty"`
	PixPayload        string  `json:"pix_payload"`
	ExpiresAt         *string `json:"expires_at,omitempty"`
	PaidAt            *string `json:"paid_at,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

// WalletBalanceResponse is the response for balance query.
type WalletBalanceResponse struct {
	Balance       int64  `json:"balance"`
	FrozenBalance int64  `json:"frozen_balance"`
	TotalFeesPaid int64  `json:"total_fees_paid"`
	Currency      string `json:"currency"`
}

// WebhookAckResponse acknowledges an acquirer callback.
type WebhookAckResponse struct {
	Outcome      string  `json:"outcome"`
	ResourceType string  `json:"resource_type"`
	ResourceID   *string `json:"resource_id,omitempty"`
	Status       string  `json:"status,omitempty"`
}

func NewChargeResponse(t *domain.Transaction) ChargeResponse {
	return ChargeResponse{
		ID:                t.ID.String(),
		AcquirerID:        t.AcquirerID.String(),
		Direction:         string(t.Direction),
		Amount:            t.Amount,
		FeeAmount:         t.FeeAmount,
		NetAmount:         t.NetAmount,
		Status:            string(t.Status),
		ProviderID:        t.ProviderID,
		ReferenceID:       t.ReferenceID,
		ExternalReference: t.ExternalReference,
		EndToEndID:        t.EndToEndID,
		PixPayload:        t.PixPayload,
		ExpiresAt:         formatTime(t.ExpiresAt),
		PaidAt:            formatTime(t.PaidAt),
		CreatedAt:         t.CreatedAt.Format(timeLayout),
	}
}

func NewDepositResponse(d *domain.Deposit) DepositResponse {
	return DepositResponse{
		ID:                d.ID.String(),
		AcquirerID:        d.AcquirerID.String(),
		Amount:            d.Amount,
		Status:            string(d.Status),
		ProviderID:        d.ProviderID,
		ReferenceID:       d.ReferenceID,
		ExternalReference: d.ExternalReference,
		PixPayload:        d.PixPayload,
		ExpiresAt:         formatTime(d.ExpiresAt),
		PaidAt:            formatTime(d.PaidAt),
		CreatedAt:         d.CreatedAt.Format(timeLayout),
	}
}

func NewWalletBalanceResponse(w *domain.Wallet) WalletBalanceResponse {
	return WalletBalanceResponse{
		Balance:       w.Balance,
		FrozenBalance: w.FrozenBalance,
		TotalFeesPaid: w.TotalFeesPaid,
		Currency:      "BRL",
	}
}

func NewWebhookAckResponse(r *ports.ReconcileResult) WebhookAckResponse {
	resp := WebhookAckResponse{
		Outcome:      string(r.Outcome),
		ResourceType: string(r.ResourceType),
		Status:       r.Status,
	}
	if r.ResourceID != nil {
		id := r.ResourceID.String()
		resp.ResourceID = &id
	}
	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}
