package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pix-gateway/internal/core/ports"
)

var ErrMalformedEvent = errors.New("malformed provider event")

// callback covers the field spellings acquirers use in PIX callbacks.
type callback struct {
	Event string `json:"event"`
	Type  string `json:"type"`

	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	ChargeID   string `json:"charge_id"`
	TxID       string `json:"txid"`

	Status string `json:"status"`

	EndToEndID    string `json:"end_to_end_id"`
	EndToEndCamel string `json:"endToEndId"`
	E2EID         string `json:"e2e_id"`

	PaidAt    string `json:"paid_at"`
	PaidCamel string `json:"paidAt"`

	Data json.RawMessage `json:"data"`
}

// ParseEvent decodes an acquirer callback body into a ProviderEvent.
// Fields under a "data" object take precedence over top-level ones.
func ParseEvent(body []byte) (ports.ProviderEvent, error) {
	var ev ports.ProviderEvent
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ev, fmt.Errorf("%w: empty body", ErrMalformedEvent)
	}

	var top callback
	if err := json.Unmarshal(body, &top); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	merged := top
	if len(top.Data) > 0 && top.Data[0] == '{' {
		var inner callback
		if err := json.Unmarshal(top.Data, &inner); err != nil {
			return ev, fmt.Errorf("%w: data: %v", ErrMalformedEvent, err)
		}
		merged = overlay(top, inner)
	}

	ev.EventType = firstNonEmpty(merged.Event, merged.Type)
	ev.ProviderID = firstNonEmpty(merged.ProviderID, merged.ChargeID, merged.TxID, merged.ID)
	ev.Status = merged.Status
	ev.Raw = json.RawMessage(append([]byte(nil), body...))

	if e2e := firstNonEmpty(merged.EndToEndID, merged.EndToEndCamel, merged.E2EID); e2e != "" {
		ev.EndToEndID = &e2e
	}
	if raw := firstNonEmpty(merged.PaidAt, merged.PaidCamel); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ev, fmt.Errorf("%w: paid_at: %v", ErrMalformedEvent, err)
		}
		t = t.UTC()
		ev.PaidAt = &t
	}

	if ev.ProviderID == "" {
		return ev, fmt.Errorf("%w: missing charge id", ErrMalformedEvent)
	}
	return ev, nil
}

func overlay(top, inner callback) callback {
	pick := func(in, out string) string {
		if in != "" {
			return in
		}
		return out
	}
	return callback{
		Event:         pick(inner.Event, top.Event),
		Type:          pick(inner.Type, top.Type),
		ID:            pick(inner.ID, top.ID),
		ProviderID:    pick(inner.ProviderID, top.ProviderID),
		ChargeID:      pick(inner.ChargeID, top.ChargeID),
		TxID:          pick(inner.TxID, top.TxID),
		Status:        pick(inner.Status, top.Status),
		EndToEndID:    pick(inner.EndToEndID, top.EndToEndID),
		EndToEndCamel: pick(inner.EndToEndCamel, top.EndToEndCamel),
		E2EID:         pick(inner.E2EID, top.E2EID),
		PaidAt:        pick(inner.PaidAt, top.PaidAt),
		PaidCamel:     pick(inner.PaidCamel, top.PaidCamel),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
