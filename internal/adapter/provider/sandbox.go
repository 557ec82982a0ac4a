package provider

import (
	"context"
	"strings"
	"sync"
	"time"

	"pix-gateway/internal/core/ports"

	"github.com/google/uuid"
)

// SandboxScheme marks an acquirer base_url served in-process.
const SandboxScheme = "sandbox://"

// Sandbox is an in-process acquirer. It accepts every charge, returns no payload
// so the gateway renders its own BR Code, and remembers cancellations.
type Sandbox struct {
	code      string
	ttl       time.Duration
	mu        sync.Mutex
	cancelled map[string]bool
}

// NewSandbox creates a sandbox acquirer whose charges expire after ttl.
func NewSandbox(code string, ttl time.Duration) *Sandbox {
	return &Sandbox{code: code, ttl: ttl, cancelled: make(map[string]bool)}
}

func (s *Sandbox) CreateCharge(ctx context.Context, _ ports.ChargeRequest) (*ports.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &ports.ChargeResult{
		ProviderID: s.code + "_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	if s.ttl > 0 {
		exp := time.Now().UTC().Add(s.ttl)
		res.ExpiresAt = &exp
	}
	return res, nil
}

func (s *Sandbox) CancelCharge(ctx context.Context, providerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cancelled[providerID] = true
	s.mu.Unlock()
	return nil
}

// Cancelled reports whether providerID was cancelled.
func (s *Sandbox) Cancelled(providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[providerID]
}
