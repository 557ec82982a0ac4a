package memory

import (
	"time"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// DemoMerchantID is the merchant SeedDemo creates, so tokens can be issued for it ahead of time.
var DemoMerchantID = uuid.MustParse("6f1c2a9e-4b7d-4c35-9e0a-2d8f5b6a7c01")

// SeedDemo adds a demo merchant routed to a single acquirer at baseURL.
func (s *Store) SeedDemo(baseURL string) (domain.Merchant, domain.Acquirer) {
	m := s.AddMerchant(domain.Merchant{
		ID:     DemoMerchantID,
		Name:   "Loja Demo",
		PixKey: "demo@pix-gateway.local",
		City:   "Sao Paulo",
	})
	a := s.AddAcquirer(domain.Acquirer{
		Code:        "sandbox",
		Name:        "Sandbox",
		BaseURL:     baseURL,
		Environment: domain.EnvironmentSandbox,
		IsActive:    true,
	})
	s.Assign(domain.AcquirerAssignment{
		MerchantID: m.ID,
		AcquirerID: a.ID,
		Priority:   1,
		Weight:     100,
		IsActive:   true,
	})
	return m, a
}

// AddMerchant stores m, filling id and timestamps when zero.
func (s *Store) AddMerchant(m domain.Merchant) domain.Merchant {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = domain.MerchantStatusActive
	}
	stamp(&m.CreatedAt, &m.UpdatedAt)
	s.mu.Lock()
	s.merchants[m.ID] = m
	s.mu.Unlock()
	return m
}

// AddAcquirer stores a.
func (s *Store) AddAcquirer(a domain.Acquirer) domain.Acquirer {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	stamp(&a.CreatedAt, &a.UpdatedAt)
	s.mu.Lock()
	s.acquirers[a.ID] = a
	s.mu.Unlock()
	return a
}

// Assign links a merchant to an acquirer.
func (s *Store) Assign(as domain.AcquirerAssignment) domain.AcquirerAssignment {
	if as.ID == uuid.Nil {
		as.ID = uuid.New()
	}
	if as.CreatedAt.IsZero() {
		as.CreatedAt = time.Now().UTC()
	}
	as.Acquirer = nil
	s.mu.Lock()
	s.assignments[as.ID] = as
	s.mu.Unlock()
	return as
}

// SetLimit replaces the limit for the acquirer and direction of l.
func (s *Store) SetLimit(l domain.AcquirerLimit) {
	s.mu.Lock()
	s.limits[limitKey{l.AcquirerID, l.Direction}] = l
	s.mu.Unlock()
}

func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}
