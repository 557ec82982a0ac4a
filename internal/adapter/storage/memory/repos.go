package memory

import (
	"context"
	"fmt"
	"time"

	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Merchants ---

type MerchantRepo struct{ s *Store }

func NewMerchantRepo(s *Store) *MerchantRepo { return &MerchantRepo{s: s} }

func (r *MerchantRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.merchants[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// --- Wallets ---

type WalletRepo struct{ s *Store }

func NewWalletRepo(s *Store) *WalletRepo { return &WalletRepo{s: s} }

func pickWallets(t *Tx) map[uuid.UUID]*domain.Wallet { return t.prevWallets }

func (r *WalletRepo) GetByMerchantID(_ context.Context, merchantID uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, _ := committed(r.s, pickWallets, r.s.wallets, merchantID)
	return w, nil
}

// GetByMerchantIDForUpdate needs no row lock: holding tx already excludes other writers.
func (r *WalletRepo) GetByMerchantIDForUpdate(_ context.Context, tx pgx.Tx, merchantID uuid.UUID) (*domain.Wallet, error) {
	if _, err := r.s.own(tx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.wallets[merchantID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *WalletRepo) CreateIfNotExists(_ context.Context, tx pgx.Tx, w *domain.Wallet) error {
	return r.s.write(tx, func(t *Tx) (func(), error) {
		if _, ok := r.s.wallets[w.MerchantID]; ok {
			return nil, nil
		}
		remember(&t.prevWallets, r.s.wallets, w.MerchantID)
		r.s.wallets[w.MerchantID] = *w
		return func() { delete(r.s.wallets, w.MerchantID) }, nil
	})
}

func (r *WalletRepo) Update(_ context.Context, tx pgx.Tx, w *domain.Wallet) error {
	return r.s.write(tx, func(t *Tx) (func(), error) {
		prev, ok := r.s.wallets[w.MerchantID]
		if !ok || prev.ID != w.ID {
			return nil, fmt.Errorf("wallet not found")
		}
		remember(&t.prevWallets, r.s.wallets, w.MerchantID)
		next := prev
		next.Balance = w.Balance
		next.FrozenBalance = w.FrozenBalance
		next.TotalFeesPaid = w.TotalFeesPaid
		next.UpdatedAt = time.Now().UTC()
		r.s.wallets[w.MerchantID] = next
		return func() { r.s.wallets[w.MerchantID] = prev }, nil
	})
}

// --- Transactions ---

type TransactionRepo struct{ s *Store }

func NewTransactionRepo(s *Store) *TransactionRepo { return &TransactionRepo{s: s} }

func pickTransactions(t *Tx) map[uuid.UUID]*domain.Transaction { return t.prevTransactions }

func (r *TransactionRepo) Create(_ context.Context, tx pgx.Tx, t *domain.Transaction) error {
	return r.s.write(tx, func(owner *Tx) (func(), error) {
		if _, ok := r.s.transactions[t.ID]; ok {
			return nil, fmt.Errorf("create transaction: %w: id %s", ports.ErrConflict, t.ID)
		}
		pk := providerKey{t.AcquirerID, t.ProviderID}
		if _, ok := r.s.txByProvider[pk]; ok {
			return nil, fmt.Errorf("create transaction: %w: provider_id %s", ports.ErrConflict, t.ProviderID)
		}
		var key *refKey
		if t.ExternalReference != nil {
			k := refKey{t.MerchantID, *t.ExternalReference}
			if _, ok := r.s.txByRef[k]; ok {
				return nil, fmt.Errorf("create transaction: %w: external_reference %s", ports.ErrConflict, k.ref)
			}
			r.s.txByRef[k] = t.ID
			key = &k
		}
		remember(&owner.prevTransactions, r.s.transactions, t.ID)
		r.s.transactions[t.ID] = *t
		r.s.txByProvider[pk] = t.ID
		return func() {
			delete(r.s.transactions, t.ID)
			delete(r.s.txByProvider, pk)
			if key != nil {
				delete(r.s.txByRef, *key)
			}
		}, nil
	})
}

func (r *TransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, _ := committed(r.s, pickTransactions, r.s.transactions, id)
	return t, nil
}

func (r *TransactionRepo) GetByExternalReference(ctx context.Context, merchantID uuid.UUID, externalReference string) (*domain.Transaction, error) {
	r.s.mu.RLock()
	id, ok := r.s.txByRef[refKey{merchantID, externalReference}]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *TransactionRepo) GetByProviderIDForUpdate(_ context.Context, tx pgx.Tx, acquirerID *uuid.UUID, providerID string) (*domain.Transaction, error) {
	if _, err := r.s.own(tx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if acquirerID != nil {
		id, ok := r.s.txByProvider[providerKey{*acquirerID, providerID}]
		if !ok {
			return nil, nil
		}
		t := r.s.transactions[id]
		return &t, nil
	}
	var found *domain.Transaction
	for _, t := range r.s.transactions {
		if t.ProviderID != providerID {
			continue
		}
		if found == nil || t.CreatedAt.Before(found.CreatedAt) {
			t := t
			found = &t
		}
	}
	return found, nil
}

func (r *TransactionRepo) UpdateStatus(_ context.Context, tx pgx.Tx, t *domain.Transaction, from domain.TransactionStatus) (bool, error) {
	updated := false
	err := r.s.write(tx, func(owner *Tx) (func(), error) {
		prev, ok := r.s.transactions[t.ID]
		if !ok || prev.Status != from {
			return nil, nil
		}
		remember(&owner.prevTransactions, r.s.transactions, t.ID)
		next := prev
		next.Status = t.Status
		next.EndToEndID = t.EndToEndID
		next.PaidAt = t.PaidAt
		next.RefundShortfall = t.RefundShortfall
		next.UpdatedAt = t.UpdatedAt
		r.s.transactions[t.ID] = next
		updated = true
		return func() { r.s.transactions[t.ID] = prev }, nil
	})
	return updated, err
}

// --- Deposits ---

type DepositRepo struct{ s *Store }

func NewDepositRepo(s *Store) *DepositRepo { return &DepositRepo{s: s} }

func pickDeposits(t *Tx) map[uuid.UUID]*domain.Deposit { return t.prevDeposits }

func (r *DepositRepo) Create(_ context.Context, tx pgx.Tx, d *domain.Deposit) error {
	return r.s.write(tx, func(owner *Tx) (func(), error) {
		if _, ok := r.s.deposits[d.ID]; ok {
			return nil, fmt.Errorf("create deposit: %w: id %s", ports.ErrConflict, d.ID)
		}
		pk := providerKey{d.AcquirerID, d.ProviderID}
		if _, ok := r.s.depByProv[pk]; ok {
			return nil, fmt.Errorf("create deposit: %w: provider_id %s", ports.ErrConflict, d.ProviderID)
		}
		var key *refKey
		if d.ExternalReference != nil {
			k := refKey{d.MerchantID, *d.ExternalReference}
			if _, ok := r.s.depByRef[k]; ok {
				return nil, fmt.Errorf("create deposit: %w: external_reference %s", ports.ErrConflict, k.ref)
			}
			r.s.depByRef[k] = d.ID
			key = &k
		}
		remember(&owner.prevDeposits, r.s.deposits, d.ID)
		r.s.deposits[d.ID] = *d
		r.s.depByProv[pk] = d.ID
		return func() {
			delete(r.s.deposits, d.ID)
			delete(r.s.depByProv, pk)
			if key != nil {
				delete(r.s.depByRef, *key)
			}
		}, nil
	})
}

func (r *DepositRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Deposit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, _ := committed(r.s, pickDeposits, r.s.deposits, id)
	return d, nil
}

func (r *DepositRepo) GetByExternalReference(ctx context.Context, merchantID uuid.UUID, externalReference string) (*domain.Deposit, error) {
	r.s.mu.RLock()
	id, ok := r.s.depByRef[refKey{merchantID, externalReference}]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *DepositRepo) GetByProviderIDForUpdate(_ context.Context, tx pgx.Tx, acquirerID *uuid.UUID, providerID string) (*domain.Deposit, error) {
	if _, err := r.s.own(tx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if acquirerID != nil {
		id, ok := r.s.depByProv[providerKey{*acquirerID, providerID}]
		if !ok {
			return nil, nil
		}
		d := r.s.deposits[id]
		return &d, nil
	}
	var found *domain.Deposit
	for _, d := range r.s.deposits {
		if d.ProviderID != providerID {
			continue
		}
		if found == nil || d.CreatedAt.Before(found.CreatedAt) {
			d := d
			found = &d
		}
	}
	return found, nil
}

func (r *DepositRepo) UpdateStatus(_ context.Context, tx pgx.Tx, d *domain.Deposit, from domain.DepositStatus) (bool, error) {
	updated := false
	err := r.s.write(tx, func(owner *Tx) (func(), error) {
		prev, ok := r.s.deposits[d.ID]
		if !ok || prev.Status != from {
			return nil, nil
		}
		remember(&owner.prevDeposits, r.s.deposits, d.ID)
		next := prev
		next.Status = d.Status
		next.EndToEndID = d.EndToEndID
		next.PaidAt = d.PaidAt
		next.UpdatedAt = d.UpdatedAt
		r.s.deposits[d.ID] = next
		updated = true
		return func() { r.s.deposits[d.ID] = prev }, nil
	})
	return updated, err
}

// --- Acquirers ---

type AcquirerRepo struct{ s *Store }

func NewAcquirerRepo(s *Store) *AcquirerRepo { return &AcquirerRepo{s: s} }

func (r *AcquirerRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Acquirer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.acquirers[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *AcquirerRepo) GetByCode(_ context.Context, code string) (*domain.Acquirer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.acquirers {
		if a.Code == code {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (r *AcquirerRepo) ListActiveAssignments(_ context.Context, merchantID uuid.UUID) ([]domain.AcquirerAssignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.AcquirerAssignment
	for _, as := range r.s.assignments {
		if as.MerchantID != merchantID || !as.IsActive {
			continue
		}
		acq, ok := r.s.acquirers[as.AcquirerID]
		if !ok || !acq.IsActive {
			continue
		}
		as.Acquirer = &acq
		out = append(out, as)
	}
	domain.SortAssignments(out)
	return out, nil
}

func (r *AcquirerRepo) GetLimit(_ context.Context, acquirerID uuid.UUID, direction domain.Direction) (*domain.AcquirerLimit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.limits[limitKey{acquirerID, direction}]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *AcquirerRepo) RecordFailure(_ context.Context, assignmentID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	as, ok := r.s.assignments[assignmentID]
	if !ok {
		return fmt.Errorf("assignment %s not found", assignmentID)
	}
	as.FailureCount++
	at = at.UTC()
	as.LastFailureAt = &at
	r.s.assignments[assignmentID] = as
	return nil
}

// --- Inbound events ---

type EventRepo struct{ s *Store }

func NewEventRepo(s *Store) *EventRepo { return &EventRepo{s: s} }

func (r *EventRepo) Create(_ context.Context, tx pgx.Tx, e *domain.InboundEvent) error {
	return r.s.write(tx, func(*Tx) (func(), error) {
		r.s.events = append(r.s.events, *e)
		n := len(r.s.events) - 1
		return func() { r.s.events = r.s.events[:n] }, nil
	})
}

// Events returns the recorded inbound events in arrival order.
func (r *EventRepo) Events() []domain.InboundEvent {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.InboundEvent, len(r.s.events))
	copy(out, r.s.events)
	return out
}

// Assignment returns the stored assignment, including failure counters.
func (r *AcquirerRepo) Assignment(id uuid.UUID) (domain.AcquirerAssignment, bool) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	as, ok := r.s.assignments[id]
	return as, ok
}
