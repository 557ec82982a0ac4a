package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTransaction(merchantID uuid.UUID, providerID string) *domain.Transaction {
	now := time.Now().UTC()
	return &domain.Transaction{
		ID:          uuid.New(),
		MerchantID:  merchantID,
		Direction:   domain.DirectionCashIn,
		Amount:      10000,
		FeeAmount:   250,
		NetAmount:   9750,
		Status:      domain.TransactionStatusPending,
		ProviderID:  providerID,
		ReferenceID: "REF1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestStore_CommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	wallets := NewWalletRepo(s)
	merchantID := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	w := domain.NewWallet(merchantID)
	require.NoError(t, wallets.CreateIfNotExists(ctx, tx, w))
	w.Balance = 500
	require.NoError(t, wallets.Update(ctx, tx, w))
	require.NoError(t, tx.Commit(ctx))

	got, err := wallets.GetByMerchantID(ctx, merchantID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(500), got.Balance)

	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)
}

func TestStore_RollbackUndoesWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	wallets := NewWalletRepo(s)
	txs := NewTransactionRepo(s)
	events := NewEventRepo(s)
	merchantID := uuid.New()

	// committed baseline
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	w := domain.NewWallet(merchantID)
	require.NoError(t, wallets.CreateIfNotExists(ctx, tx, w))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	w.Balance = 999
	require.NoError(t, wallets.Update(ctx, tx, w))
	txn := newTransaction(merchantID, "ch_1")
	txn.ExternalReference = strPtr("order-1")
	require.NoError(t, txs.Create(ctx, tx, txn))
	require.NoError(t, events.Create(ctx, tx, &domain.InboundEvent{ID: uuid.New(), ProviderID: "ch_1"}))
	require.NoError(t, tx.Rollback(ctx))

	got, err := wallets.GetByMerchantID(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)

	gotTx, err := txs.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Nil(t, gotTx)

	byRef, err := txs.GetByExternalReference(ctx, merchantID, "order-1")
	require.NoError(t, err)
	assert.Nil(t, byRef)
	assert.Empty(t, events.Events())
}

func TestStore_BeginWaitsForOpenTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(short)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	require.NoError(t, tx.Commit(ctx))
	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestStore_RejectsForeignTx(t *testing.T) {
	ctx := context.Background()
	a, b := NewStore(), NewStore()

	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	err = NewWalletRepo(b).CreateIfNotExists(ctx, tx, domain.NewWallet(uuid.New()))
	assert.ErrorIs(t, err, errForeignTx)
}

func TestWalletRepo_CreateIfNotExistsKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	wallets := NewWalletRepo(s)
	merchantID := uuid.New()

	tx, _ := s.Begin(ctx)
	first := domain.NewWallet(merchantID)
	first.Balance = 10
	require.NoError(t, wallets.CreateIfNotExists(ctx, tx, first))
	require.NoError(t, wallets.CreateIfNotExists(ctx, tx, domain.NewWallet(merchantID)))
	require.NoError(t, tx.Commit(ctx))

	got, err := wallets.GetByMerchantID(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, int64(10), got.Balance)
}

func TestTransactionRepo_ExternalReferenceConflict(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	txs := NewTransactionRepo(s)
	merchantID := uuid.New()

	tx, _ := s.Begin(ctx)
	a := newTransaction(merchantID, "ch_a")
	a.ExternalReference = strPtr("dup")
	require.NoError(t, txs.Create(ctx, tx, a))

	b := newTransaction(merchantID, "ch_b")
	b.ExternalReference = strPtr("dup")
	err := txs.Create(ctx, tx, b)
	assert.ErrorIs(t, err, ports.ErrConflict)

	other := newTransaction(uuid.New(), "ch_c")
	other.ExternalReference = strPtr("dup")
	assert.NoError(t, txs.Create(ctx, tx, other))
	require.NoError(t, tx.Commit(ctx))
}

func TestTransactionRepo_UpdateStatusPredicate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	txs := NewTransactionRepo(s)
	txn := newTransaction(uuid.New(), "ch_1")

	tx, _ := s.Begin(ctx)
	require.NoError(t, txs.Create(ctx, tx, txn))

	found, err := txs.GetByProviderIDForUpdate(ctx, tx, nil, "ch_1")
	require.NoError(t, err)
	require.NotNil(t, found)

	found.Status = domain.TransactionStatusPaid
	found.EndToEndID = strPtr("E2E")
	ok, err := txs.UpdateStatus(ctx, tx, found, domain.TransactionStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	found.Status = domain.TransactionStatusRefused
	ok, err = txs.UpdateStatus(ctx, tx, found, domain.TransactionStatusPending)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tx.Commit(ctx))

	got, _ := txs.GetByID(ctx, txn.ID)
	assert.Equal(t, domain.TransactionStatusPaid, got.Status)
	assert.Equal(t, "E2E", *got.EndToEndID)
}

func TestTransactionRepo_GetByProviderIDReturnsOldest(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	txs := NewTransactionRepo(s)

	older := newTransaction(uuid.New(), "ch_same")
	older.AcquirerID = uuid.New()
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newTransaction(uuid.New(), "ch_same")
	newer.AcquirerID = uuid.New()

	tx, _ := s.Begin(ctx)
	require.NoError(t, txs.Create(ctx, tx, newer))
	require.NoError(t, txs.Create(ctx, tx, older))

	got, err := txs.GetByProviderIDForUpdate(ctx, tx, nil, "ch_same")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	none, err := txs.GetByProviderIDForUpdate(ctx, tx, nil, "missing")
	require.NoError(t, err)
	assert.Nil(t, none)
	require.NoError(t, tx.Commit(ctx))
}

func TestTransactionRepo_GetByProviderIDScopedToAcquirer(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	txs := NewTransactionRepo(s)
	acqA, acqB := uuid.New(), uuid.New()

	onA := newTransaction(uuid.New(), "123")
	onA.AcquirerID = acqA

	tx, _ := s.Begin(ctx)
	require.NoError(t, txs.Create(ctx, tx, onA))

	got, err := txs.GetByProviderIDForUpdate(ctx, tx, &acqA, "123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, onA.ID, got.ID)

	other, err := txs.GetByProviderIDForUpdate(ctx, tx, &acqB, "123")
	require.NoError(t, err)
	assert.Nil(t, other)

	dup := newTransaction(uuid.New(), "123")
	dup.AcquirerID = acqA
	assert.ErrorIs(t, txs.Create(ctx, tx, dup), ports.ErrConflict)

	onB := newTransaction(uuid.New(), "123")
	onB.AcquirerID = acqB
	assert.NoError(t, txs.Create(ctx, tx, onB))
	require.NoError(t, tx.Commit(ctx))
}

func TestDepositRepo_GetByProviderIDScopedToAcquirer(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	deps := NewDepositRepo(s)
	acqA, acqB := uuid.New(), uuid.New()
	now := time.Now().UTC()
	dep := &domain.Deposit{
		ID: uuid.New(), MerchantID: uuid.New(), AcquirerID: acqA, Amount: 5000,
		Status: domain.DepositStatusPending, ProviderID: "dp_1", CreatedAt: now, UpdatedAt: now,
	}

	tx, _ := s.Begin(ctx)
	require.NoError(t, deps.Create(ctx, tx, dep))

	got, err := deps.GetByProviderIDForUpdate(ctx, tx, &acqA, "dp_1")
	require.NoError(t, err)
	require.NotNil(t, got)

	other, err := deps.GetByProviderIDForUpdate(ctx, tx, &acqB, "dp_1")
	require.NoError(t, err)
	assert.Nil(t, other)
	require.NoError(t, tx.Rollback(ctx))
}

func TestStore_ReadsOutsideTxSeeCommittedState(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	wallets := NewWalletRepo(s)
	txs := NewTransactionRepo(s)
	merchantID := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	w := domain.NewWallet(merchantID)
	w.Balance = 100
	require.NoError(t, wallets.CreateIfNotExists(ctx, tx, w))
	existing := newTransaction(merchantID, "ch_old")
	require.NoError(t, txs.Create(ctx, tx, existing))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	w.Balance = 700
	require.NoError(t, wallets.Update(ctx, tx, w))
	existing.Status = domain.TransactionStatusPaid
	ok, err := txs.UpdateStatus(ctx, tx, existing, domain.TransactionStatusPending)
	require.NoError(t, err)
	require.True(t, ok)
	fresh := newTransaction(merchantID, "ch_new")
	fresh.ExternalReference = strPtr("order-9")
	require.NoError(t, txs.Create(ctx, tx, fresh))

	// the open tx sees its own writes
	locked, err := wallets.GetByMerchantIDForUpdate(ctx, tx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), locked.Balance)

	got, err := wallets.GetByMerchantID(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)

	gotTx, err := txs.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, gotTx.Status)

	byRef, err := txs.GetByExternalReference(ctx, merchantID, "order-9")
	require.NoError(t, err)
	assert.Nil(t, byRef)

	require.NoError(t, tx.Commit(ctx))

	got, err = wallets.GetByMerchantID(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.Balance)

	byRef, err = txs.GetByExternalReference(ctx, merchantID, "order-9")
	require.NoError(t, err)
	require.NotNil(t, byRef)
	assert.Equal(t, fresh.ID, byRef.ID)
}

func TestDepositRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	deps := NewDepositRepo(s)
	merchantID := uuid.New()
	now := time.Now().UTC()
	dep := &domain.Deposit{
		ID: uuid.New(), MerchantID: merchantID, Amount: 5000, Status: domain.DepositStatusPending,
		ProviderID: "dp_1", ExternalReference: strPtr("topup-1"), CreatedAt: now, UpdatedAt: now,
	}

	tx, _ := s.Begin(ctx)
	require.NoError(t, deps.Create(ctx, tx, dep))
	assert.ErrorIs(t, deps.Create(ctx, tx, dep), ports.ErrConflict)

	dep.Status = domain.DepositStatusCancelled
	ok, err := deps.UpdateStatus(ctx, tx, dep, domain.DepositStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Commit(ctx))

	got, err := deps.GetByExternalReference(ctx, merchantID, "topup-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.DepositStatusCancelled, got.Status)
}

func TestAcquirerRepo_Assignments(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := NewAcquirerRepo(s)
	merchantID := uuid.New()

	a1 := s.AddAcquirer(domain.Acquirer{Code: "alpha", IsActive: true})
	a2 := s.AddAcquirer(domain.Acquirer{Code: "beta", IsActive: true})
	off := s.AddAcquirer(domain.Acquirer{Code: "off", IsActive: false})

	s.Assign(domain.AcquirerAssignment{MerchantID: merchantID, AcquirerID: a2.ID, Priority: 2, Weight: 100, IsActive: true})
	low := s.Assign(domain.AcquirerAssignment{MerchantID: merchantID, AcquirerID: a1.ID, Priority: 1, Weight: 10, IsActive: true})
	high := s.Assign(domain.AcquirerAssignment{MerchantID: merchantID, AcquirerID: a2.ID, Priority: 1, Weight: 50, IsActive: true})
	s.Assign(domain.AcquirerAssignment{MerchantID: merchantID, AcquirerID: off.ID, Priority: 0, IsActive: true})
	s.Assign(domain.AcquirerAssignment{MerchantID: merchantID, AcquirerID: a1.ID, Priority: 0, IsActive: false})
	s.Assign(domain.AcquirerAssignment{MerchantID: uuid.New(), AcquirerID: a1.ID, Priority: 0, IsActive: true})

	list, err := repo.ListActiveAssignments(ctx, merchantID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, high.ID, list[0].ID)
	assert.Equal(t, low.ID, list[1].ID)
	assert.Equal(t, 2, list[2].Priority)
	require.NotNil(t, list[0].Acquirer)
	assert.Equal(t, "beta", list[0].Acquirer.Code)

	got, err := repo.GetByCode(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, a1.ID, got.ID)
	missing, err := repo.GetByCode(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	at := time.Now()
	require.NoError(t, repo.RecordFailure(ctx, low.ID, at))
	require.NoError(t, repo.RecordFailure(ctx, low.ID, at))
	stored, ok := repo.Assignment(low.ID)
	require.True(t, ok)
	assert.Equal(t, 2, stored.FailureCount)
	require.NotNil(t, stored.LastFailureAt)
	assert.Error(t, repo.RecordFailure(ctx, uuid.New(), at))
}

func TestAcquirerRepo_Limits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := NewAcquirerRepo(s)
	acqID := uuid.New()
	maxAmount := int64(100000)

	s.SetLimit(domain.AcquirerLimit{AcquirerID: acqID, Direction: domain.DirectionCashIn, MaxAmount: &maxAmount})

	l, err := repo.GetLimit(ctx, acqID, domain.DirectionCashIn)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, maxAmount, *l.MaxAmount)

	none, err := repo.GetLimit(ctx, acqID, domain.DirectionCashOut)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMerchantRepo_GetByID(t *testing.T) {
	s := NewStore()
	m := s.AddMerchant(domain.Merchant{Name: "Loja"})

	got, err := NewMerchantRepo(s).GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Loja", got.Name)
	assert.Equal(t, domain.MerchantStatusActive, got.Status)

	none, err := NewMerchantRepo(s).GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_ConcurrentTransactionsSerialize(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	wallets := NewWalletRepo(s)
	merchantID := uuid.New()

	tx, _ := s.Begin(ctx)
	require.NoError(t, wallets.CreateIfNotExists(ctx, tx, domain.NewWallet(merchantID)))
	require.NoError(t, tx.Commit(ctx))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.Begin(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer tx.Rollback(ctx) //nolint:errcheck
			w, err := wallets.GetByMerchantIDForUpdate(ctx, tx, merchantID)
			if !assert.NoError(t, err) {
				return
			}
			w.Balance += 10
			assert.NoError(t, wallets.Update(ctx, tx, w))
			assert.NoError(t, tx.Commit(ctx))
		}()
	}
	wg.Wait()

	w, err := wallets.GetByMerchantID(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*10), w.Balance)
}

func TestSeedDemo(t *testing.T) {
	s := NewStore()
	m, a := s.SeedDemo("sandbox://")

	assert.Equal(t, DemoMerchantID, m.ID)
	assert.True(t, m.IsActive())

	got, err := NewAcquirerRepo(s).GetByCode(context.Background(), "sandbox")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)

	assignments, err := NewAcquirerRepo(s).ListActiveAssignments(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, a.ID, assignments[0].AcquirerID)
}
