// Package memory is a process-local storage driver. Transactions are serialized
// store-wide and undone on rollback. Reads outside a transaction see committed
// state only.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errForeignTx = errors.New("memory: transaction does not belong to this store")

type refKey struct {
	merchantID uuid.UUID
	ref        string
}

type providerKey struct {
	acquirerID uuid.UUID
	providerID string
}

type limitKey struct {
	acquirerID uuid.UUID
	direction  domain.Direction
}

// Store holds every table of the in-memory driver.
type Store struct {
	sem  chan struct{} // one open transaction at a time
	mu   sync.RWMutex
	open *Tx

	merchants    map[uuid.UUID]domain.Merchant
	wallets      map[uuid.UUID]domain.Wallet // by merchant id
	acquirers    map[uuid.UUID]domain.Acquirer
	assignments  map[uuid.UUID]domain.AcquirerAssignment
	limits       map[limitKey]domain.AcquirerLimit
	transactions map[uuid.UUID]domain.Transaction
	txByRef      map[refKey]uuid.UUID
	txByProvider map[providerKey]uuid.UUID
	deposits     map[uuid.UUID]domain.Deposit
	depByRef     map[refKey]uuid.UUID
	depByProv    map[providerKey]uuid.UUID
	events       []domain.InboundEvent
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sem:          make(chan struct{}, 1),
		merchants:    make(map[uuid.UUID]domain.Merchant),
		wallets:      make(map[uuid.UUID]domain.Wallet),
		acquirers:    make(map[uuid.UUID]domain.Acquirer),
		assignments:  make(map[uuid.UUID]domain.AcquirerAssignment),
		limits:       make(map[limitKey]domain.AcquirerLimit),
		transactions: make(map[uuid.UUID]domain.Transaction),
		txByRef:      make(map[refKey]uuid.UUID),
		txByProvider: make(map[providerKey]uuid.UUID),
		deposits:     make(map[uuid.UUID]domain.Deposit),
		depByRef:     make(map[refKey]uuid.UUID),
		depByProv:    make(map[providerKey]uuid.UUID),
	}
}

// Begin implements ports.DBTransactor. It blocks until no other transaction is
// open or ctx is done.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.sem <- struct{}{}:
		t := &Tx{store: s}
		s.mu.Lock()
		s.open = t
		s.mu.Unlock()
		return t, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("begin transaction: %w", ctx.Err())
	}
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Name() string { return "memory" }

// write runs fn under the data lock and records undo for rollback.
func (s *Store) write(tx pgx.Tx, fn func(t *Tx) (undo func(), err error)) error {
	t, err := s.own(tx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	undo, err := fn(t)
	if err != nil {
		return err
	}
	if undo != nil {
		t.undo = append(t.undo, undo)
	}
	return nil
}

func (s *Store) own(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, errForeignTx
	}
	if t.closed {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

// Tx is the pgx.Tx handed out by Store.Begin. Only Commit and Rollback are
// meaningful; the query methods report that SQL is unsupported.
type Tx struct {
	store  *Store
	undo   []func()
	closed bool

	// Committed rows this tx has overwritten. A nil value means the row did
	// not exist before the tx.
	prevWallets      map[uuid.UUID]*domain.Wallet
	prevTransactions map[uuid.UUID]*domain.Transaction
	prevDeposits     map[uuid.UUID]*domain.Deposit
}

// committed returns the version of v visible outside the tx. Callers hold s.mu.
func committed[K comparable, V any](s *Store, pick func(*Tx) map[K]*V, table map[K]V, key K) (*V, bool) {
	if s.open != nil {
		if prev, ok := pick(s.open)[key]; ok {
			if prev == nil {
				return nil, false
			}
			v := *prev
			return &v, true
		}
	}
	v, ok := table[key]
	if !ok {
		return nil, false
	}
	return &v, true
}

// remember stores the committed version of key the first time a tx touches it.
func remember[K comparable, V any](m *map[K]*V, table map[K]V, key K) {
	if *m == nil {
		*m = make(map[K]*V)
	}
	if _, seen := (*m)[key]; seen {
		return
	}
	if v, ok := table[key]; ok {
		(*m)[key] = &v
		return
	}
	(*m)[key] = nil
}

func (t *Tx) finish() {
	t.closed = true
	t.undo = nil
	t.prevWallets, t.prevTransactions, t.prevDeposits = nil, nil, nil
	if t.store.open == t {
		t.store.open = nil
	}
}

var errNoSQL = errors.New("memory: sql is not supported")

func (t *Tx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	t.finish()
	t.store.mu.Unlock()
	<-t.store.sem
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.finish()
	t.store.mu.Unlock()
	<-t.store.sem
	return nil
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errNoSQL }
func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errNoSQL
}
func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errNoSQL
}
func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errNoSQL
}
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errNoSQL
}
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *Tx) Conn() *pgx.Conn                                               { return nil }
