package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/ports"
	"pix-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// WalletMutation changes a locked wallet in place.
type WalletMutation func(w *domain.Wallet) error

func CreditMutation(amount int64) WalletMutation {
	return func(w *domain.Wallet) error { return w.Credit(amount) }
}

func DebitMutation(amount int64) WalletMutation {
	return func(w *domain.Wallet) error { return w.Debit(amount) }
}

func FreezeMutation(amount int64) WalletMutation {
	return func(w *domain.Wallet) error { return w.Freeze(amount) }
}

func UnfreezeMutation(amount int64) WalletMutation {
	return func(w *domain.Wallet) error { return w.Unfreeze(amount) }
}

func AddFeesMutation(amount int64) WalletMutation {
	return func(w *domain.Wallet) error { return w.AddFees(amount) }
}

// WalletServiceImpl implements ports.WalletService.
// Every mutation locks the merchant's wallet row, so writers per merchant are serialized.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	txTimeout  time.Duration
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	transactor ports.DBTransactor,
	txTimeout time.Duration,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		transactor: transactor,
		txTimeout:  txTimeout,
		log:        log,
	}
}

func (s *WalletServiceImpl) Credit(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error) {
	return s.Apply(ctx, merchantID, CreditMutation(amount))
}

func (s *WalletServiceImpl) Debit(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error) {
	return s.Apply(ctx, merchantID, DebitMutation(amount))
}

func (s *WalletServiceImpl) Freeze(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error) {
	return s.Apply(ctx, merchantID, FreezeMutation(amount))
}

func (s *WalletServiceImpl) Unfreeze(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error) {
	return s.Apply(ctx, merchantID, UnfreezeMutation(amount))
}

func (s *WalletServiceImpl) AddFees(ctx context.Context, merchantID uuid.UUID, amount int64) (*domain.Wallet, error) {
	return s.Apply(ctx, merchantID, AddFeesMutation(amount))
}

// GetBalance reads the wallet without locking. Merchants without a wallet get zero counters.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, merchantID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetByMerchantID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if w == nil {
		return &domain.Wallet{MerchantID: merchantID}, nil
	}
	return w, nil
}

// Apply runs muts against the merchant's wallet as one unit of work.
// Either all mutations are persisted or none are.
func (s *WalletServiceImpl) Apply(ctx context.Context, merchantID uuid.UUID, muts ...WalletMutation) (*domain.Wallet, error) {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, unitOfWorkError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.ApplyTx(ctx, dbTx, merchantID, muts...)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, unitOfWorkError("commit tx", err)
	}

	s.log.Debug().
		Str("merchant_id", merchantID.String()).
		Int64("balance", w.Balance).
		Int64("frozen_balance", w.FrozenBalance).
		Msg("wallet updated")

	return w, nil
}

// ApplyTx runs muts inside an outer transaction. The caller commits.
func (s *WalletServiceImpl) ApplyTx(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, muts ...WalletMutation) (*domain.Wallet, error) {
	w, err := s.lockWallet(ctx, tx, merchantID)
	if err != nil {
		return nil, err
	}

	for _, mut := range muts {
		if err := mut(w); err != nil {
			return nil, walletError(err)
		}
	}

	w.UpdatedAt = time.Now().UTC()
	if err := s.walletRepo.Update(ctx, tx, w); err != nil {
		return nil, unitOfWorkError("update wallet", err)
	}
	return w, nil
}

// lockWallet returns the merchant's wallet row locked FOR UPDATE, creating it on first use.
func (s *WalletServiceImpl) lockWallet(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetByMerchantIDForUpdate(ctx, tx, merchantID)
	if err != nil {
		return nil, unitOfWorkError("lock wallet", err)
	}
	if w != nil {
		return w, nil
	}

	if err := s.walletRepo.CreateIfNotExists(ctx, tx, domain.NewWallet(merchantID)); err != nil {
		return nil, unitOfWorkError("create wallet", err)
	}
	w, err = s.walletRepo.GetByMerchantIDForUpdate(ctx, tx, merchantID)
	if err != nil {
		return nil, unitOfWorkError("lock wallet", err)
	}
	if w == nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet for merchant %s missing after create", merchantID))
	}
	return w, nil
}

func walletError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return apperror.ErrInsufficientFunds().WithErr(err)
	case errors.Is(err, domain.ErrInsufficientFrozenFunds):
		return apperror.ErrInsufficientFrozenFunds().WithErr(err)
	case errors.Is(err, domain.ErrNonPositiveAmount):
		return apperror.ErrInvalidAmount().WithErr(err)
	default:
		return apperror.InternalError(err)
	}
}

// unitOfWorkError maps storage failures; deadline overruns surface as lock timeouts.
func unitOfWorkError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.ErrLockTimeout(fmt.Errorf("%s: %w", op, err))
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}
