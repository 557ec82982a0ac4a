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

// LedgerReconciler implements ports.ReconcilerService.
// Status change, wallet effect and event record commit together or not at all.
type LedgerReconciler struct {
	txRepo      ports.TransactionRepository
	depositRepo ports.DepositRepository
	eventRepo   ports.EventRepository
	wallets     *WalletServiceImpl
	transactor  ports.DBTransactor
	notifier    ports.Notifier
	txTimeout   time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

// NewLedgerReconciler creates a new LedgerReconciler. notifier may be nil.
func NewLedgerReconciler(
	txRepo ports.TransactionRepository,
	depositRepo ports.DepositRepository,
	eventRepo ports.EventRepository,
	wallets *WalletServiceImpl,
	transactor ports.DBTransactor,
	notifier ports.Notifier,
	txTimeout time.Duration,
	log zerolog.Logger,
) *LedgerReconciler {
	return &LedgerReconciler{
		txRepo:      txRepo,
		depositRepo: depositRepo,
		eventRepo:   eventRepo,
		wallets:     wallets,
		transactor:  transactor,
		notifier:    notifier,
		txTimeout:   txTimeout,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// reconcileStep is what applying an event to one record produced.
type reconcileStep struct {
	outcome      domain.EventOutcome
	resourceType domain.ResourceType
	resourceID   *uuid.UUID
	status       string
	notification *domain.Notification
}

// HandleEvent applies a provider event. Redelivered events are no-ops, and events
// for unknown provider ids are recorded and acknowledged.
func (r *LedgerReconciler) HandleEvent(ctx context.Context, ev ports.ProviderEvent) (*ports.ReconcileResult, error) {
	if ev.ProviderID == "" {
		return nil, apperror.Validation("provider id is required")
	}

	if r.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}

	dbTx, err := r.transactor.Begin(ctx)
	if err != nil {
		return nil, unitOfWorkError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	status := domain.NormalizeEventStatus(ev.Status)
	step, err := r.resolve(ctx, dbTx, ev, status)
	if err != nil {
		return nil, err
	}

	record := &domain.InboundEvent{
		ID:           uuid.New(),
		AcquirerID:   ev.AcquirerID,
		EventType:    ev.EventType,
		ProviderID:   ev.ProviderID,
		Status:       ev.Status,
		EndToEndID:   ev.EndToEndID,
		PaidAt:       ev.PaidAt,
		RawPayload:   ev.Raw,
		ResourceType: step.resourceType,
		ResourceID:   step.resourceID,
		Outcome:      step.outcome,
		ReceivedAt:   r.now(),
	}
	if err := r.eventRepo.Create(ctx, dbTx, record); err != nil {
		return nil, unitOfWorkError("record event", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, unitOfWorkError("commit tx", err)
	}

	r.log.Info().
		Str("provider_id", ev.ProviderID).
		Str("status", ev.Status).
		Str("resource_type", string(step.resourceType)).
		Str("outcome", string(step.outcome)).
		Msg("provider event reconciled")

	if step.notification != nil && r.notifier != nil {
		if err := r.notifier.Notify(context.WithoutCancel(ctx), step.notification); err != nil {
			r.log.Warn().Err(err).Str("provider_id", ev.ProviderID).Msg("notification dispatch failed")
		}
	}

	return &ports.ReconcileResult{
		Outcome:      step.outcome,
		ResourceType: step.resourceType,
		ResourceID:   step.resourceID,
		Status:       step.status,
	}, nil
}

// resolve locates the record by provider id (transactions first, then deposits) and applies status.
// When the event names its acquirer, only records routed through that acquirer match.
func (r *LedgerReconciler) resolve(ctx context.Context, dbTx pgx.Tx, ev ports.ProviderEvent, status domain.EventStatus) (*reconcileStep, error) {
	txn, err := r.txRepo.GetByProviderIDForUpdate(ctx, dbTx, ev.AcquirerID, ev.ProviderID)
	if err != nil {
		return nil, unitOfWorkError("lock transaction", err)
	}
	if txn != nil {
		return r.applyTransaction(ctx, dbTx, txn, ev, status)
	}

	dep, err := r.depositRepo.GetByProviderIDForUpdate(ctx, dbTx, ev.AcquirerID, ev.ProviderID)
	if err != nil {
		return nil, unitOfWorkError("lock deposit", err)
	}
	if dep != nil {
		return r.applyDeposit(ctx, dbTx, dep, ev, status)
	}

	logEvt := r.log.Warn().Str("provider_id", ev.ProviderID)
	if ev.AcquirerID != nil {
		logEvt = logEvt.Str("acquirer_id", ev.AcquirerID.String())
	}
	logEvt.Msg("event for unknown provider id")
	return &reconcileStep{outcome: domain.EventOutcomeUnresolved, resourceType: domain.ResourceTypeNone}, nil
}

func (r *LedgerReconciler) applyTransaction(
	ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, ev ports.ProviderEvent, status domain.EventStatus,
) (*reconcileStep, error) {
	step := &reconcileStep{
		resourceType: domain.ResourceTypeTransaction,
		resourceID:   &txn.ID,
		status:       string(txn.Status),
	}

	target, ok := status.TransactionTarget()
	if !ok {
		step.outcome = domain.EventOutcomeIgnored
		return step, nil
	}

	// A refund reported before its payment settles both in one step.
	settleFirst := txn.Status == domain.TransactionStatusPending && target == domain.TransactionStatusRefunded
	if !settleFirst {
		apply, err := txn.Status.TransitionTo(target)
		if err != nil {
			return nil, apperror.ErrInvalidTransition(string(txn.Status), string(target)).WithErr(err)
		}
		if !apply {
			step.outcome = domain.EventOutcomeDuplicate
			return step, nil
		}
	}

	from := txn.Status
	now := r.now()
	txn.UpdatedAt = now

	var muts []WalletMutation
	if target == domain.TransactionStatusPaid || settleFirst {
		if ev.EndToEndID != nil {
			txn.EndToEndID = ev.EndToEndID
		}
		paidAt := now
		if ev.PaidAt != nil {
			paidAt = ev.PaidAt.UTC()
		}
		txn.PaidAt = &paidAt
		if credit := txn.CreditAmount(); credit > 0 {
			muts = append(muts, CreditMutation(credit))
		}
		if txn.FeeAmount > 0 {
			muts = append(muts, AddFeesMutation(txn.FeeAmount))
		}
	}
	if target == domain.TransactionStatusRefunded {
		if settleFirst {
			r.log.Warn().
				Str("tx_id", txn.ID.String()).
				Str("provider_id", ev.ProviderID).
				Msg("refund reported before payment, settling payment first")
		}
		if reverse := txn.CreditAmount(); reverse > 0 {
			muts = append(muts, r.freezeForRefund(txn, reverse))
		}
	}
	txn.Status = target

	if len(muts) > 0 {
		if _, err := r.wallets.ApplyTx(ctx, dbTx, txn.MerchantID, muts...); err != nil {
			return nil, err
		}
	}

	updated, err := r.txRepo.UpdateStatus(ctx, dbTx, txn, from)
	if err != nil {
		return nil, unitOfWorkError("update transaction", err)
	}
	if !updated {
		return nil, apperror.InternalError(fmt.Errorf("transaction %s changed status concurrently", txn.ID))
	}

	step.outcome = domain.EventOutcomeApplied
	step.status = string(txn.Status)
	step.notification = domain.NewTransactionNotification(txn)
	return step, nil
}

// freezeForRefund moves the refunded amount into frozen balance. When the balance
// no longer covers it the refund still proceeds and the shortfall is kept on the charge.
func (r *LedgerReconciler) freezeForRefund(txn *domain.Transaction, amount int64) WalletMutation {
	return func(w *domain.Wallet) error {
		err := w.Freeze(amount)
		if errors.Is(err, domain.ErrInsufficientFunds) {
			txn.RefundShortfall = amount
			r.log.Warn().
				Str("tx_id", txn.ID.String()).
				Str("merchant_id", txn.MerchantID.String()).
				Int64("amount", amount).
				Int64("balance", w.Balance).
				Msg("refund exceeds available balance, recording shortfall")
			return nil
		}
		return err
	}
}

func (r *LedgerReconciler) applyDeposit(
	ctx context.Context, dbTx pgx.Tx, dep *domain.Deposit, ev ports.ProviderEvent, status domain.EventStatus,
) (*reconcileStep, error) {
	step := &reconcileStep{
		resourceType: domain.ResourceTypeDeposit,
		resourceID:   &dep.ID,
		status:       string(dep.Status),
	}

	target, ok := status.DepositTarget()
	if !ok {
		step.outcome = domain.EventOutcomeIgnored
		return step, nil
	}

	apply, err := dep.Status.TransitionTo(target)
	if err != nil {
		return nil, apperror.ErrInvalidTransition(string(dep.Status), string(target)).WithErr(err)
	}
	if !apply {
		step.outcome = domain.EventOutcomeDuplicate
		return step, nil
	}

	from := dep.Status
	now := r.now()
	dep.Status = target
	dep.UpdatedAt = now

	if target == domain.DepositStatusPaid {
		if ev.EndToEndID != nil {
			dep.EndToEndID = ev.EndToEndID
		}
		paidAt := now
		if ev.PaidAt != nil {
			paidAt = ev.PaidAt.UTC()
		}
		dep.PaidAt = &paidAt
		if _, err := r.wallets.ApplyTx(ctx, dbTx, dep.MerchantID, CreditMutation(dep.Amount)); err != nil {
			return nil, err
		}
	}

	updated, err := r.depositRepo.UpdateStatus(ctx, dbTx, dep, from)
	if err != nil {
		return nil, unitOfWorkError("update deposit", err)
	}
	if !updated {
		return nil, apperror.InternalError(fmt.Errorf("deposit %s changed status concurrently", dep.ID))
	}

	step.outcome = domain.EventOutcomeApplied
	step.status = string(dep.Status)
	step.notification = domain.NewDepositNotification(dep)
	return step, nil
}
