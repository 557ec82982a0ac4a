package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pix-gateway/internal/core/domain"
	"pix-gateway/internal/core/fee"
	"pix-gateway/internal/core/ports"
	"pix-gateway/pkg/apperror"
	"pix-gateway/pkg/brcode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	idempotencyTTL         = 24 * time.Hour
	compensationTimeout    = 10 * time.Second
	defaultProviderTimeout = 15 * time.Second
)

// RouterConfig holds AcquirerRouter settings.
type RouterConfig struct {
	ProviderTimeout  time.Duration
	CallbackBaseURL  string // e.g. https://gateway.example.com; /webhooks/{code} is appended
	DefaultFeeScheme domain.FeeScheme
	DefaultCity      string
}

// AcquirerRouterDeps groups the collaborators of AcquirerRouter.
type AcquirerRouterDeps struct {
	Acquirers    ports.AcquirerRepository
	Merchants    ports.MerchantRepository
	Transactions ports.TransactionRepository
	Deposits     ports.DepositRepository
	Providers    ports.ProviderFactory
	Usage        ports.UsageStore
	IdempCache   ports.IdempotencyCache
	Transactor   ports.DBTransactor
}

// AttemptResult is the outcome of trying one acquirer.
type AttemptResult struct {
	Assignment domain.AcquirerAssignment
	Provider   ports.Provider
	Charge     *ports.ChargeResult
	Err        error
	Duration   time.Duration

	// reservedAt is set while the attempt holds a volume reservation.
	reservedAt *time.Time
}

// AcquirerRouter implements ports.ChargeService with ordered, sequential failover.
type AcquirerRouter struct {
	deps AcquirerRouterDeps
	cfg  RouterConfig
	log  zerolog.Logger
	now  func() time.Time
}

// NewAcquirerRouter creates a new AcquirerRouter.
func NewAcquirerRouter(deps AcquirerRouterDeps, cfg RouterConfig, log zerolog.Logger) *AcquirerRouter {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	return &AcquirerRouter{
		deps: deps,
		cfg:  cfg,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateCharge routes a PIX charge and persists it as a PENDING transaction.
func (r *AcquirerRouter) CreateCharge(ctx context.Context, in ports.ChargeInput) (*domain.Transaction, error) {
	if in.Direction == "" {
		in.Direction = domain.DirectionCashIn
	}
	merchant, ref, err := r.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	idempKey := ""
	if in.ExternalReference != nil {
		idempKey = domain.BuildIdempotencyKey(in.MerchantID, domain.ResourceTypeTransaction, *in.ExternalReference)
		existing, err := r.findCharge(ctx, idempKey, in.MerchantID, *in.ExternalReference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	scheme := r.cfg.DefaultFeeScheme
	if merchant.FeeScheme != nil {
		scheme = *merchant.FeeScheme
	}
	feeAmount, netAmount, err := fee.CalculateMinor(in.Amount, scheme, in.Direction)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	attempt, err := r.route(ctx, in, ref)
	if err != nil {
		return nil, err
	}

	payload, err := r.payloadFor(attempt, merchant, in.Amount, ref)
	if err != nil {
		r.compensate(ctx, attempt, in)
		return nil, err
	}

	now := r.now()
	txn := &domain.Transaction{
		ID:                uuid.New(),
		MerchantID:        in.MerchantID,
		AcquirerID:        attempt.Assignment.AcquirerID,
		Direction:         in.Direction,
		Amount:            in.Amount,
		FeeAmount:         feeAmount,
		NetAmount:         netAmount,
		Status:            domain.TransactionStatusPending,
		ProviderID:        attempt.Charge.ProviderID,
		ReferenceID:       ref,
		ExternalReference: in.ExternalReference,
		Description:       in.Description,
		CustomerName:      in.CustomerName,
		CustomerDocument:  in.CustomerDocument,
		PixPayload:        payload,
		ExpiresAt:         attempt.Charge.ExpiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = r.persist(ctx, func(ctx context.Context, dbTx pgx.Tx) error {
		return r.deps.Transactions.Create(ctx, dbTx, txn)
	})
	if err != nil {
		r.compensate(ctx, attempt, in)
		if errors.Is(err, ports.ErrConflict) && in.ExternalReference != nil {
			if existing, findErr := r.findCharge(ctx, idempKey, in.MerchantID, *in.ExternalReference); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, unitOfWorkError("create transaction", err)
	}

	r.recordUsage(ctx, attempt, in)
	r.cache(ctx, idempKey, txn)

	r.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("merchant_id", txn.MerchantID.String()).
		Str("acquirer_id", txn.AcquirerID.String()).
		Str("provider_id", txn.ProviderID).
		Int64("amount", txn.Amount).
		Int64("fee_amount", txn.FeeAmount).
		Msg("charge created")

	return txn, nil
}

// CreateDeposit routes a PIX charge that tops up the merchant's own wallet. No fees apply.
func (r *AcquirerRouter) CreateDeposit(ctx context.Context, in ports.ChargeInput) (*domain.Deposit, error) {
	in.Direction = domain.DirectionCashIn
	merchant, ref, err := r.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	idempKey := ""
	if in.ExternalReference != nil {
		idempKey = domain.BuildIdempotencyKey(in.MerchantID, domain.ResourceTypeDeposit, *in.ExternalReference)
		existing, err := r.findDeposit(ctx, idempKey, in.MerchantID, *in.ExternalReference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	attempt, err := r.route(ctx, in, ref)
	if err != nil {
		return nil, err
	}

	payload, err := r.payloadFor(attempt, merchant, in.Amount, ref)
	if err != nil {
		r.compensate(ctx, attempt, in)
		return nil, err
	}

	now := r.now()
	dep := &domain.Deposit{
		ID:                uuid.New(),
		MerchantID:        in.MerchantID,
		AcquirerID:        attempt.Assignment.AcquirerID,
		Amount:            in.Amount,
		Status:            domain.DepositStatusPending,
		ProviderID:        attempt.Charge.ProviderID,
		ReferenceID:       ref,
		ExternalReference: in.ExternalReference,
		Description:       in.Description,
		CustomerName:      in.CustomerName,
		CustomerDocument:  in.CustomerDocument,
		PixPayload:        payload,
		ExpiresAt:         attempt.Charge.ExpiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = r.persist(ctx, func(ctx context.Context, dbTx pgx.Tx) error {
		return r.deps.Deposits.Create(ctx, dbTx, dep)
	})
	if err != nil {
		r.compensate(ctx, attempt, in)
		if errors.Is(err, ports.ErrConflict) && in.ExternalReference != nil {
			if existing, findErr := r.findDeposit(ctx, idempKey, in.MerchantID, *in.ExternalReference); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, unitOfWorkError("create deposit", err)
	}

	r.recordUsage(ctx, attempt, in)
	r.cache(ctx, idempKey, dep)

	r.log.Info().
		Str("deposit_id", dep.ID.String()).
		Str("merchant_id", dep.MerchantID.String()).
		Str("acquirer_id", dep.AcquirerID.String()).
		Str("provider_id", dep.ProviderID).
		Int64("amount", dep.Amount).
		Msg("deposit created")

	return dep, nil
}

// GetCharge returns a charge owned by merchantID.
func (r *AcquirerRouter) GetCharge(ctx context.Context, merchantID, id uuid.UUID) (*domain.Transaction, error) {
	txn, err := r.deps.Transactions.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil || txn.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("charge")
	}
	return txn, nil
}

// GetDeposit returns a deposit owned by merchantID.
func (r *AcquirerRouter) GetDeposit(ctx context.Context, merchantID, id uuid.UUID) (*domain.Deposit, error) {
	dep, err := r.deps.Deposits.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get deposit: %w", err))
	}
	if dep == nil || dep.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("deposit")
	}
	return dep, nil
}

// CancelDeposit cancels a PENDING deposit, first at the acquirer when it has a provider id.
func (r *AcquirerRouter) CancelDeposit(ctx context.Context, merchantID, id uuid.UUID) (*domain.Deposit, error) {
	dep, err := r.GetDeposit(ctx, merchantID, id)
	if err != nil {
		return nil, err
	}
	if !dep.IsCancellable() {
		return nil, apperror.ErrDepositNotCancellable()
	}

	if dep.ProviderID != "" {
		if err := r.cancelAtProvider(ctx, dep.AcquirerID, dep.ProviderID); err != nil {
			return nil, err
		}
	}

	dep.Status = domain.DepositStatusCancelled
	dep.UpdatedAt = r.now()

	var updated bool
	err = r.persist(ctx, func(ctx context.Context, dbTx pgx.Tx) error {
		var err error
		updated, err = r.deps.Deposits.UpdateStatus(ctx, dbTx, dep, domain.DepositStatusPending)
		return err
	})
	if err != nil {
		return nil, unitOfWorkError("cancel deposit", err)
	}
	if !updated {
		return nil, apperror.ErrDepositNotCancellable()
	}

	r.log.Info().
		Str("deposit_id", dep.ID.String()).
		Str("merchant_id", merchantID.String()).
		Msg("deposit cancelled")

	return dep, nil
}

// route tries the merchant's acquirers strictly in order until one accepts the charge.
func (r *AcquirerRouter) route(ctx context.Context, in ports.ChargeInput, ref string) (*AttemptResult, error) {
	assignments, err := r.deps.Acquirers.ListActiveAssignments(ctx, in.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list assignments: %w", err))
	}
	if len(assignments) == 0 {
		return nil, apperror.ErrNoAcquirerConfigured()
	}
	domain.SortAssignments(assignments)

	var last AttemptResult
	for _, a := range assignments {
		res := r.attempt(ctx, a, in, ref)
		if res.Err == nil {
			return &res, nil
		}
		last = res

		r.log.Warn().
			Err(res.Err).
			Str("merchant_id", in.MerchantID.String()).
			Str("acquirer_id", a.AcquirerID.String()).
			Int("priority", a.Priority).
			Dur("duration", res.Duration).
			Msg("acquirer attempt failed, trying next")

		if err := r.deps.Acquirers.RecordFailure(ctx, a.ID, r.now()); err != nil {
			r.log.Error().Err(err).Str("assignment_id", a.ID.String()).Msg("failed to record acquirer failure")
		}

		if ctx.Err() != nil {
			break
		}
	}

	return nil, apperror.ErrAllAcquirersFailed(last.Err)
}

func (r *AcquirerRouter) attempt(ctx context.Context, a domain.AcquirerAssignment, in ports.ChargeInput, ref string) (res AttemptResult) {
	start := time.Now()
	res.Assignment = a
	defer func() { res.Duration = time.Since(start) }()

	if a.Acquirer == nil {
		res.Err = fmt.Errorf("assignment %s: acquirer not loaded", a.ID)
		return res
	}
	name := a.Acquirer.Code

	limit, err := r.deps.Acquirers.GetLimit(ctx, a.AcquirerID, in.Direction)
	if err != nil {
		res.Err = fmt.Errorf("%s: load limit: %w", name, err)
		return res
	}
	if err := limit.Check(in.Amount, domain.AcquirerUsage{}); err != nil {
		res.Err = apperror.ErrTransactionLimitExceeded().WithErr(fmt.Errorf("%s: %w", name, err))
		return res
	}
	if limit.HasVolumeCaps() {
		at := r.now()
		usage, ok, err := r.deps.Usage.Reserve(ctx, a.AcquirerID, in.Direction, in.Amount, at, limit.DailyLimit, limit.MonthlyLimit)
		if err != nil {
			res.Err = fmt.Errorf("%s: reserve usage: %w", name, err)
			return res
		}
		if !ok {
			capErr := limit.Check(in.Amount, usage)
			if capErr == nil {
				capErr = domain.ErrLimitExceeded
			}
			res.Err = apperror.ErrTransactionLimitExceeded().WithErr(fmt.Errorf("%s: %w", name, capErr))
			return res
		}
		res.reservedAt = &at
		defer func() {
			if res.Err != nil {
				r.releaseUsage(ctx, &res, in)
			}
		}()
	}

	provider, err := r.deps.Providers.ForAcquirer(ctx, a.Acquirer)
	if err != nil {
		res.Err = fmt.Errorf("%s: build client: %w", name, err)
		return res
	}
	res.Provider = provider

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()

	charge, err := provider.CreateCharge(callCtx, ports.ChargeRequest{
		AmountMinor:      in.Amount,
		Description:      deref(in.Description),
		CustomerName:     deref(in.CustomerName),
		CustomerDocument: deref(in.CustomerDocument),
		CallbackURL:      r.callbackURL(a.Acquirer),
		ReferenceID:      ref,
	})
	if err != nil {
		res.Err = apperror.ErrProvider(fmt.Errorf("%s: %w", name, err))
		return res
	}
	if charge == nil || charge.ProviderID == "" {
		res.Err = apperror.ErrProvider(fmt.Errorf("%s: response without provider id", name))
		return res
	}
	res.Charge = charge
	return res
}

// prepare validates input and resolves the merchant and BR Code reference id.
func (r *AcquirerRouter) prepare(ctx context.Context, in ports.ChargeInput) (*domain.Merchant, string, error) {
	if in.Amount <= 0 {
		return nil, "", apperror.ErrInvalidAmount()
	}
	if in.Direction != domain.DirectionCashIn && in.Direction != domain.DirectionCashOut {
		return nil, "", apperror.Validation("direction must be CASH_IN or CASH_OUT")
	}

	ref := in.ReferenceID
	if ref == "" {
		ref = brcode.NewReferenceID()
	} else if !brcode.ValidReferenceID(ref) {
		return nil, "", apperror.Validation("reference_id must be 1-25 alphanumeric characters")
	}

	merchant, err := r.deps.Merchants.GetByID(ctx, in.MerchantID)
	if err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("get merchant: %w", err))
	}
	if merchant == nil {
		return nil, "", apperror.ErrNotFound("merchant")
	}
	if !merchant.IsActive() {
		return nil, "", apperror.ErrMerchantSuspended()
	}
	return merchant, ref, nil
}

// payloadFor returns the acquirer's payload or renders one from the merchant's PIX key.
func (r *AcquirerRouter) payloadFor(attempt *AttemptResult, merchant *domain.Merchant, amount int64, ref string) (string, error) {
	if attempt.Charge.PixPayload != "" {
		return attempt.Charge.PixPayload, nil
	}

	city := merchant.City
	if city == "" {
		city = r.cfg.DefaultCity
	}
	code, err := brcode.Build(brcode.Params{
		Key:         merchant.PixKey,
		Name:        merchant.Name,
		City:        city,
		Amount:      decimal.New(amount, -2),
		ReferenceID: ref,
	})
	if err != nil {
		return "", apperror.Validation(fmt.Sprintf("cannot build pix payload: %v", err))
	}
	return code.Payload, nil
}

// persist runs fn in its own database transaction.
func (r *AcquirerRouter) persist(ctx context.Context, fn func(ctx context.Context, dbTx pgx.Tx) error) error {
	dbTx, err := r.deps.Transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, dbTx); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// compensate cancels a charge the acquirer accepted but the gateway could not keep.
func (r *AcquirerRouter) compensate(ctx context.Context, attempt *AttemptResult, in ports.ChargeInput) {
	r.releaseUsage(ctx, attempt, in)
	if attempt.Provider == nil || attempt.Charge == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := attempt.Provider.CancelCharge(cctx, attempt.Charge.ProviderID); err != nil {
		r.log.Error().
			Err(err).
			Str("acquirer_id", attempt.Assignment.AcquirerID.String()).
			Str("provider_id", attempt.Charge.ProviderID).
			Msg("orphaned charge at acquirer, cancel failed")
		return
	}
	r.log.Warn().
		Str("acquirer_id", attempt.Assignment.AcquirerID.String()).
		Str("provider_id", attempt.Charge.ProviderID).
		Msg("cancelled charge at acquirer after local failure")
}

func (r *AcquirerRouter) cancelAtProvider(ctx context.Context, acquirerID uuid.UUID, providerID string) error {
	acq, err := r.deps.Acquirers.GetByID(ctx, acquirerID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get acquirer: %w", err))
	}
	if acq == nil {
		return apperror.ErrNotFound("acquirer")
	}
	provider, err := r.deps.Providers.ForAcquirer(ctx, acq)
	if err != nil {
		return apperror.ErrProvider(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()
	if err := provider.CancelCharge(callCtx, providerID); err != nil {
		return apperror.ErrProvider(fmt.Errorf("%s: %w", acq.Code, err))
	}
	return nil
}

// recordUsage counts a persisted charge. Capped acquirers were already counted by Reserve.
func (r *AcquirerRouter) recordUsage(ctx context.Context, attempt *AttemptResult, in ports.ChargeInput) {
	if attempt.reservedAt != nil {
		return
	}
	if err := r.deps.Usage.Add(ctx, attempt.Assignment.AcquirerID, in.Direction, in.Amount, r.now()); err != nil {
		r.log.Warn().Err(err).Str("acquirer_id", attempt.Assignment.AcquirerID.String()).Msg("failed to record acquirer usage")
	}
}

func (r *AcquirerRouter) releaseUsage(ctx context.Context, attempt *AttemptResult, in ports.ChargeInput) {
	if attempt.reservedAt == nil {
		return
	}
	at := *attempt.reservedAt
	attempt.reservedAt = nil
	if err := r.deps.Usage.Release(context.WithoutCancel(ctx), attempt.Assignment.AcquirerID, in.Direction, in.Amount, at); err != nil {
		r.log.Warn().Err(err).Str("acquirer_id", attempt.Assignment.AcquirerID.String()).Msg("failed to release acquirer usage")
	}
}

func (r *AcquirerRouter) findCharge(ctx context.Context, key string, merchantID uuid.UUID, externalRef string) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	if r.cached(ctx, key, txn) {
		return txn, nil
	}
	txn, err := r.deps.Transactions.GetByExternalReference(ctx, merchantID, externalRef)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	return txn, nil
}

func (r *AcquirerRouter) findDeposit(ctx context.Context, key string, merchantID uuid.UUID, externalRef string) (*domain.Deposit, error) {
	dep := &domain.Deposit{}
	if r.cached(ctx, key, dep) {
		return dep, nil
	}
	dep, err := r.deps.Deposits.GetByExternalReference(ctx, merchantID, externalRef)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	return dep, nil
}

// cached fills v from the Redis idempotency layer. Redis failures fall through to the DB.
func (r *AcquirerRouter) cached(ctx context.Context, key string, v any) bool {
	data, err := r.deps.IdempCache.Get(ctx, key)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		return false
	}
	if data == nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("corrupt idempotency cache entry")
		return false
	}
	return true
}

func (r *AcquirerRouter) cache(ctx context.Context, key string, v any) {
	if key == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.deps.IdempCache.Set(ctx, key, data, idempotencyTTL); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}
}

func (r *AcquirerRouter) callbackURL(acq *domain.Acquirer) string {
	if r.cfg.CallbackBaseURL == "" {
		return ""
	}
	return strings.TrimRight(r.cfg.CallbackBaseURL, "/") + "/webhooks/" + acq.Code
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
