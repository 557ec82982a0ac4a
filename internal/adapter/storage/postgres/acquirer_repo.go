package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const acquirerColumnList = `id, code, name, base_url, credentials_enc, webhook_secret_enc, environment, is_active, created_at, updated_at`

// AcquirerRepo implements ports.AcquirerRepository.
type AcquirerRepo struct {
	pool Pool
}

// NewAcquirerRepo creates a new AcquirerRepo.
func NewAcquirerRepo(pool Pool) *AcquirerRepo {
	return &AcquirerRepo{pool: pool}
}

// GetByID fetches an acquirer by UUID.
func (r *AcquirerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Acquirer, error) {
	query := `SELECT ` + acquirerColumnList + ` FROM acquirers WHERE id = $1`

	a, err := scanAcquirer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get acquirer by id: %w", err)
	}
	return a, nil
}

// GetByCode fetches an acquirer by the slug used in its webhook route.
func (r *AcquirerRepo) GetByCode(ctx context.Context, code string) (*domain.Acquirer, error) {
	query := `SELECT ` + acquirerColumnList + ` FROM acquirers WHERE code = $1`

	a, err := scanAcquirer(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		return nil, fmt.Errorf("get acquirer by code: %w", err)
	}
	return a, nil
}

// ListActiveAssignments returns the merchant's active assignments to active acquirers.
// Rows come back in attempt order; callers still sort to make the order total.
func (r *AcquirerRepo) ListActiveAssignments(ctx context.Context, merchantID uuid.UUID) ([]domain.AcquirerAssignment, error) {
	query := `SELECT ma.id, ma.merchant_id, ma.acquirer_id, ma.priority, ma.weight, ma.is_active,
			ma.failure_count, ma.last_failure_at, ma.created_at,
			a.id, a.code, a.name, a.base_url, a.credentials_enc, a.webhook_secret_enc, a.environment,
			a.is_active, a.created_at, a.updated_at
		FROM merchant_acquirers ma
		JOIN acquirers a ON a.id = ma.acquirer_id
		WHERE ma.merchant_id = $1 AND ma.is_active AND a.is_active
		ORDER BY ma.priority ASC, ma.weight DESC, ma.created_at ASC, ma.id ASC`

	rows, err := r.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list acquirer assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.AcquirerAssignment
	for rows.Next() {
		as := domain.AcquirerAssignment{Acquirer: &domain.Acquirer{}}
		a := as.Acquirer
		err := rows.Scan(
			&as.ID, &as.MerchantID, &as.AcquirerID, &as.Priority, &as.Weight, &as.IsActive,
			&as.FailureCount, &as.LastFailureAt, &as.CreatedAt,
			&a.ID, &a.Code, &a.Name, &a.BaseURL, &a.CredentialsEnc, &a.WebhookSecretEnc, &a.Environment,
			&a.IsActive, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan acquirer assignment row: %w", err)
		}
		out = append(out, as)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate acquirer assignment rows: %w", err)
	}
	return out, nil
}

// GetLimit returns the acquirer's limit for direction, or nil when none is configured.
func (r *AcquirerRepo) GetLimit(ctx context.Context, acquirerID uuid.UUID, direction domain.Direction) (*domain.AcquirerLimit, error) {
	query := `SELECT acquirer_id, direction, min_amount, max_amount, daily_limit, monthly_limit
		FROM acquirer_limits WHERE acquirer_id = $1 AND direction = $2`

	l := &domain.AcquirerLimit{}
	err := r.pool.QueryRow(ctx, query, acquirerID, direction).Scan(
		&l.AcquirerID, &l.Direction, &l.MinAmount, &l.MaxAmount, &l.DailyLimit, &l.MonthlyLimit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get acquirer limit: %w", err)
	}
	return l, nil
}

// RecordFailure bumps the assignment's failure counter in a single statement.
func (r *AcquirerRepo) RecordFailure(ctx context.Context, assignmentID uuid.UUID, at time.Time) error {
	query := `UPDATE merchant_acquirers SET failure_count = failure_count + 1, last_failure_at = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, at, assignmentID)
	if err != nil {
		return fmt.Errorf("record acquirer failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("acquirer assignment not found: %s", assignmentID)
	}
	return nil
}

func scanAcquirer(row pgx.Row) (*domain.Acquirer, error) {
	a := &domain.Acquirer{}
	err := row.Scan(
		&a.ID, &a.Code, &a.Name, &a.BaseURL, &a.CredentialsEnc, &a.WebhookSecretEnc, &a.Environment,
		&a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}
