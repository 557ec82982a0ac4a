package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pix-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const merchantColumnList = `id, name, pix_key, city, webhook_url, webhook_secret_enc, fee_scheme, status, created_at, updated_at`

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Create inserts a new merchant. Used by seeding and tests; onboarding lives elsewhere.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	scheme, err := marshalFeeScheme(m.FeeScheme)
	if err != nil {
		return err
	}

	query := `INSERT INTO merchants (` + merchantColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.pool.Exec(ctx, query,
		m.ID, m.Name, m.PixKey, m.City, m.WebhookURL, m.WebhookSecretEnc,
		scheme, m.Status, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return writeError("insert merchant", err)
	}
	return nil
}

// GetByID fetches a merchant by its UUID.
func (r *MerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumnList + ` FROM merchants WHERE id = $1`

	m := &domain.Merchant{}
	var scheme []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.PixKey, &m.City, &m.WebhookURL, &m.WebhookSecretEnc,
		&scheme, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant by id: %w", err)
	}

	if len(scheme) > 0 {
		m.FeeScheme = &domain.FeeScheme{}
		if err := json.Unmarshal(scheme, m.FeeScheme); err != nil {
			return nil, fmt.Errorf("decode fee scheme of merchant %s: %w", m.ID, err)
		}
	}
	return m, nil
}

func marshalFeeScheme(s *domain.FeeScheme) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode fee scheme: %w", err)
	}
	return b, nil
}
