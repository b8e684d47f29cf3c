package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-pricing/internal/domain/discount"
	"github.com/xenking/promo-pricing/internal/domain/promotion"
)

const (
	promotionColumns = `id::text, tenant_id, name, type, discount_type, discount_value,
		start_date, end_date, eligibility_criteria, priority, active, created_at, updated_at`

	findActivePromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions
		WHERE tenant_id = $1 AND active AND start_date <= $2 AND end_date >= $2
		ORDER BY priority DESC, id ASC`

	insertPromotionSQL = `INSERT INTO promotions
		(tenant_id, name, type, discount_type, discount_value, start_date, end_date,
		 eligibility_criteria, priority, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id::text, created_at, updated_at`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindActive returns the tenant's active promotions whose window contains now.
func (r *PromotionRepository) FindActive(ctx context.Context, tenantID string, now time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, findActivePromotionsSQL, tenantID, now)
	if err != nil {
		return nil, errors.Wrapf(err, "query active promotions for tenant %q", tenantID)
	}

	ps, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, errors.Wrapf(err, "scan active promotions for tenant %q", tenantID)
	}
	return ps, nil
}

// Save inserts p and fills in its ID and timestamps.
func (r *PromotionRepository) Save(ctx context.Context, p *promotion.Promotion) error {
	var criteria any
	if p.EligibilityCriteria != nil {
		criteria = string(p.EligibilityCriteria)
	}

	err := r.pool.QueryRow(ctx, insertPromotionSQL,
		p.TenantID, p.Name, string(p.Type), p.DiscountType.String(), p.DiscountValue,
		p.StartDate, p.EndDate, criteria, p.Priority, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "insert promotion")
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p            promotion.Promotion
		kind         string
		discountType string
		priority     int32
		criteria     []byte
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &kind, &discountType, &p.DiscountValue,
		&p.StartDate, &p.EndDate, &criteria, &priority, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Type = promotion.Type(kind)
	p.DiscountType = discount.Kind(discountType)
	p.Priority = int(priority)
	if len(criteria) > 0 {
		p.EligibilityCriteria = criteria
	}
	return p, err
}
