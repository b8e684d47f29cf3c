package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/domain/discount"
)

const (
	couponColumns = `id::text, tenant_id, code, discount_type, discount_value, usage_limit,
		used_count, expiry_date, min_order_value, active, created_at, updated_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	getCouponByCodeAndTenantSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = $1 AND tenant_id = $2`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`

	insertCouponSQL = `INSERT INTO coupons
		(tenant_id, code, discount_type, discount_value, usage_limit, used_count,
		 expiry_date, min_order_value, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, created_at, updated_at`

	insertCouponIgnoreSQL = `INSERT INTO coupons
		(tenant_id, code, discount_type, discount_value, usage_limit, used_count,
		 expiry_date, min_order_value, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO NOTHING`

	redeemCouponSQL = `UPDATE coupons
		SET used_count = used_count + 1, updated_at = now()
		WHERE code = $1 AND tenant_id = $2
		  AND active
		  AND expiry_date > $3
		  AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING ` + couponColumns
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks a coupon up by its normalized code across tenants.
// Returns coupon.ErrInvalidCoupon when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByCodeSQL, code)
}

// FindByCodeAndTenant returns coupon.ErrInvalidCoupon when the tenant has no
// coupon with code.
func (r *CouponRepository) FindByCodeAndTenant(ctx context.Context, code, tenantID string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByCodeAndTenantSQL, code, tenantID)
}

func (r *CouponRepository) findOne(ctx context.Context, query string, args ...any) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", args[0])
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, errors.Wrapf(err, "find coupon %q", args[0])
	}
	return &c, nil
}

// ExistsByCode reports whether any tenant owns code.
func (r *CouponRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, couponExistsSQL, code).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "check coupon %q", code)
	}
	return exists, nil
}

// Save inserts c and fills in its ID and timestamps. A code collision yields
// a *coupon.DuplicateCodeError.
func (r *CouponRepository) Save(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, insertCouponSQL, couponArgs(c)...).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &coupon.DuplicateCodeError{Code: c.Code}
		}
		return errors.Wrapf(err, "insert coupon %q", c.Code)
	}
	return nil
}

// InsertMany inserts coupons in one batch, skipping codes that already
// exist. It returns the number of rows inserted.
func (r *CouponRepository) InsertMany(ctx context.Context, coupons []coupon.Coupon) (int, error) {
	if len(coupons) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i := range coupons {
		batch.Queue(insertCouponIgnoreSQL, couponArgs(&coupons[i])...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	inserted := 0
	for i := range coupons {
		tag, err := br.Exec()
		if err != nil {
			return inserted, errors.Wrapf(err, "insert coupon %q", coupons[i].Code)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Redeem atomically consumes one use of the tenant's coupon. It returns
// coupon.ErrInvalidCoupon when the coupon does not exist, and (nil, nil) when
// it exists but is inactive, expired at now or exhausted.
func (r *CouponRepository) Redeem(ctx context.Context, code, tenantID string, now time.Time) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, redeemCouponSQL, code, tenantID, now)
	if err != nil {
		return nil, errors.Wrapf(err, "redeem coupon %q", code)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(err, "redeem coupon %q", code)
	}

	if _, err := r.FindByCodeAndTenant(ctx, code, tenantID); err != nil {
		return nil, err
	}
	return nil, nil
}

func couponArgs(c *coupon.Coupon) []any {
	var usageLimit *int32
	if c.UsageLimit != nil {
		v := int32(*c.UsageLimit)
		usageLimit = &v
	}
	return []any{
		c.TenantID, c.Code, c.DiscountType.String(), c.DiscountValue, usageLimit,
		int32(c.UsedCount), c.ExpiryDate, c.MinOrderValue, c.Active,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		usageLimit   *int32
		usedCount    int32
		minOrder     decimal.NullDecimal
	)
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Code, &discountType, &c.DiscountValue, &usageLimit,
		&usedCount, &c.ExpiryDate, &minOrder, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	c.DiscountType = discount.Kind(discountType)
	if usageLimit != nil {
		limit := int(*usageLimit)
		c.UsageLimit = &limit
	}
	c.UsedCount = int(usedCount)
	c.MinOrderValue = minOrder
	return c, err
}
