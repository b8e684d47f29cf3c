package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/domain/promotion"
)

// Options configures a Service.
type Options struct {
	// Currency is reported when the catalog omits one. Defaults to USD.
	Currency string
	// MeterProvider records calculation metrics. Defaults to a no-op provider.
	MeterProvider metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if o.MeterProvider == nil {
		o.MeterProvider = noop.NewMeterProvider()
	}
}

// Service is the price calculation orchestrator. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	catalog    catalog.Client
	promotions promotion.Repository
	coupons    coupon.Repository
	currency   string
	now        func() time.Time

	calculations metric.Int64Counter
	skipped      metric.Int64Counter
}

// NewService creates a pricing Service.
func NewService(
	products catalog.Client,
	promotions promotion.Repository,
	coupons coupon.Repository,
	opts Options,
) (*Service, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("promo-pricing/pricing")
	calculations, err := meter.Int64Counter("pricing.calculations",
		metric.WithDescription("Completed price calculations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "calculations counter")
	}
	skipped, err := meter.Int64Counter("pricing.coupon.skipped",
		metric.WithDescription("Coupons presented to a calculation but not applied"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "skipped counter")
	}

	return &Service{
		catalog:      products,
		promotions:   promotions,
		coupons:      coupons,
		currency:     opts.Currency,
		now:          time.Now,
		calculations: calculations,
		skipped:      skipped,
	}, nil
}

// Calculate prices req.Quantity units of a product. Every promotion active at
// the current instant is applied against the undiscounted total, highest
// priority first. A coupon that is unknown or fails validation is skipped
// without error; use coupon.Service.Validate to surface the reason.
//
// Calculate never consumes a coupon use.
func (s *Service) Calculate(ctx context.Context, req Request) (*Result, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if req.TenantID == "" {
		return nil, auth.ErrTenantRequired
	}

	lg := zctx.From(ctx).With(
		zap.String("tenant_id", req.TenantID),
		zap.String("product_id", req.ProductID),
	)

	product, err := s.catalog.GetProduct(ctx, req.TenantID, req.ProductID)
	if err != nil {
		return nil, &ProductNotFoundError{ProductID: req.ProductID, Err: err}
	}

	total := product.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	now := s.now()

	active, err := s.promotions.FindActive(ctx, req.TenantID, now)
	if err != nil {
		return nil, errors.Wrap(err, "find active promotions")
	}

	discountAmount := decimal.Zero
	applied := make([]string, 0, len(active))
	for _, p := range promotion.Applicable(active, now) {
		d := p.Discount(total)
		if !d.IsPositive() {
			continue
		}
		discountAmount = discountAmount.Add(d)
		applied = append(applied, p.Name)
	}

	couponApplied := false
	if code := coupon.NormalizeCode(req.CouponCode); code != "" {
		d, reason := s.couponDiscount(ctx, code, req.TenantID, now, total)
		if reason != "" {
			lg.Debug("Coupon skipped",
				zap.String("code", code),
				zap.String("reason", reason),
			)
			s.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		} else {
			discountAmount = discountAmount.Add(d)
			couponApplied = true
		}
	}

	// final == max(0, base - discount) holds on the rounded values.
	base := total.Round(2)
	discountAmount = discountAmount.Round(2)
	final := base.Sub(discountAmount)
	if final.IsNegative() {
		final = decimal.Zero
	}

	currency := strings.TrimSpace(product.Currency)
	if currency == "" {
		currency = s.currency
	}

	s.calculations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("coupon_applied", couponApplied),
		attribute.Int("promotions_applied", len(applied)),
	))
	lg.Debug("Price calculated",
		zap.Stringer("base_price", total),
		zap.Stringer("discount", discountAmount),
		zap.Int("promotions", len(applied)),
		zap.Bool("coupon_applied", couponApplied),
	)

	return &Result{
		ProductID:         req.ProductID,
		Quantity:          req.Quantity,
		BasePrice:         base,
		DiscountAmount:    discountAmount,
		FinalPrice:        final,
		AppliedPromotions: applied,
		Currency:          currency,
		CouponApplied:     couponApplied,
	}, nil
}

// couponDiscount returns the coupon's contribution, or a non-empty reason
// when the coupon must be skipped.
func (s *Service) couponDiscount(
	ctx context.Context,
	code, tenantID string,
	now time.Time,
	total decimal.Decimal,
) (decimal.Decimal, string) {
	c, err := s.coupons.FindByCodeAndTenant(ctx, code, tenantID)
	if err != nil {
		if errors.Is(err, coupon.ErrInvalidCoupon) {
			return decimal.Zero, "not_found"
		}
		zctx.From(ctx).Warn("Coupon lookup failed", zap.String("code", code), zap.Error(err))
		return decimal.Zero, "lookup_failed"
	}
	if err := c.Check(now, decimal.NewNullDecimal(total)); err != nil {
		return decimal.Zero, skipReason(err)
	}
	return c.Discount(total), ""
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, coupon.ErrCouponInactive):
		return "inactive"
	case errors.Is(err, coupon.ErrCouponExpired):
		return "expired"
	case errors.Is(err, coupon.ErrCouponUsageLimitExceeded):
		return "usage_limit"
	case errors.Is(err, coupon.ErrCouponMinimumNotMet):
		return "minimum_not_met"
	default:
		return "invalid"
	}
}
