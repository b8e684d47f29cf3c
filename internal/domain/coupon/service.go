package coupon

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/discount"
)

// ErrInvalidRequest is matched by every FieldError.
var ErrInvalidRequest = errors.New("invalid coupon request")

// FieldError reports a rejected CreateRequest field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// MaxUsageLimit is the largest usage limit the store can hold.
const MaxUsageLimit = math.MaxInt32

// CreateRequest holds the caller-supplied attributes of a new coupon.
type CreateRequest struct {
	// Code is generated when empty.
	Code          string
	DiscountType  discount.Kind
	DiscountValue decimal.Decimal
	UsageLimit    *int
	ExpiryDate    time.Time
	MinOrderValue decimal.NullDecimal
}

func (r *CreateRequest) validate() error {
	switch {
	case r.DiscountType == "":
		return &FieldError{Field: "discount_type", Reason: "is required"}
	case r.DiscountValue.IsNegative():
		return &FieldError{Field: "discount_value", Reason: "must be non-negative"}
	case r.UsageLimit != nil && *r.UsageLimit < 0:
		return &FieldError{Field: "usage_limit", Reason: "must be non-negative"}
	case r.UsageLimit != nil && *r.UsageLimit > MaxUsageLimit:
		return &FieldError{Field: "usage_limit", Reason: "must be at most " + strconv.Itoa(MaxUsageLimit)}
	case r.ExpiryDate.IsZero():
		return &FieldError{Field: "expiry_date", Reason: "is required"}
	case r.MinOrderValue.Valid && r.MinOrderValue.Decimal.IsNegative():
		return &FieldError{Field: "min_order_value", Reason: "must be non-negative"}
	}
	return nil
}

// Service implements coupon registration, validation and redemption.
type Service struct {
	repo    Repository
	now     func() time.Time
	newCode func() string
}

// NewService creates a coupon Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, newCode: GenerateCode}
}

// Create registers a new active coupon for the caller's tenant. The caller
// must hold the SELLER or ADMIN role. Codes are unique across tenants.
func (s *Service) Create(ctx context.Context, id auth.Identity, req CreateRequest) (*Coupon, error) {
	if err := id.RequireManager(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	code := NormalizeCode(req.Code)
	if code == "" {
		generated, err := uniqueCode(ctx, s.newCode, s.repo.ExistsByCode)
		if err != nil {
			return nil, err
		}
		code = generated
	} else {
		taken, err := s.repo.ExistsByCode(ctx, code)
		if err != nil {
			return nil, errors.Wrap(err, "check code")
		}
		if taken {
			return nil, &DuplicateCodeError{Code: code}
		}
	}

	c := &Coupon{
		TenantID:      id.TenantID,
		Code:          code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		UsageLimit:    req.UsageLimit,
		ExpiryDate:    req.ExpiryDate,
		MinOrderValue: req.MinOrderValue,
		Active:        true,
	}
	if err := s.repo.Save(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCouponCode) {
			return nil, err
		}
		return nil, errors.Wrap(err, "save coupon")
	}

	zctx.From(ctx).Info("Coupon created",
		zap.String("coupon_id", c.ID),
		zap.String("tenant_id", c.TenantID),
		zap.String("code", c.Code),
	)
	return c, nil
}

// Validate looks code up for tenantID and runs every coupon check. total may
// be invalid, in which case the minimum order value is not checked. Validate
// never consumes a use.
func (s *Service) Validate(ctx context.Context, tenantID, code string, total decimal.NullDecimal) (*Coupon, error) {
	if tenantID == "" {
		return nil, auth.ErrTenantRequired
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	c, err := s.repo.FindByCodeAndTenant(ctx, code, tenantID)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "find coupon")
	}
	if err := c.Check(s.now(), total); err != nil {
		return nil, err
	}
	return c, nil
}

// Redeem consumes one use of the tenant's coupon. The increment is atomic in
// the store, so concurrent redemptions never push the count past the limit.
func (s *Service) Redeem(ctx context.Context, id auth.Identity, code string) (*Coupon, error) {
	if !id.Authenticated() {
		return nil, auth.ErrUnauthorized
	}
	if id.TenantID == "" {
		return nil, auth.ErrTenantRequired
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	now := s.now()
	c, err := s.repo.Redeem(ctx, code, id.TenantID, now)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "redeem coupon")
	}
	if c == nil {
		// Not consumable; reload to report the precise reason.
		current, err := s.repo.FindByCodeAndTenant(ctx, code, id.TenantID)
		if err != nil {
			if errors.Is(err, ErrInvalidCoupon) {
				return nil, ErrInvalidCoupon
			}
			return nil, errors.Wrap(err, "find coupon")
		}
		if err := current.Check(now, decimal.NullDecimal{}); err != nil {
			return nil, err
		}
		return nil, ErrCouponUsageLimitExceeded
	}

	zctx.From(ctx).Info("Coupon redeemed",
		zap.String("coupon_id", c.ID),
		zap.String("tenant_id", c.TenantID),
		zap.String("user_id", id.UserID),
		zap.Int("used_count", c.UsedCount),
	)
	return c, nil
}
