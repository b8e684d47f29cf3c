// Package coupon holds tenant-scoped, code-addressed discount rules and the
// checks a coupon must pass before it applies to an order.
package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/discount"
)

var (
	// ErrInvalidCoupon is returned when no coupon with the code exists for
	// the tenant.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponInactive is returned when the coupon has been disabled.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponExpired is returned when the coupon's expiry date has passed.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrCouponUsageLimitExceeded is returned when the coupon has been used
	// as many times as its limit allows.
	ErrCouponUsageLimitExceeded = errors.New("coupon usage limit exceeded")
	// ErrCouponMinimumNotMet is matched by MinimumNotMetError.
	ErrCouponMinimumNotMet = errors.New("minimum order value not met")
	// ErrDuplicateCouponCode is matched by DuplicateCodeError.
	ErrDuplicateCouponCode = errors.New("coupon code already exists")
)

// MinimumNotMetError reports the order minimum a coupon requires.
type MinimumNotMetError struct {
	Required decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return "Minimum order value not met. Required: " + e.Required.StringFixed(2)
}

func (e *MinimumNotMetError) Is(target error) bool {
	return target == ErrCouponMinimumNotMet
}

// DuplicateCodeError reports a coupon code that is already taken.
type DuplicateCodeError struct {
	Code string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("coupon code already exists: %s", e.Code)
}

func (e *DuplicateCodeError) Is(target error) bool {
	return target == ErrDuplicateCouponCode
}

// Coupon is a discount rule redeemed by presenting its code.
type Coupon struct {
	ID            string
	TenantID      string
	Code          string
	DiscountType  discount.Kind
	DiscountValue decimal.Decimal
	// UsageLimit is nil for unlimited coupons.
	UsageLimit *int
	UsedCount  int
	ExpiryDate time.Time
	// MinOrderValue is invalid when the coupon has no minimum.
	MinOrderValue decimal.NullDecimal
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Discount returns what c contributes against amount.
func (c *Coupon) Discount(amount decimal.Decimal) decimal.Decimal {
	return discount.For(c.DiscountType, c.DiscountValue, amount)
}

// NormalizeCode trims and upper-cases a coupon code. Codes are stored and
// looked up in this form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository persists coupons.
type Repository interface {
	// FindByCode looks a code up across all tenants. Returns ErrInvalidCoupon
	// when absent.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindByCodeAndTenant returns ErrInvalidCoupon when the code does not
	// exist for tenantID.
	FindByCodeAndTenant(ctx context.Context, code, tenantID string) (*Coupon, error)
	// ExistsByCode reports whether any tenant already owns code.
	ExistsByCode(ctx context.Context, code string) (bool, error)
	// Save inserts c and fills in its ID and timestamps. A code collision
	// yields a DuplicateCodeError.
	Save(ctx context.Context, c *Coupon) error
	// Redeem increments the usage count of the tenant's coupon when it is
	// active, unexpired at now and below its limit, and returns the updated
	// coupon. Returns ErrInvalidCoupon when the code does not exist and
	// (nil, nil) when the coupon exists but could not be consumed.
	Redeem(ctx context.Context, code, tenantID string, now time.Time) (*Coupon, error)
}
