package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Check reports whether c may be applied at now to an order totalling total.
// Checks run in a fixed order and the first failure wins: active, expiry,
// usage, minimum order value. An invalid total skips the minimum check.
func (c *Coupon) Check(now time.Time, total decimal.NullDecimal) error {
	if !c.Active {
		return ErrCouponInactive
	}
	// A coupon expiring exactly at now is already expired.
	if !c.ExpiryDate.After(now) {
		return ErrCouponExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return ErrCouponUsageLimitExceeded
	}
	if c.MinOrderValue.Valid && total.Valid && total.Decimal.LessThan(c.MinOrderValue.Decimal) {
		return &MinimumNotMetError{Required: c.MinOrderValue.Decimal}
	}
	return nil
}
