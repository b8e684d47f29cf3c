// Package pricing computes the final price of a product line after applying
// the tenant's active promotions and an optional coupon.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is reported when neither the catalog nor the configuration
// supplies a currency.
const DefaultCurrency = "USD"

// ErrInvalidQuantity is returned when the requested quantity is below one.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// ProductNotFoundError reports that no base price could be obtained. Err is
// the catalog failure: catalog.ErrNotFound, or a *catalog.UnavailableError
// when the catalog could not be reached.
type ProductNotFoundError struct {
	ProductID string
	Err       error
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found: %v", e.ProductID, e.Err)
}

func (e *ProductNotFoundError) Unwrap() error { return e.Err }

// Request is a price calculation for Quantity units of a product.
type Request struct {
	TenantID   string
	ProductID  string
	Quantity   int
	CouponCode string
}

// Result is the price breakdown of a Request. Amounts are rounded to two
// decimal places.
type Result struct {
	ProductID string
	Quantity  int
	// BasePrice is unit price times quantity, before discounts.
	BasePrice decimal.Decimal
	// DiscountAmount is the sum of every applied discount. It may exceed
	// BasePrice; FinalPrice never goes below zero.
	DiscountAmount    decimal.Decimal
	FinalPrice        decimal.Decimal
	AppliedPromotions []string
	Currency          string
	CouponApplied     bool
}
