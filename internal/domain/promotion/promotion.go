// Package promotion holds tenant-scoped, time-bounded discount rules that
// apply automatically to price calculations.
package promotion

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/discount"
)

// Type tags the marketing intent of a promotion. Only the DiscountType drives
// the computed amount; BUY_X_GET_Y is stored and listed but not evaluated.
type Type string

const (
	TypePercentage  Type = "PERCENTAGE"
	TypeFixedAmount Type = "FIXED_AMOUNT"
	TypeBuyXGetY    Type = "BUY_X_GET_Y"
)

// ParseType normalizes a promotion type tag.
func ParseType(s string) Type {
	return Type(strings.ToUpper(strings.TrimSpace(s)))
}

// Promotion is a discount rule applied to every price calculation of its
// tenant while active and inside its validity window.
type Promotion struct {
	ID            string
	TenantID      string
	Name          string
	Type          Type
	DiscountType  discount.Kind
	DiscountValue decimal.Decimal
	StartDate     time.Time
	EndDate       time.Time
	// EligibilityCriteria is an opaque JSON document, stored and returned
	// untouched. Nil when absent.
	EligibilityCriteria []byte
	Priority            int
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ActiveAt reports whether p is enabled and now falls inside
// [StartDate, EndDate], both ends inclusive.
func (p *Promotion) ActiveAt(now time.Time) bool {
	return p.Active && !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// Discount returns what p contributes against amount.
func (p *Promotion) Discount(amount decimal.Decimal) decimal.Decimal {
	return discount.For(p.DiscountType, p.DiscountValue, amount)
}

// Applicable filters ps down to promotions active at now and orders them by
// priority descending. Equal priorities are ordered by ID so the result does
// not depend on the store's natural order.
func Applicable(ps []Promotion, now time.Time) []Promotion {
	out := make([]Promotion, 0, len(ps))
	for _, p := range ps {
		if p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b Promotion) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Repository persists promotions.
type Repository interface {
	// FindActive returns the tenant's active promotions whose window
	// contains now, highest priority first.
	FindActive(ctx context.Context, tenantID string, now time.Time) ([]Promotion, error)
	// Save inserts p and fills in its ID and timestamps.
	Save(ctx context.Context, p *Promotion) error
}
