// Package discount computes the monetary value of a single discount rule.
package discount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Kind enumerates the discount strategies the engine knows how to compute.
type Kind string

const (
	// KindPercentage takes Value percent (0-100 scale) of the amount.
	KindPercentage Kind = "PERCENTAGE"
	// KindFixed takes Value off the amount, capped at the amount.
	KindFixed Kind = "FIXED"
)

var hundred = decimal.NewFromInt(100)

// ParseKind normalizes a stored or requested discount type. Unknown values are
// kept verbatim (upper-cased) so they round-trip through storage; For treats
// them as inert.
func ParseKind(s string) Kind {
	return Kind(strings.ToUpper(strings.TrimSpace(s)))
}

// Known reports whether k is computed by For.
func (k Kind) Known() bool {
	return k == KindPercentage || k == KindFixed
}

func (k Kind) String() string {
	return string(k)
}

// For returns the discount that a rule of the given kind and value contributes
// against amount. Unknown kinds contribute zero. The result is never negative.
func For(kind Kind, value, amount decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch kind {
	case KindPercentage:
		d = amount.Mul(value).Div(hundred)
	case KindFixed:
		d = decimal.Min(value, amount)
	default:
		return decimal.Zero
	}
	return floorAtZero(d)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
