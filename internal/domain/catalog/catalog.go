// Package catalog defines the product price lookup the pricing engine depends on.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when the product does not exist for the tenant.
var ErrNotFound = errors.New("product not found")

// Product is the subset of a catalog product used for pricing.
type Product struct {
	ID    string
	Price decimal.Decimal
	// Currency is empty when the catalog does not report one.
	Currency string
}

// UnavailableError reports that the catalog could not be reached or answered
// with an unexpected status. It matches ErrNotFound under errors.Is, since no
// price can be computed either way.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return "catalog unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports ErrNotFound as a match.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrNotFound
}

// Client looks up a product's unit price scoped to a tenant.
type Client interface {
	GetProduct(ctx context.Context, tenantID, productID string) (*Product, error)
}
