package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
)

// Roles allowed to manage promotions and coupons.
const (
	RoleSeller = "SELLER"
	RoleAdmin  = "ADMIN"
)

var (
	// ErrUnauthorized is returned when the caller lacks a role required by
	// the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTenantRequired is returned when an operation is tenant-scoped and
	// the caller identity does not carry a tenant.
	ErrTenantRequired = errors.New("tenant id is required")
)

// Identity is the caller resolved upstream of the domain. UserID and TenantID
// are empty for anonymous callers.
type Identity struct {
	UserID   string
	TenantID string
	Roles    []string
}

// Authenticated reports whether the identity came from a verified token.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// HasAnyRole reports whether the identity holds at least one of roles.
// Comparison ignores case and an optional "ROLE_" prefix.
func (i Identity) HasAnyRole(roles ...string) bool {
	for _, have := range i.Roles {
		have = normalizeRole(have)
		if slices.ContainsFunc(roles, func(want string) bool {
			return normalizeRole(want) == have
		}) {
			return true
		}
	}
	return false
}

// RequireManager checks that the identity may register promotions and
// coupons for its tenant.
func (i Identity) RequireManager() error {
	if !i.HasAnyRole(RoleSeller, RoleAdmin) {
		return ErrUnauthorized
	}
	if i.TenantID == "" {
		return ErrTenantRequired
	}
	return nil
}

func normalizeRole(r string) string {
	r = strings.ToUpper(strings.TrimSpace(r))
	return strings.TrimPrefix(r, "ROLE_")
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or an anonymous identity.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}
