package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	authjwt "github.com/xenking/promo-pricing/internal/auth"
	"github.com/xenking/promo-pricing/internal/domain/auth"
)

// TenantHeader carries the tenant of callers without a token.
const TenantHeader = "X-Tenant-Id"

// errUnauthenticated is mapped to 401.
var errUnauthenticated = errors.New("authentication required")

// Authenticate resolves the caller identity from the Authorization header.
// Requests without a token continue anonymously; a malformed or rejected
// token fails with 401. Anonymous callers name their tenant with the
// X-Tenant-Id header; verified callers only get the tenant from their token.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id auth.Identity

		if header := r.Header.Get("Authorization"); header != "" {
			token, ok := authjwt.BearerToken(header)
			if !ok {
				writeError(w, r, authjwt.ErrInvalidToken)
				return
			}
			verified, err := h.verifier.Verify(token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			id = verified
		}
		if !id.Authenticated() {
			id.TenantID = strings.TrimSpace(r.Header.Get(TenantHeader))
		}

		ctx := auth.WithIdentity(r.Context(), id)
		if id.TenantID != "" || id.UserID != "" {
			lg := zctx.From(ctx).With(
				zap.String("tenant_id", id.TenantID),
				zap.String("user_id", id.UserID),
			)
			ctx = zctx.Base(ctx, lg)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects anonymous callers with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.FromContext(r.Context()).Authenticated() {
			writeError(w, r, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}
