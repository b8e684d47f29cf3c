package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	authjwt "github.com/xenking/promo-pricing/internal/auth"
	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/domain/pricing"
	"github.com/xenking/promo-pricing/internal/domain/promotion"
	"github.com/xenking/promo-pricing/pkg/httpmiddleware"
)

// Error codes carried in the failure envelope.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeTenantRequired      = "TENANT_REQUIRED"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeCatalogUnavailable  = "CATALOG_UNAVAILABLE"
	CodeInvalidCoupon       = "INVALID_COUPON"
	CodeCouponInactive      = "COUPON_INACTIVE"
	CodeCouponExpired       = "COUPON_EXPIRED"
	CodeCouponUsageExceeded = "COUPON_USAGE_LIMIT_EXCEEDED"
	CodeCouponMinimumNotMet = "COUPON_MINIMUM_NOT_MET"
	CodeDuplicateCoupon     = "DUPLICATE_COUPON_CODE"
)

// writeSuccess writes {"success":true,"message":msg,"data":...}.
func writeSuccess(w http.ResponseWriter, status int, msg string, data func(e *jx.Encoder)) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("message")
	e.Str(msg)
	e.FieldStart("data")
	data(&e)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError maps err to a status and error code. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	httpmiddleware.WriteError(w, status, code, msg)
}

func classify(err error) (status int, code, msg string) {
	var (
		badReq      *BadRequestError
		unavailable *catalog.UnavailableError
		notFound    *pricing.ProductNotFoundError
	)
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest, CodeValidation, badReq.Error()
	case errors.Is(err, errUnauthenticated),
		errors.Is(err, authjwt.ErrInvalidToken),
		errors.Is(err, authjwt.ErrExpiredToken):
		return http.StatusUnauthorized, CodeUnauthenticated, err.Error()
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusForbidden, CodeUnauthorized, "insufficient role for this operation"
	case errors.Is(err, auth.ErrTenantRequired):
		return http.StatusBadRequest, CodeTenantRequired, "tenant id is required"
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, CodeCatalogUnavailable, "product catalog is unavailable"
	case errors.As(err, &notFound):
		return http.StatusNotFound, CodeProductNotFound, "Product not found: " + notFound.ProductID
	case errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, promotion.ErrInvalidPromotion),
		errors.Is(err, coupon.ErrInvalidRequest):
		return http.StatusBadRequest, CodeValidation, err.Error()
	case errors.Is(err, coupon.ErrDuplicateCouponCode):
		return http.StatusConflict, CodeDuplicateCoupon, err.Error()
	case errors.Is(err, coupon.ErrCouponInactive):
		return http.StatusUnprocessableEntity, CodeCouponInactive, err.Error()
	case errors.Is(err, coupon.ErrCouponExpired):
		return http.StatusUnprocessableEntity, CodeCouponExpired, err.Error()
	case errors.Is(err, coupon.ErrCouponUsageLimitExceeded):
		return http.StatusUnprocessableEntity, CodeCouponUsageExceeded, err.Error()
	case errors.Is(err, coupon.ErrCouponMinimumNotMet):
		return http.StatusUnprocessableEntity, CodeCouponMinimumNotMet, err.Error()
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return http.StatusNotFound, CodeInvalidCoupon, err.Error()
	default:
		return http.StatusInternalServerError, httpmiddleware.CodeInternalError, err.Error()
	}
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}
