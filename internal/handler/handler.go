package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/domain/pricing"
	"github.com/xenking/promo-pricing/internal/domain/promotion"
)

// PriceCalculator computes price breakdowns.
type PriceCalculator interface {
	Calculate(ctx context.Context, req pricing.Request) (*pricing.Result, error)
}

// PromotionService registers and lists promotions.
type PromotionService interface {
	Create(ctx context.Context, id auth.Identity, req promotion.CreateRequest) (*promotion.Promotion, error)
	ListActive(ctx context.Context, tenantID, productID string) ([]promotion.Promotion, error)
}

// CouponService registers, validates and redeems coupons.
type CouponService interface {
	Create(ctx context.Context, id auth.Identity, req coupon.CreateRequest) (*coupon.Coupon, error)
	Validate(ctx context.Context, tenantID, code string, total decimal.NullDecimal) (*coupon.Coupon, error)
	Redeem(ctx context.Context, id auth.Identity, code string) (*coupon.Coupon, error)
}

// TokenVerifier resolves a bearer token to a caller identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Handler serves the promotion REST API.
type Handler struct {
	pricing    PriceCalculator
	promotions PromotionService
	coupons    CouponService
	verifier   TokenVerifier
	validate   *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	prices PriceCalculator,
	promotions PromotionService,
	coupons CouponService,
	verifier TokenVerifier,
) *Handler {
	return &Handler{
		pricing:    prices,
		promotions: promotions,
		coupons:    coupons,
		verifier:   verifier,
		validate:   newValidator(),
	}
}

// Routes mounts the API under /api/v1/promotion on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/promotion", func(r chi.Router) {
		r.Use(h.Authenticate)

		r.Post("/calculate", h.CalculatePrice)
		r.Get("/product/{productId}/active", h.ListActivePromotions)
		r.Post("/coupon/validate", h.ValidateCoupon)

		r.Group(func(r chi.Router) {
			r.Use(RequireIdentity)
			r.Post("/", h.CreatePromotion)
			r.Post("/coupon", h.CreateCoupon)
			r.Post("/coupon/redeem", h.RedeemCoupon)
		})
	})
}

// Router returns a standalone router serving the API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := readLimited(r)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return body, true
}
