package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/domain/discount"
)

type createCouponRequest struct {
	Code          string           `json:"code" validate:"max=64"`
	DiscountType  string           `json:"discount_type" validate:"required"`
	DiscountValue *decimal.Decimal `json:"discount_value" validate:"required"`
	UsageLimit    *int             `json:"usage_limit" validate:"omitempty,min=0,max=2147483647"`
	ExpiryDate    *time.Time       `json:"expiry_date" validate:"required"`
	MinOrderValue *decimal.Decimal `json:"min_order_value"`
}

func (req *createCouponRequest) decode(body []byte) error {
	return decodeObject(body, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			return readString(d, &req.Code)
		case "discount_type":
			return readString(d, &req.DiscountType)
		case "discount_value":
			return readDecimal(d, &req.DiscountValue)
		case "usage_limit":
			return readInt(d, &req.UsageLimit)
		case "expiry_date":
			return readTime(d, &req.ExpiryDate)
		case "min_order_value":
			return readDecimal(d, &req.MinOrderValue)
		default:
			return d.Skip()
		}
	})
}

type validateCouponRequest struct {
	CouponCode string           `json:"coupon_code" validate:"required"`
	OrderTotal *decimal.Decimal `json:"order_total"`
}

func (req *validateCouponRequest) decode(body []byte) error {
	return decodeObject(body, func(d *jx.Decoder, key string) error {
		switch key {
		case "coupon_code":
			return readString(d, &req.CouponCode)
		case "order_total":
			return readDecimal(d, &req.OrderTotal)
		default:
			// item_ids is accepted for compatibility and ignored.
			return d.Skip()
		}
	})
}

type redeemCouponRequest struct {
	CouponCode string `json:"coupon_code" validate:"required"`
}

func (req *redeemCouponRequest) decode(body []byte) error {
	return decodeObject(body, func(d *jx.Decoder, key string) error {
		if key == "coupon_code" {
			return readString(d, &req.CouponCode)
		}
		return d.Skip()
	})
}

// CreateCoupon handles POST /api/v1/promotion/coupon.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req createCouponRequest
	if err := req.decode(body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	c, err := h.coupons.Create(ctx, auth.FromContext(ctx), coupon.CreateRequest{
		Code:          req.Code,
		DiscountType:  discount.ParseKind(req.DiscountType),
		DiscountValue: *req.DiscountValue,
		UsageLimit:    req.UsageLimit,
		ExpiryDate:    *req.ExpiryDate,
		MinOrderValue: nullDecimal(req.MinOrderValue),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Coupon created successfully", func(e *jx.Encoder) {
		encodeCoupon(e, c)
	})
}

// ValidateCoupon handles POST /api/v1/promotion/coupon/validate. It never
// consumes a use.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req validateCouponRequest
	if err := req.decode(body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	c, err := h.coupons.Validate(ctx, auth.FromContext(ctx).TenantID, req.CouponCode, nullDecimal(req.OrderTotal))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Coupon validated successfully", func(e *jx.Encoder) {
		encodeCoupon(e, c)
	})
}

// RedeemCoupon handles POST /api/v1/promotion/coupon/redeem.
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req redeemCouponRequest
	if err := req.decode(body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	c, err := h.coupons.Redeem(ctx, auth.FromContext(ctx), req.CouponCode)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Coupon redeemed successfully", func(e *jx.Encoder) {
		encodeCoupon(e, c)
	})
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*v)
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("coupon_id")
	e.Str(c.ID)
	e.FieldStart("tenant_id")
	e.Str(c.TenantID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discount_type")
	e.Str(c.DiscountType.String())
	e.FieldStart("discount_value")
	encodeDecimal(e, c.DiscountValue)
	e.FieldStart("usage_limit")
	if c.UsageLimit == nil {
		e.Null()
	} else {
		e.Int(*c.UsageLimit)
	}
	e.FieldStart("used_count")
	e.Int(c.UsedCount)
	e.FieldStart("expiry_date")
	encodeTime(e, c.ExpiryDate)
	e.FieldStart("min_order_value")
	if c.MinOrderValue.Valid {
		encodeMoney(e, c.MinOrderValue.Decimal)
	} else {
		e.Null()
	}
	e.FieldStart("active")
	e.Bool(c.Active)
	e.FieldStart("created_at")
	encodeTime(e, c.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, c.UpdatedAt)
	e.ObjEnd()
}
