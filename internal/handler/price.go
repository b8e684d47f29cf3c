package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/pricing"
)

type calculateRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	Quantity   *int   `json:"quantity" validate:"required,min=1"`
	CouponCode string `json:"coupon_code"`
}

func (req *calculateRequest) decode(body []byte) error {
	return decodeObject(body, func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			return readString(d, &req.ProductID)
		case "quantity":
			return readInt(d, &req.Quantity)
		case "coupon_code":
			return readString(d, &req.CouponCode)
		default:
			return d.Skip()
		}
	})
}

// CalculatePrice handles POST /api/v1/promotion/calculate.
func (h *Handler) CalculatePrice(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req calculateRequest
	if err := req.decode(body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	result, err := h.pricing.Calculate(ctx, pricing.Request{
		TenantID:   auth.FromContext(ctx).TenantID,
		ProductID:  req.ProductID,
		Quantity:   *req.Quantity,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Price calculated successfully", func(e *jx.Encoder) {
		encodePriceResult(e, result)
	})
}

func encodePriceResult(e *jx.Encoder, res *pricing.Result) {
	e.ObjStart()
	e.FieldStart("product_id")
	e.Str(res.ProductID)
	e.FieldStart("quantity")
	e.Int(res.Quantity)
	e.FieldStart("base_price")
	encodeMoney(e, res.BasePrice)
	e.FieldStart("discount_amount")
	encodeMoney(e, res.DiscountAmount)
	e.FieldStart("final_price")
	encodeMoney(e, res.FinalPrice)
	e.FieldStart("applied_promotions")
	e.ArrStart()
	for _, name := range res.AppliedPromotions {
		e.Str(name)
	}
	e.ArrEnd()
	e.FieldStart("coupon_applied")
	e.Bool(res.CouponApplied)
	e.FieldStart("currency")
	e.Str(res.Currency)
	e.ObjEnd()
}
