package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/discount"
	"github.com/xenking/promo-pricing/internal/domain/promotion"
)

type createPromotionRequest struct {
	Name                string           `json:"name" validate:"required"`
	Type                string           `json:"type" validate:"required"`
	DiscountType        string           `json:"discount_type" validate:"required"`
	DiscountValue       *decimal.Decimal `json:"discount_value" validate:"required"`
	StartDate           *time.Time       `json:"start_date" validate:"required"`
	EndDate             *time.Time       `json:"end_date" validate:"required"`
	EligibilityCriteria []byte           `json:"eligibility_criteria"`
	Priority            *int             `json:"priority" validate:"omitempty,min=-2147483648,max=2147483647"`
}

func (req *createPromotionRequest) decode(body []byte) error {
	return decodeObject(body, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			return readString(d, &req.Name)
		case "type":
			return readString(d, &req.Type)
		case "discount_type":
			return readString(d, &req.DiscountType)
		case "discount_value":
			return readDecimal(d, &req.DiscountValue)
		case "start_date":
			return readTime(d, &req.StartDate)
		case "end_date":
			return readTime(d, &req.EndDate)
		case "eligibility_criteria":
			return readJSONDocument(d, &req.EligibilityCriteria)
		case "priority":
			return readInt(d, &req.Priority)
		default:
			return d.Skip()
		}
	})
}

// CreatePromotion handles POST /api/v1/promotion.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req createPromotionRequest
	if err := req.decode(body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	p, err := h.promotions.Create(ctx, auth.FromContext(ctx), promotion.CreateRequest{
		Name:                req.Name,
		Type:                promotion.ParseType(req.Type),
		DiscountType:        discount.ParseKind(req.DiscountType),
		DiscountValue:       *req.DiscountValue,
		StartDate:           *req.StartDate,
		EndDate:             *req.EndDate,
		EligibilityCriteria: req.EligibilityCriteria,
		Priority:            req.Priority,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Promotion created successfully", func(e *jx.Encoder) {
		encodePromotion(e, p)
	})
}

// ListActivePromotions handles GET /api/v1/promotion/product/{productId}/active.
func (h *Handler) ListActivePromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ps, err := h.promotions.ListActive(ctx, auth.FromContext(ctx).TenantID, chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Active promotions retrieved successfully", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range ps {
			encodePromotion(e, &ps[i])
		}
		e.ArrEnd()
	})
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	e.ObjStart()
	e.FieldStart("promotion_id")
	e.Str(p.ID)
	e.FieldStart("tenant_id")
	e.Str(p.TenantID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("type")
	e.Str(string(p.Type))
	e.FieldStart("discount_type")
	e.Str(p.DiscountType.String())
	e.FieldStart("discount_value")
	encodeDecimal(e, p.DiscountValue)
	e.FieldStart("start_date")
	encodeTime(e, p.StartDate)
	e.FieldStart("end_date")
	encodeTime(e, p.EndDate)
	e.FieldStart("eligibility_criteria")
	if len(p.EligibilityCriteria) == 0 {
		e.Null()
	} else {
		e.Raw(p.EligibilityCriteria)
	}
	e.FieldStart("priority")
	e.Int(p.Priority)
	e.FieldStart("active")
	e.Bool(p.Active)
	e.FieldStart("created_at")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}
