package promotion

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/discount"
)

// ErrInvalidPromotion is matched by every FieldError.
var ErrInvalidPromotion = errors.New("invalid promotion")

// FieldError reports a rejected CreateRequest field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidPromotion
}

// CreateRequest holds the caller-supplied attributes of a new promotion.
type CreateRequest struct {
	Name                string
	Type                Type
	DiscountType        discount.Kind
	DiscountValue       decimal.Decimal
	StartDate           time.Time
	EndDate             time.Time
	EligibilityCriteria []byte
	// Priority defaults to 0 when nil.
	Priority *int
}

func (r *CreateRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return &FieldError{Field: "name", Reason: "is required"}
	case r.Type == "":
		return &FieldError{Field: "type", Reason: "is required"}
	case r.DiscountType == "":
		return &FieldError{Field: "discount_type", Reason: "is required"}
	case r.DiscountValue.IsNegative():
		return &FieldError{Field: "discount_value", Reason: "must be non-negative"}
	case r.StartDate.IsZero():
		return &FieldError{Field: "start_date", Reason: "is required"}
	case r.EndDate.IsZero():
		return &FieldError{Field: "end_date", Reason: "is required"}
	case r.EndDate.Before(r.StartDate):
		return &FieldError{Field: "end_date", Reason: "must not be before start_date"}
	case r.EligibilityCriteria != nil && !jx.Valid(r.EligibilityCriteria):
		return &FieldError{Field: "eligibility_criteria", Reason: "must be valid JSON"}
	case r.Priority != nil && (*r.Priority < math.MinInt32 || *r.Priority > math.MaxInt32):
		return &FieldError{Field: "priority", Reason: "must fit in 32 bits"}
	}
	return nil
}

// Service implements promotion registration and listing.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a promotion Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create registers a new active promotion for the caller's tenant. The caller
// must hold the SELLER or ADMIN role.
func (s *Service) Create(ctx context.Context, id auth.Identity, req CreateRequest) (*Promotion, error) {
	if err := id.RequireManager(); err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(req.EligibilityCriteria)) == 0 {
		req.EligibilityCriteria = nil
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	p := &Promotion{
		TenantID:            id.TenantID,
		Name:                strings.TrimSpace(req.Name),
		Type:                req.Type,
		DiscountType:        req.DiscountType,
		DiscountValue:       req.DiscountValue,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		EligibilityCriteria: req.EligibilityCriteria,
		Active:              true,
	}
	if req.Priority != nil {
		p.Priority = *req.Priority
	}

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, errors.Wrap(err, "save promotion")
	}

	zctx.From(ctx).Info("Promotion created",
		zap.String("promotion_id", p.ID),
		zap.String("tenant_id", p.TenantID),
		zap.String("discount_type", p.DiscountType.String()),
		zap.Int("priority", p.Priority),
	)
	return p, nil
}

// ListActive returns the tenant's promotions currently in effect, in the
// order the price calculation applies them. Eligibility criteria are not
// evaluated, so productID only scopes the log entry.
func (s *Service) ListActive(ctx context.Context, tenantID, productID string) ([]Promotion, error) {
	if tenantID == "" {
		return nil, auth.ErrTenantRequired
	}

	now := s.now()
	ps, err := s.repo.FindActive(ctx, tenantID, now)
	if err != nil {
		return nil, errors.Wrap(err, "find active promotions")
	}

	zctx.From(ctx).Debug("Listing active promotions",
		zap.String("tenant_id", tenantID),
		zap.String("product_id", productID),
		zap.Int("count", len(ps)),
	)
	return Applicable(ps, now), nil
}
