package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authjwt "github.com/xenking/promo-pricing/internal/auth"
	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/domain/discount"
	"github.com/xenking/promo-pricing/internal/domain/pricing"
	"github.com/xenking/promo-pricing/internal/domain/promotion"
)

// --- Mock implementations ---

type mockPricing struct {
	got    pricing.Request
	result *pricing.Result
	err    error
}

func (m *mockPricing) Calculate(_ context.Context, req pricing.Request) (*pricing.Result, error) {
	m.got = req
	return m.result, m.err
}

type mockPromotions struct {
	created  promotion.CreateRequest
	identity auth.Identity
	tenantID string
	list     []promotion.Promotion
	err      error
}

func (m *mockPromotions) Create(_ context.Context, id auth.Identity, req promotion.CreateRequest) (*promotion.Promotion, error) {
	m.identity = id
	m.created = req
	if err := id.RequireManager(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	return &promotion.Promotion{
		ID:                  "9b2f6c1e-0000-4000-8000-000000000001",
		TenantID:            id.TenantID,
		Name:                req.Name,
		Type:                req.Type,
		DiscountType:        req.DiscountType,
		DiscountValue:       req.DiscountValue,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		EligibilityCriteria: req.EligibilityCriteria,
		Active:              true,
	}, nil
}

func (m *mockPromotions) ListActive(_ context.Context, tenantID, _ string) ([]promotion.Promotion, error) {
	m.tenantID = tenantID
	if tenantID == "" {
		return nil, auth.ErrTenantRequired
	}
	return m.list, m.err
}

type mockCoupons struct {
	created  coupon.CreateRequest
	tenantID string
	total    decimal.NullDecimal
	redeemed string
	coupon   *coupon.Coupon
	err      error
}

func (m *mockCoupons) Create(_ context.Context, _ auth.Identity, req coupon.CreateRequest) (*coupon.Coupon, error) {
	m.created = req
	return m.coupon, m.err
}

func (m *mockCoupons) Validate(_ context.Context, tenantID, _ string, total decimal.NullDecimal) (*coupon.Coupon, error) {
	m.tenantID = tenantID
	m.total = total
	return m.coupon, m.err
}

func (m *mockCoupons) Redeem(_ context.Context, _ auth.Identity, code string) (*coupon.Coupon, error) {
	m.redeemed = code
	return m.coupon, m.err
}

type mockVerifier map[string]auth.Identity

func (m mockVerifier) Verify(token string) (auth.Identity, error) {
	id, ok := m[token]
	if !ok {
		return auth.Identity{}, authjwt.ErrInvalidToken
	}
	return id, nil
}

var testVerifier = mockVerifier{
	"seller-token":   {UserID: "u-1", TenantID: "tenant-a", Roles: []string{auth.RoleSeller}},
	"customer-token": {UserID: "u-2", TenantID: "tenant-a", Roles: []string{"CUSTOMER"}},
	"platform-token": {UserID: "u-3", Roles: []string{auth.RoleAdmin}},
}

// --- Helpers ---

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func newTestHandler(p *mockPricing, pr *mockPromotions, c *mockCoupons) http.Handler {
	if p == nil {
		p = &mockPricing{}
	}
	if pr == nil {
		pr = &mockPromotions{}
	}
	if c == nil {
		c = &mockCoupons{}
	}
	return NewHandler(p, pr, c, testVerifier).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func tenantHeader(id string) map[string]string {
	return map[string]string{TenantHeader: id}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// --- Tests ---

func TestCalculatePrice(t *testing.T) {
	p := &mockPricing{result: &pricing.Result{
		ProductID:         "P-1",
		Quantity:          2,
		BasePrice:         decimal.RequireFromString("200.00"),
		DiscountAmount:    decimal.RequireFromString("35"),
		FinalPrice:        decimal.RequireFromString("165"),
		AppliedPromotions: []string{"Summer Sale", "Flat Five"},
		Currency:          "USD",
		CouponApplied:     true,
	}}
	h := newTestHandler(p, nil, nil)

	w, env := do(t, h, http.MethodPost, "/api/v1/promotion/calculate",
		`{"product_id":"P-1","quantity":2,"coupon_code":"save10"}`, tenantHeader("tenant-a"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Price calculated successfully", env.Message)
	assert.JSONEq(t, `{
		"product_id":"P-1","quantity":2,
		"base_price":200.00,"discount_amount":35.00,"final_price":165.00,
		"applied_promotions":["Summer Sale","Flat Five"],
		"coupon_applied":true,"currency":"USD"
	}`, string(env.Data))
	assert.Contains(t, string(env.Data), `"final_price":165.00`)

	assert.Equal(t, pricing.Request{
		TenantID:   "tenant-a",
		ProductID:  "P-1",
		Quantity:   2,
		CouponCode: "save10",
	}, p.got)
}

func TestCalculatePrice_TenantFromTokenWins(t *testing.T) {
	p := &mockPricing{result: &pricing.Result{Currency: "USD"}}
	h := newTestHandler(p, nil, nil)

	headers := bearer("seller-token")
	headers[TenantHeader] = "tenant-b"
	w, _ := do(t, h, http.MethodPost, "/api/v1/promotion/calculate", `{"product_id":"P-1","quantity":1}`, headers)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-a", p.got.TenantID)
}

func TestAuthenticate_HeaderTenantOnlyForAnonymous(t *testing.T) {
	pr := &mockPromotions{}
	h := newTestHandler(nil, pr, nil)

	headers := bearer("platform-token")
	headers[TenantHeader] = "tenant-b"
	body := `{"name":"X","type":"percentage","discount_type":"percentage","discount_value":1,
		"start_date":"2026-06-01T00:00:00Z","end_date":"2026-06-02T00:00:00Z"}`
	w, env := do(t, h, http.MethodPost, "/api/v1/promotion", body, headers)

	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, CodeTenantRequired, env.Error)
	assert.Empty(t, pr.identity.TenantID)
	assert.Equal(t, "u-3", pr.identity.UserID)

	// The same header still scopes anonymous reads.
	w, _ = do(t, h, http.MethodGet, "/api/v1/promotion/product/P-1/active", "", tenantHeader("tenant-b"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-b", pr.tenantID)
}

func TestCalculatePrice_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty body", body: "", want: "request body is required"},
		{name: "not an object", body: `[1]`, want: "request body must be a JSON object"},
		{name: "broken json", body: `{"product_id" "P-1"}`, want: "malformed JSON body"},
		{name: "missing product", body: `{"quantity":1}`, want: "product_id: is required"},
		{name: "missing quantity", body: `{"product_id":"P-1"}`, want: "quantity: is required"},
		{name: "zero quantity", body: `{"product_id":"P-1","quantity":0}`, want: "quantity: must be at least 1"},
		{name: "malformed quantity", body: `{"product_id":"P-1","quantity":"two"}`, want: "quantity: malformed value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(nil, nil, nil)
			w, env := do(t, h, http.MethodPost, "/api/v1/promotion/calculate", tt.body, tenantHeader("tenant-a"))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, CodeValidation, env.Error)
			assert.Equal(t, tt.want, env.Message)
		})
	}
}

func TestCalculatePrice_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "product not found",
			err:        &pricing.ProductNotFoundError{ProductID: "P-404", Err: catalog.ErrNotFound},
			wantStatus: http.StatusNotFound,
			wantCode:   CodeProductNotFound,
		},
		{
			name: "catalog unavailable",
			err: &pricing.ProductNotFoundError{
				ProductID: "P-1",
				Err:       &catalog.UnavailableError{Err: context.DeadlineExceeded},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeCatalogUnavailable,
		},
		{
			name:       "tenant required",
			err:        auth.ErrTenantRequired,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeTenantRequired,
		},
		{
			name:       "store failure",
			err:        errors.Wrap(errors.New("connection reset"), "find active promotions"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&mockPricing{err: tt.err}, nil, nil)
			w, env := do(t, h, http.MethodPost, "/api/v1/promotion/calculate", `{"product_id":"P-1","quantity":1}`, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, env.Error)
			assert.NotContains(t, env.Message, "connection reset")
		})
	}
}

func TestAuthenticate_RejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "unknown token", header: "Bearer forged"},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "empty bearer", header: "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&mockPricing{result: &pricing.Result{}}, nil, nil)
			w, env := do(t, h, http.MethodPost, "/api/v1/promotion/calculate",
				`{"product_id":"P-1","quantity":1}`, map[string]string{"Authorization": tt.header})

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, CodeUnauthenticated, env.Error)
		})
	}
}

func TestCreatePromotion(t *testing.T) {
	pr := &mockPromotions{}
	h := newTestHandler(nil, pr, nil)

	body := `{
		"name":"Summer Sale",
		"type":"percentage",
		"discount_type":"percentage",
		"discount_value":"10",
		"start_date":"2026-06-01T00:00:00",
		"end_date":"2026-08-31T23:59:59Z",
		"eligibility_criteria":"{\"category\":\"shoes\"}",
		"priority":10
	}`
	w, env := do(t, h, http.MethodPost, "/api/v1/promotion", body, bearer("seller-token"))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Promotion created successfully", env.Message)

	assert.Equal(t, "tenant-a", pr.identity.TenantID)
	assert.Equal(t, promotion.TypePercentage, pr.created.Type)
	assert.Equal(t, discount.KindPercentage, pr.created.DiscountType)
	assert.True(t, decimal.NewFromInt(10).Equal(pr.created.DiscountValue))
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), pr.created.StartDate)
	assert.Equal(t, time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC), pr.created.EndDate)
	assert.JSONEq(t, `{"category":"shoes"}`, string(pr.created.EligibilityCriteria))
	require.NotNil(t, pr.created.Priority)
	assert.Equal(t, 10, *pr.created.Priority)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "tenant-a", data["tenant_id"])
	assert.Equal(t, map[string]any{"category": "shoes"}, data["eligibility_criteria"])
	assert.Equal(t, "2026-06-01T00:00:00Z", data["start_date"])
}

func TestCreatePromotion_ObjectCriteria(t *testing.T) {
	pr := &mockPromotions{}
	h := newTestHandler(nil, pr, nil)

	body := `{"name":"A","type":"FIXED_AMOUNT","discount_type":"FIXED","discount_value":5,
		"start_date":"2026-01-01T00:00:00Z","end_date":"2026-12-31T00:00:00Z",
		"eligibility_criteria":{"min_qty":2}}`
	w, _ := do(t, h, http.MethodPost, "/api/v1/promotion", body, bearer("seller-token"))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"min_qty":2}`, string(pr.created.EligibilityCriteria))
	assert.Nil(t, pr.created.Priority)
}

func TestCreatePromotion_Access(t *testing.T) {
	body := `{"name":"A","type":"PERCENTAGE","discount_type":"PERCENTAGE","discount_value":5,
		"start_date":"2026-01-01T00:00:00Z","end_date":"2026-12-31T00:00:00Z"}`

	t.Run("anonymous", func(t *testing.T) {
		h := newTestHandler(nil, &mockPromotions{}, nil)
		w, env := do(t, h, http.MethodPost, "/api/v1/promotion", body, tenantHeader("tenant-a"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, CodeUnauthenticated, env.Error)
	})

	t.Run("missing role", func(t *testing.T) {
		h := newTestHandler(nil, &mockPromotions{err: auth.ErrUnauthorized}, nil)
		w, env := do(t, h, http.MethodPost, "/api/v1/promotion", body, bearer("customer-token"))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, CodeUnauthorized, env.Error)
	})

	t.Run("invalid field", func(t *testing.T) {
		err := &promotion.FieldError{Field: "end_date", Reason: "must not be before start_date"}
		h := newTestHandler(nil, &mockPromotions{err: err}, nil)
		w, env := do(t, h, http.MethodPost, "/api/v1/promotion", body, bearer("seller-token"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "end_date: must not be before start_date", env.Message)
	})
}

func TestCreatePromotion_RejectsPriorityOutOfRange(t *testing.T) {
	pr := &mockPromotions{}
	h := newTestHandler(nil, pr, nil)

	body := `{"name":"X","type":"percentage","discount_type":"percentage","discount_value":1,
		"start_date":"2026-06-01T00:00:00Z","end_date":"2026-06-02T00:00:00Z","priority":4294967297}`
	w, env := do(t, h, http.MethodPost, "/api/v1/promotion", body, bearer("seller-token"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "priority: must be at most 2147483647", env.Message)
	assert.Empty(t, pr.created.Name)
}

func TestCreatePromotion_RejectsInvalidCriteria(t *testing.T) {
	h := newTestHandler(nil, &mockPromotions{}, nil)
	body := `{"name":"A","type":"PERCENTAGE","discount_type":"PERCENTAGE","discount_value":5,
		"start_date":"2026-01-01T00:00:00Z","end_date":"2026-12-31T00:00:00Z",
		"eligibility_criteria":"{not json"}`

	w, env := do(t, h, http.MethodPost, "/api/v1/promotion", body, bearer("seller-token"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "eligibility_criteria: must be valid JSON", env.Message)
}

func TestListActivePromotions(t *testing.T) {
	pr := &mockPromotions{list: []promotion.Promotion{
		{ID: "p-2", TenantID: "tenant-a", Name: "High", Priority: 10, DiscountType: discount.KindFixed, DiscountValue: decimal.NewFromInt(5), Active: true},
		{ID: "p-1", TenantID: "tenant-a", Name: "Low", Priority: 1, DiscountType: discount.KindPercentage, DiscountValue: decimal.RequireFromString("12.5"), Active: true},
	}}
	h := newTestHandler(nil, pr, nil)

	w, env := do(t, h, http.MethodGet, "/api/v1/promotion/product/P-1/active", "", tenantHeader("tenant-a"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-a", pr.tenantID)

	var data []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data, 2)
	assert.Equal(t, "High", data[0]["name"])
	assert.Equal(t, "Low", data[1]["name"])
	assert.Nil(t, data[0]["eligibility_criteria"])
	assert.Contains(t, string(env.Data), `"discount_value":12.5`)
}

func TestListActivePromotions_RequiresTenant(t *testing.T) {
	h := newTestHandler(nil, &mockPromotions{}, nil)

	w, env := do(t, h, http.MethodGet, "/api/v1/promotion/product/P-1/active", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeTenantRequired, env.Error)
}

func TestValidateCoupon(t *testing.T) {
	limit := 100
	c := &mockCoupons{coupon: &coupon.Coupon{
		ID:            "c-1",
		TenantID:      "tenant-a",
		Code:          "SAVE10",
		DiscountType:  discount.KindPercentage,
		DiscountValue: decimal.NewFromInt(10),
		UsageLimit:    &limit,
		UsedCount:     3,
		ExpiryDate:    time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		MinOrderValue: decimal.NewNullDecimal(decimal.NewFromInt(50)),
		Active:        true,
	}}
	h := newTestHandler(nil, nil, c)

	w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon/validate",
		`{"coupon_code":"save10","order_total":"120.50","item_ids":["a","b"]}`, tenantHeader("tenant-a"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Coupon validated successfully", env.Message)
	assert.Equal(t, "tenant-a", c.tenantID)
	require.True(t, c.total.Valid)
	assert.True(t, decimal.RequireFromString("120.50").Equal(c.total.Decimal))

	assert.JSONEq(t, `{
		"coupon_id":"c-1","tenant_id":"tenant-a","code":"SAVE10",
		"discount_type":"PERCENTAGE","discount_value":10,
		"usage_limit":100,"used_count":3,
		"expiry_date":"2027-01-01T00:00:00Z","min_order_value":50.00,
		"active":true,
		"created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"
	}`, string(env.Data))
}

func TestValidateCoupon_WithoutTotal(t *testing.T) {
	c := &mockCoupons{coupon: &coupon.Coupon{Code: "SAVE10"}}
	h := newTestHandler(nil, nil, c)

	w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon/validate", `{"coupon_code":"SAVE10"}`, tenantHeader("tenant-a"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, c.total.Valid)
	assert.Contains(t, string(env.Data), `"usage_limit":null`)
	assert.Contains(t, string(env.Data), `"min_order_value":null`)
}

func TestValidateCoupon_Failures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"unknown", coupon.ErrInvalidCoupon, http.StatusNotFound, CodeInvalidCoupon, "invalid coupon code"},
		{"inactive", coupon.ErrCouponInactive, http.StatusUnprocessableEntity, CodeCouponInactive, "coupon is not active"},
		{"expired", coupon.ErrCouponExpired, http.StatusUnprocessableEntity, CodeCouponExpired, "coupon has expired"},
		{"exhausted", coupon.ErrCouponUsageLimitExceeded, http.StatusUnprocessableEntity, CodeCouponUsageExceeded, "coupon usage limit exceeded"},
		{
			"below minimum",
			&coupon.MinimumNotMetError{Required: decimal.NewFromInt(50)},
			http.StatusUnprocessableEntity,
			CodeCouponMinimumNotMet,
			"Minimum order value not met. Required: 50.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(nil, nil, &mockCoupons{err: tt.err})
			w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon/validate",
				`{"coupon_code":"SAVE10","order_total":40}`, tenantHeader("tenant-a"))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Error)
			assert.Equal(t, tt.wantMessage, env.Message)
		})
	}
}

func TestCreateCoupon(t *testing.T) {
	c := &mockCoupons{coupon: &coupon.Coupon{ID: "c-9", Code: "PROMO1A2B3C4D", Active: true}}
	h := newTestHandler(nil, nil, c)

	body := `{"discount_type":"fixed","discount_value":15,"usage_limit":3,
		"expiry_date":"2026-12-31T23:59:59","min_order_value":"40"}`
	w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon", body, bearer("seller-token"))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Coupon created successfully", env.Message)
	assert.Empty(t, c.created.Code)
	assert.Equal(t, discount.KindFixed, c.created.DiscountType)
	require.NotNil(t, c.created.UsageLimit)
	assert.Equal(t, 3, *c.created.UsageLimit)
	assert.Equal(t, time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), c.created.ExpiryDate)
	require.True(t, c.created.MinOrderValue.Valid)
	assert.True(t, decimal.NewFromInt(40).Equal(c.created.MinOrderValue.Decimal))
}

func TestCreateCoupon_Failures(t *testing.T) {
	body := `{"code":"SAVE10","discount_type":"PERCENTAGE","discount_value":10,"expiry_date":"2026-12-31T00:00:00Z"}`

	t.Run("duplicate", func(t *testing.T) {
		h := newTestHandler(nil, nil, &mockCoupons{err: &coupon.DuplicateCodeError{Code: "SAVE10"}})
		w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon", body, bearer("seller-token"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, CodeDuplicateCoupon, env.Error)
	})

	t.Run("negative usage limit", func(t *testing.T) {
		h := newTestHandler(nil, nil, &mockCoupons{})
		bad := `{"discount_type":"FIXED","discount_value":1,"usage_limit":-1,"expiry_date":"2026-12-31T00:00:00Z"}`
		w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon", bad, bearer("seller-token"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "usage_limit: must be at least 0", env.Message)
	})

	t.Run("usage limit beyond store range", func(t *testing.T) {
		c := &mockCoupons{}
		h := newTestHandler(nil, nil, c)
		bad := `{"discount_type":"FIXED","discount_value":1,"usage_limit":4294967297,"expiry_date":"2026-12-31T00:00:00Z"}`
		w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon", bad, bearer("seller-token"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "usage_limit: must be at most 2147483647", env.Message)
		assert.Zero(t, c.created)
	})

	t.Run("missing expiry", func(t *testing.T) {
		h := newTestHandler(nil, nil, &mockCoupons{})
		bad := `{"discount_type":"FIXED","discount_value":1}`
		w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon", bad, bearer("seller-token"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "expiry_date: is required", env.Message)
	})

	t.Run("malformed date", func(t *testing.T) {
		h := newTestHandler(nil, nil, &mockCoupons{})
		bad := `{"discount_type":"FIXED","discount_value":1,"expiry_date":"31/12/2026"}`
		w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon", bad, bearer("seller-token"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "expiry_date: malformed value", env.Message)
	})
}

func TestRedeemCoupon(t *testing.T) {
	c := &mockCoupons{coupon: &coupon.Coupon{Code: "SAVE10", UsedCount: 4}}
	h := newTestHandler(nil, nil, c)

	w, env := do(t, h, http.MethodPost, "/api/v1/promotion/coupon/redeem", `{"coupon_code":"save10"}`, bearer("customer-token"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "save10", c.redeemed)
	assert.Contains(t, string(env.Data), `"used_count":4`)

	w, env = do(t, h, http.MethodPost, "/api/v1/promotion/coupon/redeem", `{"coupon_code":"save10"}`, tenantHeader("tenant-a"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeUnauthenticated, env.Error)
}
