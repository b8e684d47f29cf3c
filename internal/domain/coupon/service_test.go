package coupon

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/discount"
)

type mockCouponRepo struct {
	byCode  map[string]*Coupon
	findErr error
	saveErr error
	saved   []*Coupon
	checked []string
	redeem  func(code, tenantID string) (*Coupon, error)
}

var _ Repository = (*mockCouponRepo)(nil)

func newMockRepo(coupons ...*Coupon) *mockCouponRepo {
	m := &mockCouponRepo{byCode: make(map[string]*Coupon)}
	for _, c := range coupons {
		m.byCode[c.Code] = c
	}
	return m
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.byCode[code]
	if !ok {
		return nil, ErrInvalidCoupon
	}
	return c, nil
}

func (m *mockCouponRepo) FindByCodeAndTenant(ctx context.Context, code, tenantID string) (*Coupon, error) {
	c, err := m.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, ErrInvalidCoupon
	}
	return c, nil
}

func (m *mockCouponRepo) ExistsByCode(_ context.Context, code string) (bool, error) {
	m.checked = append(m.checked, code)
	if m.findErr != nil {
		return false, m.findErr
	}
	_, ok := m.byCode[code]
	return ok, nil
}

func (m *mockCouponRepo) Save(_ context.Context, c *Coupon) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	c.ID = "c-" + c.Code
	m.byCode[c.Code] = c
	m.saved = append(m.saved, c)
	return nil
}

func (m *mockCouponRepo) Redeem(_ context.Context, code, tenantID string, _ time.Time) (*Coupon, error) {
	return m.redeem(code, tenantID)
}

var seller = auth.Identity{UserID: "u1", TenantID: "t1", Roles: []string{"SELLER"}}

func TestService_Create(t *testing.T) {
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		identity auth.Identity
		repo     *mockCouponRepo
		req      CreateRequest
		wantCode string
		wantErr  error
	}{
		{
			name:     "supplied code is normalized",
			identity: seller,
			repo:     newMockRepo(),
			req: CreateRequest{
				Code:          " save10 ",
				DiscountType:  discount.KindPercentage,
				DiscountValue: d("10"),
				ExpiryDate:    expiry,
			},
			wantCode: "SAVE10",
		},
		{
			name:     "customer is rejected",
			identity: auth.Identity{UserID: "u2", TenantID: "t1", Roles: []string{"CUSTOMER"}},
			repo:     newMockRepo(),
			req: CreateRequest{
				Code:          "SAVE10",
				DiscountType:  discount.KindPercentage,
				DiscountValue: d("10"),
				ExpiryDate:    expiry,
			},
			wantErr: auth.ErrUnauthorized,
		},
		{
			name:     "admin without tenant is rejected",
			identity: auth.Identity{UserID: "u3", Roles: []string{"ADMIN"}},
			repo:     newMockRepo(),
			req: CreateRequest{
				DiscountType:  discount.KindFixed,
				DiscountValue: d("5"),
				ExpiryDate:    expiry,
			},
			wantErr: auth.ErrTenantRequired,
		},
		{
			name:     "duplicate code in another tenant",
			identity: seller,
			repo:     newMockRepo(&Coupon{Code: "SAVE10", TenantID: "t2"}),
			req: CreateRequest{
				Code:          "save10",
				DiscountType:  discount.KindPercentage,
				DiscountValue: d("10"),
				ExpiryDate:    expiry,
			},
			wantErr: ErrDuplicateCouponCode,
		},
		{
			name:     "negative value",
			identity: seller,
			repo:     newMockRepo(),
			req: CreateRequest{
				DiscountType:  discount.KindFixed,
				DiscountValue: d("-1"),
				ExpiryDate:    expiry,
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name:     "negative usage limit",
			identity: seller,
			repo:     newMockRepo(),
			req: CreateRequest{
				DiscountType:  discount.KindFixed,
				DiscountValue: d("1"),
				UsageLimit:    intPtr(-1),
				ExpiryDate:    expiry,
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name:     "usage limit beyond store range",
			identity: seller,
			repo:     newMockRepo(),
			req: CreateRequest{
				DiscountType:  discount.KindFixed,
				DiscountValue: d("1"),
				UsageLimit:    intPtr(MaxUsageLimit + 2),
				ExpiryDate:    expiry,
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name:     "missing expiry",
			identity: seller,
			repo:     newMockRepo(),
			req: CreateRequest{
				DiscountType:  discount.KindFixed,
				DiscountValue: d("1"),
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name:     "negative minimum",
			identity: seller,
			repo:     newMockRepo(),
			req: CreateRequest{
				DiscountType:  discount.KindFixed,
				DiscountValue: d("1"),
				ExpiryDate:    expiry,
				MinOrderValue: total("-5"),
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name:     "insert race maps to duplicate",
			identity: seller,
			repo: func() *mockCouponRepo {
				m := newMockRepo()
				m.saveErr = &DuplicateCodeError{Code: "RACE"}
				return m
			}(),
			req: CreateRequest{
				Code:          "RACE",
				DiscountType:  discount.KindFixed,
				DiscountValue: d("1"),
				ExpiryDate:    expiry,
			},
			wantErr: ErrDuplicateCouponCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.repo)

			c, err := svc.Create(context.Background(), tt.identity, tt.req)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
				assert.Empty(t, tt.repo.saved)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, c.Code)
			assert.Equal(t, tt.identity.TenantID, c.TenantID)
			assert.True(t, c.Active)
			assert.Equal(t, 0, c.UsedCount)
			assert.NotEmpty(t, c.ID)
		})
	}
}

func TestService_Create_GeneratesCode(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	c, err := svc.Create(context.Background(), seller, CreateRequest{
		DiscountType:  discount.KindPercentage,
		DiscountValue: d("15"),
		ExpiryDate:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^PROMO[0-9A-F]{8}$`), c.Code)
}

func TestService_Create_RetriesCollisions(t *testing.T) {
	repo := newMockRepo(
		&Coupon{Code: "PROMO00000001"},
		&Coupon{Code: "PROMO00000002"},
	)
	codes := []string{"PROMO00000001", "PROMO00000002", "PROMO00000003"}
	svc := NewService(repo)
	svc.newCode = func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	c, err := svc.Create(context.Background(), seller, CreateRequest{
		DiscountType:  discount.KindFixed,
		DiscountValue: d("5"),
		ExpiryDate:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "PROMO00000003", c.Code)
	assert.Len(t, repo.checked, 3)
}

func TestService_Create_GivesUpAfterFiveCollisions(t *testing.T) {
	repo := newMockRepo(&Coupon{Code: "PROMOAAAAAAAA"})
	svc := NewService(repo)
	svc.newCode = func() string { return "PROMOAAAAAAAA" }

	_, err := svc.Create(context.Background(), seller, CreateRequest{
		DiscountType:  discount.KindFixed,
		DiscountValue: d("5"),
		ExpiryDate:    time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
	assert.Len(t, repo.checked, 5)
	assert.Empty(t, repo.saved)
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		code := GenerateCode()
		assert.Len(t, code, 13)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestService_Validate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	coupon := &Coupon{
		ID:            "c1",
		TenantID:      "t1",
		Code:          "SAVE10",
		DiscountType:  discount.KindPercentage,
		DiscountValue: d("10"),
		ExpiryDate:    now.Add(time.Hour),
		MinOrderValue: total("50"),
		Active:        true,
	}

	tests := []struct {
		name     string
		tenantID string
		code     string
		total    decimal.NullDecimal
		repoErr  error
		wantErr  error
	}{
		{name: "valid", tenantID: "t1", code: "save10", total: total("60")},
		{name: "valid without total", tenantID: "t1", code: "SAVE10"},
		{name: "unknown code", tenantID: "t1", code: "NOPE", wantErr: ErrInvalidCoupon},
		{name: "other tenant", tenantID: "t2", code: "SAVE10", wantErr: ErrInvalidCoupon},
		{name: "empty code", tenantID: "t1", code: "  ", wantErr: ErrInvalidCoupon},
		{name: "missing tenant", code: "SAVE10", wantErr: auth.ErrTenantRequired},
		{name: "minimum not met", tenantID: "t1", code: "SAVE10", total: total("10"), wantErr: ErrCouponMinimumNotMet},
		{name: "store failure", tenantID: "t1", code: "SAVE10", repoErr: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo(coupon)
			repo.findErr = tt.repoErr
			svc := NewService(repo)
			svc.now = func() time.Time { return now }

			got, err := svc.Validate(context.Background(), tt.tenantID, tt.code, tt.total)
			if tt.repoErr != nil {
				require.Error(t, err)
				assert.False(t, errors.Is(err, ErrInvalidCoupon))
				return
			}
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "c1", got.ID)
			assert.Equal(t, 0, got.UsedCount, "validate must not consume a use")
		})
	}
}

func TestService_Redeem(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("consumes a use", func(t *testing.T) {
		repo := newMockRepo()
		repo.redeem = func(code, tenantID string) (*Coupon, error) {
			assert.Equal(t, "SAVE10", code)
			assert.Equal(t, "t1", tenantID)
			return &Coupon{ID: "c1", Code: code, TenantID: tenantID, UsedCount: 1}, nil
		}
		svc := NewService(repo)

		c, err := svc.Redeem(context.Background(), seller, "save10")
		require.NoError(t, err)
		assert.Equal(t, 1, c.UsedCount)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		svc := NewService(newMockRepo())
		_, err := svc.Redeem(context.Background(), auth.Identity{TenantID: "t1"}, "SAVE10")
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("unknown code", func(t *testing.T) {
		repo := newMockRepo()
		repo.redeem = func(string, string) (*Coupon, error) { return nil, ErrInvalidCoupon }
		svc := NewService(repo)

		_, err := svc.Redeem(context.Background(), seller, "NOPE")
		require.ErrorIs(t, err, ErrInvalidCoupon)
	})

	t.Run("not consumable reports reason", func(t *testing.T) {
		tests := []struct {
			name    string
			coupon  *Coupon
			wantErr error
		}{
			{
				name:    "exhausted",
				coupon:  &Coupon{Code: "X", TenantID: "t1", Active: true, ExpiryDate: now.Add(time.Hour), UsageLimit: intPtr(1), UsedCount: 1},
				wantErr: ErrCouponUsageLimitExceeded,
			},
			{
				name:    "expired",
				coupon:  &Coupon{Code: "X", TenantID: "t1", Active: true, ExpiryDate: now.Add(-time.Hour)},
				wantErr: ErrCouponExpired,
			},
			{
				name:    "inactive",
				coupon:  &Coupon{Code: "X", TenantID: "t1", ExpiryDate: now.Add(time.Hour)},
				wantErr: ErrCouponInactive,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				repo := newMockRepo(tt.coupon)
				repo.redeem = func(string, string) (*Coupon, error) { return nil, nil }
				svc := NewService(repo)
				svc.now = func() time.Time { return now }

				_, err := svc.Redeem(context.Background(), seller, "x")
				require.ErrorIs(t, err, tt.wantErr)
			})
		}
	})
}
