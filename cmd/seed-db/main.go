package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-pricing/internal/domain/auth"
	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/domain/discount"
	"github.com/xenking/promo-pricing/internal/domain/promotion"
	"github.com/xenking/promo-pricing/internal/storage/postgres"
)

type promotionJSON struct {
	Name                string          `json:"name"`
	Type                string          `json:"type"`
	DiscountType        string          `json:"discount_type"`
	DiscountValue       decimal.Decimal `json:"discount_value"`
	StartDate           time.Time       `json:"start_date"`
	EndDate             time.Time       `json:"end_date"`
	EligibilityCriteria json.RawMessage `json:"eligibility_criteria"`
	Priority            *int            `json:"priority"`
}

type couponJSON struct {
	Code          string              `json:"code"`
	DiscountType  string              `json:"discount_type"`
	DiscountValue decimal.Decimal     `json:"discount_value"`
	UsageLimit    *int                `json:"usage_limit"`
	ExpiryDate    time.Time           `json:"expiry_date"`
	MinOrderValue decimal.NullDecimal `json:"min_order_value"`
}

type fixtures struct {
	Promotions []promotionJSON `json:"promotions"`
	Coupons    []couponJSON    `json:"coupons"`
}

func main() {
	var (
		databaseURL  string
		fixturesFile string
		tenantID     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixturesFile, "fixtures", "db/seed/fixtures.json", "path to promotions and coupons JSON file")
	flag.StringVar(&tenantID, "tenant-id", "", "tenant that owns the seeded rules (or PROMO_SEED_TENANT_ID env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if tenantID == "" {
		tenantID = os.Getenv("PROMO_SEED_TENANT_ID")
	}
	if tenantID == "" {
		slog.Error("tenant id is required: set --tenant-id or PROMO_SEED_TENANT_ID")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixturesFile, tenantID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixturesFile, tenantID string) error {
	fx, err := readFixtures(fixturesFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	seeder := auth.Identity{UserID: "seed-db", TenantID: tenantID, Roles: []string{auth.RoleAdmin}}

	promotions := promotion.NewService(postgres.NewPromotionRepository(pool))
	if err := seedPromotions(ctx, promotions, seeder, fx.Promotions); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	coupons := coupon.NewService(postgres.NewCouponRepository(pool))
	if err := seedCoupons(ctx, coupons, seeder, fx.Coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

func readFixtures(path string) (*fixtures, error) {
	slog.Info("reading fixtures file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixtures file")
	}

	var fx fixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, errors.Wrap(err, "parse fixtures JSON")
	}
	return &fx, nil
}

type promotionCreator interface {
	Create(ctx context.Context, id auth.Identity, req promotion.CreateRequest) (*promotion.Promotion, error)
}

func seedPromotions(ctx context.Context, svc promotionCreator, seeder auth.Identity, ps []promotionJSON) error {
	slog.Info("creating promotions", slog.Int("count", len(ps)))

	for _, p := range ps {
		created, err := svc.Create(ctx, seeder, promotion.CreateRequest{
			Name:                p.Name,
			Type:                promotion.ParseType(p.Type),
			DiscountType:        discount.ParseKind(p.DiscountType),
			DiscountValue:       p.DiscountValue,
			StartDate:           p.StartDate,
			EndDate:             p.EndDate,
			EligibilityCriteria: p.EligibilityCriteria,
			Priority:            p.Priority,
		})
		if err != nil {
			return errors.Wrapf(err, "create promotion %q", p.Name)
		}

		slog.Info("created promotion", slog.String("id", created.ID), slog.String("name", created.Name))
	}

	return nil
}

type couponCreator interface {
	Create(ctx context.Context, id auth.Identity, req coupon.CreateRequest) (*coupon.Coupon, error)
}

// seedCoupons creates coupons, leaving codes that already exist untouched so
// the command can be re-run.
func seedCoupons(ctx context.Context, svc couponCreator, seeder auth.Identity, cs []couponJSON) error {
	slog.Info("creating coupons", slog.Int("count", len(cs)))

	for _, c := range cs {
		created, err := svc.Create(ctx, seeder, coupon.CreateRequest{
			Code:          c.Code,
			DiscountType:  discount.ParseKind(c.DiscountType),
			DiscountValue: c.DiscountValue,
			UsageLimit:    c.UsageLimit,
			ExpiryDate:    c.ExpiryDate,
			MinOrderValue: c.MinOrderValue,
		})
		if errors.Is(err, coupon.ErrDuplicateCouponCode) {
			slog.Info("coupon exists, skipping", slog.String("code", c.Code))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create coupon %q", c.Code)
		}

		slog.Info("created coupon", slog.String("code", created.Code), slog.String("id", created.ID))
	}

	return nil
}
