package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/promo-pricing/internal/auth"
	"github.com/xenking/promo-pricing/internal/catalog"
	"github.com/xenking/promo-pricing/internal/domain/coupon"
	"github.com/xenking/promo-pricing/internal/domain/pricing"
	"github.com/xenking/promo-pricing/internal/domain/promotion"
	"github.com/xenking/promo-pricing/internal/handler"
	"github.com/xenking/promo-pricing/internal/storage/postgres"
	"github.com/xenking/promo-pricing/pkg/health"
	"github.com/xenking/promo-pricing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("catalog", cfg.Catalog.URL),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	checkClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithTracerProvider(m.TracerProvider()),
	)}
	healthSvc.AddReadinessCheck("catalog", cfg.Catalog.Timeout,
		health.HTTPCheck(checkClient, cfg.Catalog.URL),
		health.WithThresholds(5, 2),
	)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h, err := newHTTPHandler(ctx, cfg, pool, healthSvc, m)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHTTPHandler builds the domain services over pool and returns the API
// router wrapped in the middleware chain.
func newHTTPHandler(
	ctx context.Context,
	cfg *Config,
	pool *pgxpool.Pool,
	healthSvc *health.Health,
	t httpmiddleware.Telemetry,
) (http.Handler, error) {
	// Catalog client.
	catalogClient, err := catalog.New(cfg.Catalog.URL, catalog.Options{
		Timeout:        cfg.Catalog.Timeout,
		TracerProvider: t.TracerProvider(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create catalog client")
	}

	// Repositories.
	promotionRepo := postgres.NewPromotionRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)

	// Domain services.
	pricingService, err := pricing.NewService(catalogClient, promotionRepo, couponRepo, pricing.Options{
		Currency:      cfg.Catalog.DefaultCurrency,
		MeterProvider: t.MeterProvider(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pricing service")
	}
	promotionService := promotion.NewService(promotionRepo)
	couponService := coupon.NewService(couponRepo)

	verifier, err := auth.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		return nil, errors.Wrap(err, "create token verifier")
	}

	// HTTP handlers.
	h := handler.NewHandler(pricingService, promotionService, couponService, verifier)

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(router)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	return httpmiddleware.Wrap(router,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.TenantHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.HeaderKeyFunc(handler.TenantHeader),
			Skip:    httpmiddleware.SkipPaths("/livez", "/readyz"),
		}),
		httpmiddleware.Instrument("promo-pricing", routeFinder, t),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	), nil
}
