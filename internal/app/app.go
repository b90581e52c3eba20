// Package app wires configuration, storage, domain services and the HTTP
// server of the billing API.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/atelier-billing/internal/domain/bill"
	"github.com/xenking/atelier-billing/internal/domain/customer"
	"github.com/xenking/atelier-billing/internal/handler"
	"github.com/xenking/atelier-billing/internal/storage/postgres"
	"github.com/xenking/atelier-billing/pkg/health"
	"github.com/xenking/atelier-billing/pkg/httpmiddleware"
)

const serviceName = "billing-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	taxRate, err := cfg.Billing.TaxRate()
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	discountRepo := postgres.NewDiscountRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	billRepo := postgres.NewBillRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	billService, err := bill.NewService(
		bill.Config{DefaultTaxRate: decimal.NewNullDecimal(taxRate)},
		productRepo, discountRepo, customerRepo, billRepo,
		m.MeterProvider().Meter("github.com/xenking/atelier-billing/internal/domain/bill"),
	)
	if err != nil {
		return errors.Wrap(err, "create bill service")
	}
	customerService := customer.NewService(customerRepo)

	h := handler.NewHandler(productRepo, discountRepo, customerService, billService)
	security := handler.NewSecurity(apikeyRepo, []byte(cfg.APIKeyPepper))

	r := chi.NewRouter()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/api", h.Routes(security,
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           httpmiddleware.Wrap(r, serverMiddlewares(ctx, lg, m.MeterProvider(), m.TracerProvider(), cfg)...),
	}

	healthSvc.SetReady(true)

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

// serverMiddlewares returns the outer middleware chain. The request logger is
// injected before Recovery so panics are logged with the request ID.
func serverMiddlewares(
	ctx context.Context,
	lg *zap.Logger,
	mp metric.MeterProvider,
	tp trace.TracerProvider,
	cfg *Config,
) []httpmiddleware.Middleware {
	return []httpmiddleware.Middleware{
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "X-API-Key", "api_key", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Location"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		}),
		httpmiddleware.Instrument(serviceName, mp, tp),
	}
}
