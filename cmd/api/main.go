package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/piatahub/piata-backend/api/routes"
	"github.com/piatahub/piata-backend/internal/approvals"
	"github.com/piatahub/piata-backend/internal/invoices"
	"github.com/piatahub/piata-backend/internal/ledger"
	"github.com/piatahub/piata-backend/internal/orders"
	"github.com/piatahub/piata-backend/internal/payouts"
	"github.com/piatahub/piata-backend/internal/refunds"
	"github.com/piatahub/piata-backend/internal/shipping"
	"github.com/piatahub/piata-backend/pkg/config"
	"github.com/piatahub/piata-backend/pkg/db"
	"github.com/piatahub/piata-backend/pkg/invoicing"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/metrics"
	"github.com/piatahub/piata-backend/pkg/migrate"
	"github.com/piatahub/piata-backend/pkg/payment"
	"github.com/piatahub/piata-backend/pkg/ratelimit"
	"github.com/piatahub/piata-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paymentProvider, err := payment.NewFromConfig(cfg.Payment, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment provider", err)
		os.Exit(1)
	}

	invoicingProvider, err := invoicing.NewFromConfig(cfg.Invoicing, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create invoicing provider", err)
		os.Exit(1)
	}

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	adminLimiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.AdminLimit, cfg.RateLimit.AdminWindow)

	auditService, err := approvals.NewService(approvals.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create approvals service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), cfg.Settlement.ProcessingStuckAfter)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	shippingService, err := shipping.NewService(shipping.NewRepository(dbClient.DB()), dbClient, auditService)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	payoutService, err := payouts.NewService(
		payouts.NewRepository(dbClient.DB()),
		dbClient,
		ledgerService,
		auditService,
		paymentProvider,
		settlementMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	refundService, err := refunds.NewService(
		refunds.NewRepository(dbClient.DB()),
		dbClient,
		ledgerService,
		auditService,
		paymentProvider,
		settlementMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}

	invoiceService, err := invoices.NewService(
		invoices.NewRepository(dbClient.DB()),
		auditService,
		invoicingProvider,
		settlementMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create invoices service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		ledgerService,
		shippingService,
		payoutService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Logger:       logg,
			DBPinger:     dbClient,
			RedisPinger:  redisClient,
			AdminLimiter: adminLimiter,
			Ledger:       ledgerService,
			Payouts:      payoutService,
			Refunds:      refundService,
			Orders:       orderService,
			Shipping:     shippingService,
			Invoices:     invoiceService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
