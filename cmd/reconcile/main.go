package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/piatahub/piata-backend/internal/ledger"
	"github.com/piatahub/piata-backend/pkg/config"
	"github.com/piatahub/piata-backend/pkg/db"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/metrics"
)

// reconcile runs the ledger integrity sweep once and exits non-zero when
// issues are found. Intended for cron or a one-off operator run.
func main() {
	logg := logger.New(logger.Options{ServiceName: "reconcile"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "reconcile",
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

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), cfg.Settlement.ProcessingStuckAfter)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)

	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "running ledger integrity sweep")

	report, err := ledgerService.VerifyIntegrity(ctx)
	if err != nil {
		logg.Error(ctx, "integrity sweep failed", err)
		os.Exit(1)
	}

	settlementMetrics.SetIntegrityReport(len(report.Issues), report.NetCents)

	for _, issue := range report.Issues {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"kind":      issue.Kind,
			"entity_id": issue.EntityID,
			"detail":    issue.Detail,
		}), "ledger integrity issue")
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"net_cents": report.NetCents,
		"issues":    len(report.Issues),
	}), "ledger integrity sweep complete")

	if len(report.Issues) > 0 {
		os.Exit(1)
	}
}
