package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piatahub/piata-backend/api/controllers"
	"github.com/piatahub/piata-backend/api/middleware"
	"github.com/piatahub/piata-backend/internal/invoices"
	"github.com/piatahub/piata-backend/internal/ledger"
	"github.com/piatahub/piata-backend/internal/orders"
	"github.com/piatahub/piata-backend/internal/payouts"
	"github.com/piatahub/piata-backend/internal/refunds"
	"github.com/piatahub/piata-backend/internal/shipping"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/ratelimit"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Logger       *logger.Logger
	DBPinger     pinger
	RedisPinger  pinger
	AdminLimiter ratelimit.Limiter

	Ledger   ledger.Service
	Payouts  payouts.Service
	Refunds  refunds.Service
	Orders   orders.Service
	Shipping shipping.Service
	Invoices invoices.Service

	MetricsHandler http.Handler
}

// NewRouter assembles the HTTP surface. Admin money routes sit behind the
// actor requirement and the rate limiter.
func NewRouter(deps Deps) http.Handler {
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/health/live", controllers.HealthLive())
	r.Get("/health/ready", controllers.HealthReady(deps.DBPinger, deps.RedisPinger, logg))

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", controllers.OrderPlace(deps.Orders, logg))
		r.Post("/orders/{orderID}/delivered", controllers.OrderDelivered(deps.Orders, logg))
		r.Get("/orders/{orderID}", controllers.OrderGet(deps.Orders, logg))
		r.Get("/orders", controllers.OrderList(deps.Orders, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.RequireActor(logg),
			middleware.RateLimit(deps.AdminLimiter, logg),
		)

		r.Post("/payouts", controllers.PayoutCreate(deps.Payouts, logg))
		r.Post("/payouts/{payoutID}/approve", controllers.PayoutApprove(deps.Payouts, logg))
		r.Post("/payouts/{payoutID}/run", controllers.PayoutRun(deps.Payouts, logg))
		r.Get("/payouts/{payoutID}", controllers.PayoutGet(deps.Payouts, logg))
		r.Get("/payouts", controllers.PayoutList(deps.Payouts, logg))

		r.Post("/refunds", controllers.RefundRequest(deps.Refunds, logg))
		r.Post("/refunds/{refundID}/run", controllers.RefundRun(deps.Refunds, logg))
		r.Get("/refunds/{refundID}", controllers.RefundGet(deps.Refunds, logg))
		r.Get("/refunds", controllers.RefundList(deps.Refunds, logg))
		r.Get("/orders/{orderID}/refundable", controllers.RefundableBalance(deps.Refunds, logg))

		r.Get("/ledger", controllers.LedgerList(deps.Ledger, logg))
		r.Get("/ledger/integrity", controllers.LedgerIntegrity(deps.Ledger, logg))

		r.Get("/exports/ledger.csv", controllers.ExportLedgerCSV(deps.Ledger, logg))
		r.Get("/exports/payouts.csv", controllers.ExportPayoutsCSV(deps.Payouts, logg))
		r.Get("/exports/refunds.csv", controllers.ExportRefundsCSV(deps.Refunds, logg))

		r.Get("/shipping-rules", controllers.ShippingRulesActive(deps.Shipping, logg))
		r.Put("/shipping-rules", controllers.ShippingRulesPublish(deps.Shipping, logg))
		r.Post("/shipping-rules/preview", controllers.ShippingRulesPreview(deps.Shipping, logg))
		r.Get("/shipping-rules/history", controllers.ShippingRulesHistory(deps.Shipping, logg))

		r.Post("/invoices/{orderID}/{invoiceType}", controllers.InvoiceIssue(deps.Invoices, logg))
		r.Post("/invoices/{orderID}/{invoiceType}/regenerate", controllers.InvoiceRegenerate(deps.Invoices, logg))
		r.Get("/invoices/{orderID}", controllers.InvoiceListByOrder(deps.Invoices, logg))
	})

	return r
}
