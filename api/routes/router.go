package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davidkaranja/fundilink-backend/api/controllers"
	"github.com/davidkaranja/fundilink-backend/api/middleware"
	"github.com/davidkaranja/fundilink-backend/internal/commission"
	"github.com/davidkaranja/fundilink-backend/internal/earnings"
	"github.com/davidkaranja/fundilink-backend/internal/escrow"
	"github.com/davidkaranja/fundilink-backend/internal/wallet"
	"github.com/davidkaranja/fundilink-backend/internal/withdrawals"
	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/db"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          db.Pinger
	Redis       *redis.Client
	Wallets     wallet.Service
	Earnings    earnings.Service
	Escrow      escrow.Service
	Withdrawals withdrawals.Service
	Commission  commission.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	// A typed nil *redis.Client must not reach the middleware as a
	// non-nil interface.
	var idemStore redis.IdempotencyStore
	var redisPinger redis.Pinger
	if deps.Redis != nil {
		idemStore = deps.Redis
		redisPinger = deps.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, redisPinger))
	})

	apiPolicy := middleware.NewRateLimitPolicy(
		"api",
		cfg.RateLimit.Window,
		cfg.RateLimit.PerUserLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.RateLimit(apiPolicy, deps.Redis, logg))
		}
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.GetWallet(deps.Wallets, logg))
			r.Get("/transactions", controllers.ListWalletTransactions(deps.Wallets, logg))
		})

		r.Route("/earnings", func(r chi.Router) {
			r.Get("/summary", controllers.EarningsSummary(deps.Earnings, logg))
			r.Get("/report", controllers.EarningsReport(deps.Earnings, logg))
			r.Get("/breakdown", controllers.EarningsBreakdown(deps.Earnings, logg))
			r.Get("/estimate", controllers.EarningsEstimate(deps.Earnings, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/bookings", controllers.PayBooking(deps.Escrow, logg))
			r.Post("/bookings/{bookingID}/confirm", controllers.ConfirmBookingPayment(deps.Escrow, logg))
			r.Get("/bookings/{bookingID}", controllers.GetBookingPayment(deps.Escrow, logg))
			r.Get("/holds", controllers.ListPaymentHolds(deps.Escrow, logg))
		})

		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/", controllers.RequestWithdrawal(deps.Withdrawals, logg))
			r.Get("/", controllers.ListWithdrawals(deps.Withdrawals, logg))
			r.Get("/{withdrawalID}", controllers.GetWithdrawal(deps.Withdrawals, logg))
			r.Post("/{withdrawalID}/cancel", controllers.CancelWithdrawal(deps.Withdrawals, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))

			r.Route("/commission", func(r chi.Router) {
				r.Get("/", controllers.GetCommissionSchedule(deps.Commission, logg))
				r.Get("/history", controllers.CommissionHistory(deps.Commission, logg))
				r.Put("/", controllers.UpdateCommissionSchedule(deps.Commission, logg))
			})

			r.Route("/withdrawals", func(r chi.Router) {
				r.Post("/{withdrawalID}/approve", controllers.ApproveWithdrawal(deps.Withdrawals, logg))
				r.Post("/{withdrawalID}/reject", controllers.RejectWithdrawal(deps.Withdrawals, logg))
			})
		})
	})

	return r
}
