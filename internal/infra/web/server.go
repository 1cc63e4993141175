package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"carservice-commerce/internal/application"
	red "carservice-commerce/internal/infra/redis"
	"carservice-commerce/internal/usecase"
)

// Options tunes the HTTP surface.
type Options struct {
	RequestTimeout     time.Duration
	WalletOpsPerMinute int
	Limiter            Limiter // nil disables rate limiting
}

// Server exposes the commerce facade under /api/v1.
type Server struct {
	facade *application.CommerceFacade
	auth   *AuthManager
	users  usecase.UserUseCase
	opts   Options
	log    *zerolog.Logger
}

func NewServer(facade *application.CommerceFacade, auth *AuthManager, users usecase.UserUseCase, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Server{facade: facade, auth: auth, users: users, opts: opts, log: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		Recover(s.log),
		TraceID(),
		RequestLog(s.log),
		Timeout(s.opts.RequestTimeout),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(s.auth, s.users, s.log))

		r.Get("/plans", s.listPlans)

		r.Post("/subscriptions", s.paySubscription)
		r.Get("/subscriptions/active", s.activeSubscription)
		r.Delete("/subscriptions/{id}", s.cancelSubscription)
		r.Post("/subscriptions/{id}/renew", s.renewSubscription)
		r.Delete("/admin/subscriptions/{id}", s.deleteSubscription)

		r.Post("/categories", s.createCategory)
		r.Patch("/categories/{id}", s.updateCategory)
		r.Delete("/categories/{id}", s.deleteCategory)
		r.Get("/categories/{id}/ancestors", s.categoryAncestors)

		r.Post("/discounts", s.createDiscount)
		r.Patch("/discounts/{id}", s.updateDiscount)
		r.Get("/discounts/{code}/quote", s.quoteDiscount)
		r.Post("/discounts/{code}/redeem", s.redeemDiscount)
		r.Post("/subscription-discounts", s.createSubscriptionDiscount)
		r.Patch("/subscription-discounts/{id}", s.updateSubscriptionDiscount)

		r.Get("/wallet", s.getWallet)
		r.Get("/wallet/transactions", s.listTransactions)
		r.With(RateLimit(s.opts.Limiter, "deposit", s.opts.WalletOpsPerMinute, red.WalletOpKey, s.log)).
			Post("/wallet/deposit", s.deposit)
		r.With(RateLimit(s.opts.Limiter, "withdraw", s.opts.WalletOpsPerMinute, red.WalletOpKey, s.log)).
			Post("/wallet/withdraw", s.withdraw)
		r.Post("/transactions/{id}/refund", s.refundTransaction)
	})
	return r
}
