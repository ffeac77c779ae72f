package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	paymentwebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// RedisStore backs idempotent replays and rate limiting.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

type webhookDispatcher interface {
	Submit(ctx context.Context, n paymentwebhook.Notification) error
}

// Dependencies are the collaborators the HTTP surface adapts.
type Dependencies struct {
	Readiness      map[string]controllers.Pinger
	Redis          RedisStore
	Gatherer       prometheus.Gatherer
	Cart           cart.Service
	Checkout       checkoutsvc.Service
	Orders         orders.Service
	Reconciler     controllers.RedirectReconciler
	Stock          controllers.StockSubscriber
	Webhooks       webhookDispatcher
	Verifier       paymentwebhook.Verifier
	PaymentMetrics *metrics.PaymentMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	writePolicy := middleware.NewRateLimitPolicy("storefront-write", cfg.RateLimit.Window, cfg.RateLimit.CheckoutLimit)
	readPolicy := middleware.NewRateLimitPolicy("storefront-read", cfg.RateLimit.Window, cfg.RateLimit.ReadLimit)
	idempotent := middleware.Idempotency(deps.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/api/v1/webhooks/payments", webhookcontrollers.PaymentNotification(
		deps.Webhooks, deps.Verifier, cfg.Gateway.NotificationURL, deps.PaymentMetrics, logg,
	))

	r.Route("/checkout", func(r chi.Router) {
		r.Get("/success", controllers.CheckoutReturn(enums.ResultPageSuccess, deps.Reconciler, logg))
		r.Get("/pending", controllers.CheckoutReturn(enums.ResultPagePending, deps.Reconciler, logg))
		r.Get("/failure", controllers.CheckoutReturn(enums.ResultPageFailure, deps.Reconciler, logg))
	})

	r.Route("/api/v1/businesses/{businessId}", func(r chi.Router) {
		r.With(middleware.RateLimit(readPolicy, deps.Redis, logg)).Post("/cart/validate", cartcontrollers.Validate(deps.Cart, logg))
		r.With(middleware.RateLimit(writePolicy, deps.Redis, logg), idempotent).Post("/checkout", controllers.Checkout(deps.Checkout, logg))
		r.With(middleware.RateLimit(readPolicy, deps.Redis, logg)).Get("/orders/{orderId}/status", ordercontrollers.Status(deps.Orders, logg))
		r.Get("/catalog/items/{itemId}/stock", controllers.StockStream(deps.Stock, 0, logg))
	})

	r.Route("/api/admin/v1/businesses/{businessId}", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, logg))
		r.Use(middleware.RequireBusinessScope(logg))
		r.With(idempotent).Post("/orders/{orderId}/payment-events", ordercontrollers.AdminPaymentEvent(deps.Orders, logg))
	})

	return r
}
