package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyberbrief/cyberbrief-backend/api/controllers"
	subscriptioncontrollers "github.com/cyberbrief/cyberbrief-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/cyberbrief/cyberbrief-backend/api/controllers/webhooks"
	"github.com/cyberbrief/cyberbrief-backend/api/middleware"
	subscriptionsvc "github.com/cyberbrief/cyberbrief-backend/internal/subscriptions"
	"github.com/cyberbrief/cyberbrief-backend/pkg/config"
	"github.com/cyberbrief/cyberbrief-backend/pkg/logger"
	"github.com/cyberbrief/cyberbrief-backend/pkg/metrics"
	"github.com/cyberbrief/cyberbrief-backend/pkg/redis"
)

// Redis is the subset of the redis client the HTTP layer depends on.
type Redis interface {
	redis.IdempotencyStore
	redis.RateLimiter
	redis.Pinger
}

// Dependencies groups everything the router wires into handlers.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    Redis
	Gatherer prometheus.Gatherer

	HTTPMetrics    *metrics.HTTPMetrics
	PaymentMetrics *metrics.PaymentMetrics

	Payments      controllers.PaymentsService
	WalletWebhook webhookcontrollers.WalletWebhookService
	Subscriptions subscriptionsvc.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.Site.Origins()),
	)

	paymentPolicy := middleware.NewRateLimitPolicy(
		"payments",
		cfg.RateLimit.PaymentWindow,
		cfg.RateLimit.PaymentIPLimit,
		cfg.RateLimit.PaymentEmailLimit,
	)

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/wallet", webhookcontrollers.WalletWebhook(deps.WalletWebhook, cfg.Webhook.MaxBodyKB<<10, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Get("/{reference}/status", controllers.PaymentStatus(deps.Payments, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			if deps.Redis != nil {
				r.Use(middleware.RateLimit(paymentPolicy, deps.Redis, deps.PaymentMetrics, logg))
				r.Use(middleware.Idempotency(deps.Redis, middleware.DefaultIdempotencyTTL, logg))
			}
			r.Post("/", controllers.CreatePayment(deps.Payments, logg))
		})
	})

	r.Route("/api/v1/subscriptions", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/me", subscriptioncontrollers.Me(deps.Subscriptions, logg))
	})

	return r
}
