package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/cyberbrief/cyberbrief-backend/api/routes"
	"github.com/cyberbrief/cyberbrief-backend/internal/coupons"
	"github.com/cyberbrief/cyberbrief-backend/internal/payments"
	"github.com/cyberbrief/cyberbrief-backend/internal/subscriptions"
	walletwebhook "github.com/cyberbrief/cyberbrief-backend/internal/webhooks/wallet"
	"github.com/cyberbrief/cyberbrief-backend/pkg/config"
	"github.com/cyberbrief/cyberbrief-backend/pkg/db"
	"github.com/cyberbrief/cyberbrief-backend/pkg/instance"
	"github.com/cyberbrief/cyberbrief-backend/pkg/logger"
	"github.com/cyberbrief/cyberbrief-backend/pkg/metrics"
	"github.com/cyberbrief/cyberbrief-backend/pkg/migrate"
	"github.com/cyberbrief/cyberbrief-backend/pkg/pubsub"
	"github.com/cyberbrief/cyberbrief-backend/pkg/redis"
	"github.com/cyberbrief/cyberbrief-backend/pkg/wallet"
)

const shutdownTimeout = 15 * time.Second

type closer interface {
	Close() error
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var resources []closer
	defer func() {
		var errs error
		for i := len(resources) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, resources[i].Close())
		}
		if errs != nil {
			logg.Error(context.Background(), "error closing resources", errs)
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	resources = append(resources, dbClient)

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	resources = append(resources, redisClient)

	walletClient, err := wallet.NewClient(cfg.Wallet)
	requireResource(ctx, logg, "wallet client", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	couponService, err := coupons.NewService(coupons.ServiceParams{
		Repo: coupons.NewRepository(dbClient.DB()),
		DB:   dbClient,
	})
	requireResource(ctx, logg, "coupon service", err)

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:   subscriptions.NewRepository(dbClient.DB()),
		Period: cfg.Subscription.Period(),
	})
	requireResource(ctx, logg, "subscription service", err)

	paymentStore := payments.NewStore(dbClient.DB())
	paymentService, err := payments.NewService(payments.ServiceParams{
		Store:       paymentStore,
		Provider:    walletClient,
		Coupons:     couponService,
		RedirectURL: cfg.Site.RedirectURL,
		Metrics:     paymentMetrics,
		Logger:      logg,
	})
	requireResource(ctx, logg, "payment service", err)

	guard, err := walletwebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.ReplayTTL, "wallet-webhook")
	requireResource(ctx, logg, "webhook idempotency guard", err)

	webhookParams := walletwebhook.ServiceParams{
		Store:             paymentStore,
		TransactionRunner: dbClient,
		Entitlements:      subscriptionService,
		Guard:             guard,
		APIKey:            walletClient.APIKey(),
		APISecret:         walletClient.APISecret(),
		Metrics:           paymentMetrics,
		Logger:            logg,
	}
	if cfg.PubSub.Enabled() {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		requireResource(ctx, logg, "pubsub", err)
		resources = append(resources, pubsubClient)
		webhookParams.Publisher = pubsubClient
	}
	webhookService, err := walletwebhook.NewService(webhookParams)
	requireResource(ctx, logg, "wallet webhook service", err)

	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Gatherer:       registry,
			HTTPMetrics:    metrics.NewHTTPMetrics(registry),
			PaymentMetrics: paymentMetrics,
			Payments:       paymentService,
			WalletWebhook:  webhookService,
			Subscriptions:  subscriptionService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(serverCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
