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

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/gateway"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	paymentwebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/secrets"
)

const shutdownTimeout = 20 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)
	stockMetrics := metrics.NewStockMetrics(registry)

	stockRepo := stock.NewRepository(dbClient.DB())
	watcher, err := stock.NewRedisWatcher(stock.RedisWatcherParams{
		Feed:   redisClient,
		Repo:   stockRepo,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create stock watcher", err)
		os.Exit(1)
	}
	hub, err := stock.NewHub(stock.HubParams{Watcher: watcher, Logger: logg, Metrics: stockMetrics})
	if err != nil {
		logg.Error(ctx, "failed to create stock hub", err)
		os.Exit(1)
	}
	// Hub watches read the catalog until the hub closes.
	if err := dbClient.Acquire(); err != nil {
		logg.Error(ctx, "failed to acquire database for stock hub", err)
		os.Exit(1)
	}
	defer func() {
		if err := hub.Close(); err != nil {
			logg.Error(context.Background(), "error closing stock hub", err)
		}
		if err := dbClient.Release(); err != nil {
			logg.Error(context.Background(), "error releasing database", err)
		}
	}()
	ledger, err := stock.NewLedger(stockRepo, hub)
	if err != nil {
		logg.Error(ctx, "failed to create stock ledger", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(ledger, cfg.Checkout.LowStockThreshold)
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Outbox:  outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:  logg,
		Metrics: paymentMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	tokens, err := secrets.NewStoreFromConfig(ctx, cfg, redisClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create credentials store", err)
		os.Exit(1)
	}
	gatewayClient, err := gateway.NewFromConfig(ctx, cfg, tokens, paymentMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create payment gateway client", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Cart:            cartService,
		Orders:          ordersService,
		Gateway:         gatewayClient,
		Config:          cfg.Checkout,
		NotificationURL: cfg.Gateway.NotificationURL,
		Logger:          logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	markers, err := idempotency.NewManager(redisClient, cfg.Webhook.AppliedMarkerTTL)
	if err != nil {
		logg.Error(ctx, "failed to create applied marker store", err)
		os.Exit(1)
	}
	webhookService, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Gateway: gatewayClient,
		Orders:  ordersService,
		Markers: markers,
		Logger:  logg,
		Metrics: paymentMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment webhook service", err)
		os.Exit(1)
	}
	dispatcher, err := paymentwebhook.NewDispatcher(paymentwebhook.DispatcherParams{
		Processor: webhookService,
		Workers:   cfg.Webhook.Workers,
		Backlog:   cfg.Webhook.Backlog,
		Timeout:   cfg.Webhook.ProcessingTimeout,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create webhook dispatcher", err)
		os.Exit(1)
	}

	policy, err := config.ParseHintPolicy(cfg.Checkout.RedirectHintPolicy)
	if err != nil {
		logg.Error(ctx, "invalid redirect hint policy", err)
		os.Exit(1)
	}
	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Orders:      ordersService,
		Gateway:     gatewayClient,
		Policy:      policy,
		BackURLBase: cfg.Checkout.BackURLBase,
		Logger:      logg,
		Metrics:     paymentMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create redirect reconciler", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Readiness: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Redis:          redisClient,
		Gatherer:       registry,
		Cart:           cartService,
		Checkout:       checkoutService,
		Orders:         ordersService,
		Reconciler:     reconciler,
		Stock:          ledger,
		Webhooks:       dispatcher,
		Verifier:       paymentwebhook.VerifierFor(cfg),
		PaymentMetrics: paymentMetrics,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"provider": cfg.Gateway.Provider,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "error shutting down http server", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "webhook dispatcher did not drain", err)
	}
}
