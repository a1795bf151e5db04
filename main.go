package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appcart "github.com/shippingkart/backend/internal/application/cart"
	appcheckout "github.com/shippingkart/backend/internal/application/checkout"
	appinventory "github.com/shippingkart/backend/internal/application/inventory"
	apporder "github.com/shippingkart/backend/internal/application/order"
	"github.com/shippingkart/backend/internal/config"
	domcart "github.com/shippingkart/backend/internal/domain/cart"
	domcheckout "github.com/shippingkart/backend/internal/domain/checkout"
	domorder "github.com/shippingkart/backend/internal/domain/order"
	"github.com/shippingkart/backend/internal/domain/product"
	"github.com/shippingkart/backend/internal/infrastructure/id"
	"github.com/shippingkart/backend/internal/infrastructure/kafka"
	"github.com/shippingkart/backend/internal/infrastructure/memory"
	"github.com/shippingkart/backend/internal/infrastructure/outbox"
	paymentinfra "github.com/shippingkart/backend/internal/infrastructure/payment"
	"github.com/shippingkart/backend/internal/infrastructure/postgres"
	"github.com/shippingkart/backend/internal/infrastructure/redisx"
	"github.com/shippingkart/backend/internal/pkg/logging"
	httptransport "github.com/shippingkart/backend/internal/presentation/http"
)

func main() {
	cfg := config.Load()

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checkoutMetrics := appcheckout.Metrics{
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_attempts_total",
				Help: "Total checkout attempts by outcome.",
			},
			[]string{"outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkout_duration_seconds",
				Help:    "Duration of checkout execution in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
	httpMetrics := httptransport.HTTPMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	prometheus.MustRegister(
		checkoutMetrics.Attempts, checkoutMetrics.Duration,
		httpMetrics.Requests, httpMetrics.Duration,
	)

	var (
		products product.Repository
		carts    domcart.Repository
		orders   domorder.Repository
		attempts domcheckout.Repository
	)
	if cfg.PostgresDSN != "" {
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres_connect_failed", zap.Error(err))
		}
		defer pool.Close()
		products = postgres.NewProductRepository(pool)
		carts = postgres.NewCartRepository(pool)
		orders = postgres.NewOrderRepository(pool)
		attempts = postgres.NewAttemptRepository(pool)
		logger.Info("storage_ready", zap.String("backend", "postgres"))
	} else {
		products = memory.NewProductRepository()
		carts = memory.NewCartRepository()
		orders = memory.NewOrderRepository()
		attempts = memory.NewAttemptRepository()
		if cfg.SeedCatalog {
			seedCatalog(ctx, products, logger)
		}
		logger.Info("storage_ready", zap.String("backend", "memory"))
	}

	bus := outbox.NewBus(logger)
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 256, logger)
		producer.Start(ctx)
		kafka.NewForwarder(producer, cfg.ServiceName).Attach(bus)
		logger.Info("kafka_forwarder_attached",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	inventoryService := appinventory.NewService(products, cfg.LockWait)
	cartService := appcart.NewService(carts, inventoryService, cfg.LockWait)
	orderService := apporder.NewService(orders)

	checkoutService := appcheckout.NewService(
		cartService,
		inventoryService,
		products,
		orders,
		attempts,
		paymentinfra.NewVerdictProcessor(),
		id.NewUUIDGenerator(),
		bus,
		checkoutMetrics,
	).WithStaleAfter(cfg.AttemptStale)
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		checkoutService = checkoutService.WithTokenCache(redisx.NewAttemptCache(rdb, logger))
		logger.Info("attempt_cache_enabled", zap.String("addr", cfg.RedisAddr))
	}

	// Sweep stale in-flight attempts left behind by a crash.
	go func() {
		ticker := time.NewTicker(cfg.RecoverInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := checkoutService.Recover(ctx); err != nil {
					logger.Warn("checkout_recover_failed", zap.Error(err))
				} else if n > 0 {
					logger.Info("checkout_recovered", zap.Int("attempts", n))
				}
			}
		}
	}()

	handler := httptransport.NewHandler(cartService, checkoutService, orderService, products, logger, httpMetrics)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("http_server_start", zap.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		logger.Info("http_server_stopped")
	}
	if producer != nil {
		producer.WaitClosed()
	}
}

func seedCatalog(ctx context.Context, products product.Repository, logger *zap.Logger) {
	now := time.Now()
	demo := []*product.Product{
		{
			ID:          "prod-airmax-270",
			Name:        "Airmax 270",
			Description: "Lightweight running shoe with a full-length air unit.",
			Category:    "shoes",
			PriceCents:  129_99,
			Rating:      4.5,
			Images:      []string{"/images/airmax-270.jpg"},
			Stock:       25,
		},
		{
			ID:          "prod-canvas-tote",
			Name:        "Canvas Tote",
			Description: "Heavy-duty cotton tote with internal pocket.",
			Category:    "bags",
			PriceCents:  24_50,
			Rating:      4.1,
			Images:      []string{"/images/canvas-tote.jpg"},
			Stock:       100,
		},
		{
			ID:          "prod-trail-jacket",
			Name:        "Trail Jacket",
			Description: "Waterproof shell for wet-weather hikes.",
			Category:    "outdoor",
			PriceCents:  189_00,
			Rating:      4.8,
			Images:      []string{"/images/trail-jacket.jpg"},
			Stock:       12,
		},
		{
			ID:          "prod-espresso-mug",
			Name:        "Espresso Mug",
			Description: "Double-walled ceramic mug, 120ml.",
			Category:    "kitchen",
			PriceCents:  14_00,
			Rating:      3.9,
			Images:      []string{"/images/espresso-mug.jpg"},
			Stock:       0,
		},
	}
	for _, p := range demo {
		p.SoldOut = p.Stock <= 0
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := products.Save(ctx, p); err != nil {
			logger.Warn("seed_product_failed", zap.String("product_id", p.ID), zap.Error(err))
		}
	}
	logger.Info("catalog_seeded", zap.Int("products", len(demo)))
}
