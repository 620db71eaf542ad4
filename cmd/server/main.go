package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/adapter/handler"
	"github.com/rl1809/cart-checkout/internal/adapter/storage"
	"github.com/rl1809/cart-checkout/internal/config"
	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/obs"
)

const (
	breakerFailures = 5
	breakerOpenFor  = 10 * time.Second
)

// demoCatalog is loaded when SEED_CATALOG is set.
var demoCatalog = []domain.Product{
	{ID: 1, Name: "Mechanical Keyboard", Price: decimal.RequireFromString("89.90"), Stock: 100, Active: true},
	{ID: 2, Name: "USB-C Cable", Price: decimal.RequireFromString("9.50"), Stock: 500, Active: true},
	{ID: 3, Name: "Limited Edition Mouse", Price: decimal.RequireFromString("49.00"), Stock: 20, Active: true},
}

func main() {
	cfg := config.Load()
	obs.InitLogger(cfg.LogLevel)
	logger := obs.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RunMigrations {
		if err := storage.RunMigrations(cfg.MySQLDSN); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Error("failed to open mysql", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQLConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to ping mysql", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	// Redis is only a cache and an idempotency guard; start degraded rather than fail.
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable at startup", "addr", cfg.RedisAddr, "error", err)
	} else {
		logger.Info("connected to redis")
	}

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.CartCacheTTL, cfg.IdempotencyTTL)
	cartCache := storage.NewBreakerCartCache(redisAdapter, breakerFailures, breakerOpenFor, logger)

	if cfg.SeedCatalog {
		for _, p := range demoCatalog {
			if _, err := mysqlAdapter.Catalog().UpsertProduct(ctx, p); err != nil {
				logger.Error("failed to seed catalog", "product_id", p.ID, "error", err)
				os.Exit(1)
			}
		}
		logger.Info("seeded catalog", "products", len(demoCatalog))
	}

	metrics := obs.NewMetrics(prometheus.DefaultRegisterer)
	cartService := service.NewCartService(mysqlAdapter, cartCache, logger)
	checkoutService := service.NewCheckoutService(mysqlAdapter, cartCache, redisAdapter, metrics, logger)

	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(cartService, checkoutService, logger))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.GRPCAddr, "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	httpHandler := handler.NewHTTPHandler(cartService, checkoutService, logger)
	routes := httpHandler.Routes(handler.RouterConfig{
		Metrics:        metrics,
		MetricsHandler: obs.Handler(prometheus.DefaultGatherer),
		RequestTimeout: cfg.RequestTimeout,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           routes,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
