package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/app"
	"github.com/TorentoFlag/skin-vault/internal/clock"
	"github.com/TorentoFlag/skin-vault/internal/config"
	"github.com/TorentoFlag/skin-vault/internal/jobs"
	"github.com/TorentoFlag/skin-vault/internal/lock"
	"github.com/TorentoFlag/skin-vault/internal/payment"
	"github.com/TorentoFlag/skin-vault/internal/storage/postgres"
	transporthttp "github.com/TorentoFlag/skin-vault/internal/transport/http"
	"github.com/TorentoFlag/skin-vault/migrations"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load(logger)
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to db", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Error("db ping", "err", err)
		os.Exit(1)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Error("apply migrations", "err", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(startupCtx).Err(); err != nil {
		logger.Error("redis ping", "err", err)
		os.Exit(1)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer asynqClient.Close()

	clk := clock.NewSystem()
	orderRepo := postgres.NewOrderRepository(pool)
	itemRepo := postgres.NewItemRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	txnRepo := postgres.NewTransactionRepository(pool)
	locker := lock.NewService(redisClient)
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.ClientURL, clk)
	enqueuer := jobs.NewEnqueuer(asynqClient)

	orderSvc := app.NewOrderService(orderRepo, itemRepo, userRepo, txnRepo, locker, gateway, clk, logger)
	paymentSvc := app.NewPaymentService(orderRepo, itemRepo, userRepo, txnRepo, gateway, enqueuer, clk, logger)

	jwtSecret := []byte(cfg.JWTSecret)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/orders", transporthttp.RequireAuth(jwtSecret, transporthttp.HandleOrders(orderSvc)))
	mux.Handle("/orders/", transporthttp.RequireAuth(jwtSecret, transporthttp.HandleOrderByID(orderSvc)))
	mux.Handle("/webhooks/stripe", transporthttp.HandleStripeWebhook(gateway, paymentSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	logger.Info("api listening", "port", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", "err", err)
	}
	logger.Info("server stopped")
}
