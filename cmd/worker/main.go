package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/app"
	"github.com/TorentoFlag/skin-vault/internal/clock"
	"github.com/TorentoFlag/skin-vault/internal/config"
	"github.com/TorentoFlag/skin-vault/internal/jobs"
	"github.com/TorentoFlag/skin-vault/internal/payment"
	"github.com/TorentoFlag/skin-vault/internal/storage/postgres"
	"github.com/TorentoFlag/skin-vault/internal/trade"
	"github.com/TorentoFlag/skin-vault/migrations"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load(logger)

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

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	clk := clock.NewSystem()
	orderRepo := postgres.NewOrderRepository(pool)
	itemRepo := postgres.NewItemRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	txnRepo := postgres.NewTransactionRepository(pool)
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.ClientURL, clk)
	agent := trade.NewGatewayClient(cfg.BotGatewayURL, cfg.BotGatewayToken)
	enqueuer := jobs.NewEnqueuer(asynqClient)

	paymentSvc := app.NewPaymentService(orderRepo, itemRepo, userRepo, txnRepo, gateway, enqueuer, clk, logger)
	fulfillSvc := app.NewFulfillmentService(orderRepo, itemRepo, paymentSvc, clk, logger)
	inventorySvc := app.NewInventoryService(agent, itemRepo, cfg.BotSteamID, logger)
	marketBase := cfg.MarketBaseURL
	if marketBase == "" {
		marketBase = app.DefaultMarketBase
	}
	marketSvc := app.NewMarketService(marketBase, itemRepo, logger)

	tradeWorker := jobs.NewTradeWorker(agent, fulfillSvc, enqueuer, clk, logger)
	monitorWorker := jobs.NewMonitorWorker(agent, fulfillSvc, enqueuer, clk, logger)
	inventoryWorker := jobs.NewInventorySyncWorker(inventorySvc, logger)
	marketWorker := jobs.NewMarketSyncWorker(marketSvc, logger)

	tradeServer := asynq.NewServer(redisOpt, jobs.TradeServerConfig(jobs.NewTradeErrorHandler(fulfillSvc, logger)))
	generalServer := asynq.NewServer(redisOpt, jobs.GeneralServerConfig())

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(jobs.InventorySyncCron,
		asynq.NewTask(jobs.TypeInventorySync, nil),
		asynq.Queue(jobs.QueueInventorySync),
		asynq.TaskID(jobs.InventorySyncScheduleID),
	); err != nil {
		logger.Error("register inventory sync schedule", "err", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register(jobs.MarketSyncCron,
		asynq.NewTask(jobs.TypeMarketSync, nil),
		asynq.Queue(jobs.QueueMarketSync),
		asynq.TaskID(jobs.MarketSyncScheduleID),
	); err != nil {
		logger.Error("register market sync schedule", "err", err)
		os.Exit(1)
	}

	if err := tradeServer.Start(jobs.NewTradeMux(tradeWorker)); err != nil {
		logger.Error("start trade server", "err", err)
		os.Exit(1)
	}
	if err := generalServer.Start(jobs.NewGeneralMux(monitorWorker, inventoryWorker, marketWorker)); err != nil {
		logger.Error("start general server", "err", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("start scheduler", "err", err)
		os.Exit(1)
	}

	// Warm the catalog without waiting for the first scheduled run.
	if err := enqueuer.EnqueueMarketSyncNow(startupCtx); err != nil {
		logger.Warn("initial market sync enqueue failed", "err", err)
	}

	logger.Info("worker started",
		"trade_queue", jobs.QueueTrade,
		"monitor_queue", jobs.QueueTradeMonitor,
	)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	logger.Info("shutdown signal received, stopping workers")
	scheduler.Shutdown()
	tradeServer.Shutdown()
	generalServer.Shutdown()
	logger.Info("workers stopped")
}
