package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

const marketSyncLimit = 200

// InventorySyncer refreshes the catalog from the bot's live inventory.
type InventorySyncer interface {
	SyncFromBot(ctx context.Context) error
}

// MarketSyncer pulls listings and prices from the public market.
type MarketSyncer interface {
	SyncFromMarket(ctx context.Context, limit int) (int, error)
}

type InventorySyncWorker struct {
	inventory InventorySyncer
	log       *slog.Logger
}

func NewInventorySyncWorker(inventory InventorySyncer, log *slog.Logger) *InventorySyncWorker {
	return &InventorySyncWorker{inventory: inventory, log: log}
}

func (w *InventorySyncWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	if err := w.inventory.SyncFromBot(ctx); err != nil {
		w.log.Error("inventory sync failed", "err", err)
		return err
	}
	w.log.Info("inventory sync finished")
	return nil
}

type MarketSyncWorker struct {
	market MarketSyncer
	log    *slog.Logger
}

func NewMarketSyncWorker(market MarketSyncer, log *slog.Logger) *MarketSyncWorker {
	return &MarketSyncWorker{market: market, log: log}
}

func (w *MarketSyncWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	synced, err := w.market.SyncFromMarket(ctx, marketSyncLimit)
	if err != nil {
		w.log.Error("market sync failed", "synced", synced, "err", err)
		return err
	}
	w.log.Info("market sync finished", "synced", synced)
	return nil
}
