package jobs

import (
	"github.com/hibiken/asynq"
)

// NewTradeMux routes the trade send queue. It runs on its own server with
// concurrency 1 so the bot never juggles two offers at once.
func NewTradeMux(trades *TradeWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeTradeSend, trades)
	return mux
}

// NewGeneralMux routes everything that tolerates parallelism: offer
// monitors and the periodic catalog syncs.
func NewGeneralMux(monitors *MonitorWorker, inventory *InventorySyncWorker, market *MarketSyncWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeTradeMonitor, monitors)
	mux.Handle(TypeInventorySync, inventory)
	mux.Handle(TypeMarketSync, market)
	return mux
}

// TradeServerConfig serializes offer sending and applies the exponential
// backoff schedule to failed sends.
func TradeServerConfig(errHandler asynq.ErrorHandlerFunc) asynq.Config {
	return asynq.Config{
		Concurrency:    1,
		Queues:         map[string]int{QueueTrade: 1},
		RetryDelayFunc: TradeRetryDelay,
		ErrorHandler:   errHandler,
	}
}

// GeneralServerConfig covers monitors and syncs.
func GeneralServerConfig() asynq.Config {
	return asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueTradeMonitor:  3,
			QueueInventorySync: 1,
			QueueMarketSync:    1,
		},
	}
}
