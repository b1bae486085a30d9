// Package jobs is the durable, retryable task pipeline carrying order side
// effects between process boundaries. Queues are redis-backed with
// at-least-once delivery; every handler tolerates duplicate runs.
package jobs

import (
	"time"

	"github.com/hibiken/asynq"
)

// Queue names. Trade execution is serialized to a single worker globally
// so no two processes act on the bot's inventory at once; monitoring is
// read-mostly and runs with bounded parallelism.
const (
	QueueTrade         = "trade"
	QueueTradeMonitor  = "trade-monitor"
	QueueInventorySync = "inventory-sync"
	QueueMarketSync    = "market-sync"
)

// Task type names.
const (
	TypeTradeSend     = "trade:send"
	TypeTradeMonitor  = "trade:monitor"
	TypeInventorySync = "inventory:sync"
	TypeMarketSync    = "market:sync"
)

// Stable schedule ids so re-registering the periodic jobs does not
// duplicate them.
const (
	InventorySyncScheduleID = "inventory-sync-repeatable"
	MarketSyncScheduleID    = "market-sync-repeatable"
)

const (
	tradeMaxRetry     = 3
	monitorMaxRetry   = 3
	tradeRetryBase    = 5 * time.Second
	InventorySyncCron = "@every 15m"
	MarketSyncCron    = "@every 10m"
)

// MonitorPayload re-polls one in-flight transfer. EnqueuedAt is carried
// explicitly so the timeout budget is measured from when monitoring began,
// independent of queue scheduling jitter.
type MonitorPayload struct {
	OrderID      string    `json:"order_id"`
	TradeOfferID string    `json:"trade_offer_id"`
	UserID       string    `json:"user_id"`
	ItemIDs      []string  `json:"item_ids"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// TradeRetryDelay backs off exponentially from 5s between trade attempts.
func TradeRetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return tradeRetryBase << n
}
