package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/app"
	"github.com/TorentoFlag/skin-vault/internal/clock"
	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/TorentoFlag/skin-vault/internal/trade"
	"github.com/hibiken/asynq"
)

const monitorInitialDelay = 30 * time.Second

// Fulfillment is the slice of order operations the pipeline workers need.
type Fulfillment interface {
	Order(ctx context.Context, orderID string) (*domain.Order, error)
	MarkTradeSent(ctx context.Context, orderID, offerID string) (bool, error)
	CompleteOrder(ctx context.Context, orderID string) error
	FailOrder(ctx context.Context, orderID string, itemIDs []string, reason string) error
	CancelOrder(ctx context.Context, orderID string, itemIDs []string) error
}

// MonitorEnqueuer schedules transfer polls.
type MonitorEnqueuer interface {
	EnqueueMonitor(ctx context.Context, p MonitorPayload, delay time.Duration) error
}

// TradeWorker sends the peer-to-peer transfer for a paid order. Returned
// errors are transient by construction and trigger the queue's backoff;
// terminal business failures compensate in place and return nil so the
// queue does not retry a hopeless job.
type TradeWorker struct {
	agent    trade.Agent
	fulfill  Fulfillment
	monitors MonitorEnqueuer
	clock    clock.Clock
	log      *slog.Logger
}

func NewTradeWorker(agent trade.Agent, fulfill Fulfillment, monitors MonitorEnqueuer, clk clock.Clock, log *slog.Logger) *TradeWorker {
	return &TradeWorker{
		agent:    agent,
		fulfill:  fulfill,
		monitors: monitors,
		clock:    clk,
		log:      log,
	}
}

func (w *TradeWorker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p app.TradeJob
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode trade payload: %v: %w", err, asynq.SkipRetry)
	}

	w.log.Info("trade worker processing job", "order_id", p.OrderID)

	// Duplicate delivery guard: only a PAID order still needs a transfer.
	order, err := w.fulfill.Order(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if order == nil || order.Status != domain.OrderStatusPaid {
		// A retry can land here after an earlier run committed TRADE_SENT but
		// crashed before scheduling the monitor. The offer is live, so make
		// sure something is watching it.
		if order != nil && order.Status == domain.OrderStatusTradeSent && order.TradeOfferID != "" {
			monitor := MonitorPayload{
				OrderID:      p.OrderID,
				TradeOfferID: order.TradeOfferID,
				UserID:       p.UserID,
				ItemIDs:      p.ItemIDs,
				EnqueuedAt:   w.clock.Now(),
			}
			if err := w.monitors.EnqueueMonitor(ctx, monitor, monitorInitialDelay); err != nil {
				return err
			}
			w.log.Warn("trade already sent, monitor re-enqueued", "order_id", p.OrderID, "offer_id", order.TradeOfferID)
			return nil
		}
		w.log.Warn("trade job skipped, order not in paid status", "order_id", p.OrderID)
		return nil
	}

	ready, err := w.agent.Ready(ctx)
	if err != nil {
		return fmt.Errorf("bot readiness check: %w", err)
	}
	if !ready {
		return errors.New("bot is not ready")
	}

	if p.TradeURL == "" {
		// Not transient: retrying will not grow a delivery address.
		return w.fulfill.FailOrder(ctx, p.OrderID, p.ItemIDs, "user has no trade url")
	}

	inventory, err := w.agent.Inventory(ctx)
	if err != nil {
		return fmt.Errorf("fetch bot inventory: %w", err)
	}

	held := make(map[string]struct{}, len(inventory))
	for _, entry := range inventory {
		held[entry.AssetID] = struct{}{}
	}
	matched := 0
	for _, assetID := range p.ItemAssetIDs {
		if _, ok := held[assetID]; ok {
			matched++
		}
	}
	if matched != len(p.ItemAssetIDs) {
		// Missing inventory will not resolve itself; fail now, not after
		// burning the retry budget.
		reason := fmt.Sprintf("missing items in bot inventory (expected %d, found %d)", len(p.ItemAssetIDs), matched)
		return w.fulfill.FailOrder(ctx, p.OrderID, p.ItemIDs, reason)
	}

	offerID, err := w.agent.SendOffer(ctx, p.TradeURL, p.ItemAssetIDs)
	if err != nil {
		return fmt.Errorf("send trade offer: %w", err)
	}
	if offerID == "" {
		return errors.New("trade offer sent but id is missing")
	}

	sent, err := w.fulfill.MarkTradeSent(ctx, p.OrderID, offerID)
	if err != nil {
		return err
	}
	if !sent {
		w.log.Warn("order left paid status during send", "order_id", p.OrderID, "offer_id", offerID)
		return nil
	}

	monitor := MonitorPayload{
		OrderID:      p.OrderID,
		TradeOfferID: offerID,
		UserID:       p.UserID,
		ItemIDs:      p.ItemIDs,
		EnqueuedAt:   w.clock.Now(),
	}
	if err := w.monitors.EnqueueMonitor(ctx, monitor, monitorInitialDelay); err != nil {
		return err
	}

	w.log.Info("trade offer sent, monitor enqueued", "order_id", p.OrderID, "offer_id", offerID)
	return nil
}

// NewTradeErrorHandler compensates an order whose trade job exhausted its
// retry budget. It runs from the queue's failure hook so the compensation
// does not depend on any future job run.
func NewTradeErrorHandler(fulfill Fulfillment, log *slog.Logger) asynq.ErrorHandlerFunc {
	return func(ctx context.Context, task *asynq.Task, err error) {
		if task.Type() != TypeTradeSend {
			return
		}

		var p app.TradeJob
		if unmarshalErr := json.Unmarshal(task.Payload(), &p); unmarshalErr != nil {
			log.Error("trade job failed with undecodable payload", "err", err)
			return
		}

		log.Error("trade job failed", "order_id", p.OrderID, "err", err)

		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if retried >= maxRetry && p.OrderID != "" {
			reason := fmt.Sprintf("trade job exhausted all retries: %v", err)
			if failErr := fulfill.FailOrder(ctx, p.OrderID, p.ItemIDs, reason); failErr != nil {
				log.Error("failed to compensate exhausted trade job", "order_id", p.OrderID, "err", failErr)
			}
		}
	}
}
