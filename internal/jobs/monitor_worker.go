package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/clock"
	"github.com/TorentoFlag/skin-vault/internal/trade"
	"github.com/hibiken/asynq"
)

const (
	monitorPollInterval = 30 * time.Second
	monitorTimeout      = 15 * time.Minute
)

// MonitorWorker polls the state of a sent trade offer until it resolves.
// Polling is self-scheduling: every inconclusive run enqueues a fresh task
// with the original EnqueuedAt carried forward, so the timeout clock
// survives worker restarts.
type MonitorWorker struct {
	agent    trade.Agent
	fulfill  Fulfillment
	monitors MonitorEnqueuer
	clock    clock.Clock
	log      *slog.Logger
}

func NewMonitorWorker(agent trade.Agent, fulfill Fulfillment, monitors MonitorEnqueuer, clk clock.Clock, log *slog.Logger) *MonitorWorker {
	return &MonitorWorker{
		agent:    agent,
		fulfill:  fulfill,
		monitors: monitors,
		clock:    clk,
		log:      log,
	}
}

func (w *MonitorWorker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p MonitorPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode monitor payload: %v: %w", err, asynq.SkipRetry)
	}

	order, err := w.fulfill.Order(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if order == nil || order.Status.Terminal() {
		w.log.Info("monitor stopped, order already resolved", "order_id", p.OrderID)
		return nil
	}

	// An unreachable bot never counts against the timeout budget: cancelling
	// here could refund the buyer while the offer stays acceptable, since the
	// CancelOffer call cannot go through either. Keep polling until it is back.
	ready, err := w.agent.Ready(ctx)
	if err != nil || !ready {
		w.log.Warn("bot unavailable, monitor rescheduled", "order_id", p.OrderID)
		return w.monitors.EnqueueMonitor(ctx, p, monitorPollInterval)
	}

	elapsed := w.clock.Now().Sub(p.EnqueuedAt)

	state, err := w.agent.OfferState(ctx, p.TradeOfferID)
	if err != nil {
		if elapsed >= monitorTimeout {
			return w.timeout(ctx, p)
		}
		w.log.Warn("offer state check failed, monitor rescheduled", "order_id", p.OrderID, "err", err)
		return w.monitors.EnqueueMonitor(ctx, p, monitorPollInterval)
	}

	switch {
	case state == trade.OfferStateAccepted:
		if err := w.fulfill.CompleteOrder(ctx, p.OrderID); err != nil {
			return err
		}
		w.log.Info("trade offer accepted, order completed", "order_id", p.OrderID, "offer_id", p.TradeOfferID)
		return nil
	case state.TerminalFailure():
		reason := fmt.Sprintf("trade offer ended in state %d", state)
		if err := w.fulfill.FailOrder(ctx, p.OrderID, p.ItemIDs, reason); err != nil {
			return err
		}
		w.log.Warn("trade offer failed", "order_id", p.OrderID, "offer_id", p.TradeOfferID, "state", int(state))
		return nil
	case elapsed >= monitorTimeout:
		return w.timeout(ctx, p)
	default:
		return w.monitors.EnqueueMonitor(ctx, p, monitorPollInterval)
	}
}

func (w *MonitorWorker) timeout(ctx context.Context, p MonitorPayload) error {
	// Best effort: a withdrawn offer cannot be accepted after the refund.
	if err := w.agent.CancelOffer(ctx, p.TradeOfferID); err != nil {
		w.log.Warn("failed to cancel expired trade offer", "offer_id", p.TradeOfferID, "err", err)
	}
	if err := w.fulfill.CancelOrder(ctx, p.OrderID, p.ItemIDs); err != nil {
		return err
	}
	w.log.Warn("trade offer timed out, order cancelled", "order_id", p.OrderID, "offer_id", p.TradeOfferID)
	return nil
}
