package app

import (
	"context"
	"log/slog"

	"github.com/TorentoFlag/skin-vault/internal/clock"
	"github.com/TorentoFlag/skin-vault/internal/domain"
)

// Refunder issues a refund for an order's completed payment, if any.
type Refunder interface {
	IssueRefund(ctx context.Context, orderID string) error
}

// FulfillmentService holds the order transitions and compensations invoked
// by the trade pipeline workers. Every compensating method is safe to call
// redundantly: the conditional status updates and the idempotent release
// and refund absorb overlapping failure paths.
type FulfillmentService struct {
	orders  OrderStore
	items   ItemStore
	refunds Refunder
	clock   clock.Clock
	log     *slog.Logger
}

func NewFulfillmentService(orders OrderStore, items ItemStore, refunds Refunder, clk clock.Clock, log *slog.Logger) *FulfillmentService {
	return &FulfillmentService{
		orders:  orders,
		items:   items,
		refunds: refunds,
		clock:   clk,
		log:     log,
	}
}

// Order reloads an order; nil means it does not exist.
func (s *FulfillmentService) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// MarkTradeSent persists the external transfer handle and moves the order
// to TRADE_SENT. Returns false when the order was not PAID anymore (for
// example a duplicate trade job racing a completed one).
func (s *FulfillmentService) MarkTradeSent(ctx context.Context, orderID, offerID string) (bool, error) {
	sent, err := s.orders.MarkTradeSent(ctx, orderID, offerID)
	if err != nil {
		return false, err
	}
	if sent {
		s.log.Info("trade offer sent", "order_id", orderID, "offer_id", offerID)
	}
	return sent, nil
}

// CompleteOrder records the accepted transfer.
func (s *FulfillmentService) CompleteOrder(ctx context.Context, orderID string) error {
	if _, err := s.orders.MarkCompleted(ctx, orderID, s.clock.Now()); err != nil {
		return err
	}
	s.log.Info("trade accepted, order completed", "order_id", orderID)
	return nil
}

// FailOrder is the terminal business failure path: FAILED status, items
// back on sale, money back.
func (s *FulfillmentService) FailOrder(ctx context.Context, orderID string, itemIDs []string, reason string) error {
	if _, err := s.orders.SetStatus(ctx, orderID, domain.OrderStatusFailed, domain.ActiveOrderStatuses...); err != nil {
		return err
	}
	if err := s.items.Release(ctx, itemIDs); err != nil {
		return err
	}
	if err := s.refunds.IssueRefund(ctx, orderID); err != nil {
		s.log.Error("refund failed while failing order", "order_id", orderID, "err", err)
	}
	s.log.Error("order marked as failed, refund issued", "order_id", orderID, "reason", reason)
	return nil
}

// CancelOrder is the timeout path: CANCELLED status, items back on sale,
// money back.
func (s *FulfillmentService) CancelOrder(ctx context.Context, orderID string, itemIDs []string) error {
	if _, err := s.orders.SetStatus(ctx, orderID, domain.OrderStatusCancelled, domain.ActiveOrderStatuses...); err != nil {
		return err
	}
	if err := s.items.Release(ctx, itemIDs); err != nil {
		return err
	}
	if err := s.refunds.IssueRefund(ctx, orderID); err != nil {
		s.log.Error("refund failed while cancelling order", "order_id", orderID, "err", err)
	}
	s.log.Info("order cancelled, items released, refund issued", "order_id", orderID)
	return nil
}
