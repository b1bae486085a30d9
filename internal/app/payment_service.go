package app

import (
	"context"
	"log/slog"

	"github.com/TorentoFlag/skin-vault/internal/clock"
	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/TorentoFlag/skin-vault/internal/payment"
	"github.com/google/uuid"
)

// PaymentService reconciles verified webhook events into durable order
// state and owns refund issuance.
type PaymentService struct {
	orders   OrderStore
	items    ItemStore
	users    UserStore
	txns     TransactionStore
	payments PaymentGateway
	trades   TradeEnqueuer
	clock    clock.Clock
	log      *slog.Logger
}

func NewPaymentService(
	orders OrderStore,
	items ItemStore,
	users UserStore,
	txns TransactionStore,
	payments PaymentGateway,
	trades TradeEnqueuer,
	clk clock.Clock,
	log *slog.Logger,
) *PaymentService {
	return &PaymentService{
		orders:   orders,
		items:    items,
		users:    users,
		txns:     txns,
		payments: payments,
		trades:   trades,
		clock:    clk,
		log:      log,
	}
}

// HandleWebhookEvent dispatches a verified event. Unrecognized event types
// are logged and ignored so new processor events cannot break ingestion.
func (s *PaymentService) HandleWebhookEvent(ctx context.Context, ev payment.Event) error {
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		if ev.OrderID == "" {
			s.log.Warn("webhook: missing order id in metadata", "session_id", ev.SessionID)
			return nil
		}
		return s.markOrderPaid(ctx, ev)
	case payment.EventCheckoutExpired:
		if ev.OrderID == "" {
			return nil
		}
		return s.markOrderExpired(ctx, ev)
	default:
		s.log.Debug("webhook: unhandled event type", "type", ev.Type)
		return nil
	}
}

// markOrderPaid acts only on PENDING orders, which makes duplicate webhook
// deliveries no-ops. The trade job is enqueued after the commit:
// at-least-once delivery, tolerated downstream by conditional transitions.
func (s *PaymentService) markOrderPaid(ctx context.Context, ev payment.Event) error {
	order, err := s.orders.GetByID(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		s.log.Warn("webhook: order not found", "order_id", ev.OrderID)
		return nil
	}
	if order.Status != domain.OrderStatusPending {
		s.log.Warn("webhook: order not in pending status", "order_id", order.ID, "status", order.Status)
		return nil
	}

	user, err := s.users.GetByID(ctx, order.UserID)
	if err != nil {
		return err
	}
	if user.TradeURL == "" {
		// The delivery address vanished between checkout and payment.
		// Proceeding would strand a paid order, so fail and refund now.
		s.log.Error("user has no trade url at payment time", "order_id", order.ID, "user_id", order.UserID)
		if _, err := s.orders.SetStatus(ctx, order.ID, domain.OrderStatusFailed, domain.OrderStatusPending); err != nil {
			return err
		}
		if err := s.items.Release(ctx, order.ItemIDs()); err != nil {
			return err
		}
		return s.IssueRefund(ctx, order.ID)
	}

	var transitioned bool
	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		transitioned, err = s.orders.MarkPaid(txCtx, order.ID, s.clock.Now())
		if err != nil {
			return err
		}
		if !transitioned {
			return nil
		}
		return s.txns.UpdateStatusBySession(txCtx, ev.SessionID, order.UserID,
			domain.TransactionStatusPending, domain.TransactionStatusCompleted)
	})
	if err != nil {
		return err
	}
	if !transitioned {
		s.log.Warn("webhook: duplicate paid transition skipped", "order_id", order.ID)
		return nil
	}

	job := TradeJob{
		OrderID:      order.ID,
		UserID:       order.UserID,
		TradeURL:     user.TradeURL,
		ItemAssetIDs: order.AssetIDs(),
		ItemIDs:      order.ItemIDs(),
	}
	if err := s.trades.EnqueueTrade(ctx, job); err != nil {
		return err
	}

	s.log.Info("order marked as paid, trade job enqueued",
		"order_id", order.ID, "session_id", ev.SessionID, "payment_intent_id", ev.PaymentIntentID)
	return nil
}

// markOrderExpired handles the processor's own session deadline: the
// PENDING order is cancelled and its items go back on sale.
func (s *PaymentService) markOrderExpired(ctx context.Context, ev payment.Event) error {
	order, err := s.orders.GetByID(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if order == nil || order.Status != domain.OrderStatusPending {
		return nil
	}

	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.orders.SetStatus(txCtx, order.ID, domain.OrderStatusCancelled, domain.OrderStatusPending); err != nil {
			return err
		}
		return s.txns.UpdateStatusBySession(txCtx, ev.SessionID, order.UserID,
			domain.TransactionStatusPending, domain.TransactionStatusFailed)
	})
	if err != nil {
		return err
	}

	if err := s.items.Release(ctx, order.ItemIDs()); err != nil {
		return err
	}

	s.log.Info("order expired, items released", "order_id", order.ID)
	return nil
}

// IssueRefund refunds the most recent completed payment of the order's
// user. It quietly no-ops when there is nothing to refund: compensating
// paths call it redundantly and must not fail because of it.
func (s *PaymentService) IssueRefund(ctx context.Context, orderID string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		s.log.Warn("refund: order not found", "order_id", orderID)
		return nil
	}

	txn, err := s.txns.FindLatest(ctx, order.UserID, domain.TransactionTypePayment, domain.TransactionStatusCompleted)
	if err != nil {
		return err
	}
	if txn == nil || txn.StripeSessionID == "" {
		s.log.Warn("refund: no completed payment transaction found", "order_id", orderID)
		return nil
	}

	intentID, err := s.payments.RetrieveSessionPaymentIntent(ctx, txn.StripeSessionID)
	if err != nil {
		return err
	}
	if intentID == "" {
		s.log.Warn("refund: no payment intent found", "order_id", orderID)
		return nil
	}

	if err := s.payments.RefundPaymentIntent(ctx, intentID); err != nil {
		return err
	}

	refund := domain.Transaction{
		ID:              uuid.NewString(),
		UserID:          order.UserID,
		Type:            domain.TransactionTypeRefund,
		Amount:          txn.Amount,
		Status:          domain.TransactionStatusCompleted,
		StripeSessionID: txn.StripeSessionID,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.txns.Create(ctx, refund); err != nil {
		return err
	}

	s.log.Info("refund issued", "order_id", orderID, "session_id", txn.StripeSessionID)
	return nil
}
