package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/clock"
	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultLockTTL = 10 * time.Second
const itemLockPrefix = "lock:item:"

type OrderService struct {
	orders   OrderStore
	items    ItemStore
	users    UserStore
	txns     TransactionStore
	locks    Locker
	payments PaymentGateway
	clock    clock.Clock
	log      *slog.Logger
	lockTTL  time.Duration
}

func NewOrderService(
	orders OrderStore,
	items ItemStore,
	users UserStore,
	txns TransactionStore,
	locks Locker,
	payments PaymentGateway,
	clk clock.Clock,
	log *slog.Logger,
	opts ...OrderServiceOption,
) *OrderService {
	svc := &OrderService{
		orders:   orders,
		items:    items,
		users:    users,
		txns:     txns,
		locks:    locks,
		payments: payments,
		clock:    clk,
		log:      log,
		lockTTL:  defaultLockTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OrderServiceOption func(*OrderService)

// WithLockTTL overrides the per-item lock lease duration.
func WithLockTTL(d time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

type CreateOrderInput struct {
	UserID  string
	ItemIDs []string
}

type CreateOrderResult struct {
	Order      domain.Order
	PaymentURL string
}

// CreateOrder reserves the requested items, creates a PENDING order with
// price-at-purchase snapshots, and opens a hosted checkout session. The
// per-item locks only cover the reservation window; the database
// transaction is the actual ordering boundary.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	if len(in.ItemIDs) == 0 {
		return CreateOrderResult{}, domain.ErrItemsUnavailable
	}
	if hasDuplicates(in.ItemIDs) {
		return CreateOrderResult{}, domain.ErrDuplicateItems
	}

	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if user.TradeURL == "" {
		return CreateOrderResult{}, domain.ErrTradeURLRequired
	}

	if active, err := s.orders.FindActiveByUser(ctx, in.UserID); err != nil {
		return CreateOrderResult{}, err
	} else if active != nil {
		return CreateOrderResult{}, domain.ErrActiveOrderExists
	}

	items, err := s.items.GetAvailableByIDs(ctx, in.ItemIDs)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if len(items) != len(in.ItemIDs) {
		return CreateOrderResult{}, domain.ErrItemsUnavailable
	}

	// Lock acquisition order is fixed (sorted) so two concurrent checkouts
	// over overlapping item sets cannot deadlock each other.
	lockIDs := append([]string(nil), in.ItemIDs...)
	sort.Strings(lockIDs)

	acquired := make(map[string]string, len(lockIDs))
	defer func() {
		for key, token := range acquired {
			if err := s.locks.Release(ctx, key, token); err != nil {
				s.log.Warn("failed to release item lock", "key", key, "err", err)
			}
		}
	}()

	for _, id := range lockIDs {
		key := itemLockPrefix + id
		token, err := s.locks.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			return CreateOrderResult{}, fmt.Errorf("acquire item lock: %w", err)
		}
		if token == "" {
			return CreateOrderResult{}, domain.ErrItemsLocked
		}
		acquired[key] = token
	}

	// Re-verify under lock: closes the race between the first availability
	// check and lock acquisition.
	recheck, err := s.items.GetAvailableByIDs(ctx, in.ItemIDs)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if len(recheck) != len(in.ItemIDs) {
		return CreateOrderResult{}, domain.ErrItemsUnavailable
	}

	// The snapshot reads prices from the under-lock fetch, so a price change
	// between the first check and lock acquisition cannot leak into the order.
	now := s.clock.Now()
	total := decimal.Zero
	itemNames := make([]string, 0, len(recheck))
	lines := make([]domain.OrderItem, 0, len(recheck))
	for _, item := range recheck {
		total = total.Add(item.Price)
		itemNames = append(itemNames, item.Name)
		lines = append(lines, domain.OrderItem{
			ID:              uuid.NewString(),
			ItemID:          item.ID,
			PriceAtPurchase: item.Price,
			AssetID:         item.AssetID,
			Name:            item.Name,
			IconURL:         item.IconURL,
		})
	}

	order := domain.Order{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		TotalPrice: total,
		Status:     domain.OrderStatusPending,
		Items:      lines,
		CreatedAt:  now,
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}

	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		reserved, err := s.items.Reserve(txCtx, in.ItemIDs)
		if err != nil {
			return err
		}
		if reserved != int64(len(in.ItemIDs)) {
			return domain.ErrItemsUnavailable
		}
		return s.orders.Create(txCtx, order)
	})
	if err != nil {
		return CreateOrderResult{}, err
	}

	session, err := s.payments.CreateCheckoutSession(ctx, order.ID, in.UserID, total, itemNames)
	if err != nil {
		// Roll back outside the committed transaction: the order row is
		// kept (CANCELLED) for audit, the items go back on sale.
		if _, stErr := s.orders.SetStatus(ctx, order.ID, domain.OrderStatusCancelled, domain.OrderStatusPending); stErr != nil {
			s.log.Error("failed to cancel order after session failure", "order_id", order.ID, "err", stErr)
		}
		if relErr := s.items.Release(ctx, in.ItemIDs); relErr != nil {
			s.log.Error("failed to release items after session failure", "order_id", order.ID, "err", relErr)
		}
		s.log.Error("checkout session creation failed, order rolled back", "order_id", order.ID, "err", err)
		return CreateOrderResult{}, fmt.Errorf("create checkout session: %w", err)
	}

	txn := domain.Transaction{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Type:            domain.TransactionTypePayment,
		Amount:          total,
		Status:          domain.TransactionStatusPending,
		StripeSessionID: session.SessionID,
		CreatedAt:       now,
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return CreateOrderResult{}, err
	}

	s.log.Info("order created", "order_id", order.ID, "item_count", len(order.Items), "total_price", total.StringFixed(2))

	return CreateOrderResult{Order: order, PaymentURL: session.URL}, nil
}

// GetOrder loads an order for its owner.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.UserID != userID {
		return domain.Order{}, domain.ErrForbidden
	}
	return *order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// CancelOrder is the user-initiated exit: only PENDING orders qualify.
// The pending payment row is failed, items are released, and the checkout
// session is expired best-effort (it lapses on its own anyway).
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}
	if order.UserID != userID {
		return domain.ErrForbidden
	}
	if order.Status != domain.OrderStatusPending {
		return domain.ErrOrderNotCancellable
	}

	txn, err := s.txns.FindLatest(ctx, userID, domain.TransactionTypePayment, domain.TransactionStatusPending)
	if err != nil {
		return err
	}

	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.orders.SetStatus(txCtx, orderID, domain.OrderStatusCancelled, domain.OrderStatusPending); err != nil {
			return err
		}
		if txn != nil {
			return s.txns.UpdateStatus(txCtx, txn.ID, domain.TransactionStatusFailed)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.items.Release(ctx, order.ItemIDs()); err != nil {
		return err
	}

	if txn != nil && txn.StripeSessionID != "" {
		if err := s.payments.ExpireSession(ctx, txn.StripeSessionID); err != nil {
			s.log.Warn("failed to expire checkout session", "session_id", txn.StripeSessionID, "err", err)
		}
	}

	s.log.Info("order cancelled by user", "order_id", orderID)
	return nil
}

func hasDuplicates(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
