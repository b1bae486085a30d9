package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/clock"
	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/TorentoFlag/skin-vault/internal/payment"
	"github.com/shopspring/decimal"
)

func sellableItem(id, name, price string) domain.Item {
	return domain.Item{
		ID:          id,
		AssetID:     "asset-" + id,
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: true,
	}
}

// repricingLocker changes an item's price when the lock is taken, landing
// the change in the window between the first availability check and the
// under-lock reread.
type repricingLocker struct {
	fakeLocker
	items  *memItemStore
	itemID string
	price  decimal.Decimal
}

func (l *repricingLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	item := l.items.items[l.itemID]
	item.Price = l.price
	l.items.items[l.itemID] = item
	return l.fakeLocker.Acquire(ctx, key, ttl)
}

func buyer() domain.User {
	return domain.User{
		ID:       "usr-1",
		SteamID:  "76561198000000001",
		TradeURL: "https://steamcommunity.com/tradeoffer/new/?partner=1&token=a",
	}
}

func TestOrderService_CreateOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	newService := func(orders *memOrderStore, items *memItemStore, users *fakeUserStore, txns *memTxnStore, locks *fakeLocker, gateway *fakeGateway) *OrderService {
		return NewOrderService(orders, items, users, txns, locks, gateway, clock.NewFixed(now), discardLogger())
	}

	t.Run("creates pending order with snapshot prices", func(t *testing.T) {
		orders := newMemOrderStore()
		items := newMemItemStore(
			sellableItem("item-1", "AK-47 | Redline", "10.00"),
			sellableItem("item-2", "AWP | Asiimov", "20.00"),
		)
		txns := &memTxnStore{}
		locks := &fakeLocker{}
		gateway := &fakeGateway{session: payment.CheckoutSession{SessionID: "cs_1", URL: "https://checkout/cs_1"}}
		svc := newService(orders, items, &fakeUserStore{user: buyer()}, txns, locks, gateway)

		res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
			UserID:  "usr-1",
			ItemIDs: []string{"item-1", "item-2"},
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}

		if !res.Order.TotalPrice.Equal(decimal.RequireFromString("30.00")) {
			t.Fatalf("expected total 30.00, got %s", res.Order.TotalPrice)
		}
		if res.Order.Status != domain.OrderStatusPending {
			t.Fatalf("expected PENDING, got %s", res.Order.Status)
		}
		if res.PaymentURL != "https://checkout/cs_1" {
			t.Fatalf("expected payment url, got %q", res.PaymentURL)
		}
		if len(res.Order.Items) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(res.Order.Items))
		}

		stored, _ := orders.GetByID(context.Background(), res.Order.ID)
		if stored == nil {
			t.Fatal("expected order persisted")
		}
		if avail, _ := items.GetAvailableByIDs(context.Background(), []string{"item-1", "item-2"}); len(avail) != 0 {
			t.Fatalf("expected items reserved, %d still available", len(avail))
		}
		if len(txns.txns) != 1 || txns.txns[0].Status != domain.TransactionStatusPending {
			t.Fatalf("expected one pending transaction, got %+v", txns.txns)
		}
		if len(locks.acquired) != 2 || len(locks.released) != 2 {
			t.Fatalf("expected all locks acquired and released, got %d/%d", len(locks.acquired), len(locks.released))
		}
	})

	t.Run("rejects duplicate item ids", func(t *testing.T) {
		svc := newService(newMemOrderStore(), newMemItemStore(), &fakeUserStore{user: buyer()}, &memTxnStore{}, &fakeLocker{}, &fakeGateway{})
		_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
			UserID:  "usr-1",
			ItemIDs: []string{"item-1", "item-1"},
		})
		if err != domain.ErrDuplicateItems {
			t.Fatalf("expected ErrDuplicateItems, got %v", err)
		}
	})

	t.Run("rejects buyer without trade url", func(t *testing.T) {
		user := buyer()
		user.TradeURL = ""
		svc := newService(newMemOrderStore(), newMemItemStore(sellableItem("item-1", "x", "1.00")), &fakeUserStore{user: user}, &memTxnStore{}, &fakeLocker{}, &fakeGateway{})
		_, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "usr-1", ItemIDs: []string{"item-1"}})
		if err != domain.ErrTradeURLRequired {
			t.Fatalf("expected ErrTradeURLRequired, got %v", err)
		}
	})

	t.Run("rejects second active order", func(t *testing.T) {
		orders := newMemOrderStore()
		orders.orders["ord-0"] = &domain.Order{ID: "ord-0", UserID: "usr-1", Status: domain.OrderStatusPaid}
		svc := newService(orders, newMemItemStore(sellableItem("item-1", "x", "1.00")), &fakeUserStore{user: buyer()}, &memTxnStore{}, &fakeLocker{}, &fakeGateway{})
		_, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "usr-1", ItemIDs: []string{"item-1"}})
		if err != domain.ErrActiveOrderExists {
			t.Fatalf("expected ErrActiveOrderExists, got %v", err)
		}
	})

	t.Run("rejects unavailable items", func(t *testing.T) {
		unavailable := sellableItem("item-1", "x", "1.00")
		unavailable.IsAvailable = false
		svc := newService(newMemOrderStore(), newMemItemStore(unavailable), &fakeUserStore{user: buyer()}, &memTxnStore{}, &fakeLocker{}, &fakeGateway{})
		_, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "usr-1", ItemIDs: []string{"item-1"}})
		if err != domain.ErrItemsUnavailable {
			t.Fatalf("expected ErrItemsUnavailable, got %v", err)
		}
	})

	t.Run("snapshots the price current at lock time", func(t *testing.T) {
		orders := newMemOrderStore()
		items := newMemItemStore(sellableItem("item-1", "AK-47 | Redline", "10.00"))
		locks := &repricingLocker{items: items, itemID: "item-1", price: decimal.RequireFromString("12.00")}
		gateway := &fakeGateway{session: payment.CheckoutSession{SessionID: "cs_1", URL: "https://checkout/cs_1"}}
		svc := NewOrderService(orders, items, &fakeUserStore{user: buyer()}, &memTxnStore{}, locks, gateway, clock.NewFixed(now), discardLogger())

		res, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "usr-1", ItemIDs: []string{"item-1"}})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		if !res.Order.TotalPrice.Equal(decimal.RequireFromString("12.00")) {
			t.Fatalf("expected total 12.00 from the locked read, got %s", res.Order.TotalPrice)
		}
		if !res.Order.Items[0].PriceAtPurchase.Equal(decimal.RequireFromString("12.00")) {
			t.Fatalf("expected line price 12.00, got %s", res.Order.Items[0].PriceAtPurchase)
		}
	})

	t.Run("busy lock aborts and releases what was taken", func(t *testing.T) {
		locks := &fakeLocker{busy: map[string]bool{"lock:item:item-2": true}}
		svc := newService(newMemOrderStore(), newMemItemStore(
			sellableItem("item-1", "a", "1.00"),
			sellableItem("item-2", "b", "2.00"),
		), &fakeUserStore{user: buyer()}, &memTxnStore{}, locks, &fakeGateway{})

		_, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "usr-1", ItemIDs: []string{"item-1", "item-2"}})
		if err != domain.ErrItemsLocked {
			t.Fatalf("expected ErrItemsLocked, got %v", err)
		}
		if len(locks.released) != len(locks.acquired) {
			t.Fatalf("expected partial locks released, acquired %d released %d", len(locks.acquired), len(locks.released))
		}
	})

	t.Run("lock store outage is an error, not a busy result", func(t *testing.T) {
		locks := &fakeLocker{err: errors.New("redis down")}
		svc := newService(newMemOrderStore(), newMemItemStore(sellableItem("item-1", "a", "1.00")), &fakeUserStore{user: buyer()}, &memTxnStore{}, locks, &fakeGateway{})
		_, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "usr-1", ItemIDs: []string{"item-1"}})
		if err == nil || err == domain.ErrItemsLocked {
			t.Fatalf("expected outage error, got %v", err)
		}
	})

	t.Run("session failure rolls the order back", func(t *testing.T) {
		orders := newMemOrderStore()
		items := newMemItemStore(sellableItem("item-1", "a", "1.00"))
		gateway := &fakeGateway{createErr: errors.New("stripe down")}
		svc := newService(orders, items, &fakeUserStore{user: buyer()}, &memTxnStore{}, &fakeLocker{}, gateway)

		_, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "usr-1", ItemIDs: []string{"item-1"}})
		if err == nil {
			t.Fatal("expected error, got nil")
		}

		var cancelled int
		for _, order := range orders.orders {
			if order.Status == domain.OrderStatusCancelled {
				cancelled++
			}
		}
		if cancelled != 1 {
			t.Fatalf("expected 1 cancelled order, got %d", cancelled)
		}
		if avail, _ := items.GetAvailableByIDs(context.Background(), []string{"item-1"}); len(avail) != 1 {
			t.Fatalf("expected item back on sale, got %d available", len(avail))
		}
	})
}

func TestOrderService_GetOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	orders := newMemOrderStore()
	orders.orders["ord-1"] = &domain.Order{ID: "ord-1", UserID: "usr-1", Status: domain.OrderStatusPending}
	svc := NewOrderService(orders, newMemItemStore(), &fakeUserStore{user: buyer()}, &memTxnStore{}, &fakeLocker{}, &fakeGateway{}, clock.NewFixed(now), discardLogger())

	if _, err := svc.GetOrder(context.Background(), "ord-1", "usr-2"); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), "ord-9", "usr-1"); err != domain.ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	order, err := svc.GetOrder(context.Background(), "ord-1", "usr-1")
	if err != nil || order.ID != "ord-1" {
		t.Fatalf("expected order, got %+v err=%v", order, err)
	}
}

func TestOrderService_CancelOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	setup := func(status domain.OrderStatus) (*OrderService, *memOrderStore, *memItemStore, *memTxnStore, *fakeGateway) {
		orders := newMemOrderStore()
		orders.orders["ord-1"] = &domain.Order{
			ID:     "ord-1",
			UserID: "usr-1",
			Status: status,
			Items: []domain.OrderItem{
				{ID: "line-1", OrderID: "ord-1", ItemID: "item-1"},
			},
		}
		reserved := sellableItem("item-1", "a", "1.00")
		reserved.IsAvailable = false
		items := newMemItemStore(reserved)
		txns := &memTxnStore{txns: []domain.Transaction{{
			ID:              "txn-1",
			UserID:          "usr-1",
			Type:            domain.TransactionTypePayment,
			Status:          domain.TransactionStatusPending,
			StripeSessionID: "cs_1",
			CreatedAt:       now,
		}}}
		gateway := &fakeGateway{}
		svc := NewOrderService(orders, items, &fakeUserStore{user: buyer()}, txns, &fakeLocker{}, gateway, clock.NewFixed(now), discardLogger())
		return svc, orders, items, txns, gateway
	}

	t.Run("cancels a pending order", func(t *testing.T) {
		svc, orders, items, txns, gateway := setup(domain.OrderStatusPending)

		if err := svc.CancelOrder(context.Background(), "ord-1", "usr-1"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if orders.orders["ord-1"].Status != domain.OrderStatusCancelled {
			t.Fatalf("expected CANCELLED, got %s", orders.orders["ord-1"].Status)
		}
		if txns.txns[0].Status != domain.TransactionStatusFailed {
			t.Fatalf("expected payment row failed, got %s", txns.txns[0].Status)
		}
		if avail, _ := items.GetAvailableByIDs(context.Background(), []string{"item-1"}); len(avail) != 1 {
			t.Fatalf("expected item released, got %d available", len(avail))
		}
		if len(gateway.expired) != 1 || gateway.expired[0] != "cs_1" {
			t.Fatalf("expected session expired, got %v", gateway.expired)
		}
	})

	t.Run("rejects cancel after payment", func(t *testing.T) {
		for _, status := range []domain.OrderStatus{
			domain.OrderStatusPaid,
			domain.OrderStatusTradeSent,
			domain.OrderStatusCompleted,
		} {
			svc, _, _, _, _ := setup(status)
			if err := svc.CancelOrder(context.Background(), "ord-1", "usr-1"); err != domain.ErrOrderNotCancellable {
				t.Fatalf("%s: expected ErrOrderNotCancellable, got %v", status, err)
			}
		}
	})

	t.Run("rejects cancel by another user", func(t *testing.T) {
		svc, _, _, _, _ := setup(domain.OrderStatusPending)
		if err := svc.CancelOrder(context.Background(), "ord-1", "usr-2"); err != domain.ErrForbidden {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}
