package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/TorentoFlag/skin-vault/internal/payment"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memOrderStore struct {
	orders map[string]*domain.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]*domain.Order)}
}

func (s *memOrderStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *memOrderStore) Create(_ context.Context, order domain.Order) error {
	for _, existing := range s.orders {
		if existing.UserID == order.UserID && !existing.Status.Terminal() {
			return domain.ErrActiveOrderExists
		}
	}
	cp := order
	s.orders[order.ID] = &cp
	return nil
}

func (s *memOrderStore) GetByID(_ context.Context, orderID string) (*domain.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *order
	return &cp, nil
}

func (s *memOrderStore) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, order := range s.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *memOrderStore) FindActiveByUser(_ context.Context, userID string) (*domain.Order, error) {
	for _, order := range s.orders {
		if order.UserID == userID && !order.Status.Terminal() {
			cp := *order
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memOrderStore) MarkPaid(_ context.Context, orderID string, paidAt time.Time) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok || order.Status != domain.OrderStatusPending {
		return false, nil
	}
	order.Status = domain.OrderStatusPaid
	order.PaidAt = &paidAt
	return true, nil
}

func (s *memOrderStore) MarkTradeSent(_ context.Context, orderID, offerID string) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok || order.Status != domain.OrderStatusPaid {
		return false, nil
	}
	order.Status = domain.OrderStatusTradeSent
	order.TradeOfferID = offerID
	return true, nil
}

func (s *memOrderStore) MarkCompleted(_ context.Context, orderID string, completedAt time.Time) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok || (order.Status != domain.OrderStatusTradeSent && order.Status != domain.OrderStatusTradeAccepted) {
		return false, nil
	}
	order.Status = domain.OrderStatusCompleted
	order.CompletedAt = &completedAt
	return true, nil
}

func (s *memOrderStore) SetStatus(_ context.Context, orderID string, to domain.OrderStatus, from ...domain.OrderStatus) (bool, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if order.Status == f {
			order.Status = to
			return true, nil
		}
	}
	return false, nil
}

type memItemStore struct {
	items    map[string]domain.Item
	released [][]string
}

func newMemItemStore(items ...domain.Item) *memItemStore {
	s := &memItemStore{items: make(map[string]domain.Item)}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *memItemStore) GetAvailableByIDs(_ context.Context, ids []string) ([]domain.Item, error) {
	var out []domain.Item
	for _, id := range ids {
		if item, ok := s.items[id]; ok && item.IsAvailable {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memItemStore) Reserve(_ context.Context, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if item, ok := s.items[id]; ok && item.IsAvailable {
			item.IsAvailable = false
			s.items[id] = item
			n++
		}
	}
	return n, nil
}

func (s *memItemStore) Release(_ context.Context, ids []string) error {
	s.released = append(s.released, ids)
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			item.IsAvailable = true
			s.items[id] = item
		}
	}
	return nil
}

type fakeUserStore struct {
	user domain.User
	err  error
}

func (s *fakeUserStore) GetByID(context.Context, string) (domain.User, error) {
	return s.user, s.err
}

type memTxnStore struct {
	txns []domain.Transaction
}

func (s *memTxnStore) Create(_ context.Context, txn domain.Transaction) error {
	s.txns = append(s.txns, txn)
	return nil
}

func (s *memTxnStore) FindLatest(_ context.Context, userID string, typ domain.TransactionType, status domain.TransactionStatus) (*domain.Transaction, error) {
	var latest *domain.Transaction
	for i := range s.txns {
		t := &s.txns[i]
		if t.UserID != userID || t.Type != typ || t.Status != status {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *memTxnStore) UpdateStatus(_ context.Context, txnID string, to domain.TransactionStatus) error {
	for i := range s.txns {
		if s.txns[i].ID == txnID {
			s.txns[i].Status = to
			return nil
		}
	}
	return errors.New("transaction not found")
}

func (s *memTxnStore) UpdateStatusBySession(_ context.Context, sessionID, userID string, from, to domain.TransactionStatus) error {
	for i := range s.txns {
		t := &s.txns[i]
		if t.StripeSessionID == sessionID && t.UserID == userID && t.Status == from {
			t.Status = to
		}
	}
	return nil
}

type fakeLocker struct {
	busy     map[string]bool
	err      error
	acquired []string
	released []string
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	if l.busy[key] {
		return "", nil
	}
	l.acquired = append(l.acquired, key)
	return "token-" + key, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.released = append(l.released, key)
	return nil
}

type fakeGateway struct {
	session    payment.CheckoutSession
	createErr  error
	intentID   string
	intentErr  error
	refunded   []string
	refundErr  error
	expired    []string
	expireErr  error
	createSeen []string
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, orderID, userID string, total decimal.Decimal, itemNames []string) (payment.CheckoutSession, error) {
	g.createSeen = append(g.createSeen, orderID)
	return g.session, g.createErr
}

func (g *fakeGateway) RetrieveSessionPaymentIntent(_ context.Context, sessionID string) (string, error) {
	return g.intentID, g.intentErr
}

func (g *fakeGateway) RefundPaymentIntent(_ context.Context, paymentIntentID string) error {
	g.refunded = append(g.refunded, paymentIntentID)
	return g.refundErr
}

func (g *fakeGateway) ExpireSession(_ context.Context, sessionID string) error {
	g.expired = append(g.expired, sessionID)
	return g.expireErr
}

type fakeTradeEnqueuer struct {
	jobs []TradeJob
	err  error
}

func (e *fakeTradeEnqueuer) EnqueueTrade(_ context.Context, job TradeJob) error {
	e.jobs = append(e.jobs, job)
	return e.err
}
