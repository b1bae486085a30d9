package app

import (
	"context"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/TorentoFlag/skin-vault/internal/payment"
	"github.com/shopspring/decimal"
)

// Consumed dependency contracts, satisfied by internal/storage/postgres,
// internal/lock, internal/payment and internal/jobs.

type OrderStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	FindActiveByUser(ctx context.Context, userID string) (*domain.Order, error)
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error)
	MarkTradeSent(ctx context.Context, orderID, offerID string) (bool, error)
	MarkCompleted(ctx context.Context, orderID string, completedAt time.Time) (bool, error)
	SetStatus(ctx context.Context, orderID string, to domain.OrderStatus, from ...domain.OrderStatus) (bool, error)
}

type ItemStore interface {
	GetAvailableByIDs(ctx context.Context, ids []string) ([]domain.Item, error)
	Reserve(ctx context.Context, ids []string) (int64, error)
	Release(ctx context.Context, ids []string) error
}

type UserStore interface {
	GetByID(ctx context.Context, userID string) (domain.User, error)
}

type TransactionStore interface {
	Create(ctx context.Context, txn domain.Transaction) error
	FindLatest(ctx context.Context, userID string, typ domain.TransactionType, status domain.TransactionStatus) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, txnID string, to domain.TransactionStatus) error
	UpdateStatusBySession(ctx context.Context, sessionID, userID string, from, to domain.TransactionStatus) error
}

// Locker hands out short-lived leases over named resources. An empty token
// with a nil error means the resource is busy.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, orderID, userID string, total decimal.Decimal, itemNames []string) (payment.CheckoutSession, error)
	RetrieveSessionPaymentIntent(ctx context.Context, sessionID string) (string, error)
	RefundPaymentIntent(ctx context.Context, paymentIntentID string) error
	ExpireSession(ctx context.Context, sessionID string) error
}

// TradeEnqueuer hands a paid order to the asynchronous trade pipeline.
type TradeEnqueuer interface {
	EnqueueTrade(ctx context.Context, job TradeJob) error
}

// TradeJob carries everything the trade execution worker needs, so the
// worker does not depend on re-reading mutable user state.
type TradeJob struct {
	OrderID      string   `json:"order_id"`
	UserID       string   `json:"user_id"`
	TradeURL     string   `json:"trade_url"`
	ItemAssetIDs []string `json:"item_asset_ids"`
	ItemIDs      []string `json:"item_ids"`
}
