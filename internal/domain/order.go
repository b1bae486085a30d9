package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusTradeSent     OrderStatus = "TRADE_SENT"
	OrderStatusTradeAccepted OrderStatus = "TRADE_ACCEPTED"
	OrderStatusCompleted     OrderStatus = "COMPLETED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusFailed        OrderStatus = "FAILED"
)

// ActiveOrderStatuses are the statuses that count against the
// one-active-order-per-user limit.
var ActiveOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusTradeSent,
	OrderStatusTradeAccepted,
}

// Terminal reports whether the status is permanent.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// Order is the aggregate root of the fulfillment pipeline. TotalPrice is
// fixed at creation from item prices and never recomputed.
type Order struct {
	ID           string
	UserID       string
	TotalPrice   decimal.Decimal
	Status       OrderStatus
	TradeOfferID string
	Items        []OrderItem
	CreatedAt    time.Time
	PaidAt       *time.Time
	CompletedAt  *time.Time
}

// OrderItem binds one item to an order at its price at purchase time,
// so later catalog price changes cannot affect an open order.
type OrderItem struct {
	ID              string
	OrderID         string
	ItemID          string
	PriceAtPurchase decimal.Decimal

	// Denormalized from the item row for job payloads and API responses.
	AssetID string
	Name    string
	IconURL string
}

// ItemIDs returns the item ids across the order's lines.
func (o Order) ItemIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, line := range o.Items {
		ids = append(ids, line.ItemID)
	}
	return ids
}

// AssetIDs returns the external asset ids across the order's lines.
func (o Order) AssetIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, line := range o.Items {
		ids = append(ids, line.AssetID)
	}
	return ids
}
