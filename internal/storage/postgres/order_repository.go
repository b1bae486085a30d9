package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// Create inserts the order and its lines. A partial unique index on active
// orders per user backs the one-active-order invariant at the storage
// level; violations surface as ErrActiveOrderExists.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	const orderStmt = `
INSERT INTO orders (id, user_id, total_price, status, created_at)
VALUES ($1, $2, $3, $4, $5)`

	const lineStmt = `
INSERT INTO order_items (id, order_id, item_id, price_at_purchase)
VALUES ($1, $2, $3, $4)`

	_, err := r.exec(ctx, orderStmt, order.ID, order.UserID, order.TotalPrice, order.Status, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActiveOrderExists
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create order: %w", err)
	}

	for _, line := range order.Items {
		if _, err := r.exec(ctx, lineStmt, line.ID, order.ID, line.ItemID, line.PriceAtPurchase); err != nil {
			return fmt.Errorf("create order line: %w", err)
		}
	}
	return nil
}

// GetByID loads an order with its lines, joined against items for the
// external asset ids the trade jobs need.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	const orderQuery = `
SELECT id, user_id, total_price, status, trade_offer_id, created_at, paid_at, completed_at
FROM orders
WHERE id = $1`

	var o domain.Order
	err := r.queryRow(ctx, orderQuery, orderID).
		Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.TradeOfferID, &o.CreatedAt, &o.PaidAt, &o.CompletedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.loadLines(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

// ListByUser returns the user's orders with lines, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	const query = `
SELECT id, user_id, total_price, status, trade_offer_id, created_at, paid_at, completed_at
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC`

	rows, err := r.query(ctx, query, userID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	var ids []string
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.TradeOfferID, &o.CreatedAt, &o.PaidAt, &o.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list orders: %w", err)
	}

	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = lines[orders[i].ID]
	}
	return orders, nil
}

// FindActiveByUser returns the user's order in a non-terminal status, if any.
func (r *OrderRepository) FindActiveByUser(ctx context.Context, userID string) (*domain.Order, error) {
	const query = `
SELECT id, user_id, total_price, status, trade_offer_id, created_at, paid_at, completed_at
FROM orders
WHERE user_id = $1 AND status = ANY($2)
LIMIT 1`

	statuses := make([]string, 0, len(domain.ActiveOrderStatuses))
	for _, s := range domain.ActiveOrderStatuses {
		statuses = append(statuses, string(s))
	}

	var o domain.Order
	err := r.queryRow(ctx, query, userID, statuses).
		Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.TradeOfferID, &o.CreatedAt, &o.PaidAt, &o.CompletedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active order: %w", err)
	}
	return &o, nil
}

// MarkPaid transitions PENDING -> PAID and stamps paid_at. The conditional
// update makes duplicate webhook deliveries report false instead of
// re-transitioning.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	const stmt = `UPDATE orders SET status = $1, paid_at = $2 WHERE id = $3 AND status = $4`

	tag, err := r.exec(ctx, stmt, domain.OrderStatusPaid, paidAt, orderID, domain.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkTradeSent transitions PAID -> TRADE_SENT and records the external
// transfer handle.
func (r *OrderRepository) MarkTradeSent(ctx context.Context, orderID, offerID string) (bool, error) {
	const stmt = `UPDATE orders SET status = $1, trade_offer_id = $2 WHERE id = $3 AND status = $4`

	tag, err := r.exec(ctx, stmt, domain.OrderStatusTradeSent, offerID, orderID, domain.OrderStatusPaid)
	if err != nil {
		return false, fmt.Errorf("mark trade sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted transitions out of TRADE_SENT/TRADE_ACCEPTED and stamps
// completed_at.
func (r *OrderRepository) MarkCompleted(ctx context.Context, orderID string, completedAt time.Time) (bool, error) {
	const stmt = `UPDATE orders SET status = $1, completed_at = $2 WHERE id = $3 AND status = ANY($4)`

	from := []string{string(domain.OrderStatusTradeSent), string(domain.OrderStatusTradeAccepted)}
	tag, err := r.exec(ctx, stmt, domain.OrderStatusCompleted, completedAt, orderID, from)
	if err != nil {
		return false, fmt.Errorf("mark order completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetStatus conditionally moves the order to a (typically terminal) status
// from any of the given statuses, reporting whether a row changed.
func (r *OrderRepository) SetStatus(ctx context.Context, orderID string, to domain.OrderStatus, from ...domain.OrderStatus) (bool, error) {
	const stmt = `UPDATE orders SET status = $1 WHERE id = $2 AND status = ANY($3)`

	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}

	tag, err := r.exec(ctx, stmt, to, orderID, statuses)
	if err != nil {
		return false, fmt.Errorf("set order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	const query = `
SELECT oi.id, oi.order_id, oi.item_id, oi.price_at_purchase, i.asset_id, i.name, i.icon_url
FROM order_items oi
JOIN items i ON i.id = oi.item_id
WHERE oi.order_id = ANY($1)
ORDER BY oi.id`

	rows, err := r.query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make(map[string][]domain.OrderItem)
	for rows.Next() {
		var line domain.OrderItem
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.PriceAtPurchase, &line.AssetID, &line.Name, &line.IconURL); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines[line.OrderID] = append(lines[line.OrderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	return lines, nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
