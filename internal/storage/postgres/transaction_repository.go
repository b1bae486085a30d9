package postgres

import (
	"context"
	"fmt"

	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *TransactionRepository) Create(ctx context.Context, txn domain.Transaction) error {
	const stmt = `
INSERT INTO transactions (id, user_id, type, amount, status, stripe_session_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt, txn.ID, txn.UserID, txn.Type, txn.Amount, txn.Status, txn.StripeSessionID, txn.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// FindLatest returns the user's most recent transaction of the given type
// and status, or nil when there is none.
func (r *TransactionRepository) FindLatest(ctx context.Context, userID string, typ domain.TransactionType, status domain.TransactionStatus) (*domain.Transaction, error) {
	const query = `
SELECT id, user_id, type, amount, status, stripe_session_id, created_at
FROM transactions
WHERE user_id = $1 AND type = $2 AND status = $3
ORDER BY created_at DESC
LIMIT 1`

	var txn domain.Transaction
	err := r.queryRow(ctx, query, userID, typ, status).
		Scan(&txn.ID, &txn.UserID, &txn.Type, &txn.Amount, &txn.Status, &txn.StripeSessionID, &txn.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest transaction: %w", err)
	}
	return &txn, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, txnID string, to domain.TransactionStatus) error {
	const stmt = `UPDATE transactions SET status = $1 WHERE id = $2`

	if _, err := r.exec(ctx, stmt, to, txnID); err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	return nil
}

// UpdateStatusBySession reconciles the ledger rows correlated to a checkout
// session, moving them from one status to another.
func (r *TransactionRepository) UpdateStatusBySession(ctx context.Context, sessionID, userID string, from, to domain.TransactionStatus) error {
	const stmt = `
UPDATE transactions SET status = $1
WHERE stripe_session_id = $2 AND user_id = $3 AND status = $4`

	if _, err := r.exec(ctx, stmt, to, sessionID, userID, from); err != nil {
		return fmt.Errorf("update transactions by session: %w", err)
	}
	return nil
}

func (r *TransactionRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *TransactionRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
