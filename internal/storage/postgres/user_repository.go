package postgres

import (
	"context"
	"fmt"

	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByID(ctx context.Context, userID string) (domain.User, error) {
	const query = `
SELECT id, steam_id, display_name, avatar, trade_url, balance, created_at
FROM users
WHERE id = $1`

	var u domain.User
	err := r.queryRow(ctx, query, userID).
		Scan(&u.ID, &u.SteamID, &u.DisplayName, &u.Avatar, &u.TradeURL, &u.Balance, &u.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.User{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
