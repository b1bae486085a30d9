package postgres

import (
	"context"
	"fmt"

	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ItemRepository struct {
	pool *pgxpool.Pool
}

func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

func (r *ItemRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// GetAvailableByIDs returns the subset of the requested items that are
// currently available. Callers compare the result length against the
// request to detect items claimed by someone else.
func (r *ItemRepository) GetAvailableByIDs(ctx context.Context, ids []string) ([]domain.Item, error) {
	const query = `
SELECT id, asset_id, name, market_hash_name, icon_url, price, is_available
FROM items
WHERE id = ANY($1) AND is_available`

	rows, err := r.query(ctx, query, ids)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("get available items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.AssetID, &it.Name, &it.MarketHashName, &it.IconURL, &it.Price, &it.IsAvailable); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("get available items: %w", err)
	}
	return items, nil
}

// Reserve flips the requested items unavailable, touching only rows that
// are still available, and reports how many were actually flipped.
func (r *ItemRepository) Reserve(ctx context.Context, ids []string) (int64, error) {
	const stmt = `UPDATE items SET is_available = FALSE, updated_at = NOW() WHERE id = ANY($1) AND is_available`

	tag, err := r.exec(ctx, stmt, ids)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("reserve items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Release unconditionally restores availability. Releasing an item that is
// already available is a no-op, so compensating paths may call it
// redundantly.
func (r *ItemRepository) Release(ctx context.Context, ids []string) error {
	const stmt = `UPDATE items SET is_available = TRUE, updated_at = NOW() WHERE id = ANY($1)`

	if _, err := r.exec(ctx, stmt, ids); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("release items: %w", err)
	}
	return nil
}

// UpsertFromBot records an item actually held by the trading bot. Creates
// are sellable immediately; updates refresh display metadata without
// touching price or availability.
func (r *ItemRepository) UpsertFromBot(ctx context.Context, item domain.Item) error {
	const stmt = `
INSERT INTO items (asset_id, class_id, instance_id, name, market_hash_name, icon_url, rarity, exterior, type, price, steam_price, bot_steam_id, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, $10, TRUE)
ON CONFLICT (asset_id) DO UPDATE SET
	name = EXCLUDED.name,
	market_hash_name = EXCLUDED.market_hash_name,
	icon_url = EXCLUDED.icon_url,
	rarity = EXCLUDED.rarity,
	exterior = EXCLUDED.exterior,
	type = EXCLUDED.type,
	class_id = EXCLUDED.class_id,
	instance_id = EXCLUDED.instance_id,
	updated_at = NOW()`

	_, err := r.exec(ctx, stmt,
		item.AssetID,
		item.ClassID,
		item.InstanceID,
		item.Name,
		item.MarketHashName,
		item.IconURL,
		item.Rarity,
		item.Exterior,
		item.Type,
		item.BotSteamID,
	)
	if err != nil {
		return fmt.Errorf("upsert bot item %s: %w", item.AssetID, err)
	}
	return nil
}

// UpsertFromMarket records a priced catalog row sourced from public market
// data. Its asset id is synthetic, so the row is never flagged available:
// only the bot inventory sync can make an item sellable.
func (r *ItemRepository) UpsertFromMarket(ctx context.Context, item domain.Item) error {
	const stmt = `
INSERT INTO items (asset_id, class_id, instance_id, name, market_hash_name, icon_url, rarity, exterior, type, price, steam_price, bot_steam_id, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE)
ON CONFLICT (asset_id) DO UPDATE SET
	name = EXCLUDED.name,
	market_hash_name = EXCLUDED.market_hash_name,
	icon_url = EXCLUDED.icon_url,
	rarity = EXCLUDED.rarity,
	exterior = EXCLUDED.exterior,
	type = EXCLUDED.type,
	price = EXCLUDED.price,
	steam_price = EXCLUDED.steam_price,
	class_id = EXCLUDED.class_id,
	instance_id = EXCLUDED.instance_id,
	updated_at = NOW()`

	_, err := r.exec(ctx, stmt,
		item.AssetID,
		item.ClassID,
		item.InstanceID,
		item.Name,
		item.MarketHashName,
		item.IconURL,
		item.Rarity,
		item.Exterior,
		item.Type,
		item.Price,
		item.SteamPrice,
		domain.MarketSourceID,
	)
	if err != nil {
		return fmt.Errorf("upsert market item %s: %w", item.AssetID, err)
	}
	return nil
}

func (r *ItemRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ItemRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
