package app

import (
	"context"
	"log/slog"

	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/TorentoFlag/skin-vault/internal/trade"
)

// CatalogStore writes catalog rows produced by the sync jobs.
type CatalogStore interface {
	UpsertFromBot(ctx context.Context, item domain.Item) error
	UpsertFromMarket(ctx context.Context, item domain.Item) error
}

// InventoryService mirrors the trading agent's holdings into the item
// catalog. Only items that pass through here ever become sellable.
type InventoryService struct {
	agent      trade.Agent
	catalog    CatalogStore
	botSteamID string
	log        *slog.Logger
}

func NewInventoryService(agent trade.Agent, catalog CatalogStore, botSteamID string, log *slog.Logger) *InventoryService {
	return &InventoryService{
		agent:      agent,
		catalog:    catalog,
		botSteamID: botSteamID,
		log:        log,
	}
}

// SyncFromBot upserts every item the agent currently holds, keyed by the
// platform-issued asset id.
func (s *InventoryService) SyncFromBot(ctx context.Context) error {
	inventory, err := s.agent.Inventory(ctx)
	if err != nil {
		return err
	}
	s.log.Info("syncing bot inventory", "count", len(inventory))

	for _, entry := range inventory {
		item := domain.Item{
			AssetID:        entry.AssetID,
			ClassID:        entry.ClassID,
			InstanceID:     entry.InstanceID,
			Name:           entry.Name,
			MarketHashName: entry.MarketHashName,
			IconURL:        entry.IconURL,
			Rarity:         orUnknown(entry.Rarity),
			Exterior:       entry.Exterior,
			Type:           orUnknown(entry.Type),
			BotSteamID:     s.botSteamID,
		}
		if err := s.catalog.UpsertFromBot(ctx, item); err != nil {
			return err
		}
	}

	s.log.Info("inventory sync complete", "count", len(inventory))
	return nil
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}
