package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a unique tradable unit, not a SKU: every row carries a unique
// external asset id. Rows sourced from the public market carry a synthetic
// asset id and BotSteamID set to MarketSourceID until the bot actually
// holds them.
type Item struct {
	ID             string
	AssetID        string
	ClassID        string
	InstanceID     string
	Name           string
	MarketHashName string
	IconURL        string
	Rarity         string
	Exterior       string
	Type           string
	Price          decimal.Decimal
	SteamPrice     decimal.Decimal
	BotSteamID     string
	IsAvailable    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MarketSourceID marks items ingested from public market data rather than
// the bot's inventory. Such items are never flagged available.
const MarketSourceID = "market"
