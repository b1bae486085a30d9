package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is an identity bound to an external Steam account. TradeURL is the
// delivery address for peer-to-peer transfers; orders are rejected while it
// is empty.
type User struct {
	ID          string
	SteamID     string
	DisplayName string
	Avatar      string
	TradeURL    string
	Balance     decimal.Decimal
	CreatedAt   time.Time
}
