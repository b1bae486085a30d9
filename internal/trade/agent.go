// Package trade defines the capability contract for the external
// peer-to-peer trading agent. The pipeline depends only on Agent; the
// gateway client owns connection and session state.
package trade

import "context"

// OfferState is the external platform's transfer status code.
type OfferState int

const (
	OfferStateAccepted     OfferState = 3
	OfferStateExpired      OfferState = 5
	OfferStateCancelled    OfferState = 6
	OfferStateDeclined     OfferState = 7
	OfferStateInvalidItems OfferState = 8
)

// TerminalFailure reports whether the state ends the transfer without
// delivery.
func (s OfferState) TerminalFailure() bool {
	switch s {
	case OfferStateExpired, OfferStateCancelled, OfferStateDeclined, OfferStateInvalidItems:
		return true
	}
	return false
}

// InventoryItem is one tradable unit currently held by the agent.
type InventoryItem struct {
	AssetID        string `json:"asset_id"`
	ClassID        string `json:"class_id"`
	InstanceID     string `json:"instance_id"`
	Name           string `json:"name"`
	MarketHashName string `json:"market_hash_name"`
	IconURL        string `json:"icon_url"`
	Rarity         string `json:"rarity"`
	Exterior       string `json:"exterior"`
	Type           string `json:"type"`
}

// Agent is the injected trading capability.
type Agent interface {
	// Ready reports whether the agent has an authenticated session.
	Ready(ctx context.Context) (bool, error)
	// Inventory lists the items the agent currently holds.
	Inventory(ctx context.Context) ([]InventoryItem, error)
	// SendOffer initiates a transfer of the given assets to the trade URL
	// and returns the transfer handle.
	SendOffer(ctx context.Context, tradeURL string, assetIDs []string) (string, error)
	// OfferState queries the current state of a transfer.
	OfferState(ctx context.Context, offerID string) (OfferState, error)
	// CancelOffer withdraws a pending transfer.
	CancelOffer(ctx context.Context, offerID string) error
}
