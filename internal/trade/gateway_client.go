package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// GatewayClient talks to the bot gateway sidecar, which holds the actual
// Steam session. All calls are plain HTTP; a non-2xx response is an error.
type GatewayClient struct {
	http *resty.Client
}

func NewGatewayClient(baseURL, apiKey string) *GatewayClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Authorization", "Bearer "+apiKey)
	return &GatewayClient{http: c}
}

func (c *GatewayClient) Ready(ctx context.Context) (bool, error) {
	var out struct {
		Ready bool `json:"ready"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/ready")
	if err != nil {
		return false, fmt.Errorf("bot gateway ready check: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("bot gateway ready check: status %d", resp.StatusCode())
	}
	return out.Ready, nil
}

func (c *GatewayClient) Inventory(ctx context.Context) ([]InventoryItem, error) {
	var out struct {
		Items []InventoryItem `json:"items"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/inventory")
	if err != nil {
		return nil, fmt.Errorf("bot gateway inventory: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bot gateway inventory: status %d", resp.StatusCode())
	}
	return out.Items, nil
}

func (c *GatewayClient) SendOffer(ctx context.Context, tradeURL string, assetIDs []string) (string, error) {
	body := map[string]any{
		"trade_url": tradeURL,
		"asset_ids": assetIDs,
	}
	var out struct {
		OfferID string `json:"offer_id"`
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/offers")
	if err != nil {
		return "", fmt.Errorf("bot gateway send offer: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("bot gateway send offer: status %d", resp.StatusCode())
	}
	return out.OfferID, nil
}

func (c *GatewayClient) OfferState(ctx context.Context, offerID string) (OfferState, error) {
	var out struct {
		State int `json:"state"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/offers/" + offerID)
	if err != nil {
		return 0, fmt.Errorf("bot gateway offer state: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("bot gateway offer state: status %d", resp.StatusCode())
	}
	return OfferState(out.State), nil
}

func (c *GatewayClient) CancelOffer(ctx context.Context, offerID string) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/offers/" + offerID)
	if err != nil {
		return fmt.Errorf("bot gateway cancel offer: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bot gateway cancel offer: status %d", resp.StatusCode())
	}
	return nil
}
