package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	marketSearchPath  = "/market/search/render/"
	marketAppID       = "730"
	marketItemsPage   = 10 // the market search endpoint caps at 10 results per request
	marketRequestGap  = 3500 * time.Millisecond
	marketCDNBase     = "https://community.fastly.steamstatic.com/economy/image/"
	DefaultMarketBase = "https://steamcommunity.com"
)

// Weapon skins only; cases, stickers and agents are filtered out.
var weaponTypeTags = []string{
	"tag_CSGO_Type_Pistol",
	"tag_CSGO_Type_SMG",
	"tag_CSGO_Type_Rifle",
	"tag_CSGO_Type_SniperRifle",
	"tag_CSGO_Type_Shotgun",
	"tag_CSGO_Type_Machinegun",
	"tag_CSGO_Type_Knife",
}

// MarketService ingests priced catalog rows from the public market search
// endpoint. Rows created here carry synthetic asset ids and are never
// sellable on their own; the bot inventory sync is what makes an item
// orderable.
type MarketService struct {
	http       *resty.Client
	catalog    CatalogStore
	log        *slog.Logger
	requestGap time.Duration
}

func NewMarketService(baseURL string, catalog CatalogStore, log *slog.Logger, opts ...MarketServiceOption) *MarketService {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept-Language", "en").
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	svc := &MarketService{
		http:       client,
		catalog:    catalog,
		log:        log,
		requestGap: marketRequestGap,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type MarketServiceOption func(*MarketService)

// WithMarketRequestGap overrides the delay between market pages (tests).
func WithMarketRequestGap(d time.Duration) MarketServiceOption {
	return func(s *MarketService) {
		s.requestGap = d
	}
}

type marketResponse struct {
	Success    bool           `json:"success"`
	TotalCount int            `json:"total_count"`
	Results    []marketResult `json:"results"`
}

type marketResult struct {
	Name             string `json:"name"`
	HashName         string `json:"hash_name"`
	SellPrice        int64  `json:"sell_price"`
	SellListings     int    `json:"sell_listings"`
	AssetDescription struct {
		ClassID    string `json:"classid"`
		InstanceID string `json:"instanceid"`
		IconURL    string `json:"icon_url"`
		Type       string `json:"type"`
	} `json:"asset_description"`
}

// SyncFromMarket pages through the market search results and upserts up to
// totalItems catalog rows, pausing between pages to respect rate limits.
// A page failure ends the run without failing it; the count synced so far
// is returned.
func (s *MarketService) SyncFromMarket(ctx context.Context, totalItems int) (int, error) {
	s.log.Info("starting market sync", "total_items", totalItems)

	pages := (totalItems + marketItemsPage - 1) / marketItemsPage
	synced := 0

	for page := 0; page < pages; page++ {
		start := page * marketItemsPage

		data, err := s.fetchPage(ctx, start)
		if err != nil {
			s.log.Error("failed to fetch market page", "start", start, "err", err)
			break
		}
		if !data.Success || len(data.Results) == 0 {
			s.log.Warn("empty or failed market response", "start", start)
			break
		}

		for _, result := range data.Results {
			if err := s.catalog.UpsertFromMarket(ctx, itemFromMarketResult(result)); err != nil {
				return synced, err
			}
			synced++
		}

		s.log.Info("market sync page complete", "page", page+1, "pages", pages, "synced", synced)

		if page < pages-1 {
			select {
			case <-time.After(s.requestGap):
			case <-ctx.Done():
				return synced, ctx.Err()
			}
		}
	}

	s.log.Info("market sync complete", "synced", synced)
	return synced, nil
}

func (s *MarketService) fetchPage(ctx context.Context, start int) (marketResponse, error) {
	params := url.Values{}
	params.Set("appid", marketAppID)
	params.Set("norender", "1")
	params.Set("count", strconv.Itoa(marketItemsPage))
	params.Set("start", strconv.Itoa(start))
	params.Set("sort_column", "popular")
	params.Set("sort_dir", "desc")
	for _, tag := range weaponTypeTags {
		params.Add("category_730_Type[]", tag)
	}

	var out marketResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		SetResult(&out).
		Get(marketSearchPath)
	if err != nil {
		return marketResponse{}, err
	}
	if resp.IsError() {
		return marketResponse{}, fmt.Errorf("market responded with %d", resp.StatusCode())
	}
	return out, nil
}

func itemFromMarketResult(result marketResult) domain.Item {
	_, skinName, exterior := parseMarketName(result.Name)
	name := skinName
	if name == "" {
		name = result.Name
	}

	price := decimal.New(result.SellPrice, -2)

	return domain.Item{
		AssetID:        syntheticAssetID(result.HashName),
		ClassID:        result.AssetDescription.ClassID,
		InstanceID:     result.AssetDescription.InstanceID,
		Name:           name,
		MarketHashName: result.HashName,
		IconURL:        marketCDNBase + result.AssetDescription.IconURL,
		Rarity:         parseRarity(result.AssetDescription.Type),
		Exterior:       exteriorCode(exterior),
		Type:           parseWeaponType(result.AssetDescription.Type),
		Price:          price,
		SteamPrice:     price,
		BotSteamID:     domain.MarketSourceID,
	}
}

// parseMarketName splits "AK-47 | Redline (Field-Tested)" into weapon,
// skin name and exterior.
func parseMarketName(name string) (weapon, skinName, exterior string) {
	if idx := strings.LastIndex(name, "("); idx != -1 && strings.HasSuffix(name, ")") {
		exterior = name[idx+1 : len(name)-1]
		name = strings.TrimSpace(name[:idx])
	}

	name = strings.TrimPrefix(name, "★")
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "StatTrak™")
	name = strings.TrimSpace(name)

	weapon, skinName, found := strings.Cut(name, " | ")
	if !found {
		return name, "", exterior
	}
	return strings.TrimSpace(weapon), strings.TrimSpace(skinName), exterior
}

var exteriorCodes = map[string]string{
	"Factory New":    "FN",
	"Minimal Wear":   "MW",
	"Field-Tested":   "FT",
	"Well-Worn":      "WW",
	"Battle-Scarred": "BS",
}

func exteriorCode(exterior string) string {
	if exterior == "" {
		return ""
	}
	if code, ok := exteriorCodes[exterior]; ok {
		return code
	}
	return exterior
}

var rarityNames = []struct{ key, value string }{
	{"consumer grade", "Consumer"},
	{"industrial grade", "Industrial"},
	{"mil-spec grade", "Mil-Spec"},
	{"restricted", "Restricted"},
	{"classified", "Classified"},
	{"covert", "Covert"},
	{"contraband", "Contraband"},
	{"extraordinary", "Covert"},
}

// parseRarity extracts the rarity from descriptions like
// "Mil-Spec Grade Rifle".
func parseRarity(description string) string {
	lower := strings.ToLower(description)
	for _, entry := range rarityNames {
		if strings.Contains(lower, entry.key) {
			return entry.value
		}
	}
	return "Unknown"
}

var weaponTypeNames = []struct{ key, value string }{
	{"sniper rifle", "Sniper Rifle"},
	{"pistol", "Pistol"},
	{"smg", "SMG"},
	{"rifle", "Rifle"},
	{"shotgun", "Shotgun"},
	{"machinegun", "Machinegun"},
	{"knife", "Knife"},
}

// parseWeaponType extracts the weapon class from descriptions like
// "Mil-Spec Grade Rifle".
func parseWeaponType(description string) string {
	lower := strings.ToLower(description)
	for _, entry := range weaponTypeNames {
		if strings.Contains(lower, entry.key) {
			return entry.value
		}
	}
	return "Other"
}

// syntheticAssetID derives a deterministic asset id for market-sourced
// rows, which have no platform-issued asset id. These never collide with
// genuine asset ids and never become sellable.
func syntheticAssetID(hashName string) string {
	sum := sha256.Sum256([]byte(hashName))
	return hex.EncodeToString(sum[:])[:24]
}
