package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/app"
	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/shopspring/decimal"
)

// OrderService is the minimal interface needed for the order endpoints.
type OrderService interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (app.CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID, userID string) (domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
	CancelOrder(ctx context.Context, orderID, userID string) error
}

// HandleOrders returns an HTTP handler for creating and listing orders.
func HandleOrders(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req createOrderRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			if len(req.ItemIDs) == 0 {
				writeError(w, http.StatusBadRequest, codeMissingRequiredField, "item_ids is required")
				return
			}

			res, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{
				UserID:  UserID(r.Context()),
				ItemIDs: req.ItemIDs,
			})
			if err != nil {
				writeOrderError(w, err)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(createOrderResponse{
				Order:      orderFromDomain(res.Order),
				PaymentURL: res.PaymentURL,
			})
		case http.MethodGet:
			orders, err := svc.ListOrders(r.Context(), UserID(r.Context()))
			if err != nil {
				writeOrderError(w, err)
				return
			}
			resp := make([]orderResponse, 0, len(orders))
			for _, order := range orders {
				resp = append(resp, orderFromDomain(order))
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleOrderByID returns an HTTP handler for fetching and cancelling a
// single order.
func HandleOrderByID(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, cancel, ok := parseOrderPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch {
		case cancel && r.Method == http.MethodPost:
			if err := svc.CancelOrder(r.Context(), orderID, UserID(r.Context())); err != nil {
				writeOrderError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case !cancel && r.Method == http.MethodGet:
			order, err := svc.GetOrder(r.Context(), orderID, UserID(r.Context()))
			if err != nil {
				writeOrderError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(orderFromDomain(order))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// parseOrderPath handles /orders/{id} and /orders/{id}/cancel.
func parseOrderPath(path string) (orderID string, cancel bool, ok bool) {
	rest, found := strings.CutPrefix(path, "/orders/")
	if !found || rest == "" {
		return "", false, false
	}
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	switch len(parts) {
	case 1:
		return parts[0], false, parts[0] != ""
	case 2:
		if parts[1] != "cancel" || parts[0] == "" {
			return "", false, false
		}
		return parts[0], true, true
	default:
		return "", false, false
	}
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case domain.ErrDuplicateItems:
		writeError(w, http.StatusBadRequest, codeDuplicateItems, err.Error())
	case domain.ErrTradeURLRequired:
		writeError(w, http.StatusBadRequest, codeTradeURLRequired, err.Error())
	case domain.ErrUserNotFound:
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err.Error())
	case domain.ErrOrderNotFound:
		writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
	case domain.ErrForbidden:
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	case domain.ErrActiveOrderExists:
		writeError(w, http.StatusConflict, codeActiveOrderExists, err.Error())
	case domain.ErrItemsUnavailable:
		writeError(w, http.StatusConflict, codeItemsUnavailable, err.Error())
	case domain.ErrItemsLocked:
		writeError(w, http.StatusConflict, codeItemsLocked, err.Error())
	case domain.ErrOrderNotCancellable:
		writeError(w, http.StatusConflict, codeOrderNotCancellable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type createOrderRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type createOrderResponse struct {
	Order      orderResponse `json:"order"`
	PaymentURL string        `json:"payment_url"`
}

type orderResponse struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	TotalPrice   decimal.Decimal     `json:"total_price"`
	TradeOfferID string              `json:"trade_offer_id,omitempty"`
	Items        []orderItemResponse `json:"items"`
	CreatedAt    time.Time           `json:"created_at"`
	PaidAt       *time.Time          `json:"paid_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

type orderItemResponse struct {
	ItemID          string          `json:"item_id"`
	Name            string          `json:"name"`
	IconURL         string          `json:"icon_url"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

func orderFromDomain(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, orderItemResponse{
			ItemID:          line.ItemID,
			Name:            line.Name,
			IconURL:         line.IconURL,
			PriceAtPurchase: line.PriceAtPurchase,
		})
	}
	return orderResponse{
		ID:           order.ID,
		Status:       string(order.Status),
		TotalPrice:   order.TotalPrice,
		TradeOfferID: order.TradeOfferID,
		Items:        items,
		CreatedAt:    order.CreatedAt,
		PaidAt:       order.PaidAt,
		CompletedAt:  order.CompletedAt,
	}
}
