package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/app"
	"github.com/TorentoFlag/skin-vault/internal/domain"
	"github.com/shopspring/decimal"
)

type fakeOrderService struct {
	createIn  app.CreateOrderInput
	createRes app.CreateOrderResult
	createErr error
	order     domain.Order
	getErr    error
	orders    []domain.Order
	listErr   error
	cancelled []string
	cancelErr error
}

func (f *fakeOrderService) CreateOrder(_ context.Context, in app.CreateOrderInput) (app.CreateOrderResult, error) {
	f.createIn = in
	return f.createRes, f.createErr
}

func (f *fakeOrderService) GetOrder(_ context.Context, orderID, userID string) (domain.Order, error) {
	return f.order, f.getErr
}

func (f *fakeOrderService) ListOrders(_ context.Context, userID string) ([]domain.Order, error) {
	return f.orders, f.listErr
}

func (f *fakeOrderService) CancelOrder(_ context.Context, orderID, userID string) error {
	f.cancelled = append(f.cancelled, orderID+":"+userID)
	return f.cancelErr
}

func authed(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}

func TestHandleOrders_Create(t *testing.T) {
	t.Parallel()

	order := domain.Order{
		ID:         "ord-1",
		UserID:     "usr-1",
		Status:     domain.OrderStatusPending,
		TotalPrice: decimal.RequireFromString("30.00"),
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("returns order and payment url", func(t *testing.T) {
		svc := &fakeOrderService{createRes: app.CreateOrderResult{
			Order:      order,
			PaymentURL: "https://checkout.stripe.com/pay/cs_123",
		}}
		body := strings.NewReader(`{"item_ids":["item-1","item-2"]}`)
		req := authed(httptest.NewRequest(http.MethodPost, "/orders", body), "usr-1")
		rec := httptest.NewRecorder()

		HandleOrders(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if svc.createIn.UserID != "usr-1" {
			t.Fatalf("expected user from context, got %q", svc.createIn.UserID)
		}
		var resp createOrderResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Order.ID != "ord-1" || resp.PaymentURL == "" {
			t.Fatalf("unexpected response: %+v", resp)
		}
	})

	t.Run("rejects empty item list", func(t *testing.T) {
		svc := &fakeOrderService{}
		req := authed(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"item_ids":[]}`)), "usr-1")
		rec := httptest.NewRecorder()

		HandleOrders(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("maps conflict errors to 409", func(t *testing.T) {
		for _, svcErr := range []error{
			domain.ErrActiveOrderExists,
			domain.ErrItemsUnavailable,
			domain.ErrItemsLocked,
		} {
			svc := &fakeOrderService{createErr: svcErr}
			req := authed(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"item_ids":["item-1"]}`)), "usr-1")
			rec := httptest.NewRecorder()

			HandleOrders(svc).ServeHTTP(rec, req)

			if rec.Code != http.StatusConflict {
				t.Fatalf("%v: expected status 409, got %d", svcErr, rec.Code)
			}
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		svc := &fakeOrderService{}
		req := authed(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":["item-1"]}`)), "usr-1")
		rec := httptest.NewRecorder()

		HandleOrders(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandleOrders_List(t *testing.T) {
	t.Parallel()

	svc := &fakeOrderService{orders: []domain.Order{
		{ID: "ord-1", Status: domain.OrderStatusCompleted},
		{ID: "ord-2", Status: domain.OrderStatusPending},
	}}
	req := authed(httptest.NewRequest(http.MethodGet, "/orders", nil), "usr-1")
	rec := httptest.NewRecorder()

	HandleOrders(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp []orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(resp))
	}
}

func TestHandleOrderByID(t *testing.T) {
	t.Parallel()

	t.Run("returns the order", func(t *testing.T) {
		svc := &fakeOrderService{order: domain.Order{ID: "ord-1", Status: domain.OrderStatusPaid}}
		req := authed(httptest.NewRequest(http.MethodGet, "/orders/ord-1", nil), "usr-1")
		rec := httptest.NewRecorder()

		HandleOrderByID(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("maps not found", func(t *testing.T) {
		svc := &fakeOrderService{getErr: domain.ErrOrderNotFound}
		req := authed(httptest.NewRequest(http.MethodGet, "/orders/ord-9", nil), "usr-1")
		rec := httptest.NewRecorder()

		HandleOrderByID(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("maps foreign order to 403", func(t *testing.T) {
		svc := &fakeOrderService{getErr: domain.ErrForbidden}
		req := authed(httptest.NewRequest(http.MethodGet, "/orders/ord-1", nil), "usr-2")
		rec := httptest.NewRecorder()

		HandleOrderByID(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d", rec.Code)
		}
	})

	t.Run("cancel succeeds with 204", func(t *testing.T) {
		svc := &fakeOrderService{}
		req := authed(httptest.NewRequest(http.MethodPost, "/orders/ord-1/cancel", nil), "usr-1")
		rec := httptest.NewRecorder()

		HandleOrderByID(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", rec.Code)
		}
		if len(svc.cancelled) != 1 || svc.cancelled[0] != "ord-1:usr-1" {
			t.Fatalf("expected cancel call, got %v", svc.cancelled)
		}
	})

	t.Run("cancel after payment conflicts", func(t *testing.T) {
		svc := &fakeOrderService{cancelErr: domain.ErrOrderNotCancellable}
		req := authed(httptest.NewRequest(http.MethodPost, "/orders/ord-1/cancel", nil), "usr-1")
		rec := httptest.NewRecorder()

		HandleOrderByID(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rec.Code)
		}
	})

	t.Run("unknown subpath is 404", func(t *testing.T) {
		svc := &fakeOrderService{}
		req := authed(httptest.NewRequest(http.MethodPost, "/orders/ord-1/refund", nil), "usr-1")
		rec := httptest.NewRecorder()

		HandleOrderByID(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})
}
