package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/services"
)

type stubOrderService struct {
	createFn    func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error)
	getFn       func(ctx context.Context, orderID string, actor services.Actor) (domain.Order, error)
	listFn      func(ctx context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[domain.Order], error)
	updateFn    func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error)
	cancelFn    func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	dashboardFn func(ctx context.Context, artisanID string) (domain.ArtisanDashboard, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn == nil {
		return domain.Order{}, errors.New("unexpected CreateOrder call")
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, actor services.Actor) (domain.Order, error) {
	if s.getFn == nil {
		return domain.Order{}, errors.New("unexpected GetOrder call")
	}
	return s.getFn(ctx, orderID, actor)
}

func (s *stubOrderService) ListOrders(ctx context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[domain.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("unexpected ListOrders call")
	}
	return s.listFn(ctx, cmd)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	if s.updateFn == nil {
		return domain.Order{}, errors.New("unexpected UpdateStatus call")
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn == nil {
		return domain.Order{}, errors.New("unexpected CancelOrder call")
	}
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) ArtisanDashboard(ctx context.Context, artisanID string) (domain.ArtisanDashboard, error) {
	if s.dashboardFn == nil {
		return domain.ArtisanDashboard{}, errors.New("unexpected ArtisanDashboard call")
	}
	return s.dashboardFn(ctx, artisanID)
}

var _ services.OrderService = (*stubOrderService)(nil)

func sampleOrder() domain.Order {
	created := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          "ord_1",
		OrderNumber: "CL-20260315-001",
		BuyerID:     "buyer-1",
		Status:      domain.OrderStatusPending,
		Items: []domain.OrderLineItem{
			{ProductID: "prd_1", ArtisanID: "artisan-1", ArtisanName: "Asha Pottery", Title: "Ceramic Mug", Quantity: 2, UnitPrice: 900, Subtotal: 1800},
		},
		ShippingAddress: domain.Address{Recipient: "Asha", Line1: "12 Hill Rd", City: "Pune", PostalCode: "411001", Country: "IN"},
		BillingAddress:  domain.Address{Recipient: "Asha", Line1: "12 Hill Rd", City: "Pune", PostalCode: "411001", Country: "IN"},
		Totals:          domain.OrderTotals{Subtotal: 1800, Tax: 324, Total: 2124},
		Payment:         domain.OrderPayment{Method: domain.PaymentMethodCashOnDelivery, Status: domain.PaymentStatusPending},
		Timeline: []domain.TimelineEntry{
			{Status: domain.OrderStatusPending, ActorID: "buyer-1", ActorRole: "buyer", CreatedAt: created},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateOrderHandler(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandlers(nil, svc)

	body := map[string]any{
		"items": []map[string]any{
			{"product_id": " prd_1 ", "quantity": 2},
		},
		"shipping_address": map[string]any{
			"recipient": "Asha", "line1": "12 Hill Rd", "city": "Pune", "postal_code": "411001", "country": "IN",
		},
		"payment_method": "COD",
		"notes":          " gift wrap ",
	}
	req := asUser(newTestRequest(t, http.MethodPost, "/", body), "buyer-1", "buyer")
	rec := serveRoutes(t, h.Routes, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.BuyerID != "buyer-1" {
		t.Fatalf("expected buyer from identity, got %q", captured.BuyerID)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != "prd_1" {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}
	if captured.PaymentMethod != domain.PaymentMethodCashOnDelivery {
		t.Fatalf("expected payment method lowered to cod, got %q", captured.PaymentMethod)
	}
	if captured.Notes != "gift wrap" {
		t.Fatalf("expected trimmed notes, got %q", captured.Notes)
	}

	var payload orderPayload
	decodeData(t, rec, &payload)
	if payload.OrderNumber != "CL-20260315-001" {
		t.Fatalf("unexpected order number %q", payload.OrderNumber)
	}
	if payload.Totals.Total != 2124 {
		t.Fatalf("unexpected total %d", payload.Totals.Total)
	}
	if len(payload.Timeline) != 1 || payload.Timeline[0].Status != "pending" {
		t.Fatalf("unexpected timeline %+v", payload.Timeline)
	}
	if len(payload.Items) != 1 || payload.Items[0].ArtisanName != "Asha Pottery" {
		t.Fatalf("unexpected items %+v", payload.Items)
	}
}

func TestCreateOrderHandlerRequiresAuth(t *testing.T) {
	h := NewOrderHandlers(nil, &stubOrderService{})
	req := newTestRequest(t, http.MethodPost, "/", map[string]any{"items": []any{}})
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestCreateOrderHandlerMapsStockErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unavailable", services.ErrItemUnavailable, http.StatusBadRequest, "item_unavailable"},
		{"insufficient stock", services.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
		{"invalid input", services.ErrOrderInvalidInput, http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}
			h := NewOrderHandlers(nil, svc)
			req := asUser(newTestRequest(t, http.MethodPost, "/", map[string]any{"items": []any{}}), "buyer-1", "buyer")
			rec := serveRoutes(t, h.Routes, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d got %d", tc.wantStatus, rec.Code)
			}
			if env := decodeEnvelope(t, rec); env.Error != tc.wantCode {
				t.Fatalf("expected code %q got %q", tc.wantCode, env.Error)
			}
		})
	}
}

func TestGetOrderHandlerAccess(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string, actor services.Actor) (domain.Order, error) {
			if actor.ID != "buyer-1" {
				return domain.Order{}, services.ErrOrderAccessDenied
			}
			if orderID != "ord_1" {
				return domain.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandlers(nil, svc)

	rec := serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodGet, "/ord_1", nil), "buyer-1", "buyer"))
	if rec.Code != http.StatusOK {
		t.Fatalf("owner read: expected 200 got %d", rec.Code)
	}

	rec = serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodGet, "/ord_1", nil), "stranger", "buyer"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger read: expected 403 got %d", rec.Code)
	}

	rec = serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodGet, "/ord_missing", nil), "buyer-1", "buyer"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing order: expected 404 got %d", rec.Code)
	}
}

func TestListOrdersHandlerPassesFilters(t *testing.T) {
	var captured services.ListOrdersCommand
	svc := &stubOrderService{
		listFn: func(_ context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[domain.Order], error) {
			captured = cmd
			return domain.CursorPage[domain.Order]{Items: []domain.Order{sampleOrder()}, NextPageToken: "tok"}, nil
		},
	}
	h := NewOrderHandlers(nil, svc)

	req := asUser(newTestRequest(t, http.MethodGet, "/?status=pending&status=confirmed&pageSize=5", nil), "buyer-1", "buyer")
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(captured.Status) != 2 || captured.Status[0] != domain.OrderStatusPending {
		t.Fatalf("unexpected status filter %+v", captured.Status)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("expected page size 5 got %d", captured.Pagination.PageSize)
	}

	var payload orderListPayload
	decodeData(t, rec, &payload)
	if len(payload.Items) != 1 || payload.NextPageToken != "tok" {
		t.Fatalf("unexpected list payload %+v", payload)
	}
	if payload.Items[0].ItemCount != 1 {
		t.Fatalf("expected item count 1 got %d", payload.Items[0].ItemCount)
	}
}

func TestUpdateOrderStatusHandler(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	svc := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = cmd.Target
			return order, nil
		},
	}
	h := NewOrderHandlers(nil, svc)

	body := map[string]any{"status": "Shipped", "note": "left warehouse"}
	req := asUser(newTestRequest(t, http.MethodPut, "/ord_1/status", body), "artisan-1", "artisan")
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.Target != domain.OrderStatusShipped {
		t.Fatalf("expected normalised target shipped got %q", captured.Target)
	}
	if captured.Note != "left warehouse" {
		t.Fatalf("unexpected note %q", captured.Note)
	}
}

func TestUpdateOrderStatusHandlerInvalidTarget(t *testing.T) {
	svc := &stubOrderService{
		updateFn: func(context.Context, services.UpdateOrderStatusCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidStatus
		},
	}
	h := NewOrderHandlers(nil, svc)

	req := asUser(newTestRequest(t, http.MethodPut, "/ord_1/status", map[string]any{"status": "teleported"}), "artisan-1", "artisan")
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error != "invalid_status" {
		t.Fatalf("expected invalid_status got %q", env.Error)
	}
}

func TestCancelOrderHandler(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			order.Cancellation = &domain.Cancellation{
				Reason:       cmd.Reason,
				ActorID:      cmd.Actor.ID,
				ActorRole:    "buyer",
				RefundStatus: domain.RefundStatusPending,
				CancelledAt:  time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC),
			}
			return order, nil
		},
	}
	h := NewOrderHandlers(nil, svc)

	req := asUser(newTestRequest(t, http.MethodPost, "/ord_1/cancel", map[string]any{"reason": "changed my mind"}), "buyer-1", "buyer")
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload orderPayload
	decodeData(t, rec, &payload)
	if payload.Status != "cancelled" {
		t.Fatalf("expected cancelled got %q", payload.Status)
	}
	if payload.Cancellation == nil || payload.Cancellation.RefundStatus != "pending" {
		t.Fatalf("unexpected cancellation %+v", payload.Cancellation)
	}
}

func TestCancelOrderHandlerTooLate(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidTransition
		},
	}
	h := NewOrderHandlers(nil, svc)

	req := asUser(newTestRequest(t, http.MethodPost, "/ord_1/cancel", map[string]any{"reason": "too slow"}), "buyer-1", "buyer")
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error != "invalid_transition" {
		t.Fatalf("expected invalid_transition got %q", env.Error)
	}
}

func TestArtisanDashboardHandler(t *testing.T) {
	svc := &stubOrderService{
		dashboardFn: func(_ context.Context, artisanID string) (domain.ArtisanDashboard, error) {
			if artisanID != "artisan-1" {
				return domain.ArtisanDashboard{}, services.ErrOrderNotFound
			}
			return domain.ArtisanDashboard{
				StatusCounts: map[domain.OrderStatus]int{domain.OrderStatusPending: 3, domain.OrderStatusShipped: 1},
				RecentOrders: []domain.Order{sampleOrder()},
				TotalOrders:  4,
			}, nil
		},
	}
	h := NewOrderHandlers(nil, svc)

	req := asUser(newTestRequest(t, http.MethodGet, "/artisan/dashboard", nil), "artisan-1", "artisan")
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload dashboardPayload
	decodeData(t, rec, &payload)
	if payload.TotalOrders != 4 {
		t.Fatalf("expected 4 orders got %d", payload.TotalOrders)
	}
	if payload.StatusCounts["pending"] != 3 {
		t.Fatalf("unexpected counts %+v", payload.StatusCounts)
	}
	if len(payload.RecentOrders) != 1 {
		t.Fatalf("expected one recent order got %d", len(payload.RecentOrders))
	}
}

func TestArtisanDashboardHandlerRejectsBuyers(t *testing.T) {
	h := NewOrderHandlers(nil, &stubOrderService{})
	req := asUser(newTestRequest(t, http.MethodGet, "/artisan/dashboard", nil), "buyer-1", "buyer")
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestArtisanDashboardHandlerAdminOverride(t *testing.T) {
	var requested string
	svc := &stubOrderService{
		dashboardFn: func(_ context.Context, artisanID string) (domain.ArtisanDashboard, error) {
			requested = artisanID
			return domain.ArtisanDashboard{StatusCounts: map[domain.OrderStatus]int{}}, nil
		},
	}
	h := NewOrderHandlers(nil, svc)

	req := asUser(newTestRequest(t, http.MethodGet, "/artisan/dashboard?artisan_id=artisan-9", nil), "admin-1", "admin")
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if requested != "artisan-9" {
		t.Fatalf("expected admin override to artisan-9 got %q", requested)
	}
}
