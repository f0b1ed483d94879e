package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/platform/auth"
	"github.com/craftline/api/internal/platform/httpx"
	"github.com/craftline/api/internal/services"
)

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/artisan/dashboard", h.artisanDashboard)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}/status", h.updateStatus)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

type orderItemInput struct {
	ProductID     string            `json:"product_id"`
	Quantity      int               `json:"quantity"`
	Customization map[string]string `json:"customization"`
}

type createOrderRequest struct {
	Items           []orderItemInput `json:"items"`
	ShippingAddress addressInput     `json:"shipping_address"`
	BillingAddress  *addressInput    `json:"billing_address"`
	PaymentMethod   string           `json:"payment_method"`
	Notes           string           `json:"notes"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{
			ProductID:     strings.TrimSpace(item.ProductID),
			Quantity:      item.Quantity,
			Customization: item.Customization,
		})
	}

	cmd := services.CreateOrderCommand{
		BuyerID:         actor.ID,
		Items:           items,
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Notes:           strings.TrimSpace(req.Notes),
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		cmd.BillingAddress = &billing
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	pager, ok := parsePageParams(w, r)
	if !ok {
		return
	}

	var statuses []domain.OrderStatus
	for _, raw := range r.URL.Query()["status"] {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw != "" {
			statuses = append(statuses, domain.OrderStatus(raw))
		}
	}

	page, err := h.orders.ListOrders(ctx, services.ListOrdersCommand{
		Actor:      actor,
		Status:     statuses,
		Pagination: pager,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	httpx.WriteData(w, http.StatusOK, orderListPayload{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actor)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: orderID,
		Target:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Note:    strings.TrimSpace(req.Note),
		Actor:   actor,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}

	var req cancelOrderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
		Actor:   actor,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) artisanDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !actor.HasRole(services.RoleArtisan) && !actor.IsAdmin() {
		httpx.WriteError(ctx, w, httpx.NewError("access_denied", "artisan role required", http.StatusForbidden))
		return
	}

	artisanID := actor.ID
	// Admins may inspect any artisan's dashboard.
	if actor.IsAdmin() {
		if override := strings.TrimSpace(r.URL.Query().Get("artisan_id")); override != "" {
			artisanID = override
		}
	}

	dashboard, err := h.orders.ArtisanDashboard(ctx, artisanID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	counts := make(map[string]int, len(dashboard.StatusCounts))
	for status, count := range dashboard.StatusCounts {
		counts[string(status)] = count
	}
	recent := make([]orderSummaryPayload, 0, len(dashboard.RecentOrders))
	for _, order := range dashboard.RecentOrders {
		recent = append(recent, buildOrderSummary(order))
	}
	httpx.WriteData(w, http.StatusOK, dashboardPayload{
		StatusCounts: counts,
		RecentOrders: recent,
		TotalOrders:  dashboard.TotalOrders,
	})
}

// Payload shapes -----------------------------------------------------------

type orderListPayload struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type dashboardPayload struct {
	StatusCounts map[string]int        `json:"status_counts"`
	RecentOrders []orderSummaryPayload `json:"recent_orders"`
	TotalOrders  int                   `json:"total_orders"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Total       int64  `json:"total"`
	ItemCount   int    `json:"item_count"`
	CreatedAt   string `json:"created_at"`
}

type orderPayload struct {
	ID              string               `json:"id"`
	OrderNumber     string               `json:"order_number"`
	BuyerID         string               `json:"buyer_id"`
	Status          string               `json:"status"`
	Items           []orderItemPayload   `json:"items"`
	Totals          orderTotalsPayload   `json:"totals"`
	Payment         orderPaymentPayload  `json:"payment"`
	ShippingAddress addressPayload       `json:"shipping_address"`
	BillingAddress  addressPayload       `json:"billing_address"`
	Timeline        []timelinePayload    `json:"timeline"`
	Cancellation    *cancellationPayload `json:"cancellation,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	DeliveredAt     string               `json:"delivered_at,omitempty"`
	CreatedAt       string               `json:"created_at"`
	UpdatedAt       string               `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductID     string            `json:"product_id"`
	ArtisanID     string            `json:"artisan_id"`
	ArtisanName   string            `json:"artisan_name,omitempty"`
	Title         string            `json:"title"`
	Image         string            `json:"image,omitempty"`
	Quantity      int               `json:"quantity"`
	UnitPrice     int64             `json:"unit_price"`
	Subtotal      int64             `json:"subtotal"`
	Customization map[string]string `json:"customization,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

type orderPaymentPayload struct {
	Method string `json:"method"`
	Status string `json:"status"`
}

type timelinePayload struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
	CreatedAt string `json:"created_at"`
}

type cancellationPayload struct {
	Reason       string `json:"reason,omitempty"`
	ActorID      string `json:"actor_id"`
	ActorRole    string `json:"actor_role"`
	RefundStatus string `json:"refund_status"`
	CancelledAt  string `json:"cancelled_at"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Total:       order.Totals.Total,
		ItemCount:   len(order.Items),
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		Status:      string(order.Status),
		Items:       make([]orderItemPayload, 0, len(order.Items)),
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Shipping: order.Totals.Shipping,
			Tax:      order.Totals.Tax,
			Discount: order.Totals.Discount,
			Total:    order.Totals.Total,
		},
		Payment: orderPaymentPayload{
			Method: string(order.Payment.Method),
			Status: string(order.Payment.Status),
		},
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		BillingAddress:  buildAddressPayload(order.BillingAddress),
		Timeline:        make([]timelinePayload, 0, len(order.Timeline)),
		Notes:           order.Notes,
		DeliveredAt:     formatTimePtr(order.DeliveredAt),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:     item.ProductID,
			ArtisanID:     item.ArtisanID,
			ArtisanName:   item.ArtisanName,
			Title:         item.Title,
			Image:         item.Image,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Subtotal:      item.Subtotal,
			Customization: item.Customization,
		})
	}
	for _, entry := range order.Timeline {
		payload.Timeline = append(payload.Timeline, timelinePayload{
			Status:    string(entry.Status),
			Note:      entry.Note,
			ActorID:   entry.ActorID,
			ActorRole: entry.ActorRole,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	if order.Cancellation != nil {
		payload.Cancellation = &cancellationPayload{
			Reason:       order.Cancellation.Reason,
			ActorID:      order.Cancellation.ActorID,
			ActorRole:    order.Cancellation.ActorRole,
			RefundStatus: string(order.Cancellation.RefundStatus),
			CancelledAt:  formatTime(order.Cancellation.CancelledAt),
		}
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("item_unavailable", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderAccessDenied):
		httpx.WriteError(ctx, w, httpx.NewError("access_denied", "not allowed to access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
