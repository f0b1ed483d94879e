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

// CartHandlers exposes the buyer cart endpoints.
type CartHandlers struct {
	authn *auth.Authenticator
	cart  services.CartService
}

// NewCartHandlers constructs a new CartHandlers instance.
func NewCartHandlers(authn *auth.Authenticator, cart services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		cart:  cart,
	}
}

// Routes registers the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.upsertItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.Delete("/", h.clearCart)
}

type upsertCartItemRequest struct {
	ProductID     string            `json:"product_id"`
	Quantity      int               `json:"quantity"`
	Customization map[string]string `json:"customization"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	cart, err := h.cart.GetCart(ctx, actor.ID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) upsertItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req upsertCartItemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cart, err := h.cart.UpsertItem(ctx, services.UpsertCartItemCommand{
		BuyerID:       actor.ID,
		ProductID:     strings.TrimSpace(req.ProductID),
		Quantity:      req.Quantity,
		Customization: req.Customization,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := requireURLParam(w, r, "productID")
	if !ok {
		return
	}

	cart, err := h.cart.RemoveItem(ctx, services.RemoveCartItemCommand{
		BuyerID:   actor.ID,
		ProductID: productID,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.cart.ClearCart(ctx, actor.ID); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "cart cleared", nil)
}

// Payload shapes -----------------------------------------------------------

type cartItemPayload struct {
	ProductID     string            `json:"product_id"`
	Quantity      int               `json:"quantity"`
	Customization map[string]string `json:"customization,omitempty"`
	AddedAt       string            `json:"added_at"`
}

type cartPayload struct {
	ID        string            `json:"id"`
	BuyerID   string            `json:"buyer_id"`
	Items     []cartItemPayload `json:"items"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

func buildCartPayload(cart domain.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			Customization: item.Customization,
			AddedAt:       formatTime(item.AddedAt),
		})
	}
	return cartPayload{
		ID:        cart.ID,
		BuyerID:   cart.BuyerID,
		Items:     items,
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("item_unavailable", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "item not in cart", http.StatusNotFound))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}
