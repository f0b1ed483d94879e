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

// ProductHandlers exposes the catalog endpoints. Reads are public; mutations
// require the artisan or admin role.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(public chi.Router) {
		if h.authn != nil {
			public.Use(h.authn.OptionalAuth())
		}
		public.Get("/", h.listProducts)
		public.Get("/{productID}", h.getProduct)
	})

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth(services.RoleArtisan, services.RoleAdmin))
		}
		protected.Post("/", h.createProduct)
		protected.Put("/{productID}", h.updateProduct)
		protected.Delete("/{productID}", h.deleteProduct)
		protected.Post("/{productID}/images", h.issueImageUpload)
	})
}

type productInventoryInput struct {
	Quantity          int  `json:"quantity"`
	TrackInventory    bool `json:"track_inventory"`
	LowStockThreshold int  `json:"low_stock_threshold"`
}

type createProductRequest struct {
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Category        string                 `json:"category"`
	Images          []string               `json:"images"`
	Price           int64                  `json:"price"`
	Currency        string                 `json:"currency"`
	DiscountPercent float64                `json:"discount_percent"`
	Inventory       *productInventoryInput `json:"inventory"`
	Active          *bool                  `json:"active"`
}

type updateProductRequest struct {
	Title           *string                `json:"title"`
	Description     *string                `json:"description"`
	Category        *string                `json:"category"`
	Images          []string               `json:"images"`
	Price           *int64                 `json:"price"`
	DiscountPercent *float64               `json:"discount_percent"`
	Inventory       *productInventoryInput `json:"inventory"`
	Active          *bool                  `json:"active"`
}

type imageUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createProductRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := services.CreateProductCommand{
		ArtisanID:       actor.ID,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		Category:        strings.TrimSpace(req.Category),
		Images:          req.Images,
		Price:           req.Price,
		Currency:        strings.TrimSpace(req.Currency),
		DiscountPercent: req.DiscountPercent,
		Active:          req.Active,
	}
	if req.Inventory != nil {
		cmd.Inventory = domain.ProductInventory{
			Quantity:          req.Inventory.Quantity,
			TrackInventory:    req.Inventory.TrackInventory,
			LowStockThreshold: req.Inventory.LowStockThreshold,
		}
	}

	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, buildProductPayload(product))
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := requireURLParam(w, r, "productID")
	if !ok {
		return
	}

	var req updateProductRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:       productID,
		Actor:           actor,
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		Images:          req.Images,
		Price:           req.Price,
		DiscountPercent: req.DiscountPercent,
		Active:          req.Active,
	}
	if req.Inventory != nil {
		cmd.Inventory = &domain.ProductInventory{
			Quantity:          req.Inventory.Quantity,
			TrackInventory:    req.Inventory.TrackInventory,
			LowStockThreshold: req.Inventory.LowStockThreshold,
		}
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := requireURLParam(w, r, "productID")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(ctx, services.DeleteProductCommand{ProductID: productID, Actor: actor}); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "product deleted", nil)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, ok := requireURLParam(w, r, "productID")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID, optionalActor(r))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pager, ok := parsePageParams(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	cmd := services.ListProductsCommand{
		ArtisanID:       strings.TrimSpace(query.Get("artisan_id")),
		Category:        strings.ToLower(strings.TrimSpace(query.Get("category"))),
		Search:          strings.TrimSpace(query.Get("search")),
		IncludeInactive: parseBoolQuery(r, "include_inactive"),
		Actor:           optionalActor(r),
		Pagination:      pager,
	}

	page, err := h.catalog.ListProducts(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	httpx.WriteData(w, http.StatusOK, productListPayload{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *ProductHandlers) issueImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := requireURLParam(w, r, "productID")
	if !ok {
		return
	}

	var req imageUploadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	signed, err := h.catalog.IssueImageUploadURL(ctx, services.ProductImageUploadCommand{
		ProductID:   productID,
		Actor:       actor,
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, buildSignedUploadPayload(signed))
}

// Payload shapes -----------------------------------------------------------

type productListPayload struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productInventoryPayload struct {
	Quantity          int  `json:"quantity"`
	TrackInventory    bool `json:"track_inventory"`
	LowStockThreshold int  `json:"low_stock_threshold"`
	LowStock          bool `json:"low_stock"`
}

type productPayload struct {
	ID              string                  `json:"id"`
	ArtisanID       string                  `json:"artisan_id"`
	SKU             string                  `json:"sku,omitempty"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description,omitempty"`
	Category        string                  `json:"category,omitempty"`
	Images          []string                `json:"images,omitempty"`
	Price           int64                   `json:"price"`
	Currency        string                  `json:"currency"`
	DiscountPercent float64                 `json:"discount_percent,omitempty"`
	DiscountedPrice int64                   `json:"discounted_price"`
	Inventory       productInventoryPayload `json:"inventory"`
	TotalSold       int                     `json:"total_sold"`
	Rating          ratingSummaryPayload    `json:"rating"`
	Active          bool                    `json:"active"`
	CreatedAt       string                  `json:"created_at"`
	UpdatedAt       string                  `json:"updated_at,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:              product.ID,
		ArtisanID:       product.ArtisanID,
		SKU:             product.SKU,
		Title:           product.Title,
		Description:     product.Description,
		Category:        product.Category,
		Images:          product.Images,
		Price:           product.Price,
		Currency:        product.Currency,
		DiscountPercent: product.DiscountPercent,
		DiscountedPrice: product.DiscountedPrice(),
		Inventory: productInventoryPayload{
			Quantity:          product.Inventory.Quantity,
			TrackInventory:    product.Inventory.TrackInventory,
			LowStockThreshold: product.Inventory.LowStockThreshold,
			LowStock:          product.LowStock(),
		},
		TotalSold: product.TotalSold,
		Rating: ratingSummaryPayload{
			Average: product.Rating.Average,
			Count:   product.Rating.Count,
		},
		Active:    product.Active,
		CreatedAt: formatTime(product.CreatedAt),
		UpdatedAt: formatTime(product.UpdatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogAccessDenied):
		httpx.WriteError(ctx, w, httpx.NewError("access_denied", "not allowed to modify this product", http.StatusForbidden))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUploadsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("uploads_disabled", "image uploads are not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
