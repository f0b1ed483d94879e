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

type stubCatalogService struct {
	createFn func(ctx context.Context, cmd services.CreateProductCommand) (domain.Product, error)
	updateFn func(ctx context.Context, cmd services.UpdateProductCommand) (domain.Product, error)
	deleteFn func(ctx context.Context, cmd services.DeleteProductCommand) error
	getFn    func(ctx context.Context, productID string, actor *services.Actor) (domain.Product, error)
	listFn   func(ctx context.Context, cmd services.ListProductsCommand) (domain.CursorPage[domain.Product], error)
	uploadFn func(ctx context.Context, cmd services.ProductImageUploadCommand) (domain.SignedAssetResponse, error)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (domain.Product, error) {
	if s.createFn == nil {
		return domain.Product{}, errors.New("unexpected CreateProduct call")
	}
	return s.createFn(ctx, cmd)
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (domain.Product, error) {
	if s.updateFn == nil {
		return domain.Product{}, errors.New("unexpected UpdateProduct call")
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, cmd services.DeleteProductCommand) error {
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteProduct call")
	}
	return s.deleteFn(ctx, cmd)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string, actor *services.Actor) (domain.Product, error) {
	if s.getFn == nil {
		return domain.Product{}, errors.New("unexpected GetProduct call")
	}
	return s.getFn(ctx, productID, actor)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, cmd services.ListProductsCommand) (domain.CursorPage[domain.Product], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("unexpected ListProducts call")
	}
	return s.listFn(ctx, cmd)
}

func (s *stubCatalogService) IssueImageUploadURL(ctx context.Context, cmd services.ProductImageUploadCommand) (domain.SignedAssetResponse, error) {
	if s.uploadFn == nil {
		return domain.SignedAssetResponse{}, errors.New("unexpected IssueImageUploadURL call")
	}
	return s.uploadFn(ctx, cmd)
}

var _ services.CatalogService = (*stubCatalogService)(nil)

func sampleProduct() domain.Product {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return domain.Product{
		ID:              "prd_1",
		ArtisanID:       "artisan-1",
		SKU:             "CLP-000001",
		Title:           "Ceramic Mug",
		Category:        "ceramics",
		Price:           1000,
		Currency:        "INR",
		DiscountPercent: 10,
		Inventory:       domain.ProductInventory{Quantity: 5, TrackInventory: true, LowStockThreshold: 2},
		Rating:          domain.RatingSummary{Average: 4.5, Count: 12},
		Active:          true,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestCreateProductHandler(t *testing.T) {
	var captured services.CreateProductCommand
	svc := &stubCatalogService{
		createFn: func(_ context.Context, cmd services.CreateProductCommand) (domain.Product, error) {
			captured = cmd
			return sampleProduct(), nil
		},
	}
	h := NewProductHandlers(nil, svc)

	body := map[string]any{
		"title":            " Ceramic Mug ",
		"category":         "Ceramics",
		"price":            1000,
		"currency":         "INR",
		"discount_percent": 10,
		"inventory":        map[string]any{"quantity": 5, "track_inventory": true, "low_stock_threshold": 2},
	}
	req := asUser(newTestRequest(t, http.MethodPost, "/", body), "artisan-1", "artisan")
	rec := serveRoutes(t, h.Routes, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.ArtisanID != "artisan-1" {
		t.Fatalf("expected artisan from identity got %q", captured.ArtisanID)
	}
	if captured.Title != "Ceramic Mug" {
		t.Fatalf("expected trimmed title got %q", captured.Title)
	}
	if !captured.Inventory.TrackInventory || captured.Inventory.Quantity != 5 {
		t.Fatalf("unexpected inventory %+v", captured.Inventory)
	}

	var payload productPayload
	decodeData(t, rec, &payload)
	if payload.SKU != "CLP-000001" {
		t.Fatalf("unexpected sku %q", payload.SKU)
	}
	if payload.DiscountedPrice != 900 {
		t.Fatalf("expected discounted price 900 got %d", payload.DiscountedPrice)
	}
}

func TestGetProductHandlerPublic(t *testing.T) {
	svc := &stubCatalogService{
		getFn: func(_ context.Context, productID string, actor *services.Actor) (domain.Product, error) {
			if actor != nil {
				t.Fatalf("expected anonymous actor, got %+v", actor)
			}
			if productID != "prd_1" {
				return domain.Product{}, services.ErrCatalogNotFound
			}
			return sampleProduct(), nil
		},
	}
	h := NewProductHandlers(nil, svc)

	rec := serveRoutes(t, h.Routes, newTestRequest(t, http.MethodGet, "/prd_1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = serveRoutes(t, h.Routes, newTestRequest(t, http.MethodGet, "/prd_missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestListProductsHandlerFilters(t *testing.T) {
	var captured services.ListProductsCommand
	svc := &stubCatalogService{
		listFn: func(_ context.Context, cmd services.ListProductsCommand) (domain.CursorPage[domain.Product], error) {
			captured = cmd
			return domain.CursorPage[domain.Product]{Items: []domain.Product{sampleProduct()}}, nil
		},
	}
	h := NewProductHandlers(nil, svc)

	req := newTestRequest(t, http.MethodGet, "/?category=Ceramics&artisan_id=artisan-1&search=mug&pageSize=10", nil)
	rec := serveRoutes(t, h.Routes, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if captured.Category != "ceramics" {
		t.Fatalf("expected lowercased category got %q", captured.Category)
	}
	if captured.ArtisanID != "artisan-1" || captured.Search != "mug" {
		t.Fatalf("unexpected filters %+v", captured)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10 got %d", captured.Pagination.PageSize)
	}
	if captured.Actor != nil {
		t.Fatal("expected anonymous actor")
	}
}

func TestUpdateProductHandlerOwnership(t *testing.T) {
	svc := &stubCatalogService{
		updateFn: func(_ context.Context, cmd services.UpdateProductCommand) (domain.Product, error) {
			if cmd.Actor.ID != "artisan-1" && !cmd.Actor.IsAdmin() {
				return domain.Product{}, services.ErrCatalogAccessDenied
			}
			product := sampleProduct()
			if cmd.Title != nil {
				product.Title = *cmd.Title
			}
			return product, nil
		},
	}
	h := NewProductHandlers(nil, svc)

	body := map[string]any{"title": "Glazed Mug"}
	rec := serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodPut, "/prd_1", body), "artisan-1", "artisan"))
	if rec.Code != http.StatusOK {
		t.Fatalf("owner update: expected 200 got %d", rec.Code)
	}
	var payload productPayload
	decodeData(t, rec, &payload)
	if payload.Title != "Glazed Mug" {
		t.Fatalf("unexpected title %q", payload.Title)
	}

	rec = serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodPut, "/prd_1", body), "artisan-2", "artisan"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger update: expected 403 got %d", rec.Code)
	}
}

func TestDeleteProductHandler(t *testing.T) {
	var captured services.DeleteProductCommand
	svc := &stubCatalogService{
		deleteFn: func(_ context.Context, cmd services.DeleteProductCommand) error {
			captured = cmd
			return nil
		},
	}
	h := NewProductHandlers(nil, svc)

	rec := serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodDelete, "/prd_1", nil), "artisan-1", "artisan"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if captured.ProductID != "prd_1" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestIssueImageUploadHandler(t *testing.T) {
	svc := &stubCatalogService{
		uploadFn: func(_ context.Context, cmd services.ProductImageUploadCommand) (domain.SignedAssetResponse, error) {
			if cmd.ContentType != "image/png" {
				return domain.SignedAssetResponse{}, services.ErrCatalogInvalidInput
			}
			return domain.SignedAssetResponse{
				AssetID:   "asset_1",
				URL:       "https://storage.example/upload",
				Method:    http.MethodPut,
				ExpiresAt: time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	h := NewProductHandlers(nil, svc)

	body := map[string]any{"file_name": "mug.png", "content_type": "image/png", "size_bytes": 2048}
	rec := serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodPost, "/prd_1/images", body), "artisan-1", "artisan"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload signedUploadPayload
	decodeData(t, rec, &payload)
	if payload.URL != "https://storage.example/upload" || payload.Method != http.MethodPut {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestIssueImageUploadHandlerUploadsDisabled(t *testing.T) {
	svc := &stubCatalogService{
		uploadFn: func(context.Context, services.ProductImageUploadCommand) (domain.SignedAssetResponse, error) {
			return domain.SignedAssetResponse{}, services.ErrCatalogUploadsDisabled
		},
	}
	h := NewProductHandlers(nil, svc)

	body := map[string]any{"file_name": "mug.png", "content_type": "image/png"}
	rec := serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodPost, "/prd_1/images", body), "artisan-1", "artisan"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}
