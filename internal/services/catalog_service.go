package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/craftline/api/internal/domain"
	pstorage "github.com/craftline/api/internal/platform/storage"
	"github.com/craftline/api/internal/repositories"
)

const (
	productIDPrefix   = "prd_"
	productSKUCounter = "products:sku"

	productImageMaxBytes = 10 << 20
	productImageExpiry   = 15 * time.Minute
)

var productImageContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid product data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product could not be located.
	ErrCatalogNotFound = errors.New("catalog: product not found")
	// ErrCatalogAccessDenied indicates the actor does not own the product.
	ErrCatalogAccessDenied = errors.New("catalog: access denied")
	// ErrCatalogConflict signals duplicate products or concurrent updates.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUploadsDisabled indicates no storage client is configured.
	ErrCatalogUploadsDisabled = errors.New("catalog: uploads not configured")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Counters    repositories.CounterRepository
	Storage     *pstorage.Client
	Bucket      string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	counters repositories.CounterRepository
	storage  *pstorage.Client
	bucket   string
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products: deps.Products,
		counters: deps.Counters,
		storage:  deps.Storage,
		bucket:   strings.TrimSpace(deps.Bucket),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	artisanID := strings.TrimSpace(cmd.ArtisanID)
	if artisanID == "" {
		return Product{}, fmt.Errorf("%w: artisan id is required", ErrCatalogInvalidInput)
	}
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return Product{}, fmt.Errorf("%w: title is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if cmd.DiscountPercent < 0 || cmd.DiscountPercent >= 100 {
		return Product{}, fmt.Errorf("%w: discount must be within [0, 100)", ErrCatalogInvalidInput)
	}
	if cmd.Inventory.TrackInventory && cmd.Inventory.Quantity < 0 {
		return Product{}, fmt.Errorf("%w: tracked stock cannot be negative", ErrCatalogInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = "INR"
	}

	now := s.clock()
	active := true
	if cmd.Active != nil {
		active = *cmd.Active
	}

	product := Product{
		ID:              productIDPrefix + s.newID(),
		ArtisanID:       artisanID,
		SKU:             s.nextSKU(ctx),
		Title:           title,
		Description:     strings.TrimSpace(cmd.Description),
		Category:        strings.ToLower(strings.TrimSpace(cmd.Category)),
		Images:          append([]string(nil), cmd.Images...),
		Price:           cmd.Price,
		Currency:        currency,
		DiscountPercent: cmd.DiscountPercent,
		Inventory:       cmd.Inventory,
		Active:          active,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	product, err := s.loadOwnedProduct(ctx, cmd.ProductID, cmd.Actor)
	if err != nil {
		return Product{}, err
	}

	if cmd.Title != nil {
		title := strings.TrimSpace(*cmd.Title)
		if title == "" {
			return Product{}, fmt.Errorf("%w: title cannot be empty", ErrCatalogInvalidInput)
		}
		product.Title = title
	}
	if cmd.Description != nil {
		product.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Category != nil {
		product.Category = strings.ToLower(strings.TrimSpace(*cmd.Category))
	}
	if cmd.Images != nil {
		product.Images = append([]string(nil), cmd.Images...)
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.DiscountPercent != nil {
		if *cmd.DiscountPercent < 0 || *cmd.DiscountPercent >= 100 {
			return Product{}, fmt.Errorf("%w: discount must be within [0, 100)", ErrCatalogInvalidInput)
		}
		product.DiscountPercent = *cmd.DiscountPercent
	}
	if cmd.Inventory != nil {
		if cmd.Inventory.TrackInventory && cmd.Inventory.Quantity < 0 {
			return Product{}, fmt.Errorf("%w: tracked stock cannot be negative", ErrCatalogInvalidInput)
		}
		product.Inventory = *cmd.Inventory
	}
	if cmd.Active != nil {
		product.Active = *cmd.Active
	}
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	product, err := s.loadOwnedProduct(ctx, cmd.ProductID, cmd.Actor)
	if err != nil {
		return err
	}
	if err := s.products.SoftDelete(ctx, product.ID, s.clock()); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string, actor *Actor) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	// Retired listings stay visible to their owner and to admins only.
	if !product.Active && !canManageProduct(product, actor) {
		return Product{}, fmt.Errorf("%w: %s", ErrCatalogNotFound, productID)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, cmd ListProductsCommand) (domain.CursorPage[Product], error) {
	includeInactive := cmd.IncludeInactive
	if includeInactive {
		allowed := cmd.Actor != nil &&
			(cmd.Actor.IsAdmin() || (cmd.Actor.HasRole(RoleArtisan) && cmd.Actor.ID == strings.TrimSpace(cmd.ArtisanID)))
		if !allowed {
			includeInactive = false
		}
	}

	page, err := s.products.List(ctx, repositories.ProductListFilter{
		ArtisanID:       strings.TrimSpace(cmd.ArtisanID),
		Category:        strings.ToLower(strings.TrimSpace(cmd.Category)),
		Search:          strings.TrimSpace(cmd.Search),
		IncludeInactive: includeInactive,
		Pagination:      cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) IssueImageUploadURL(ctx context.Context, cmd ProductImageUploadCommand) (SignedAssetResponse, error) {
	if s.storage == nil || s.bucket == "" {
		return SignedAssetResponse{}, ErrCatalogUploadsDisabled
	}
	product, err := s.loadOwnedProduct(ctx, cmd.ProductID, cmd.Actor)
	if err != nil {
		return SignedAssetResponse{}, err
	}
	if cmd.SizeBytes > productImageMaxBytes {
		return SignedAssetResponse{}, fmt.Errorf("%w: image exceeds %d bytes", ErrCatalogInvalidInput, productImageMaxBytes)
	}

	uploadID := s.newID()
	object, err := pstorage.BuildObjectPath(pstorage.PurposeProductImage, pstorage.PathParams{
		ProductID: product.ID,
		UploadID:  uploadID,
		FileName:  cmd.FileName,
	})
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("%w: %s", ErrCatalogInvalidInput, err.Error())
	}

	signed, err := s.storage.SignedURL(ctx, s.bucket, object, pstorage.SignedURLOptions{
		Upload: &pstorage.UploadOptions{
			Method:              "PUT",
			ContentType:         cmd.ContentType,
			AllowedContentTypes: productImageContentTypes,
			MaxSize:             productImageMaxBytes,
			ExpiresIn:           productImageExpiry,
		},
	})
	if err != nil {
		return SignedAssetResponse{}, err
	}

	return SignedAssetResponse{
		AssetID:   uploadID,
		URL:       signed.URL,
		ExpiresAt: signed.ExpiresAt,
		Method:    signed.Method,
		Headers:   signed.Headers,
	}, nil
}

// nextSKU reserves the next sequential catalog reference. A counter failure
// only costs the vanity reference, never the listing.
func (s *catalogService) nextSKU(ctx context.Context) string {
	if s.counters == nil {
		return ""
	}
	seq, err := s.counters.Next(ctx, productSKUCounter, 1)
	if err != nil {
		s.logger(ctx, "catalog.sku.assign.failed", map[string]any{"error": err.Error()})
		return ""
	}
	return fmt.Sprintf("CLP-%06d", seq)
}

func (s *catalogService) loadOwnedProduct(ctx context.Context, productID string, actor Actor) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	if !canManageProduct(product, &actor) {
		return Product{}, fmt.Errorf("%w: product %s", ErrCatalogAccessDenied, product.ID)
	}
	return product, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCatalogNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCatalogConflict, repoErr.Error())
		}
	}
	return err
}

func canManageProduct(product Product, actor *Actor) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return actor.HasRole(RoleArtisan) && actor.ID == product.ArtisanID
}
