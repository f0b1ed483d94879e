package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/craftline/api/internal/domain"
	pfirestore "github.com/craftline/api/internal/platform/firestore"
	"github.com/craftline/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog listings and runs stock mutations inside
// Firestore transactions.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, base: base}, nil
}

// Insert creates the product document, failing when the ID is already taken.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Create(ctx, productID, newProductDocument(product))
	return err
}

// Update overwrites the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Set(ctx, productID, newProductDocument(product))
	return err
}

// SoftDelete deactivates the product while preserving its document for order history.
func (r *ProductRepository) SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	when := deletedAt.UTC()
	_, err := r.base.Update(ctx, productID, []firestore.Update{
		{Path: "active", Value: false},
		{Path: "deletedAt", Value: when},
		{Path: "updatedAt", Value: when},
	})
	return err
}

// FindByID loads the product regardless of its active flag.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a catalog page respecting the provided filter.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	query := client.Collection(productsCollection).Query
	if artisanID := strings.TrimSpace(filter.ArtisanID); artisanID != "" {
		query = query.Where("artisanId", "==", artisanID)
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category", "==", category)
	}
	if !filter.IncludeInactive {
		query = query.Where("active", "==", true)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		query = query.Where("keywords", "array-contains", search)
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeProductPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(products) > pageSize
	if hasMore {
		products = products[:pageSize]
	}
	var nextToken string
	if hasMore && len(products) > 0 {
		last := products[len(products)-1]
		encoded, err := encodeProductPageToken(productPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Product]{
		Items:         products,
		NextPageToken: nextToken,
	}, nil
}

// DeductStock validates every line before any write: each product must exist,
// be active, and have enough tracked stock. On success quantities drop and
// sold counters rise in the same transaction.
func (r *ProductRepository) DeductStock(ctx context.Context, req repositories.StockDeductionRequest) (repositories.StockMutationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockMutationResult{}, errors.New("product repository not initialised")
	}
	if len(req.Lines) == 0 {
		return repositories.StockMutationResult{}, errors.New("product deduct stock: at least one line is required")
	}

	now := req.Now.UTC()
	var result repositories.StockMutationResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}

		writes := make([]pendingWrite, 0, len(req.Lines))
		stocks := make(map[string]domain.ProductInventory, len(req.Lines))

		// Phase one: read and validate every line. No document is touched
		// until all lines pass, so a failing line leaves stock untouched.
		for _, line := range req.Lines {
			productID := strings.TrimSpace(line.ProductID)
			if productID == "" {
				return repositories.NewStockError(repositories.StockErrorUnknown, "", "product deduct stock: product id is required", nil)
			}
			if line.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorUnknown, productID, fmt.Sprintf("product deduct stock: quantity for %s must be > 0", productID), nil)
			}

			ref, err := r.base.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), err)
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}
			if !doc.Active {
				return repositories.NewStockError(repositories.StockErrorItemUnavailable, productID, fmt.Sprintf("product %s is unavailable", productID), nil)
			}
			if doc.TrackInventory && doc.StockQuantity < line.Quantity {
				return repositories.NewStockError(repositories.StockErrorInsufficient, productID, fmt.Sprintf("insufficient stock for %s", productID), nil)
			}

			if doc.TrackInventory {
				doc.StockQuantity -= line.Quantity
			}
			doc.TotalSold += line.Quantity
			doc.UpdatedAt = now
			writes = append(writes, pendingWrite{ref: ref, doc: doc})
			stocks[productID] = doc.toDomain(productID).Inventory
		}

		// Phase two: apply all mutations.
		for _, w := range writes {
			if err := tx.Set(w.ref, w.doc); err != nil {
				return err
			}
		}

		result = repositories.StockMutationResult{Stocks: stocks}
		return nil
	})
	if err != nil {
		return repositories.StockMutationResult{}, wrapStockError("products.deductStock", err)
	}
	return result, nil
}

// RestoreStock returns deducted quantities to tracked inventory.
func (r *ProductRepository) RestoreStock(ctx context.Context, req repositories.StockRestoreRequest) (repositories.StockMutationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockMutationResult{}, errors.New("product repository not initialised")
	}
	if len(req.Lines) == 0 {
		return repositories.StockMutationResult{}, errors.New("product restore stock: at least one line is required")
	}

	now := req.Now.UTC()
	var result repositories.StockMutationResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}

		writes := make([]pendingWrite, 0, len(req.Lines))
		stocks := make(map[string]domain.ProductInventory, len(req.Lines))

		for _, line := range req.Lines {
			productID := strings.TrimSpace(line.ProductID)
			if productID == "" {
				return repositories.NewStockError(repositories.StockErrorUnknown, "", "product restore stock: product id is required", nil)
			}
			if line.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorUnknown, productID, fmt.Sprintf("product restore stock: quantity for %s must be > 0", productID), nil)
			}

			ref, err := r.base.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), err)
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}

			if doc.TrackInventory {
				doc.StockQuantity += line.Quantity
			}
			doc.TotalSold -= line.Quantity
			if doc.TotalSold < 0 {
				doc.TotalSold = 0
			}
			doc.UpdatedAt = now
			writes = append(writes, pendingWrite{ref: ref, doc: doc})
			stocks[productID] = doc.toDomain(productID).Inventory
		}

		for _, w := range writes {
			if err := tx.Set(w.ref, w.doc); err != nil {
				return err
			}
		}

		result = repositories.StockMutationResult{Stocks: stocks}
		return nil
	})
	if err != nil {
		return repositories.StockMutationResult{}, wrapStockError("products.restoreStock", err)
	}
	return result, nil
}

// UpdateRating persists the recomputed rating summary.
func (r *ProductRepository) UpdateRating(ctx context.Context, productID string, summary domain.RatingSummary, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Update(ctx, productID, []firestore.Update{
		{Path: "ratingAverage", Value: summary.Average},
		{Path: "ratingCount", Value: summary.Count},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

// Helper structures ---------------------------------------------------------

type productDocument struct {
	ArtisanID         string     `firestore:"artisanId"`
	SKU               string     `firestore:"sku,omitempty"`
	Title             string     `firestore:"title"`
	Keywords          []string   `firestore:"keywords,omitempty"`
	Description       string     `firestore:"description,omitempty"`
	Category          string     `firestore:"category"`
	Images            []string   `firestore:"images,omitempty"`
	Price             int64      `firestore:"price"`
	Currency          string     `firestore:"currency"`
	DiscountPercent   float64    `firestore:"discountPercent,omitempty"`
	StockQuantity     int        `firestore:"stockQuantity"`
	TrackInventory    bool       `firestore:"trackInventory"`
	LowStockThreshold int        `firestore:"lowStockThreshold,omitempty"`
	TotalSold         int        `firestore:"totalSold"`
	RatingAverage     float64    `firestore:"ratingAverage"`
	RatingCount       int        `firestore:"ratingCount"`
	Active            bool       `firestore:"active"`
	DeletedAt         *time.Time `firestore:"deletedAt,omitempty"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		ArtisanID:         strings.TrimSpace(product.ArtisanID),
		SKU:               strings.TrimSpace(product.SKU),
		Title:             strings.TrimSpace(product.Title),
		Keywords:          titleKeywords(product.Title),
		Description:       strings.TrimSpace(product.Description),
		Category:          strings.TrimSpace(product.Category),
		Images:            append([]string(nil), product.Images...),
		Price:             product.Price,
		Currency:          strings.ToUpper(strings.TrimSpace(product.Currency)),
		DiscountPercent:   product.DiscountPercent,
		StockQuantity:     product.Inventory.Quantity,
		TrackInventory:    product.Inventory.TrackInventory,
		LowStockThreshold: product.Inventory.LowStockThreshold,
		TotalSold:         product.TotalSold,
		RatingAverage:     product.Rating.Average,
		RatingCount:       product.Rating.Count,
		Active:            product.Active,
		CreatedAt:         product.CreatedAt.UTC(),
		UpdatedAt:         product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:              id,
		ArtisanID:       strings.TrimSpace(d.ArtisanID),
		SKU:             strings.TrimSpace(d.SKU),
		Title:           strings.TrimSpace(d.Title),
		Description:     strings.TrimSpace(d.Description),
		Category:        strings.TrimSpace(d.Category),
		Images:          append([]string(nil), d.Images...),
		Price:           d.Price,
		Currency:        strings.ToUpper(strings.TrimSpace(d.Currency)),
		DiscountPercent: d.DiscountPercent,
		Inventory: domain.ProductInventory{
			Quantity:          d.StockQuantity,
			TrackInventory:    d.TrackInventory,
			LowStockThreshold: d.LowStockThreshold,
		},
		TotalSold: d.TotalSold,
		Rating: domain.RatingSummary{
			Average: d.RatingAverage,
			Count:   d.RatingCount,
		},
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func titleKeywords(title string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(title)))
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, len(fields))
	for _, word := range fields {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word == "" {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}

type productPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeProductPageToken(token productPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode product page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeProductPageToken(encoded string) (*productPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode product page token: %w", err)
	}
	var token productPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode product page token json: %w", err)
	}
	return &token, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
