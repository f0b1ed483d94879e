package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/craftline/api/internal/domain"
	pfirestore "github.com/craftline/api/internal/platform/firestore"
	"github.com/craftline/api/internal/repositories"
)

const cartsCollection = "carts"

// CartRepository persists carts within Firestore, keyed by buyer ID.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// Get loads the cart for the given buyer. A missing document surfaces the
// repository not-found error; callers treat it as an empty cart.
func (r *CartRepository) Get(ctx context.Context, buyerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return domain.Cart{}, errors.New("cart repository: buyer id is required")
	}

	doc, err := r.base.Get(ctx, buyerID)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Save upserts the cart document using the buyer ID as document identifier.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	buyerID := strings.TrimSpace(cart.BuyerID)
	if buyerID == "" {
		buyerID = strings.TrimSpace(cart.ID)
	}
	if buyerID == "" {
		return domain.Cart{}, errors.New("cart repository: buyer id is required")
	}

	updatedAt := cart.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	doc := newCartDocument(cart, updatedAt)
	result, err := r.base.Set(ctx, buyerID, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := doc.toDomain(buyerID)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Clear removes the cart document. Clearing an absent cart is not an error.
func (r *CartRepository) Clear(ctx context.Context, buyerID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return errors.New("cart repository: buyer id is required")
	}
	return r.base.Delete(ctx, buyerID)
}

// Helper structures ---------------------------------------------------------

type cartDocument struct {
	Items      []cartItemDocument `firestore:"items"`
	ItemsCount int                `firestore:"itemsCount"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID     string            `firestore:"productId"`
	Quantity      int               `firestore:"qty"`
	Customization map[string]string `firestore:"customization,omitempty"`
	AddedAt       time.Time         `firestore:"addedAt"`
}

func newCartDocument(cart domain.Cart, updatedAt time.Time) cartDocument {
	items := make([]cartItemDocument, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = cartItemDocument{
			ProductID:     strings.TrimSpace(item.ProductID),
			Quantity:      item.Quantity,
			Customization: cloneStringMap(item.Customization),
			AddedAt:       item.AddedAt.UTC(),
		}
	}
	return cartDocument{
		Items:      items,
		ItemsCount: len(items),
		UpdatedAt:  updatedAt,
	}
}

func (d cartDocument) toDomain(buyerID string) domain.Cart {
	items := make([]domain.CartItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.CartItem{
			ProductID:     strings.TrimSpace(item.ProductID),
			Quantity:      item.Quantity,
			Customization: cloneStringMap(item.Customization),
			AddedAt:       item.AddedAt,
		}
	}
	return domain.Cart{
		ID:        buyerID,
		BuyerID:   buyerID,
		Items:     items,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
