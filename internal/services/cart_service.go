package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/platform/textutil"
	"github.com/craftline/api/internal/repositories"
)

const maxCartQuantity = 99

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemUnavailable indicates the product cannot be added to the cart.
	ErrCartItemUnavailable = errors.New("cart: item unavailable")
	// ErrCartInsufficientStock indicates the requested quantity exceeds stock.
	ErrCartInsufficientStock = errors.New("cart: insufficient stock")
	// ErrCartItemNotFound indicates the product is not in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
)

// CartServiceDeps wires the repositories backing cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	clock    func() time.Time
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// GetCart loads the buyer's cart. A buyer with no stored cart gets an empty one.
func (s *cartService) GetCart(ctx context.Context, buyerID string) (Cart, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return Cart{}, fmt.Errorf("%w: buyer id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.Get(ctx, buyerID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{BuyerID: buyerID}, nil
		}
		return Cart{}, err
	}
	return cart, nil
}

// UpsertItem adds the product to the cart or replaces its quantity and
// customization if it is already there.
func (s *cartService) UpsertItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if buyerID == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: buyer and product ids are required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxCartQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartQuantity)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: product %s", ErrCartItemUnavailable, productID)
		}
		return Cart{}, err
	}
	if !product.Active {
		return Cart{}, fmt.Errorf("%w: product %s", ErrCartItemUnavailable, productID)
	}
	if !product.InStock(cmd.Quantity) {
		return Cart{}, fmt.Errorf("%w: product %s", ErrCartInsufficientStock, productID)
	}

	cart, err := s.GetCart(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}

	now := s.clock()
	item := domain.CartItem{
		ProductID:     productID,
		Quantity:      cmd.Quantity,
		Customization: textutil.NormalizeStringMap(cmd.Customization),
		AddedAt:       now,
	}

	replaced := false
	for i, existing := range cart.Items {
		if existing.ProductID == productID {
			item.AddedAt = existing.AddedAt
			cart.Items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		cart.Items = append(cart.Items, item)
	}
	cart.BuyerID = buyerID
	cart.UpdatedAt = now

	return s.carts.Save(ctx, cart)
}

// RemoveItem drops the product from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if buyerID == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: buyer and product ids are required", ErrCartInvalidInput)
	}

	cart, err := s.GetCart(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}

	kept := cart.Items[:0]
	found := false
	for _, item := range cart.Items {
		if item.ProductID == productID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return Cart{}, fmt.Errorf("%w: product %s", ErrCartItemNotFound, productID)
	}
	cart.Items = kept
	cart.UpdatedAt = s.clock()

	return s.carts.Save(ctx, cart)
}

// ClearCart removes every pending selection for the buyer.
func (s *cartService) ClearCart(ctx context.Context, buyerID string) error {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return fmt.Errorf("%w: buyer id is required", ErrCartInvalidInput)
	}
	return s.carts.Clear(ctx, buyerID)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
