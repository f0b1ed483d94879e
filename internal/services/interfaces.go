package services

import (
	"context"
	"time"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	Cart                = domain.Cart
	CartItem            = domain.CartItem
	Product             = domain.Product
	ProductInventory    = domain.ProductInventory
	Order               = domain.Order
	OrderStatus         = domain.OrderStatus
	OrderLineItem       = domain.OrderLineItem
	OrderTotals         = domain.OrderTotals
	PaymentMethod       = domain.PaymentMethod
	Review              = domain.Review
	ReviewRating        = domain.ReviewRating
	ReviewStatus        = domain.ReviewStatus
	Address             = domain.Address
	ArtisanProfile      = domain.ArtisanProfile
	ArtisanDashboard    = domain.ArtisanDashboard
	RatingSummary       = domain.RatingSummary
	SystemHealthReport  = domain.SystemHealthReport
	SignedAssetResponse = domain.SignedAssetResponse
)

// Role names carried on the actor. Mirrors the roles granted by the auth layer.
const (
	RoleBuyer   = "buyer"
	RoleArtisan = "artisan"
	RoleAdmin   = "admin"
)

// Actor identifies the authenticated caller inside service operations.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor was granted the given role.
func (a Actor) HasRole(role string) bool {
	for _, granted := range a.Roles {
		if granted == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// OrderService owns the order lifecycle: creation, reads with access control,
// status transitions, cancellation, and the artisan dashboard.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error)
	ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	ArtisanDashboard(ctx context.Context, artisanID string) (ArtisanDashboard, error)
}

// ReviewService coordinates review lifecycle, helpful votes, artisan responses,
// and moderation. Every mutation triggers a synchronous rating recompute.
type ReviewService interface {
	CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	GetReview(ctx context.Context, reviewID string) (Review, error)
	UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	DeleteReview(ctx context.Context, cmd DeleteReviewCommand) error
	ListByProduct(ctx context.Context, cmd ListProductReviewsCommand) (domain.CursorPage[Review], error)
	ListByArtisan(ctx context.Context, cmd ListArtisanReviewsCommand) (domain.CursorPage[Review], error)
	ListMine(ctx context.Context, buyerID string, pager Pagination) (domain.CursorPage[Review], error)
	AddHelpfulVote(ctx context.Context, cmd HelpfulVoteCommand) (Review, error)
	Respond(ctx context.Context, cmd RespondReviewCommand) (Review, error)
	Moderate(ctx context.Context, cmd ModerateReviewCommand) (Review, error)
}

// RatingService recomputes aggregate ratings from approved reviews.
type RatingService interface {
	RecomputeProductRating(ctx context.Context, productID string) (RatingSummary, error)
	RecomputeArtisanRating(ctx context.Context, artisanID string) (RatingSummary, error)
}

// CatalogService manages artisan-owned product listings.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
	GetProduct(ctx context.Context, productID string, actor *Actor) (Product, error)
	ListProducts(ctx context.Context, cmd ListProductsCommand) (domain.CursorPage[Product], error)
	IssueImageUploadURL(ctx context.Context, cmd ProductImageUploadCommand) (SignedAssetResponse, error)
}

// CartService manages the buyer's pending selections.
type CartService interface {
	GetCart(ctx context.Context, buyerID string) (Cart, error)
	UpsertItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, buyerID string) error
}

// ArtisanService manages artisan storefront profiles.
type ArtisanService interface {
	GetProfile(ctx context.Context, artisanID string) (ArtisanProfile, error)
	UpsertProfile(ctx context.Context, cmd UpsertArtisanProfileCommand) (ArtisanProfile, error)
	IssueAvatarUploadURL(ctx context.Context, cmd AvatarUploadCommand) (SignedAssetResponse, error)
}

// SystemService aggregates utility endpoints such as readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// ReviewEventPublisher publishes review domain events for downstream consumers.
type ReviewEventPublisher interface {
	PublishReviewEvent(ctx context.Context, event ReviewEvent) (string, error)
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber,omitempty"`
	BuyerID     string    `json:"buyerId,omitempty"`
	Status      string    `json:"status,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// ReviewEvent captures metadata for emitted review domain events.
type ReviewEvent struct {
	Type       string    `json:"type"`
	ReviewID   string    `json:"reviewId"`
	ProductID  string    `json:"productId,omitempty"`
	ArtisanID  string    `json:"artisanId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ShippingCalculator quotes the shipping charge for an order at creation time.
type ShippingCalculator interface {
	Calculate(items []OrderLineItem, destination Address) int64
}

// ShippingCalculatorFunc adapts a plain function into a ShippingCalculator.
type ShippingCalculatorFunc func(items []OrderLineItem, destination Address) int64

// Calculate implements ShippingCalculator.
func (f ShippingCalculatorFunc) Calculate(items []OrderLineItem, destination Address) int64 {
	return f(items, destination)
}

// FlatShipping quotes the same charge for every order. Zero is the default.
func FlatShipping(amount int64) ShippingCalculator {
	return ShippingCalculatorFunc(func([]OrderLineItem, Address) int64 {
		return amount
	})
}

// Command and DTO definitions ------------------------------------------------

// OrderItemInput names one product quantity in an order request.
type OrderItemInput struct {
	ProductID     string
	Quantity      int
	Customization map[string]string
}

type CreateOrderCommand struct {
	BuyerID         string
	Items           []OrderItemInput
	ShippingAddress Address
	// BillingAddress defaults to the shipping address when nil.
	BillingAddress *Address
	PaymentMethod  PaymentMethod
	Notes          string
}

type ListOrdersCommand struct {
	Actor      Actor
	Status     []OrderStatus
	Pagination Pagination
}

type UpdateOrderStatusCommand struct {
	OrderID string
	Target  OrderStatus
	Note    string
	Actor   Actor
}

type CancelOrderCommand struct {
	OrderID string
	Reason  string
	Actor   Actor
}

type CreateReviewCommand struct {
	BuyerID   string
	OrderID   string
	ProductID string
	Rating    ReviewRating
	Comment   string
}

type UpdateReviewCommand struct {
	ReviewID string
	Actor    Actor
	Rating   *ReviewRating
	Comment  *string
}

type DeleteReviewCommand struct {
	ReviewID string
	Actor    Actor
}

type ListProductReviewsCommand struct {
	ProductID string
	// IncludeUnmoderated widens the listing beyond approved reviews; only
	// honoured for admins.
	IncludeUnmoderated bool
	Pagination         Pagination
}

type ListArtisanReviewsCommand struct {
	ArtisanID          string
	IncludeUnmoderated bool
	Pagination         Pagination
}

type HelpfulVoteCommand struct {
	ReviewID string
	UserID   string
	Helpful  bool
}

type RespondReviewCommand struct {
	ReviewID string
	Actor    Actor
	Message  string
}

type ModerateReviewCommand struct {
	ReviewID string
	Actor    Actor
	Status   ReviewStatus
}

type CreateProductCommand struct {
	ArtisanID       string
	Title           string
	Description     string
	Category        string
	Images          []string
	Price           int64
	Currency        string
	DiscountPercent float64
	Inventory       ProductInventory
	Active          *bool
}

type UpdateProductCommand struct {
	ProductID       string
	Actor           Actor
	Title           *string
	Description     *string
	Category        *string
	Images          []string
	Price           *int64
	DiscountPercent *float64
	Inventory       *ProductInventory
	Active          *bool
}

type DeleteProductCommand struct {
	ProductID string
	Actor     Actor
}

type ListProductsCommand struct {
	ArtisanID       string
	Category        string
	Search          string
	IncludeInactive bool
	Actor           *Actor
	Pagination      Pagination
}

type ProductImageUploadCommand struct {
	ProductID   string
	Actor       Actor
	FileName    string
	ContentType string
	SizeBytes   int64
}

type UpsertCartItemCommand struct {
	BuyerID       string
	ProductID     string
	Quantity      int
	Customization map[string]string
}

type RemoveCartItemCommand struct {
	BuyerID   string
	ProductID string
}

type UpsertArtisanProfileCommand struct {
	ArtisanID   string
	Actor       Actor
	DisplayName string
	Bio         string
	Location    string
	AvatarURL   string
}

type AvatarUploadCommand struct {
	ArtisanID   string
	Actor       Actor
	FileName    string
	ContentType string
	SizeBytes   int64
}

// OrderListFilter re-exports the repository filter for handler convenience.
type OrderListFilter = repositories.OrderListFilter
