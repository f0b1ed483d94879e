package repositories

import (
	"context"
	"time"

	domain "github.com/craftline/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Reviews() ReviewRepository
	Carts() CartRepository
	Artisans() ArtisanRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog listings and owns transactional stock mutations.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	SoftDelete(ctx context.Context, productID string, deletedAt time.Time) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)

	// DeductStock validates every line before mutating any document: each
	// product must exist, be active, and hold enough tracked stock. On
	// success tracked quantities drop and sold counters rise atomically.
	DeductStock(ctx context.Context, req StockDeductionRequest) (StockMutationResult, error)
	// RestoreStock returns previously deducted quantities to tracked
	// inventory, e.g. when an order is cancelled.
	RestoreStock(ctx context.Context, req StockRestoreRequest) (StockMutationResult, error)

	UpdateRating(ctx context.Context, productID string, summary domain.RatingSummary, updatedAt time.Time) error
}

// StockLine identifies one product quantity within a stock mutation.
type StockLine struct {
	ProductID string
	Quantity  int
}

// StockDeductionRequest decrements stock for the given lines in one transaction.
type StockDeductionRequest struct {
	Lines    []StockLine
	OrderRef string
	Now      time.Time
}

// StockRestoreRequest returns quantities to stock for the given lines.
type StockRestoreRequest struct {
	Lines    []StockLine
	OrderRef string
	Reason   string
	Now      time.Time
}

// StockMutationResult reports post-mutation inventory keyed by product ID.
type StockMutationResult struct {
	Stocks map[string]domain.ProductInventory
}

// OrderRepository persists order aggregates and provides buyer/artisan/admin queries.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// CountByStatus aggregates order counts per lifecycle status for one artisan.
	CountByStatus(ctx context.Context, artisanID string) (map[domain.OrderStatus]int, error)
}

// ReviewRepository stores reviews with purchase-uniqueness and vote guarantees.
type ReviewRepository interface {
	// Insert creates the review and reserves its (buyer, product, order)
	// purchase key in the same transaction. A second review for the same
	// purchase fails with ReviewErrorDuplicate.
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	Update(ctx context.Context, review domain.Review) error
	Delete(ctx context.Context, reviewID string) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, filter ReviewListFilter) (domain.CursorPage[domain.Review], error)
	ListByArtisan(ctx context.Context, artisanID string, filter ReviewListFilter) (domain.CursorPage[domain.Review], error)
	ListByBuyer(ctx context.Context, buyerID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	// ApprovedScores returns the overall score of every approved review for
	// the target, feeding rating recomputation.
	ApprovedScores(ctx context.Context, target ReviewTarget) ([]int, error)
	// AddHelpfulVote records one vote per user atomically; a repeat vote
	// fails with ReviewErrorAlreadyVoted. The tally only rises when the
	// vote is helpful, but the voter is remembered either way.
	AddHelpfulVote(ctx context.Context, reviewID string, userID string, helpful bool, now time.Time) (domain.Review, error)
	UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, update ReviewModerationUpdate) (domain.Review, error)
	UpdateResponse(ctx context.Context, reviewID string, response *domain.ReviewResponse, updatedAt time.Time) (domain.Review, error)
}

// ReviewTarget selects the aggregate whose approved scores are requested.
// Exactly one of ProductID or ArtisanID should be set.
type ReviewTarget struct {
	ProductID string
	ArtisanID string
}

// ReviewModerationUpdate carries moderation metadata for status transitions.
type ReviewModerationUpdate struct {
	ModeratedBy string
	ModeratedAt time.Time
}

// CartRepository owns cart persistence keyed by buyer ID.
type CartRepository interface {
	Get(ctx context.Context, buyerID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Clear(ctx context.Context, buyerID string) error
}

// ArtisanRepository stores artisan storefront profiles.
type ArtisanRepository interface {
	FindByID(ctx context.Context, artisanID string) (domain.ArtisanProfile, error)
	Upsert(ctx context.Context, profile domain.ArtisanProfile) (domain.ArtisanProfile, error)
	UpdateRating(ctx context.Context, artisanID string, summary domain.RatingSummary, updatedAt time.Time) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	ArtisanID       string
	Category        string
	Search          string
	IncludeInactive bool
	Pagination      domain.Pagination
}

type OrderListFilter struct {
	BuyerID    string
	ArtisanID  string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type ReviewListFilter struct {
	Status     []domain.ReviewStatus
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
