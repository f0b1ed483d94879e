package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery bounds a list filter between optional inclusive endpoints.
type RangeQuery[T any] struct {
	From *T
	To   *T
}

// RatingSummary aggregates approved review scores for a product or artisan.
type RatingSummary struct {
	// Average is the mean overall rating rounded to one decimal place.
	// Zero when no approved reviews exist.
	Average float64
	Count   int
}

// ProductInventory tracks stock levels for a product.
type ProductInventory struct {
	Quantity          int
	TrackInventory    bool
	LowStockThreshold int
}

// Product represents a catalog listing owned by an artisan.
type Product struct {
	ID        string
	ArtisanID string
	// SKU is a sequential catalog reference assigned at creation.
	SKU         string
	Title       string
	Description string
	Category    string
	Images      []string
	// Price is stored in the smallest currency unit.
	Price    int64
	Currency string
	// DiscountPercent is an optional percentage reduction in [0, 100).
	DiscountPercent float64
	Inventory       ProductInventory
	TotalSold       int
	Rating          RatingSummary
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InStock reports whether the product can satisfy the requested quantity.
// Untracked inventory is treated as unlimited.
func (p Product) InStock(quantity int) bool {
	if quantity <= 0 {
		return false
	}
	if !p.Inventory.TrackInventory {
		return true
	}
	return p.Inventory.Quantity >= quantity
}

// LowStock reports whether tracked inventory has fallen to the alert threshold.
func (p Product) LowStock() bool {
	if !p.Inventory.TrackInventory {
		return false
	}
	return p.Inventory.Quantity <= p.Inventory.LowStockThreshold
}

// ProductFilter captures catalog listing filters.
type ProductFilter struct {
	ArtisanID       string
	Category        string
	Search          string
	IncludeInactive bool
}

// Cart aggregates a buyer's pending selections before checkout.
type Cart struct {
	ID        string
	BuyerID   string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem stores a single product entry within a cart.
type CartItem struct {
	ProductID     string
	Quantity      int
	Customization map[string]string
	AddedAt       time.Time
}

// ArtisanProfile captures the public storefront identity of a seller.
type ArtisanProfile struct {
	ID          string
	DisplayName string
	Bio         string
	Location    string
	AvatarURL   string
	Rating      RatingSummary
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReviewStatus indicates the moderation state of a review.
type ReviewStatus string

const (
	// ReviewStatusPending indicates the review awaits moderation.
	ReviewStatusPending ReviewStatus = "pending"
	// ReviewStatusApproved indicates the review has been approved and is visible.
	ReviewStatusApproved ReviewStatus = "approved"
	// ReviewStatusRejected indicates the review has been rejected and is hidden.
	ReviewStatusRejected ReviewStatus = "rejected"
)

// ReviewRating stores the multi-axis scores attached to a review. Overall is
// required; the remaining axes are optional.
type ReviewRating struct {
	Overall  int
	Quality  *int
	Value    *int
	Shipping *int
}

// ReviewResponse stores the artisan's public reply to a review.
type ReviewResponse struct {
	Message   string
	AuthorID  string
	CreatedAt time.Time
}

// Review captures buyer feedback tied to a delivered order line.
type Review struct {
	ID           string
	ProductID    string
	ArtisanID    string
	BuyerID      string
	OrderID      string
	Rating       ReviewRating
	Comment      string
	Status       ReviewStatus
	HelpfulCount int
	// VotedUserIDs enforces one helpful vote per user.
	VotedUserIDs []string
	Response     *ReviewResponse
	ModeratedBy  *string
	ModeratedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasVoted reports whether the given user already voted on this review.
func (r Review) HasVoted(userID string) bool {
	for _, id := range r.VotedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Address represents postal address snapshots shared by order layers.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// SignedAssetResponse returns signed URL payloads for image upload flows.
type SignedAssetResponse struct {
	AssetID   string
	URL       string
	ExpiresAt time.Time
	Method    string
	Headers   map[string]string
}
