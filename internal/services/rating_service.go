package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/repositories"
)

var (
	// ErrRatingInvalidInput signals the caller provided invalid data.
	ErrRatingInvalidInput = errors.New("rating: invalid input")
	// ErrRatingTargetNotFound indicates the product or artisan does not exist.
	ErrRatingTargetNotFound = errors.New("rating: target not found")
)

// RatingServiceDeps bundles collaborators required to construct the rating service.
type RatingServiceDeps struct {
	Reviews  repositories.ReviewRepository
	Products repositories.ProductRepository
	Artisans repositories.ArtisanRepository
	Clock    func() time.Time
}

type ratingService struct {
	reviews  repositories.ReviewRepository
	products repositories.ProductRepository
	artisans repositories.ArtisanRepository
	clock    func() time.Time
}

var _ RatingService = (*ratingService)(nil)

// NewRatingService wires dependencies into a concrete RatingService implementation.
func NewRatingService(deps RatingServiceDeps) (RatingService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("rating service: review repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("rating service: product repository is required")
	}
	if deps.Artisans == nil {
		return nil, errors.New("rating service: artisan repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &ratingService{
		reviews:  deps.Reviews,
		products: deps.Products,
		artisans: deps.Artisans,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// RecomputeProductRating rebuilds the product's aggregate from every approved
// review. Zero approved reviews resets the aggregate to the zero summary.
func (s *ratingService) RecomputeProductRating(ctx context.Context, productID string) (RatingSummary, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return RatingSummary{}, fmt.Errorf("%w: product id is required", ErrRatingInvalidInput)
	}

	scores, err := s.reviews.ApprovedScores(ctx, repositories.ReviewTarget{ProductID: productID})
	if err != nil {
		return RatingSummary{}, s.mapRepositoryError(err)
	}

	summary := domain.SummarizeRatings(scores)
	if err := s.products.UpdateRating(ctx, productID, summary, s.clock()); err != nil {
		return RatingSummary{}, s.mapRepositoryError(err)
	}
	return summary, nil
}

// RecomputeArtisanRating rebuilds the artisan's aggregate across all of their
// products' approved reviews.
func (s *ratingService) RecomputeArtisanRating(ctx context.Context, artisanID string) (RatingSummary, error) {
	artisanID = strings.TrimSpace(artisanID)
	if artisanID == "" {
		return RatingSummary{}, fmt.Errorf("%w: artisan id is required", ErrRatingInvalidInput)
	}

	scores, err := s.reviews.ApprovedScores(ctx, repositories.ReviewTarget{ArtisanID: artisanID})
	if err != nil {
		return RatingSummary{}, s.mapRepositoryError(err)
	}

	summary := domain.SummarizeRatings(scores)
	if err := s.artisans.UpdateRating(ctx, artisanID, summary, s.clock()); err != nil {
		return RatingSummary{}, s.mapRepositoryError(err)
	}
	return summary, nil
}

func (s *ratingService) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrRatingTargetNotFound, repoErr.Error())
	}
	return err
}
