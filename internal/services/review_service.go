package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/repositories"
)

const (
	reviewIDPrefix = "rev_"

	reviewEventCreated   = "review.created"
	reviewEventUpdated   = "review.updated"
	reviewEventDeleted   = "review.deleted"
	reviewEventModerated = "review.moderated"
	reviewEventResponded = "review.responded"
)

var (
	// ErrReviewInvalidInput indicates validation failures for review operations.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates a review could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewAccessDenied indicates the actor may not touch the review.
	ErrReviewAccessDenied = errors.New("review: access denied")
	// ErrReviewNotEligible indicates the buyer cannot review the product:
	// the order is missing, not theirs, not delivered, or lacks the product.
	ErrReviewNotEligible = errors.New("review: not eligible")
	// ErrReviewDuplicate indicates a review already exists for this purchase.
	ErrReviewDuplicate = errors.New("review: duplicate")
	// ErrReviewAlreadyVoted indicates the user already voted on the review.
	ErrReviewAlreadyVoted = errors.New("review: already voted")
	// ErrReviewInvalidState is returned for unsupported moderation targets.
	ErrReviewInvalidState = errors.New("review: invalid state transition")
	// ErrReviewConflict signals conflicting concurrent updates.
	ErrReviewConflict = errors.New("review: conflict")
)

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews repositories.ReviewRepository
	Orders  repositories.OrderRepository
	Ratings RatingService
	// AutoApprove publishes reviews immediately instead of holding them
	// for moderation. Edits keep their approved status as well.
	AutoApprove bool
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	Events      ReviewEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews     repositories.ReviewRepository
	orders      repositories.OrderRepository
	ratings     RatingService
	autoApprove bool
	clock       func() time.Time
	newID       func() string
	sanitize    func(string) string
	events      ReviewEventPublisher
	logger      func(context.Context, string, map[string]any)
}

var _ ReviewService = (*reviewService)(nil)

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	if deps.Ratings == nil {
		return nil, errors.New("review service: rating service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return reviewIDPrefix + ulid.Make().String()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = newReviewSanitizer()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reviewService{
		reviews:     deps.Reviews,
		orders:      deps.Orders,
		ratings:     deps.Ratings,
		autoApprove: deps.AutoApprove,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		events:   deps.Events,
		logger:   logger,
	}, nil
}

func (s *reviewService) CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	if buyerID == "" || orderID == "" || productID == "" {
		return Review{}, fmt.Errorf("%w: buyer, order, and product ids are required", ErrReviewInvalidInput)
	}
	if err := validateRating(cmd.Rating); err != nil {
		return Review{}, err
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Review{}, fmt.Errorf("%w: order %s not found", ErrReviewNotEligible, orderID)
		}
		return Review{}, err
	}
	if order.BuyerID != buyerID {
		return Review{}, fmt.Errorf("%w: order does not belong to buyer", ErrReviewNotEligible)
	}
	if order.Status != domain.OrderStatusDelivered {
		return Review{}, fmt.Errorf("%w: order is not delivered", ErrReviewNotEligible)
	}
	line, ok := order.LineItem(productID)
	if !ok {
		return Review{}, fmt.Errorf("%w: order does not contain product %s", ErrReviewNotEligible, productID)
	}

	now := s.now()
	review := domain.Review{
		ID:        s.newID(),
		ProductID: productID,
		ArtisanID: line.ArtisanID,
		BuyerID:   buyerID,
		OrderID:   orderID,
		Rating:    cmd.Rating,
		Comment:   s.sanitize(cmd.Comment),
		Status:    s.initialStatus(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.reviews.Insert(ctx, review)
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}

	s.recompute(ctx, created)
	s.publishEvent(ctx, reviewEventCreated, created, now)

	return created, nil
}

func (s *reviewService) GetReview(ctx context.Context, reviewID string) (Review, error) {
	return s.loadReview(ctx, reviewID)
}

func (s *reviewService) UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	review, err := s.loadReview(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	if review.BuyerID != cmd.Actor.ID {
		return Review{}, fmt.Errorf("%w: review %s", ErrReviewAccessDenied, review.ID)
	}
	if cmd.Rating == nil && cmd.Comment == nil {
		return Review{}, fmt.Errorf("%w: nothing to update", ErrReviewInvalidInput)
	}

	if cmd.Rating != nil {
		if err := validateRating(*cmd.Rating); err != nil {
			return Review{}, err
		}
		review.Rating = *cmd.Rating
	}
	if cmd.Comment != nil {
		review.Comment = s.sanitize(*cmd.Comment)
	}

	// Edits go back through moderation before counting toward aggregates,
	// unless auto-approval is on.
	if !s.autoApprove {
		review.Status = domain.ReviewStatusPending
		review.ModeratedBy = nil
		review.ModeratedAt = nil
	}
	review.UpdatedAt = s.now()

	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, s.mapReviewError(err)
	}

	s.recompute(ctx, review)
	s.publishEvent(ctx, reviewEventUpdated, review, review.UpdatedAt)

	return review, nil
}

func (s *reviewService) DeleteReview(ctx context.Context, cmd DeleteReviewCommand) error {
	review, err := s.loadReview(ctx, cmd.ReviewID)
	if err != nil {
		return err
	}
	if review.BuyerID != cmd.Actor.ID && !cmd.Actor.IsAdmin() {
		return fmt.Errorf("%w: review %s", ErrReviewAccessDenied, review.ID)
	}

	if err := s.reviews.Delete(ctx, review.ID); err != nil {
		return s.mapReviewError(err)
	}

	s.recompute(ctx, review)
	s.publishEvent(ctx, reviewEventDeleted, review, s.now())

	return nil
}

func (s *reviewService) ListByProduct(ctx context.Context, cmd ListProductReviewsCommand) (domain.CursorPage[Review], error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByProduct(ctx, productID, listFilter(cmd.IncludeUnmoderated, cmd.Pagination))
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapReviewError(err)
	}
	return page, nil
}

func (s *reviewService) ListByArtisan(ctx context.Context, cmd ListArtisanReviewsCommand) (domain.CursorPage[Review], error) {
	artisanID := strings.TrimSpace(cmd.ArtisanID)
	if artisanID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: artisan id is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByArtisan(ctx, artisanID, listFilter(cmd.IncludeUnmoderated, cmd.Pagination))
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapReviewError(err)
	}
	return page, nil
}

func (s *reviewService) ListMine(ctx context.Context, buyerID string, pager Pagination) (domain.CursorPage[Review], error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: buyer id is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByBuyer(ctx, buyerID, pager)
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapReviewError(err)
	}
	return page, nil
}

func (s *reviewService) AddHelpfulVote(ctx context.Context, cmd HelpfulVoteCommand) (Review, error) {
	reviewID := strings.TrimSpace(cmd.ReviewID)
	userID := strings.TrimSpace(cmd.UserID)
	if reviewID == "" || userID == "" {
		return Review{}, fmt.Errorf("%w: review and user ids are required", ErrReviewInvalidInput)
	}

	updated, err := s.reviews.AddHelpfulVote(ctx, reviewID, userID, cmd.Helpful, s.now())
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}
	return updated, nil
}

func (s *reviewService) Respond(ctx context.Context, cmd RespondReviewCommand) (Review, error) {
	review, err := s.loadReview(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	if review.ArtisanID != cmd.Actor.ID && !cmd.Actor.IsAdmin() {
		return Review{}, fmt.Errorf("%w: review %s", ErrReviewAccessDenied, review.ID)
	}

	message := s.sanitize(cmd.Message)
	if message == "" {
		return Review{}, fmt.Errorf("%w: response message is required", ErrReviewInvalidInput)
	}

	now := s.now()
	createdAt := now
	if review.Response != nil && !review.Response.CreatedAt.IsZero() {
		createdAt = review.Response.CreatedAt
	}

	updated, err := s.reviews.UpdateResponse(ctx, review.ID, &domain.ReviewResponse{
		Message:   message,
		AuthorID:  cmd.Actor.ID,
		CreatedAt: createdAt,
	}, now)
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}

	s.publishEvent(ctx, reviewEventResponded, updated, now)

	return updated, nil
}

func (s *reviewService) Moderate(ctx context.Context, cmd ModerateReviewCommand) (Review, error) {
	if cmd.Status != domain.ReviewStatusApproved && cmd.Status != domain.ReviewStatusRejected {
		return Review{}, fmt.Errorf("%w: unsupported moderation status %s", ErrReviewInvalidState, cmd.Status)
	}

	review, err := s.loadReview(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	if review.Status == cmd.Status {
		return review, nil
	}

	updated, err := s.reviews.UpdateStatus(ctx, review.ID, cmd.Status, repositories.ReviewModerationUpdate{
		ModeratedBy: cmd.Actor.ID,
		ModeratedAt: s.now(),
	})
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}

	s.recompute(ctx, updated)
	s.publishEvent(ctx, reviewEventModerated, updated, updated.UpdatedAt)

	return updated, nil
}

func (s *reviewService) loadReview(ctx context.Context, reviewID string) (Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return Review{}, fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}
	return review, nil
}

// recompute rebuilds the product and artisan aggregates touched by the review.
// Failures are logged, not surfaced: the next review mutation repairs them.
func (s *reviewService) recompute(ctx context.Context, review Review) {
	if _, err := s.ratings.RecomputeProductRating(ctx, review.ProductID); err != nil {
		s.logger(ctx, "review.rating.recompute.failed", map[string]any{
			"product": review.ProductID,
			"error":   err.Error(),
		})
	}
	if _, err := s.ratings.RecomputeArtisanRating(ctx, review.ArtisanID); err != nil {
		s.logger(ctx, "review.rating.recompute.failed", map[string]any{
			"artisan": review.ArtisanID,
			"error":   err.Error(),
		})
	}
}

func (s *reviewService) publishEvent(ctx context.Context, eventType string, review Review, occurredAt time.Time) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishReviewEvent(ctx, ReviewEvent{
		Type:       eventType,
		ReviewID:   review.ID,
		ProductID:  review.ProductID,
		ArtisanID:  review.ArtisanID,
		OccurredAt: occurredAt,
	}); err != nil {
		s.logger(ctx, "review.event.publish.failed", map[string]any{
			"type":   eventType,
			"review": review.ID,
			"error":  err.Error(),
		})
	}
}

func (s *reviewService) initialStatus() domain.ReviewStatus {
	if s.autoApprove {
		return domain.ReviewStatusApproved
	}
	return domain.ReviewStatusPending
}

func (s *reviewService) now() time.Time {
	return s.clock()
}

func (s *reviewService) mapReviewError(err error) error {
	if err == nil {
		return nil
	}
	var reviewErr *repositories.ReviewError
	if errors.As(err, &reviewErr) {
		switch reviewErr.Code {
		case repositories.ReviewErrorDuplicate:
			return fmt.Errorf("%w: %s", ErrReviewDuplicate, reviewErr.Message)
		case repositories.ReviewErrorAlreadyVoted:
			return fmt.Errorf("%w: %s", ErrReviewAlreadyVoted, reviewErr.Message)
		case repositories.ReviewErrorNotFound:
			return fmt.Errorf("%w: %s", ErrReviewNotFound, reviewErr.Message)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrReviewNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrReviewConflict, repoErr.Error())
		}
	}
	return err
}

func validateRating(rating ReviewRating) error {
	if rating.Overall < 1 || rating.Overall > 5 {
		return fmt.Errorf("%w: overall rating must be between 1 and 5", ErrReviewInvalidInput)
	}
	for _, axis := range []*int{rating.Quality, rating.Value, rating.Shipping} {
		if axis != nil && (*axis < 1 || *axis > 5) {
			return fmt.Errorf("%w: axis ratings must be between 1 and 5", ErrReviewInvalidInput)
		}
	}
	return nil
}

func listFilter(includeUnmoderated bool, pager Pagination) repositories.ReviewListFilter {
	filter := repositories.ReviewListFilter{Pagination: pager}
	if !includeUnmoderated {
		filter.Status = []domain.ReviewStatus{domain.ReviewStatusApproved}
	}
	return filter
}

// newReviewSanitizer strips all HTML from user text and normalises whitespace,
// keeping intentional newlines.
func newReviewSanitizer() func(string) string {
	policy := bluemonday.StrictPolicy()
	return func(input string) string {
		return normalizeReviewText(policy.Sanitize(input))
	}
}

func normalizeReviewText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\n' {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
