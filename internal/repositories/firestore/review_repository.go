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

const (
	reviewsCollection    = "reviews"
	reviewKeysCollection = "reviewKeys"
)

// ReviewRepository persists reviews and enforces purchase uniqueness through
// a companion key collection written in the same transaction.
type ReviewRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[reviewDocument]
	keys     *pfirestore.BaseRepository[reviewKeyDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[reviewDocument](provider, reviewsCollection, nil, nil)
	keys := pfirestore.NewBaseRepository[reviewKeyDocument](provider, reviewKeysCollection, nil, nil)
	return &ReviewRepository{provider: provider, base: base, keys: keys}, nil
}

// Insert creates the review and reserves its purchase key atomically.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if r == nil || r.provider == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID := strings.TrimSpace(review.ID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}
	key := purchaseKey(review.BuyerID, review.ProductID, review.OrderID)
	if key == "" {
		return domain.Review{}, errors.New("review repository: buyer, product, and order ids are required")
	}

	doc := newReviewDocument(review)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		keyRef, err := r.keys.DocumentRef(ctx, key)
		if err != nil {
			return err
		}
		reviewRef, err := r.base.DocumentRef(ctx, reviewID)
		if err != nil {
			return err
		}

		if err := tx.Create(keyRef, reviewKeyDocument{ReviewID: reviewID, CreatedAt: doc.CreatedAt}); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.NewReviewError(repositories.ReviewErrorDuplicate, fmt.Sprintf("review already exists for purchase %s", key), err)
			}
			return err
		}
		return tx.Create(reviewRef, doc)
	})
	if err != nil {
		return domain.Review{}, wrapReviewError("reviews.insert", err)
	}
	return doc.toDomain(reviewID), nil
}

// Update overwrites the review document.
func (r *ReviewRepository) Update(ctx context.Context, review domain.Review) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	reviewID := strings.TrimSpace(review.ID)
	if reviewID == "" {
		return errors.New("review repository: review id is required")
	}
	_, err := r.base.Set(ctx, reviewID, newReviewDocument(review))
	return wrapReviewError("reviews.update", err)
}

// Delete removes the review and releases its purchase key so the buyer could
// review the purchase again after moderation removal.
func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	if r == nil || r.provider == nil {
		return errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return errors.New("review repository: review id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		reviewRef, err := r.base.DocumentRef(ctx, reviewID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(reviewRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewReviewError(repositories.ReviewErrorNotFound, fmt.Sprintf("review %s not found", reviewID), err)
			}
			return err
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode review %s: %w", reviewID, err)
		}
		if key := purchaseKey(doc.BuyerID, doc.ProductID, doc.OrderID); key != "" {
			keyRef, err := r.keys.DocumentRef(ctx, key)
			if err != nil {
				return err
			}
			if err := tx.Delete(keyRef); err != nil {
				return err
			}
		}
		return tx.Delete(reviewRef)
	})
	return wrapReviewError("reviews.delete", err)
}

// FindByID loads the review.
func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Review{}, repositories.NewReviewError(repositories.ReviewErrorNotFound, fmt.Sprintf("review %s not found", reviewID), err)
		}
		return domain.Review{}, wrapReviewError("reviews.findById", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByProduct returns reviews for a product, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: product id is required")
	}
	return r.list(ctx, "productId", productID, filter)
}

// ListByArtisan returns reviews across an artisan's products, newest first.
func (r *ReviewRepository) ListByArtisan(ctx context.Context, artisanID string, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	artisanID = strings.TrimSpace(artisanID)
	if artisanID == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: artisan id is required")
	}
	return r.list(ctx, "artisanId", artisanID, filter)
}

// ListByBuyer returns reviews authored by the buyer, newest first.
func (r *ReviewRepository) ListByBuyer(ctx context.Context, buyerID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository: buyer id is required")
	}
	return r.list(ctx, "buyerId", buyerID, repositories.ReviewListFilter{Pagination: pager})
}

func (r *ReviewRepository) list(ctx context.Context, field string, value string, filter repositories.ReviewListFilter) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
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
		return domain.CursorPage[domain.Review]{}, wrapReviewError("reviews.list", err)
	}

	query := client.Collection(reviewsCollection).Query.Where(field, "==", value)
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", string(filter.Status[0]))
	} else if len(filter.Status) > 1 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		query = query.Where("status", "in", statuses)
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeReviewPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, wrapReviewError("reviews.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var reviews []domain.Review
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Review]{}, wrapReviewError("reviews.list", err)
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("decode review %s: %w", snap.Ref.ID, err)
		}
		reviews = append(reviews, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(reviews) > pageSize
	if hasMore {
		reviews = reviews[:pageSize]
	}
	var nextToken string
	if hasMore && len(reviews) > 0 {
		last := reviews[len(reviews)-1]
		encoded, err := encodeReviewPageToken(reviewPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Review]{}, wrapReviewError("reviews.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Review]{
		Items:         reviews,
		NextPageToken: nextToken,
	}, nil
}

// ApprovedScores returns the overall score of every approved review for the target.
func (r *ReviewRepository) ApprovedScores(ctx context.Context, target repositories.ReviewTarget) ([]int, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("review repository not initialised")
	}

	field := "productId"
	value := strings.TrimSpace(target.ProductID)
	if value == "" {
		field = "artisanId"
		value = strings.TrimSpace(target.ArtisanID)
	}
	if value == "" {
		return nil, errors.New("review repository: review target is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapReviewError("reviews.approvedScores", err)
	}

	iter := client.Collection(reviewsCollection).
		Where(field, "==", value).
		Where("status", "==", string(domain.ReviewStatusApproved)).
		Documents(ctx)
	defer iter.Stop()

	var scores []int
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapReviewError("reviews.approvedScores", err)
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode review %s: %w", snap.Ref.ID, err)
		}
		scores = append(scores, doc.Rating.Overall)
	}
	return scores, nil
}

// AddHelpfulVote records one vote per user atomically. The tally only rises
// when the vote is helpful, but the voter is remembered either way.
func (r *ReviewRepository) AddHelpfulVote(ctx context.Context, reviewID string, userID string, helpful bool, now time.Time) (domain.Review, error) {
	if r == nil || r.provider == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	userID = strings.TrimSpace(userID)
	if reviewID == "" || userID == "" {
		return domain.Review{}, errors.New("review repository: review id and user id are required")
	}

	var updated domain.Review
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, reviewID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewReviewError(repositories.ReviewErrorNotFound, fmt.Sprintf("review %s not found", reviewID), err)
			}
			return err
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode review %s: %w", reviewID, err)
		}
		for _, voter := range doc.VotedUserIDs {
			if voter == userID {
				return repositories.NewReviewError(repositories.ReviewErrorAlreadyVoted, fmt.Sprintf("user %s already voted on review %s", userID, reviewID), nil)
			}
		}
		doc.VotedUserIDs = append(doc.VotedUserIDs, userID)
		if helpful {
			doc.HelpfulCount++
		}
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(reviewID)
		return nil
	})
	if err != nil {
		return domain.Review{}, wrapReviewError("reviews.addHelpfulVote", err)
	}
	return updated, nil
}

// UpdateStatus applies a moderation decision and returns the updated review.
func (r *ReviewRepository) UpdateStatus(ctx context.Context, reviewID string, reviewStatus domain.ReviewStatus, update repositories.ReviewModerationUpdate) (domain.Review, error) {
	if r == nil || r.provider == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}

	var updated domain.Review
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, reviewID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewReviewError(repositories.ReviewErrorNotFound, fmt.Sprintf("review %s not found", reviewID), err)
			}
			return err
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode review %s: %w", reviewID, err)
		}
		doc.Status = string(reviewStatus)
		if moderator := strings.TrimSpace(update.ModeratedBy); moderator != "" {
			doc.ModeratedBy = &moderator
		}
		if !update.ModeratedAt.IsZero() {
			moderatedAt := update.ModeratedAt.UTC()
			doc.ModeratedAt = &moderatedAt
			doc.UpdatedAt = moderatedAt
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(reviewID)
		return nil
	})
	if err != nil {
		return domain.Review{}, wrapReviewError("reviews.updateStatus", err)
	}
	return updated, nil
}

// UpdateResponse sets or clears the artisan reply and returns the updated review.
func (r *ReviewRepository) UpdateResponse(ctx context.Context, reviewID string, response *domain.ReviewResponse, updatedAt time.Time) (domain.Review, error) {
	if r == nil || r.provider == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}

	var updated domain.Review
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, reviewID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewReviewError(repositories.ReviewErrorNotFound, fmt.Sprintf("review %s not found", reviewID), err)
			}
			return err
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode review %s: %w", reviewID, err)
		}
		if response == nil {
			doc.Response = nil
		} else {
			doc.Response = &reviewResponseDocument{
				Message:   response.Message,
				AuthorID:  response.AuthorID,
				CreatedAt: response.CreatedAt.UTC(),
			}
		}
		doc.UpdatedAt = updatedAt.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(reviewID)
		return nil
	})
	if err != nil {
		return domain.Review{}, wrapReviewError("reviews.updateResponse", err)
	}
	return updated, nil
}

// Helper structures ---------------------------------------------------------

type reviewDocument struct {
	ProductID    string                  `firestore:"productId"`
	ArtisanID    string                  `firestore:"artisanId"`
	BuyerID      string                  `firestore:"buyerId"`
	OrderID      string                  `firestore:"orderId"`
	Rating       reviewRatingDocument    `firestore:"rating"`
	Comment      string                  `firestore:"comment,omitempty"`
	Status       string                  `firestore:"status"`
	HelpfulCount int                     `firestore:"helpfulCount"`
	VotedUserIDs []string                `firestore:"votedUserIds,omitempty"`
	Response     *reviewResponseDocument `firestore:"response,omitempty"`
	ModeratedBy  *string                 `firestore:"moderatedBy,omitempty"`
	ModeratedAt  *time.Time              `firestore:"moderatedAt,omitempty"`
	CreatedAt    time.Time               `firestore:"createdAt"`
	UpdatedAt    time.Time               `firestore:"updatedAt"`
}

type reviewRatingDocument struct {
	Overall  int  `firestore:"overall"`
	Quality  *int `firestore:"quality,omitempty"`
	Value    *int `firestore:"value,omitempty"`
	Shipping *int `firestore:"shipping,omitempty"`
}

type reviewResponseDocument struct {
	Message   string    `firestore:"message"`
	AuthorID  string    `firestore:"authorId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type reviewKeyDocument struct {
	ReviewID  string    `firestore:"reviewId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newReviewDocument(review domain.Review) reviewDocument {
	return reviewDocument{
		ProductID: strings.TrimSpace(review.ProductID),
		ArtisanID: strings.TrimSpace(review.ArtisanID),
		BuyerID:   strings.TrimSpace(review.BuyerID),
		OrderID:   strings.TrimSpace(review.OrderID),
		Rating: reviewRatingDocument{
			Overall:  review.Rating.Overall,
			Quality:  review.Rating.Quality,
			Value:    review.Rating.Value,
			Shipping: review.Rating.Shipping,
		},
		Comment:      review.Comment,
		Status:       string(review.Status),
		HelpfulCount: review.HelpfulCount,
		VotedUserIDs: append([]string(nil), review.VotedUserIDs...),
		Response: func() *reviewResponseDocument {
			if review.Response == nil {
				return nil
			}
			return &reviewResponseDocument{
				Message:   review.Response.Message,
				AuthorID:  review.Response.AuthorID,
				CreatedAt: review.Response.CreatedAt.UTC(),
			}
		}(),
		ModeratedBy: review.ModeratedBy,
		ModeratedAt: review.ModeratedAt,
		CreatedAt:   review.CreatedAt.UTC(),
		UpdatedAt:   review.UpdatedAt.UTC(),
	}
}

func (d reviewDocument) toDomain(id string) domain.Review {
	review := domain.Review{
		ID:        id,
		ProductID: strings.TrimSpace(d.ProductID),
		ArtisanID: strings.TrimSpace(d.ArtisanID),
		BuyerID:   strings.TrimSpace(d.BuyerID),
		OrderID:   strings.TrimSpace(d.OrderID),
		Rating: domain.ReviewRating{
			Overall:  d.Rating.Overall,
			Quality:  d.Rating.Quality,
			Value:    d.Rating.Value,
			Shipping: d.Rating.Shipping,
		},
		Comment:      d.Comment,
		Status:       domain.ReviewStatus(d.Status),
		HelpfulCount: d.HelpfulCount,
		VotedUserIDs: append([]string(nil), d.VotedUserIDs...),
		ModeratedBy:  d.ModeratedBy,
		ModeratedAt:  d.ModeratedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.Response != nil {
		review.Response = &domain.ReviewResponse{
			Message:   d.Response.Message,
			AuthorID:  d.Response.AuthorID,
			CreatedAt: d.Response.CreatedAt,
		}
	}
	return review
}

func purchaseKey(buyerID, productID, orderID string) string {
	buyerID = strings.TrimSpace(buyerID)
	productID = strings.TrimSpace(productID)
	orderID = strings.TrimSpace(orderID)
	if buyerID == "" || productID == "" || orderID == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s_%s", buyerID, productID, orderID)
}

type reviewPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeReviewPageToken(token reviewPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode review page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeReviewPageToken(encoded string) (*reviewPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode review page token: %w", err)
	}
	var token reviewPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode review page token json: %w", err)
	}
	return &token, nil
}

func wrapReviewError(op string, err error) error {
	if err == nil {
		return nil
	}
	var reviewErr *repositories.ReviewError
	if errors.As(err, &reviewErr) {
		if reviewErr.Op == "" {
			reviewErr.Op = op
		}
		return reviewErr
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
