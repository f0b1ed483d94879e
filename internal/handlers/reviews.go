package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/platform/auth"
	"github.com/craftline/api/internal/platform/httpx"
	"github.com/craftline/api/internal/services"
)

const (
	defaultReviewCreateLimit  = 5
	defaultReviewCreateWindow = time.Hour
)

// ReviewHandlers exposes the review and moderation endpoints. Public product
// and artisan listings stay unauthenticated; everything else requires auth.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
	limiter rateLimiter
}

// ReviewOption customises ReviewHandlers instances.
type ReviewOption func(*ReviewHandlers)

// WithReviewCreateLimit overrides the per-user review creation rate limit.
func WithReviewCreateLimit(limit int, window time.Duration) ReviewOption {
	return func(h *ReviewHandlers) {
		if limit > 0 && window > 0 {
			h.limiter = newSimpleRateLimiter(limit, window, nil)
		}
	}
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService, opts ...ReviewOption) *ReviewHandlers {
	h := &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
		limiter: newSimpleRateLimiter(defaultReviewCreateLimit, defaultReviewCreateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(public chi.Router) {
		if h.authn != nil {
			public.Use(h.authn.OptionalAuth())
		}
		public.Get("/product/{productID}", h.listByProduct)
		public.Get("/artisan/{artisanID}", h.listByArtisan)
	})

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth())
		}
		protected.Post("/", h.createReview)
		protected.Get("/mine", h.listMine)
		protected.Get("/{reviewID}", h.getReview)
		protected.Put("/{reviewID}", h.updateReview)
		protected.Delete("/{reviewID}", h.deleteReview)
		protected.Post("/{reviewID}/helpful", h.addHelpfulVote)
		protected.Post("/{reviewID}/respond", h.respond)
		protected.Put("/{reviewID}/moderate", h.moderate)
	})
}

type reviewRatingInput struct {
	Overall  int  `json:"overall"`
	Quality  *int `json:"quality"`
	Value    *int `json:"value"`
	Shipping *int `json:"shipping"`
}

func (in reviewRatingInput) toDomain() domain.ReviewRating {
	return domain.ReviewRating{
		Overall:  in.Overall,
		Quality:  in.Quality,
		Value:    in.Value,
		Shipping: in.Shipping,
	}
}

type createReviewRequest struct {
	OrderID   string            `json:"order_id"`
	ProductID string            `json:"product_id"`
	Rating    reviewRatingInput `json:"rating"`
	Comment   string            `json:"comment"`
}

type updateReviewRequest struct {
	Rating  *reviewRatingInput `json:"rating"`
	Comment *string            `json:"comment"`
}

type helpfulVoteRequest struct {
	Helpful *bool `json:"helpful"`
}

type respondReviewRequest struct {
	Message string `json:"message"`
}

type moderateReviewRequest struct {
	Status string `json:"status"`
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(actor.ID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many reviews submitted, retry later", http.StatusTooManyRequests))
		return
	}

	var req createReviewRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	review, err := h.reviews.CreateReview(ctx, services.CreateReviewCommand{
		BuyerID:   actor.ID,
		OrderID:   strings.TrimSpace(req.OrderID),
		ProductID: strings.TrimSpace(req.ProductID),
		Rating:    req.Rating.toDomain(),
		Comment:   strings.TrimSpace(req.Comment),
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, buildReviewPayload(review))
}

func (h *ReviewHandlers) getReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireActor(w, r); !ok {
		return
	}
	reviewID, ok := requireURLParam(w, r, "reviewID")
	if !ok {
		return
	}

	review, err := h.reviews.GetReview(ctx, reviewID)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildReviewPayload(review))
}

func (h *ReviewHandlers) updateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	reviewID, ok := requireURLParam(w, r, "reviewID")
	if !ok {
		return
	}

	var req updateReviewRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := services.UpdateReviewCommand{
		ReviewID: reviewID,
		Actor:    actor,
		Comment:  req.Comment,
	}
	if req.Rating != nil {
		rating := req.Rating.toDomain()
		cmd.Rating = &rating
	}

	review, err := h.reviews.UpdateReview(ctx, cmd)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildReviewPayload(review))
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	reviewID, ok := requireURLParam(w, r, "reviewID")
	if !ok {
		return
	}

	if err := h.reviews.DeleteReview(ctx, services.DeleteReviewCommand{ReviewID: reviewID, Actor: actor}); err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "review deleted", nil)
}

func (h *ReviewHandlers) listByProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, ok := requireURLParam(w, r, "productID")
	if !ok {
		return
	}
	pager, ok := parsePageParams(w, r)
	if !ok {
		return
	}

	cmd := services.ListProductReviewsCommand{
		ProductID:  productID,
		Pagination: pager,
	}
	if actor := optionalActor(r); actor != nil && actor.IsAdmin() {
		cmd.IncludeUnmoderated = parseBoolQuery(r, "include_unmoderated")
	}

	page, err := h.reviews.ListByProduct(ctx, cmd)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildReviewListPayload(page))
}

func (h *ReviewHandlers) listByArtisan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	artisanID, ok := requireURLParam(w, r, "artisanID")
	if !ok {
		return
	}
	pager, ok := parsePageParams(w, r)
	if !ok {
		return
	}

	cmd := services.ListArtisanReviewsCommand{
		ArtisanID:  artisanID,
		Pagination: pager,
	}
	if actor := optionalActor(r); actor != nil && actor.IsAdmin() {
		cmd.IncludeUnmoderated = parseBoolQuery(r, "include_unmoderated")
	}

	page, err := h.reviews.ListByArtisan(ctx, cmd)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildReviewListPayload(page))
}

func (h *ReviewHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	pager, ok := parsePageParams(w, r)
	if !ok {
		return
	}

	page, err := h.reviews.ListMine(ctx, actor.ID, pager)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildReviewListPayload(page))
}

func (h *ReviewHandlers) addHelpfulVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	reviewID, ok := requireURLParam(w, r, "reviewID")
	if !ok {
		return
	}

	var req helpfulVoteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	helpful := true
	if req.Helpful != nil {
		helpful = *req.Helpful
	}

	review, err := h.reviews.AddHelpfulVote(ctx, services.HelpfulVoteCommand{
		ReviewID: reviewID,
		UserID:   actor.ID,
		Helpful:  helpful,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildReviewPayload(review))
}

func (h *ReviewHandlers) respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	reviewID, ok := requireURLParam(w, r, "reviewID")
	if !ok {
		return
	}

	var req respondReviewRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	review, err := h.reviews.Respond(ctx, services.RespondReviewCommand{
		ReviewID: reviewID,
		Actor:    actor,
		Message:  strings.TrimSpace(req.Message),
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildReviewPayload(review))
}

func (h *ReviewHandlers) moderate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		httpx.WriteError(ctx, w, httpx.NewError("access_denied", "admin role required", http.StatusForbidden))
		return
	}
	reviewID, ok := requireURLParam(w, r, "reviewID")
	if !ok {
		return
	}

	var req moderateReviewRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	review, err := h.reviews.Moderate(ctx, services.ModerateReviewCommand{
		ReviewID: reviewID,
		Actor:    actor,
		Status:   domain.ReviewStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildReviewPayload(review))
}

func parseBoolQuery(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// Payload shapes -----------------------------------------------------------

type reviewListPayload struct {
	Items         []reviewPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type reviewRatingPayload struct {
	Overall  int  `json:"overall"`
	Quality  *int `json:"quality,omitempty"`
	Value    *int `json:"value,omitempty"`
	Shipping *int `json:"shipping,omitempty"`
}

type reviewResponsePayload struct {
	Message   string `json:"message"`
	AuthorID  string `json:"author_id"`
	CreatedAt string `json:"created_at"`
}

type reviewPayload struct {
	ID           string                 `json:"id"`
	ProductID    string                 `json:"product_id"`
	ArtisanID    string                 `json:"artisan_id"`
	BuyerID      string                 `json:"buyer_id"`
	OrderID      string                 `json:"order_id"`
	Rating       reviewRatingPayload    `json:"rating"`
	Comment      string                 `json:"comment,omitempty"`
	Status       string                 `json:"status"`
	HelpfulCount int                    `json:"helpful_count"`
	Response     *reviewResponsePayload `json:"response,omitempty"`
	CreatedAt    string                 `json:"created_at"`
	UpdatedAt    string                 `json:"updated_at,omitempty"`
}

func buildReviewPayload(review domain.Review) reviewPayload {
	payload := reviewPayload{
		ID:        review.ID,
		ProductID: review.ProductID,
		ArtisanID: review.ArtisanID,
		BuyerID:   review.BuyerID,
		OrderID:   review.OrderID,
		Rating: reviewRatingPayload{
			Overall:  review.Rating.Overall,
			Quality:  review.Rating.Quality,
			Value:    review.Rating.Value,
			Shipping: review.Rating.Shipping,
		},
		Comment:      review.Comment,
		Status:       string(review.Status),
		HelpfulCount: review.HelpfulCount,
		CreatedAt:    formatTime(review.CreatedAt),
		UpdatedAt:    formatTime(review.UpdatedAt),
	}
	if review.Response != nil {
		payload.Response = &reviewResponsePayload{
			Message:   review.Response.Message,
			AuthorID:  review.Response.AuthorID,
			CreatedAt: formatTime(review.Response.CreatedAt),
		}
	}
	return payload
}

func buildReviewListPayload(page domain.CursorPage[domain.Review]) reviewListPayload {
	items := make([]reviewPayload, 0, len(page.Items))
	for _, review := range page.Items {
		items = append(items, buildReviewPayload(review))
	}
	return reviewListPayload{Items: items, NextPageToken: page.NextPageToken}
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReviewNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("not_eligible", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrReviewDuplicate):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_review", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReviewAlreadyVoted):
		httpx.WriteError(ctx, w, httpx.NewError("already_voted", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewAccessDenied):
		httpx.WriteError(ctx, w, httpx.NewError("access_denied", "not allowed to modify this review", http.StatusForbidden))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "review not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewConflict):
		httpx.WriteError(ctx, w, httpx.NewError("review_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("review_error", "failed to process review request", http.StatusInternalServerError))
	}
}
