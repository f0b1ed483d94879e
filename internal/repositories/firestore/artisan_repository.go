package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/craftline/api/internal/domain"
	pfirestore "github.com/craftline/api/internal/platform/firestore"
	"github.com/craftline/api/internal/repositories"
)

const artisansCollection = "artisans"

// ArtisanRepository persists artisan storefront profiles within Firestore.
type ArtisanRepository struct {
	base *pfirestore.BaseRepository[artisanDocument]
}

// NewArtisanRepository constructs a Firestore-backed artisan repository.
func NewArtisanRepository(provider *pfirestore.Provider) (*ArtisanRepository, error) {
	if provider == nil {
		return nil, errors.New("artisan repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[artisanDocument](provider, artisansCollection, nil, nil)
	return &ArtisanRepository{base: base}, nil
}

// FindByID loads the artisan profile.
func (r *ArtisanRepository) FindByID(ctx context.Context, artisanID string) (domain.ArtisanProfile, error) {
	if r == nil || r.base == nil {
		return domain.ArtisanProfile{}, errors.New("artisan repository not initialised")
	}
	artisanID = strings.TrimSpace(artisanID)
	if artisanID == "" {
		return domain.ArtisanProfile{}, errors.New("artisan repository: artisan id is required")
	}
	doc, err := r.base.Get(ctx, artisanID)
	if err != nil {
		return domain.ArtisanProfile{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Upsert writes the artisan profile using the artisan ID as document identifier.
func (r *ArtisanRepository) Upsert(ctx context.Context, profile domain.ArtisanProfile) (domain.ArtisanProfile, error) {
	if r == nil || r.base == nil {
		return domain.ArtisanProfile{}, errors.New("artisan repository not initialised")
	}
	artisanID := strings.TrimSpace(profile.ID)
	if artisanID == "" {
		return domain.ArtisanProfile{}, errors.New("artisan repository: artisan id is required")
	}

	now := profile.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	createdAt := profile.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := artisanDocument{
		DisplayName:   strings.TrimSpace(profile.DisplayName),
		Bio:           strings.TrimSpace(profile.Bio),
		Location:      strings.TrimSpace(profile.Location),
		AvatarURL:     strings.TrimSpace(profile.AvatarURL),
		RatingAverage: profile.Rating.Average,
		RatingCount:   profile.Rating.Count,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
	result, err := r.base.Set(ctx, artisanID, doc)
	if err != nil {
		return domain.ArtisanProfile{}, err
	}

	saved := doc.toDomain(artisanID)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// UpdateRating persists the recomputed rating summary.
func (r *ArtisanRepository) UpdateRating(ctx context.Context, artisanID string, summary domain.RatingSummary, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("artisan repository not initialised")
	}
	artisanID = strings.TrimSpace(artisanID)
	if artisanID == "" {
		return errors.New("artisan repository: artisan id is required")
	}
	_, err := r.base.Update(ctx, artisanID, []firestore.Update{
		{Path: "ratingAverage", Value: summary.Average},
		{Path: "ratingCount", Value: summary.Count},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

// Helper structures ---------------------------------------------------------

type artisanDocument struct {
	DisplayName   string    `firestore:"displayName"`
	Bio           string    `firestore:"bio,omitempty"`
	Location      string    `firestore:"location,omitempty"`
	AvatarURL     string    `firestore:"avatarUrl,omitempty"`
	RatingAverage float64   `firestore:"ratingAverage"`
	RatingCount   int       `firestore:"ratingCount"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d artisanDocument) toDomain(id string) domain.ArtisanProfile {
	return domain.ArtisanProfile{
		ID:          id,
		DisplayName: strings.TrimSpace(d.DisplayName),
		Bio:         strings.TrimSpace(d.Bio),
		Location:    strings.TrimSpace(d.Location),
		AvatarURL:   strings.TrimSpace(d.AvatarURL),
		Rating: domain.RatingSummary{
			Average: d.RatingAverage,
			Count:   d.RatingCount,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.ArtisanRepository = (*ArtisanRepository)(nil)
