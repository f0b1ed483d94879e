package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	pstorage "github.com/craftline/api/internal/platform/storage"
	"github.com/craftline/api/internal/repositories"
)

const (
	avatarMaxBytes = 5 << 20
	avatarExpiry   = 15 * time.Minute
)

var avatarContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

var (
	// ErrArtisanInvalidInput indicates the caller supplied invalid profile data.
	ErrArtisanInvalidInput = errors.New("artisan: invalid input")
	// ErrArtisanNotFound indicates the profile could not be located.
	ErrArtisanNotFound = errors.New("artisan: not found")
	// ErrArtisanAccessDenied indicates the actor may not edit the profile.
	ErrArtisanAccessDenied = errors.New("artisan: access denied")
	// ErrArtisanUploadsDisabled indicates no storage client is configured.
	ErrArtisanUploadsDisabled = errors.New("artisan: uploads not configured")
)

// ArtisanServiceDeps bundles collaborators for artisan profile management.
type ArtisanServiceDeps struct {
	Artisans    repositories.ArtisanRepository
	Storage     *pstorage.Client
	Bucket      string
	Clock       func() time.Time
	IDGenerator func() string
}

type artisanService struct {
	artisans repositories.ArtisanRepository
	storage  *pstorage.Client
	bucket   string
	clock    func() time.Time
	newID    func() string
}

var _ ArtisanService = (*artisanService)(nil)

// NewArtisanService wires dependencies into a concrete ArtisanService implementation.
func NewArtisanService(deps ArtisanServiceDeps) (ArtisanService, error) {
	if deps.Artisans == nil {
		return nil, errors.New("artisan service: artisan repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &artisanService{
		artisans: deps.Artisans,
		storage:  deps.Storage,
		bucket:   strings.TrimSpace(deps.Bucket),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *artisanService) GetProfile(ctx context.Context, artisanID string) (ArtisanProfile, error) {
	artisanID = strings.TrimSpace(artisanID)
	if artisanID == "" {
		return ArtisanProfile{}, fmt.Errorf("%w: artisan id is required", ErrArtisanInvalidInput)
	}
	profile, err := s.artisans.FindByID(ctx, artisanID)
	if err != nil {
		if isRepoNotFound(err) {
			return ArtisanProfile{}, fmt.Errorf("%w: %s", ErrArtisanNotFound, artisanID)
		}
		return ArtisanProfile{}, err
	}
	return profile, nil
}

// UpsertProfile creates or updates the storefront profile. The profile ID is
// the artisan's user ID; only the artisan themselves or an admin may write it.
func (s *artisanService) UpsertProfile(ctx context.Context, cmd UpsertArtisanProfileCommand) (ArtisanProfile, error) {
	artisanID := strings.TrimSpace(cmd.ArtisanID)
	if artisanID == "" {
		return ArtisanProfile{}, fmt.Errorf("%w: artisan id is required", ErrArtisanInvalidInput)
	}
	if !cmd.Actor.IsAdmin() && cmd.Actor.ID != artisanID {
		return ArtisanProfile{}, fmt.Errorf("%w: profile %s", ErrArtisanAccessDenied, artisanID)
	}
	displayName := strings.TrimSpace(cmd.DisplayName)
	if displayName == "" {
		return ArtisanProfile{}, fmt.Errorf("%w: display name is required", ErrArtisanInvalidInput)
	}

	now := s.clock()
	profile := ArtisanProfile{
		ID:          artisanID,
		DisplayName: displayName,
		Bio:         strings.TrimSpace(cmd.Bio),
		Location:    strings.TrimSpace(cmd.Location),
		AvatarURL:   strings.TrimSpace(cmd.AvatarURL),
		UpdatedAt:   now,
	}

	// Rating aggregates survive profile edits untouched.
	if existing, err := s.artisans.FindByID(ctx, artisanID); err == nil {
		profile.Rating = existing.Rating
		profile.CreatedAt = existing.CreatedAt
	} else if !isRepoNotFound(err) {
		return ArtisanProfile{}, err
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}

	return s.artisans.Upsert(ctx, profile)
}

func (s *artisanService) IssueAvatarUploadURL(ctx context.Context, cmd AvatarUploadCommand) (SignedAssetResponse, error) {
	if s.storage == nil || s.bucket == "" {
		return SignedAssetResponse{}, ErrArtisanUploadsDisabled
	}
	artisanID := strings.TrimSpace(cmd.ArtisanID)
	if artisanID == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: artisan id is required", ErrArtisanInvalidInput)
	}
	if !cmd.Actor.IsAdmin() && cmd.Actor.ID != artisanID {
		return SignedAssetResponse{}, fmt.Errorf("%w: profile %s", ErrArtisanAccessDenied, artisanID)
	}
	if cmd.SizeBytes > avatarMaxBytes {
		return SignedAssetResponse{}, fmt.Errorf("%w: avatar exceeds %d bytes", ErrArtisanInvalidInput, avatarMaxBytes)
	}

	object, err := pstorage.BuildObjectPath(pstorage.PurposeArtisanAvatar, pstorage.PathParams{
		ArtisanID: artisanID,
		FileName:  cmd.FileName,
	})
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("%w: %s", ErrArtisanInvalidInput, err.Error())
	}

	signed, err := s.storage.SignedURL(ctx, s.bucket, object, pstorage.SignedURLOptions{
		Upload: &pstorage.UploadOptions{
			Method:              "PUT",
			ContentType:         cmd.ContentType,
			AllowedContentTypes: avatarContentTypes,
			MaxSize:             avatarMaxBytes,
			ExpiresIn:           avatarExpiry,
		},
	})
	if err != nil {
		return SignedAssetResponse{}, err
	}

	return SignedAssetResponse{
		AssetID:   s.newID(),
		URL:       signed.URL,
		ExpiresAt: signed.ExpiresAt,
		Method:    signed.Method,
		Headers:   signed.Headers,
	}, nil
}
