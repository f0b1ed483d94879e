package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/services"
)

type stubArtisanService struct {
	getFn    func(ctx context.Context, artisanID string) (domain.ArtisanProfile, error)
	upsertFn func(ctx context.Context, cmd services.UpsertArtisanProfileCommand) (domain.ArtisanProfile, error)
	avatarFn func(ctx context.Context, cmd services.AvatarUploadCommand) (domain.SignedAssetResponse, error)
}

func (s *stubArtisanService) GetProfile(ctx context.Context, artisanID string) (domain.ArtisanProfile, error) {
	if s.getFn == nil {
		return domain.ArtisanProfile{}, errors.New("unexpected GetProfile call")
	}
	return s.getFn(ctx, artisanID)
}

func (s *stubArtisanService) UpsertProfile(ctx context.Context, cmd services.UpsertArtisanProfileCommand) (domain.ArtisanProfile, error) {
	if s.upsertFn == nil {
		return domain.ArtisanProfile{}, errors.New("unexpected UpsertProfile call")
	}
	return s.upsertFn(ctx, cmd)
}

func (s *stubArtisanService) IssueAvatarUploadURL(ctx context.Context, cmd services.AvatarUploadCommand) (domain.SignedAssetResponse, error) {
	if s.avatarFn == nil {
		return domain.SignedAssetResponse{}, errors.New("unexpected IssueAvatarUploadURL call")
	}
	return s.avatarFn(ctx, cmd)
}

var _ services.ArtisanService = (*stubArtisanService)(nil)

func sampleProfile() domain.ArtisanProfile {
	created := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	return domain.ArtisanProfile{
		ID:          "artisan-1",
		DisplayName: "Clay & Kiln",
		Bio:         "Hand-thrown ceramics",
		Location:    "Pune",
		Rating:      domain.RatingSummary{Average: 4.6, Count: 30},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestGetArtisanProfileHandler(t *testing.T) {
	svc := &stubArtisanService{
		getFn: func(_ context.Context, artisanID string) (domain.ArtisanProfile, error) {
			if artisanID != "artisan-1" {
				return domain.ArtisanProfile{}, services.ErrArtisanNotFound
			}
			return sampleProfile(), nil
		},
	}
	h := NewArtisanHandlers(nil, svc)

	rec := serveRoutes(t, h.Routes, newTestRequest(t, http.MethodGet, "/artisan-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload artisanPayload
	decodeData(t, rec, &payload)
	if payload.DisplayName != "Clay & Kiln" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Rating.Average != 4.6 || payload.Rating.Count != 30 {
		t.Fatalf("unexpected rating %+v", payload.Rating)
	}

	rec = serveRoutes(t, h.Routes, newTestRequest(t, http.MethodGet, "/artisan-missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestUpsertArtisanProfileHandler(t *testing.T) {
	var captured services.UpsertArtisanProfileCommand
	svc := &stubArtisanService{
		upsertFn: func(_ context.Context, cmd services.UpsertArtisanProfileCommand) (domain.ArtisanProfile, error) {
			if cmd.Actor.ID != cmd.ArtisanID && !cmd.Actor.IsAdmin() {
				return domain.ArtisanProfile{}, services.ErrArtisanAccessDenied
			}
			captured = cmd
			profile := sampleProfile()
			profile.DisplayName = cmd.DisplayName
			return profile, nil
		},
	}
	h := NewArtisanHandlers(nil, svc)

	body := map[string]any{"display_name": " Clay & Kiln ", "bio": "Hand-thrown ceramics", "location": "Pune"}
	rec := serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodPut, "/artisan-1", body), "artisan-1", "artisan"))
	if rec.Code != http.StatusOK {
		t.Fatalf("owner upsert: expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.DisplayName != "Clay & Kiln" {
		t.Fatalf("expected trimmed display name got %q", captured.DisplayName)
	}

	rec = serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodPut, "/artisan-1", body), "artisan-2", "artisan"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("imposter upsert: expected 403 got %d", rec.Code)
	}
}

func TestIssueAvatarUploadHandler(t *testing.T) {
	svc := &stubArtisanService{
		avatarFn: func(_ context.Context, cmd services.AvatarUploadCommand) (domain.SignedAssetResponse, error) {
			return domain.SignedAssetResponse{
				URL:       "https://storage.example/avatar",
				Method:    http.MethodPut,
				ExpiresAt: time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	h := NewArtisanHandlers(nil, svc)

	body := map[string]any{"file_name": "me.jpg", "content_type": "image/jpeg", "size_bytes": 4096}
	rec := serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodPost, "/artisan-1/avatar", body), "artisan-1", "artisan"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload signedUploadPayload
	decodeData(t, rec, &payload)
	if payload.URL != "https://storage.example/avatar" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestIssueAvatarUploadHandlerDisabled(t *testing.T) {
	svc := &stubArtisanService{
		avatarFn: func(context.Context, services.AvatarUploadCommand) (domain.SignedAssetResponse, error) {
			return domain.SignedAssetResponse{}, services.ErrArtisanUploadsDisabled
		},
	}
	h := NewArtisanHandlers(nil, svc)

	body := map[string]any{"file_name": "me.jpg", "content_type": "image/jpeg"}
	rec := serveRoutes(t, h.Routes, asUser(newTestRequest(t, http.MethodPost, "/artisan-1/avatar", body), "artisan-1", "artisan"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}
