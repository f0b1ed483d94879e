package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/platform/auth"
	"github.com/craftline/api/internal/platform/httpx"
	"github.com/craftline/api/internal/services"
)

// ArtisanHandlers exposes the storefront profile endpoints. Profile reads are
// public; writes require the artisan or admin role.
type ArtisanHandlers struct {
	authn    *auth.Authenticator
	artisans services.ArtisanService
}

// NewArtisanHandlers constructs a new ArtisanHandlers instance.
func NewArtisanHandlers(authn *auth.Authenticator, artisans services.ArtisanService) *ArtisanHandlers {
	return &ArtisanHandlers{
		authn:    authn,
		artisans: artisans,
	}
}

// Routes registers the /artisans endpoints.
func (h *ArtisanHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{artisanID}", h.getProfile)

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth(services.RoleArtisan, services.RoleAdmin))
		}
		protected.Put("/{artisanID}", h.upsertProfile)
		protected.Post("/{artisanID}/avatar", h.issueAvatarUpload)
	})
}

type upsertArtisanProfileRequest struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	AvatarURL   string `json:"avatar_url"`
}

func (h *ArtisanHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	artisanID, ok := requireURLParam(w, r, "artisanID")
	if !ok {
		return
	}

	profile, err := h.artisans.GetProfile(ctx, artisanID)
	if err != nil {
		writeArtisanError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildArtisanPayload(profile))
}

func (h *ArtisanHandlers) upsertProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	artisanID, ok := requireURLParam(w, r, "artisanID")
	if !ok {
		return
	}

	var req upsertArtisanProfileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	profile, err := h.artisans.UpsertProfile(ctx, services.UpsertArtisanProfileCommand{
		ArtisanID:   artisanID,
		Actor:       actor,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Bio:         strings.TrimSpace(req.Bio),
		Location:    strings.TrimSpace(req.Location),
		AvatarURL:   strings.TrimSpace(req.AvatarURL),
	})
	if err != nil {
		writeArtisanError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildArtisanPayload(profile))
}

func (h *ArtisanHandlers) issueAvatarUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	artisanID, ok := requireURLParam(w, r, "artisanID")
	if !ok {
		return
	}

	var req imageUploadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	signed, err := h.artisans.IssueAvatarUploadURL(ctx, services.AvatarUploadCommand{
		ArtisanID:   artisanID,
		Actor:       actor,
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		writeArtisanError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, buildSignedUploadPayload(signed))
}

// Payload shapes -----------------------------------------------------------

type artisanPayload struct {
	ID          string               `json:"id"`
	DisplayName string               `json:"display_name"`
	Bio         string               `json:"bio,omitempty"`
	Location    string               `json:"location,omitempty"`
	AvatarURL   string               `json:"avatar_url,omitempty"`
	Rating      ratingSummaryPayload `json:"rating"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at,omitempty"`
}

func buildArtisanPayload(profile domain.ArtisanProfile) artisanPayload {
	return artisanPayload{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		Bio:         profile.Bio,
		Location:    profile.Location,
		AvatarURL:   profile.AvatarURL,
		Rating: ratingSummaryPayload{
			Average: profile.Rating.Average,
			Count:   profile.Rating.Count,
		},
		CreatedAt: formatTime(profile.CreatedAt),
		UpdatedAt: formatTime(profile.UpdatedAt),
	}
}

func writeArtisanError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrArtisanInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrArtisanAccessDenied):
		httpx.WriteError(ctx, w, httpx.NewError("access_denied", "not allowed to modify this profile", http.StatusForbidden))
	case errors.Is(err, services.ErrArtisanNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("artisan_not_found", "artisan profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrArtisanUploadsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("uploads_disabled", "avatar uploads are not configured", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("artisan_error", "failed to process artisan request", http.StatusInternalServerError))
	}
}
