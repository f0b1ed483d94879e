package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/craftline/api/internal/domain"
	"github.com/craftline/api/internal/platform/auth"
	"github.com/craftline/api/internal/platform/httpx"
	"github.com/craftline/api/internal/platform/pagination"
	"github.com/craftline/api/internal/services"
)

const maxJSONBodySize = 64 * 1024

var errBodyTooLarge = errors.New("handlers: request body too large")

// requireActor extracts the authenticated caller as a service-layer actor.
// Writes the 401 response itself when no identity is present.
func requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return services.Actor{ID: strings.TrimSpace(identity.UID), Roles: identity.Roles}, true
}

// optionalActor returns the caller when authenticated, nil otherwise.
func optionalActor(r *http.Request) *services.Actor {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil
	}
	return &services.Actor{ID: strings.TrimSpace(identity.UID), Roles: identity.Roles}
}

// decodeJSONBody reads and unmarshals a size-limited JSON request body.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, target any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxJSONBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		}
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer func() { _ = r.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// parsePageParams reads pageSize/pageToken query parameters, writing the 400
// response on invalid input.
func parsePageParams(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	params = pagination.Must(params)
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return formatTime(*ts)
}

// Shared payload shapes --------------------------------------------------

type addressPayload struct {
	Recipient  string `json:"recipient,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func buildAddressPayload(addr domain.Address) addressPayload {
	payload := addressPayload{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		City:       addr.City,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
	if addr.Line2 != nil {
		payload.Line2 = *addr.Line2
	}
	if addr.State != nil {
		payload.State = *addr.State
	}
	if addr.Phone != nil {
		payload.Phone = *addr.Phone
	}
	return payload
}

type addressInput struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (in addressInput) toDomain() domain.Address {
	addr := domain.Address{
		Recipient:  strings.TrimSpace(in.Recipient),
		Line1:      strings.TrimSpace(in.Line1),
		City:       strings.TrimSpace(in.City),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.TrimSpace(in.Country),
	}
	if line2 := strings.TrimSpace(in.Line2); line2 != "" {
		addr.Line2 = &line2
	}
	if state := strings.TrimSpace(in.State); state != "" {
		addr.State = &state
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		addr.Phone = &phone
	}
	return addr
}

type ratingSummaryPayload struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type signedUploadPayload struct {
	AssetID   string            `json:"asset_id,omitempty"`
	URL       string            `json:"upload_url"`
	Method    string            `json:"method"`
	ExpiresAt string            `json:"expires_at"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func buildSignedUploadPayload(signed domain.SignedAssetResponse) signedUploadPayload {
	return signedUploadPayload{
		AssetID:   signed.AssetID,
		URL:       signed.URL,
		Method:    signed.Method,
		ExpiresAt: formatTime(signed.ExpiresAt),
		Headers:   signed.Headers,
	}
}

func urlParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

// requireURLParam extracts a path parameter, writing the 400 response when absent.
func requireURLParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := urlParam(r, name)
	if value == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", fmt.Sprintf("%s is required", name), http.StatusBadRequest))
		return "", false
	}
	return value, true
}
