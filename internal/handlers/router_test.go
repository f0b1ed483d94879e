package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/craftline/api/internal/platform/httpx"
)

func TestRouterHealthEndpoints(t *testing.T) {
	r := NewRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200 got %d", rec.Code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	r := NewRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error != "route_not_found" {
		t.Fatalf("expected route_not_found got %q", env.Error)
	}
}

func TestRouterUnconfiguredGroupNotImplemented(t *testing.T) {
	r := NewRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error != "not_implemented" {
		t.Fatalf("expected not_implemented got %q", env.Error)
	}
}

func TestRouterMountsConfiguredGroups(t *testing.T) {
	r := NewRouter(
		WithProductRoutes(func(group chi.Router) {
			group.Get("/", func(w http.ResponseWriter, req *http.Request) {
				httpx.WriteData(w, http.StatusOK, map[string]any{"group": "products"})
			})
		}),
		WithReviewRoutes(func(group chi.Router) {
			group.Get("/product/{productID}", func(w http.ResponseWriter, req *http.Request) {
				httpx.WriteData(w, http.StatusOK, map[string]any{"product": chi.URLParam(req, "productID")})
			})
		}),
	)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("products: expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviews/product/prd_1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reviews: expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload map[string]string
	decodeData(t, rec, &payload)
	if payload["product"] != "prd_1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestRouterOrderMiddlewares(t *testing.T) {
	var sawHeader bool
	marker := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sawHeader = req.Header.Get("X-Test") == "1"
			next.ServeHTTP(w, req)
		})
	}

	r := NewRouter(
		WithOrderMiddlewares(marker),
		WithOrderRoutes(func(group chi.Router) {
			group.Get("/", func(w http.ResponseWriter, req *http.Request) {
				httpx.WriteData(w, http.StatusOK, nil)
			})
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("X-Test", "1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !sawHeader {
		t.Fatal("order middleware did not run")
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	r := NewRouter(
		WithProductRoutes(func(group chi.Router) {
			group.Get("/", func(w http.ResponseWriter, req *http.Request) {
				httpx.WriteData(w, http.StatusOK, nil)
			})
		}),
	)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/products", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rec.Code)
	}
}
