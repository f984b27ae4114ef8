package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arikurniawan9/toko-sakinah/internal/observability"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

func TestRequestMetaCarriesCaller(t *testing.T) {
	var got shared.RequestMeta
	h := middleware.RequestID(RequestMeta(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.RequestMetaFromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/sales", nil)
	req.RemoteAddr = "10.0.0.7:5000"
	req.Header.Set("User-Agent", "kasir/1.0")
	req.Header.Set(ActorHeader, "12")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int64(12), got.ActorID)
	assert.Equal(t, "10.0.0.7:5000", got.IP)
	assert.Equal(t, "kasir/1.0", got.UserAgent)
	assert.NotEmpty(t, got.RequestID)
}

func TestRequestMetaIgnoresMalformedActor(t *testing.T) {
	var got shared.RequestMeta
	h := RequestMeta(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.RequestMetaFromContext(r.Context())
	}))

	for _, raw := range []string{"abc", "-3", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(ActorHeader, raw)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Zero(t, got.ActorID, raw)
	}
}

func TestMiddlewareStackRateLimits(t *testing.T) {
	cfg := &Config{RateLimitPerMinute: 2}
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Config: cfg}) {
		r.Use(mw)
	}
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &Config{RateLimitPerMinute: 100},
		Metrics: metrics,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
