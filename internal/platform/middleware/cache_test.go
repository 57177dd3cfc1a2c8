package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func jsonHandler(calls *int) echo.HandlerFunc {
	return func(c echo.Context) error {
		*calls++
		return c.JSON(http.StatusOK, map[string]string{"doctor": "d1"})
	}
}

func TestInMemoryCacheStore_Expiry(t *testing.T) {
	s := NewInMemoryCacheStore()
	now := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if data, ok, _ := s.Get(ctx, "k"); !ok || string(data) != "v" {
		t.Fatalf("expected hit, got %q %v", data, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
	if len(s.entries) != 0 {
		t.Error("expired entry should be removed lazily")
	}
}

func TestInMemoryCacheStore_DeleteClearSweep(t *testing.T) {
	s := NewInMemoryCacheStore()
	now := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Set(ctx, "a", []byte("1"), time.Minute)
	s.Set(ctx, "b", []byte("2"), time.Hour)
	s.Delete(ctx, "a")
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("deleted key should miss")
	}

	s.Set(ctx, "c", []byte("3"), time.Minute)
	now = now.Add(30 * time.Minute)
	s.sweep()
	if len(s.entries) != 1 {
		t.Errorf("expected only the long-lived entry to survive, got %d", len(s.entries))
	}

	s.Clear(ctx)
	if len(s.entries) != 0 {
		t.Error("Clear should remove everything")
	}
}

func TestETagMiddleware_NotModified(t *testing.T) {
	e := echo.New()
	calls := 0
	h := ETagMiddleware(DefaultCacheConfig())(jsonHandler(&calls))

	c, rec := newCtx(e, http.MethodGet, "/api/v1/doctors/d1/day-view")
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected weak ETag, got %q", etag)
	}
	if rec.Header().Get("Cache-Control") != "private, max-age=60" {
		t.Errorf("unexpected Cache-Control %q", rec.Header().Get("Cache-Control"))
	}
	if rec.Body.Len() == 0 {
		t.Error("expected body to be flushed")
	}

	c, rec = newCtx(e, http.MethodGet, "/api/v1/doctors/d1/day-view")
	c.Request().Header.Set("If-None-Match", strings.TrimPrefix(etag, "W/"))
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotModified || rec.Body.Len() != 0 {
		t.Errorf("expected empty 304, got %d with %d bytes", rec.Code, rec.Body.Len())
	}
}

func TestETagMiddleware_SkipsErrorsAndWrites(t *testing.T) {
	e := echo.New()
	h := ETagMiddleware(DefaultCacheConfig())(func(c echo.Context) error {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad"})
	})

	c, rec := newCtx(e, http.MethodGet, "/")
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest || rec.Header().Get("ETag") != "" {
		t.Errorf("error responses must pass through untagged, got %d %q", rec.Code, rec.Header().Get("ETag"))
	}

	calls := 0
	c, rec = newCtx(e, http.MethodPost, "/")
	if err := ETagMiddleware(DefaultCacheConfig())(jsonHandler(&calls))(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get("ETag") != "" {
		t.Error("POST responses must not be tagged")
	}
}

func TestResponseCacheMiddleware_HitMiss(t *testing.T) {
	e := echo.New()
	store := NewInMemoryCacheStore()
	calls := 0
	h := ResponseCacheMiddleware(store, time.Minute, zerolog.Nop())(jsonHandler(&calls))

	c, rec := newCtx(e, http.MethodGet, "/api/v1/doctors/d1/day-view?date=2024-01-15")
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("expected MISS, got %q", rec.Header().Get("X-Cache"))
	}
	first := rec.Body.String()

	c, rec = newCtx(e, http.MethodGet, "/api/v1/doctors/d1/day-view?date=2024-01-15")
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get("X-Cache") != "HIT" || calls != 1 {
		t.Errorf("expected HIT without calling the handler, got %q after %d calls", rec.Header().Get("X-Cache"), calls)
	}
	if rec.Body.String() != first {
		t.Errorf("cached body differs: %q vs %q", rec.Body.String(), first)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		t.Errorf("expected JSON content type, got %q", rec.Header().Get(echo.HeaderContentType))
	}

	// a different date is a different key
	c, _ = newCtx(e, http.MethodGet, "/api/v1/doctors/d1/day-view?date=2024-01-16")
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected second handler call for a new query, got %d", calls)
	}
}

func TestResponseCacheMiddleware_DoesNotCacheErrors(t *testing.T) {
	e := echo.New()
	store := NewInMemoryCacheStore()
	h := ResponseCacheMiddleware(store, time.Minute, zerolog.Nop())(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	})

	c, _ := newCtx(e, http.MethodGet, "/api/v1/doctors/d404")
	if err := h(c); err == nil {
		t.Fatal("expected error to propagate")
	}
	if len(store.entries) != 0 {
		t.Error("errors must not be cached")
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Delete(context.Context, string) error { return nil }
func (failingStore) Clear(context.Context) error          { return nil }

func TestResponseCacheMiddleware_StoreFailureServesUncached(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	calls := 0
	h := ResponseCacheMiddleware(failingStore{}, time.Minute, zerolog.New(&buf))(jsonHandler(&calls))

	c, rec := newCtx(e, http.MethodGet, "/api/v1/doctors")
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || calls != 1 {
		t.Errorf("expected handler to serve the request, got %d after %d calls", rec.Code, calls)
	}
	if !strings.Contains(buf.String(), "response cache read failed") || !strings.Contains(buf.String(), "response cache write failed") {
		t.Errorf("expected store failures to be logged, got %s", buf.String())
	}
}

func TestEtagMatch(t *testing.T) {
	tests := []struct {
		header, etag string
		want         bool
	}{
		{"*", `W/"abc"`, true},
		{`W/"abc"`, `W/"abc"`, true},
		{`"abc"`, `W/"abc"`, true},
		{`"x", "abc"`, `W/"abc"`, true},
		{`"x"`, `W/"abc"`, false},
	}
	for _, tt := range tests {
		if got := etagMatch(tt.header, tt.etag); got != tt.want {
			t.Errorf("etagMatch(%q, %q) = %v, want %v", tt.header, tt.etag, got, tt.want)
		}
	}
}

func TestRedisCacheStore_Keys(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer rdb.Close()

	s := NewRedisCacheStore(rdb, "")
	if got := s.key("GET:/api/v1/doctors"); got != "dayview:cache:GET:/api/v1/doctors" {
		t.Errorf("unexpected key %q", got)
	}
	s = NewRedisCacheStore(rdb, " clinic-a ")
	if got := s.key("k"); got != "clinic-a:k" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "not-a-url"); err == nil {
		t.Error("expected parse error")
	}
}
