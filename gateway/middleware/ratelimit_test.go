package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"blobs": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	handler := limiter.Middleware("blobs")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/blobs/abc", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestRateLimiterSeparatesRoutesAndClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"blobs":  {RequestsPerMinute: 60, Burst: 1},
		"blocks": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	blobs := limiter.Middleware("blobs")(okHandler())
	blocks := limiter.Middleware("blocks")(okHandler())

	send := func(h http.Handler, client string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", client+", 10.0.0.1")
		res := httptest.NewRecorder()
		h.ServeHTTP(res, req)
		return res.Code
	}

	if code := send(blobs, "1.1.1.1"); code != http.StatusOK {
		t.Fatalf("expected blobs request to succeed, got %d", code)
	}
	if code := send(blocks, "1.1.1.1"); code != http.StatusOK {
		t.Fatalf("expected blocks bucket to be independent, got %d", code)
	}
	if code := send(blobs, "2.2.2.2"); code != http.StatusOK {
		t.Fatalf("expected second client to have its own bucket, got %d", code)
	}
	if code := send(blobs, "1.1.1.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected repeat to be limited, got %d", code)
	}
}

func TestRateLimiterIgnoresUnknownRoute(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("health")(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("unlimited route throttled: %d", res.Code)
		}
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"blobs": {RequestsPerMinute: 1, Burst: 1}}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	if !limiter.allow("blobs|a", limiter.limits["blobs"]) {
		t.Fatalf("first request should pass")
	}
	now = now.Add(10 * time.Minute)
	limiter.allow("blobs|b", limiter.limits["blobs"])
	if _, ok := limiter.visitors["blobs|a"]; ok {
		t.Fatalf("idle visitor should have been evicted")
	}
}
