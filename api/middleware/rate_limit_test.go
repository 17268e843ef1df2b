package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLimiter struct {
	counts map[string]int64
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	limiter := &fakeLimiter{}
	policy := NewRateLimitPolicy("payments", time.Minute, 2)
	handler := RateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := do(); code != http.StatusOK {
		t.Fatalf("first request: expected 200 got %d", code)
	}
	if code := do(); code != http.StatusOK {
		t.Fatalf("second request: expected 200 got %d", code)
	}
	if code := do(); code != http.StatusTooManyRequests {
		t.Fatalf("third request: expected 429 got %d", code)
	}
}

func TestRateLimitSkipsAnonymousRequests(t *testing.T) {
	limiter := &fakeLimiter{}
	policy := NewRateLimitPolicy("payments", time.Minute, 1)
	handler := RateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected anonymous requests to bypass limiter, got %d", resp.Code)
		}
	}
	if len(limiter.counts) != 0 {
		t.Fatalf("limiter should not be consulted without a user id")
	}
}
