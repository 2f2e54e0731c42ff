package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow() {
		t.Fatal("expected the 4th request to be rate limited")
	}
}

func TestRateLimiterQuotaTracking(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute)

	if rl.RemainingQuota() != 10 {
		t.Fatalf("expected 10 remaining quota, got %d", rl.RemainingQuota())
	}
	for i := 0; i < 3; i++ {
		rl.Allow()
	}
	if rl.CurrentRate() != 3 {
		t.Fatalf("expected current rate 3, got %d", rl.CurrentRate())
	}
	if rl.RemainingQuota() != 7 {
		t.Fatalf("expected 7 remaining quota, got %d", rl.RemainingQuota())
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	if !rl.Allow() {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow() {
		t.Fatal("second immediate request should be rate limited")
	}
	time.Sleep(30 * time.Millisecond)
	if !rl.Allow() {
		t.Fatal("request after window expiry should be allowed again")
	}
}

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	kl := NewKeyedLimiter(1, time.Minute)

	if !kl.Allow("client-a") {
		t.Fatal("client-a's first request should be allowed")
	}
	if kl.Allow("client-a") {
		t.Fatal("client-a's second request should be rate limited")
	}
	if !kl.Allow("client-b") {
		t.Fatal("client-b should have its own independent quota")
	}
}

func TestKeyedLimiterMiddlewareRejectsOverLimit(t *testing.T) {
	kl := NewKeyedLimiter(1, time.Minute)
	handler := kl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", w2.Code)
	}
}
