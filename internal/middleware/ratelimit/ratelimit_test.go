package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(cfg)
	t.Cleanup(rl.Stop)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowBurstThenRefill(t *testing.T) {
	var limited atomic.Int32
	rl, now := newTestLimiter(t, Config{RequestsPerMinute: 60, Burst: 3, OnLimit: func() { limited.Add(1) }})

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("fourth request should be limited")
	}
	if limited.Load() != 1 {
		t.Errorf("OnLimit called %d times, want 1", limited.Load())
	}
	if got := rl.RetryAfter("10.0.0.1"); got <= 0 || got > time.Second {
		t.Errorf("RetryAfter = %v, want (0, 1s]", got)
	}

	if !rl.Allow("10.0.0.2") {
		t.Error("other clients have their own bucket")
	}

	*now = now.Add(time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Error("one token should refill after a second at 60/min")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("only one token should have refilled")
	}
}

func TestBucketNeverExceedsBurst(t *testing.T) {
	rl, now := newTestLimiter(t, Config{RequestsPerMinute: 60, Burst: 2})
	rl.Allow("a")
	*now = now.Add(time.Hour)

	allowed := 0
	for i := 0; i < 5; i++ {
		if rl.Allow("a") {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed %d after long idle, want burst of 2", allowed)
	}
}

func TestCleanupIdle(t *testing.T) {
	rl, now := newTestLimiter(t, Config{RequestsPerMinute: 60, Burst: 2})
	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("b")

	*now = now.Add(1500 * time.Millisecond)
	rl.cleanupIdle()
	if got := rl.ActiveClients(); got != 1 {
		t.Fatalf("ActiveClients = %d, want 1 (b still refilling)", got)
	}

	*now = now.Add(time.Minute)
	rl.cleanupIdle()
	if got := rl.ActiveClients(); got != 0 {
		t.Errorf("ActiveClients = %d, want 0", got)
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, Config{RequestsPerMinute: 1, Burst: 1})
	handler := rl.Middleware(
		func(r *http.Request) string { return r.RemoteAddr },
		nil,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/receipts", nil))
	if first.Code != http.StatusAccepted {
		t.Fatalf("first status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/receipts", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", second.Header().Get("Retry-After"))
	}
}
