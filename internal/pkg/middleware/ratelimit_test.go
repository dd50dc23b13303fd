package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, rps float64, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: rps,
		Burst:             burst,
		CleanupInterval:   time.Minute,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func trackedClients(rl *RateLimiter) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 5})
	defer rl.Stop()

	if rl.burst != 5 {
		t.Errorf("expected burst to default to rate (5), got %d", rl.burst)
	}
	if rl.cleanup != time.Minute {
		t.Errorf("expected cleanup=1m, got %v", rl.cleanup)
	}

	tiny := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.5})
	defer tiny.Stop()
	if tiny.burst != 1 {
		t.Errorf("expected minimum burst 1, got %d", tiny.burst)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := newTestLimiter(t, 2, 2)
	clientIP := "192.168.1.100"

	if !rl.Allow(clientIP) {
		t.Error("expected first request to be allowed")
	}
	if !rl.Allow(clientIP) {
		t.Error("expected second request to be allowed")
	}
	if rl.Allow(clientIP) {
		t.Error("expected third request to be denied")
	}

	time.Sleep(600 * time.Millisecond)

	if !rl.Allow(clientIP) {
		t.Error("expected request to be allowed after waiting")
	}
}

func TestRateLimiter_MultipleClients(t *testing.T) {
	rl := newTestLimiter(t, 5, 5)

	client1 := "192.168.1.100"
	client2 := "192.168.1.101"

	for i := 0; i < 5; i++ {
		if !rl.Allow(client1) {
			t.Errorf("client1 request %d should be allowed", i)
		}
		if !rl.Allow(client2) {
			t.Errorf("client2 request %d should be allowed", i)
		}
	}

	if rl.Allow(client1) {
		t.Error("client1 should be rate limited")
	}
	if rl.Allow(client2) {
		t.Error("client2 should be rate limited")
	}
	if trackedClients(rl) != 2 {
		t.Errorf("expected 2 tracked clients, got %d", trackedClients(rl))
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := newTestLimiter(t, 100, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(clientNum int) {
			defer wg.Done()
			clientIP := fmt.Sprintf("192.168.1.%d", clientNum)
			for j := 0; j < 10; j++ {
				rl.Allow(clientIP)
			}
		}(i)
	}
	wg.Wait()

	if trackedClients(rl) != 10 {
		t.Errorf("expected 10 clients, got %d", trackedClients(rl))
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := newTestLimiter(t, 2, 2)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/v1/evaluate", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/v1/evaluate", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After header, got %q", w.Header().Get("Retry-After"))
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.168.1.100:12345", want: "192.168.1.100"},
		{name: "x-forwarded-for", remoteAddr: "10.0.0.1:12345", headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"}, want: "203.0.113.1"},
		{name: "x-real-ip", remoteAddr: "10.0.0.1:12345", headers: map[string]string{"X-Real-IP": "203.0.113.50"}, want: "203.0.113.50"},
		{
			name:       "forwarded wins over real ip",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "203.0.113.50"},
			want:       "203.0.113.1",
		},
		{name: "ipv6", remoteAddr: "[2001:db8::1]:12345", want: "2001:db8::1"},
		{name: "no port", remoteAddr: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_EvictStale(t *testing.T) {
	rl := newTestLimiter(t, 100, 100)

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }
	rl.Allow("old")

	rl.now = func() time.Time { return base.Add(4 * time.Minute) }
	rl.Allow("recent")

	rl.now = func() time.Time { return base.Add(6 * time.Minute) }
	rl.evictStale()

	if trackedClients(rl) != 1 {
		t.Fatalf("expected 1 client after eviction, got %d", trackedClients(rl))
	}
	if _, ok := rl.clients["recent"]; !ok {
		t.Error("recent client should survive eviction")
	}
}
