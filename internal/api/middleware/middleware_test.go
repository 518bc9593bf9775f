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

func TestCollector_BucketsByCollection(t *testing.T) {
	c := NewCollector()
	h := c.Middleware(okHandler())

	paths := []string{
		"/v1/conflicts",
		"/v1/conflicts/conflict-1/tally",
		"/v1/votes",
		"/v1/concepts/concept-1/history",
		"/health",
	}
	for _, p := range paths {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	snap := c.Snapshot()
	if snap.Requests != 5 {
		t.Fatalf("expected 5 requests, got %d", snap.Requests)
	}
	if snap.ByCollection["conflicts"] != 2 {
		t.Fatalf("expected 2 conflict requests, got %d", snap.ByCollection["conflicts"])
	}
	if snap.ByCollection["votes"] != 1 || snap.ByCollection["concepts"] != 1 {
		t.Fatalf("unexpected collection counts: %v", snap.ByCollection)
	}
	if snap.ByCollection["other"] != 1 {
		t.Fatalf("expected /health in other, got %d", snap.ByCollection["other"])
	}
	if snap.Errors != 0 {
		t.Fatalf("expected no errors, got %d", snap.Errors)
	}
}

func TestCollector_CountsErrorResponses(t *testing.T) {
	c := NewCollector()
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/conflicts/conflict-missing", nil))

	snap := c.Snapshot()
	if snap.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", snap.Errors)
	}
}

func TestRateLimiter_ExhaustsBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("expected the burst to admit 2 requests")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("expected the third immediate request to be rejected")
	}

	// A different client has its own bucket.
	if !rl.Allow("10.0.0.2") {
		t.Fatal("expected a fresh client to be admitted")
	}
}

func TestRateLimiter_CleanupEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	rl.Allow("10.0.0.1")
	rl.mu.Lock()
	rl.clients["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.Allow("10.0.0.2")
	rl.Cleanup(30 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.clients["10.0.0.1"]; ok {
		t.Fatal("expected the idle client to be evicted")
	}
	if _, ok := rl.clients["10.0.0.2"]; !ok {
		t.Fatal("expected the active client to survive cleanup")
	}
}

func TestRateLimit_Returns429(t *testing.T) {
	h := RateLimit(1, 1)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/votes", nil)
	req.Header.Set("X-Real-IP", "10.0.0.9")

	first := httptest.NewRecorder()
	h.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request through, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the burst, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header")
	}
}

func TestRequestID_MintsAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	if seen == "" {
		t.Fatal("expected a request id in context")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Fatal("expected the response header to echo the context id")
	}
}

func TestRequestID_HonorsCallerID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set(RequestIDHeader, "caller-supplied-id")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "caller-supplied-id" {
		t.Fatalf("expected the caller's id to be kept, got %q", seen)
	}
}
