package middleware

import (
	"net/http"
	"strings"
	"sync/atomic"
)

// Collector counts requests and error responses, bucketed by the API
// collection the request hit (conflicts, votes, concepts) so /metrics shows
// where traffic lands.
type Collector struct {
	requests atomic.Int64
	errors   atomic.Int64

	conflicts atomic.Int64
	votes     atomic.Int64
	concepts  atomic.Int64
	other     atomic.Int64
}

func NewCollector() *Collector {
	return &Collector{}
}

// MetricsSnapshot is a point-in-time read of the counters.
type MetricsSnapshot struct {
	Requests     int64            `json:"requests"`
	Errors       int64            `json:"errors"`
	ByCollection map[string]int64 `json:"by_collection"`
}

func (c *Collector) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests: c.requests.Load(),
		Errors:   c.errors.Load(),
		ByCollection: map[string]int64{
			"conflicts": c.conflicts.Load(),
			"votes":     c.votes.Load(),
			"concepts":  c.concepts.Load(),
			"other":     c.other.Load(),
		},
	}
}

// bucket maps a request path to its collection counter. Anything outside
// /v1 (health, metrics) counts as other.
func (c *Collector) bucket(path string) *atomic.Int64 {
	rest, ok := strings.CutPrefix(path, "/v1/")
	if !ok {
		return &c.other
	}
	head, _, _ := strings.Cut(rest, "/")
	switch head {
	case "conflicts":
		return &c.conflicts
	case "votes":
		return &c.votes
	case "concepts":
		return &c.concepts
	}
	return &c.other
}

// Middleware counts every request and any 4xx/5xx response.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.requests.Add(1)
		c.bucket(r.URL.Path).Add(1)

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		if rec.status >= 400 {
			c.errors.Add(1)
		}
	})
}
