package web

import (
	"fmt"
	"net/http"
	"time"
)

func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP sfl_http_requests_total HTTP requests received.\n")
	fmt.Fprintf(rw, "# TYPE sfl_http_requests_total counter\n")
	fmt.Fprintf(rw, "sfl_http_requests_total %d\n", s.requests.Load())

	fmt.Fprintf(rw, "# HELP sfl_http_responses_total HTTP responses by status class.\n")
	fmt.Fprintf(rw, "# TYPE sfl_http_responses_total counter\n")
	for c := 1; c <= 5; c++ {
		fmt.Fprintf(rw, "sfl_http_responses_total{class=\"%dxx\"} %d\n", c, s.responses[c].Load())
	}

	fmt.Fprintf(rw, "# HELP sfl_plans_total Goal aggregations computed.\n")
	fmt.Fprintf(rw, "# TYPE sfl_plans_total counter\n")
	fmt.Fprintf(rw, "sfl_plans_total %d\n", s.plans.Load())

	if s.upStats != nil {
		st := s.upStats()
		fmt.Fprintf(rw, "# HELP sfl_snapshot_cache_hits_total Snapshot and price cache hits.\n")
		fmt.Fprintf(rw, "# TYPE sfl_snapshot_cache_hits_total counter\n")
		fmt.Fprintf(rw, "sfl_snapshot_cache_hits_total %d\n", st.CacheHits)

		fmt.Fprintf(rw, "# HELP sfl_snapshot_cache_misses_total Snapshot and price cache misses.\n")
		fmt.Fprintf(rw, "# TYPE sfl_snapshot_cache_misses_total counter\n")
		fmt.Fprintf(rw, "sfl_snapshot_cache_misses_total %d\n", st.CacheMisses)

		fmt.Fprintf(rw, "# HELP sfl_snapshot_cache_entries Entries held in the snapshot cache.\n")
		fmt.Fprintf(rw, "# TYPE sfl_snapshot_cache_entries gauge\n")
		fmt.Fprintf(rw, "sfl_snapshot_cache_entries %d\n", st.CacheEntries)

		fmt.Fprintf(rw, "# HELP sfl_upstream_requests_total HTTP requests sent upstream.\n")
		fmt.Fprintf(rw, "# TYPE sfl_upstream_requests_total counter\n")
		fmt.Fprintf(rw, "sfl_upstream_requests_total %d\n", st.Requests)

		fmt.Fprintf(rw, "# HELP sfl_upstream_body_cache_hits_total Upstream bodies served from the response cache.\n")
		fmt.Fprintf(rw, "# TYPE sfl_upstream_body_cache_hits_total counter\n")
		fmt.Fprintf(rw, "sfl_upstream_body_cache_hits_total %d\n", st.BodyCacheHits)

		fmt.Fprintf(rw, "# HELP sfl_upstream_failures_total Failed upstream requests.\n")
		fmt.Fprintf(rw, "# TYPE sfl_upstream_failures_total counter\n")
		fmt.Fprintf(rw, "sfl_upstream_failures_total %d\n", st.Failures)
	}

	fmt.Fprintf(rw, "# HELP sfl_uptime_seconds Seconds since the server started.\n")
	fmt.Fprintf(rw, "# TYPE sfl_uptime_seconds gauge\n")
	fmt.Fprintf(rw, "sfl_uptime_seconds %d\n", int64(time.Since(s.started).Seconds()))
}
