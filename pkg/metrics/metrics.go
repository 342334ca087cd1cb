// Package metrics provides the Prometheus registry of the exporter and the
// end-of-run push to a Pushgateway.
// All metrics are defined in their respective packages (intercom, cache,
// ratelimit, conversation, pagination) to avoid circular dependencies.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry is the default Prometheus registry used by the exporter.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// DefaultJob is the Pushgateway job name.
const DefaultJob = "intercom_export"

// Push sends all gathered metrics to a Pushgateway, grouped by run id.
// An empty url disables the push.
func Push(ctx context.Context, url, job, runID string) error {
	return PushFrom(ctx, Gatherer, url, job, runID)
}

// PushFrom is Push with an explicit gatherer.
func PushFrom(ctx context.Context, g prometheus.Gatherer, url, job, runID string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = DefaultJob
	}

	pusher := push.New(url, job).Gatherer(g)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/intercom):
//   - intercom_requests_total{endpoint, status} (Counter): Requests by route and HTTP status
//   - intercom_request_duration_seconds{endpoint} (Histogram): Request duration by route
//   - intercom_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - intercom_rate_limit_remaining (Gauge): Last observed X-RateLimit-Remaining
//   - intercom_rate_limit_throttles_total (Counter): Sleeps triggered by a low quota
//   - intercom_rate_limit_throttle_seconds_total (Counter): Total time slept
//
// Cache Metrics (pkg/cache):
//   - intercom_cache_hits_total (Counter): Cache hits
//   - intercom_cache_misses_total (Counter): Cache misses
//   - intercom_cache_stored_bytes (Counter): Bytes written to the cache
//   - intercom_conditional_requests_total (Counter): Requests sent with If-None-Match / If-Modified-Since
//   - intercom_304_responses_total (Counter): 304 Not Modified responses served from cache
//   - intercom_cache_errors_total{operation} (Counter): Cache operation errors
//
// Export Metrics (pkg/conversation, pkg/pagination):
//   - intercom_conversations_normalized_total{outcome} (Counter): Normalized conversations by outcome
//   - intercom_export_pages_written_total (Counter): Pages written to output
//   - intercom_export_page_duration_seconds (Histogram): Listing-to-file time per page
//
// Example Prometheus Queries:
//
//   # Time spent throttled per run
//   intercom_rate_limit_throttle_seconds_total
//
//   # Failed normalizations
//   intercom_conversations_normalized_total{outcome="error"}
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(intercom_request_duration_seconds_bucket[5m]))
