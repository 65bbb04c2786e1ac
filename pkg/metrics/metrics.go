// Package metrics provides the Prometheus registry reference for the
// Functest backend. The metrics themselves are defined next to the code
// that drives them (pkg/client, pkg/functest) to avoid circular
// dependencies; this package documents them in one place.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the backend.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - functest_requests_total{status} (Counter): API requests by HTTP status
//     ("network_error" when no response was received)
//   - functest_request_duration_seconds (Histogram): API request duration
//   - functest_errors_total{class} (Counter): Errors by class
//     (client, server, network)
//
// Fetch Metrics (pkg/functest):
//   - functest_pages_total (Counter): Result pages parsed
//   - functest_items_total (Counter): Items yielded to consumers
//   - functest_fetches_total{status} (Counter): Fetches by outcome
//     (completed, failed)
//
// Example Prometheus Queries:
//
//   # Request error rate
//   rate(functest_errors_total[5m])
//
//   # Items per fetch
//   rate(functest_items_total[5m]) / rate(functest_fetches_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(functest_request_duration_seconds_bucket[5m]))
