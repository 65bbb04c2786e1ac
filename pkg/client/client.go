// Package client provides the Functest REST API client: sequential,
// paginated retrieval of test-case results with error classification.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/datetime"
	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/logging"
)

// Prometheus metrics for Functest client operations.
var (
	functestRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "functest_requests_total",
		Help: "Total Functest API requests by HTTP status",
	}, []string{"status"})

	functestRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "functest_request_duration_seconds",
		Help:    "Functest API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	functestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "functest_errors_total",
		Help: "Total Functest client errors by class",
	}, []string{"class"})
)

const (
	// apiPath is the REST API prefix on every Functest server.
	apiPath = "api/v1"

	// resourceResults is the test-case results resource.
	resourceResults = "results"

	// Query parameters understood by the results resource.
	paramFromDate = "from"
	paramToDate   = "to"
	paramPage     = "page"
)

// Client is a Functest REST API client. It issues strictly sequential
// requests and surfaces every failure immediately: no retries, no
// backoff, no response caching.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Mainly used by
// tests to shorten timeouts or inject transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a Functest API client for the given server URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NewLogger("functest-client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the server URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Results walks all pages of the results resource for the given date
// window. The from date is always sent; the to date only when non-nil.
// The returned Pages iterator is lazy, finite and non-restartable:
// each page is requested when the caller advances to it, and each
// request depends on the previous page's pagination block, so the walk
// is inherently sequential.
func (c *Client) Results(ctx context.Context, from time.Time, to *time.Time) *Pages {
	params := url.Values{}
	params.Set(paramFromDate, datetime.Format(from))
	if to != nil {
		params.Set(paramToDate, datetime.Format(*to))
	}

	return &Pages{
		client: c,
		ctx:    ctx,
		params: params,
	}
}

// Pages iterates over the raw page bodies of a results query, in the
// style of bufio.Scanner: call Next until it returns false, then check
// Err to distinguish exhaustion from failure.
type Pages struct {
	client *Client
	ctx    context.Context
	params url.Values

	body []byte
	err  error
	done bool
}

// pagePagination is the slice of a page body the walk needs to decide
// whether a successor page exists.
type pagePagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

type pageProbe struct {
	Pagination *pagePagination `json:"pagination"`
}

// Next advances to the next page, returning false when the walk is
// exhausted or failed. The pagination block of the page yielded by the
// previous call decides whether another request is issued, so a page
// with a missing or malformed pagination block is still yielded before
// the walk fails.
func (p *Pages) Next() bool {
	if p.done || p.err != nil {
		return false
	}

	if p.body != nil {
		probe, err := probePagination(p.body)
		if err != nil {
			p.err = err
			return false
		}

		p.client.logger.Debug().
			Int("page", probe.CurrentPage).
			Int("total_pages", probe.TotalPages).
			Msg("Page retrieved")

		if probe.CurrentPage >= probe.TotalPages {
			p.done = true
			return false
		}

		p.params.Set(paramPage, fmt.Sprintf("%d", probe.CurrentPage+1))
	}

	body, err := p.client.fetch(p.ctx, resourceResults, p.params)
	if err != nil {
		p.err = err
		return false
	}

	p.body = body
	return true
}

// Body returns the raw body of the current page. Valid until the next
// call to Next.
func (p *Pages) Body() []byte {
	return p.body
}

// Err returns the first error encountered during the walk, or nil when
// the walk ended because the last page was reached.
func (p *Pages) Err() error {
	return p.err
}

// probePagination decodes just the pagination block of a page body.
func probePagination(body []byte) (*pagePagination, error) {
	var probe pageProbe
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("parse pagination: %w", err)
	}
	if probe.Pagination == nil {
		return nil, ErrMissingPagination
	}
	return probe.Pagination, nil
}

// fetch performs a single GET request against a resource and returns
// the raw response body. Any non-2xx status is a hard failure.
func (c *Client) fetch(ctx context.Context, resource string, params url.Values) ([]byte, error) {
	endpoint, err := url.JoinPath(c.baseURL, apiPath, resource)
	if err != nil {
		return nil, fmt.Errorf("build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("resource", resource).
		Str("params", params.Encode()).
		Msg("Functest client request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	functestRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		functestErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		functestRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Str("resource", resource).Msg("HTTP request failed")
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	functestRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		functestErrorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("resource", resource).
			Str("class", string(class)).
			Msg("Functest request error")

		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Class:      class,
			URL:        req.URL.String(),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		functestErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return body, nil
}
