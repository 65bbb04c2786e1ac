// Package functest implements the Functest backend: it retrieves
// test-case results from a Functest server through its REST API and
// yields them as a lazy, timestamp-ordered stream of items.
package functest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/backend"
	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/client"
	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/datetime"
	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/logging"
)

// Version is the backend version.
const Version = "0.1.2"

// CategoryFunctest is the only category of item this backend generates.
const CategoryFunctest = "functest"

// Prometheus metrics for fetch operations.
var (
	functestPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "functest_pages_total",
		Help: "Total result pages parsed across all fetches",
	})

	functestItemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "functest_items_total",
		Help: "Total items yielded across all fetches",
	})

	functestFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "functest_fetches_total",
		Help: "Total fetch operations by outcome",
	}, []string{"status"})
)

// Backend fetches test-case results from a Functest server. The server
// URL is the origin of every item it produces.
//
// The backend keeps no state between fetches: it cannot cache items and
// it cannot resume a partially-consumed fetch. Each call re-walks every
// page matching the date window.
type Backend struct {
	url    string
	tag    string
	client *client.Client
	logger zerolog.Logger
}

// Option customizes a Backend.
type Option func(*Backend)

// WithTag sets the label used to mark fetched items. Defaults to the
// server URL.
func WithTag(tag string) Option {
	return func(b *Backend) {
		b.tag = tag
	}
}

// WithClient replaces the API client. Mainly used by tests.
func WithClient(c *client.Client) Option {
	return func(b *Backend) {
		b.client = c
	}
}

// New creates a Functest backend for the given server URL.
func New(url string, opts ...Option) (*Backend, error) {
	if url == "" {
		return nil, fmt.Errorf("server URL is required")
	}

	b := &Backend{
		url:    url,
		logger: logging.NewLogger("functest"),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		c, err := client.New(url)
		if err != nil {
			return nil, err
		}
		b.client = c
	}

	return b, nil
}

// Name returns the backend name.
func (b *Backend) Name() string { return "functest" }

// Origin returns the URL items are fetched from.
func (b *Backend) Origin() string { return b.url }

// Version returns the backend version.
func (b *Backend) Version() string { return Version }

// HasCaching returns whether the backend supports caching items during
// the fetch process. It does not.
func (b *Backend) HasCaching() bool { return false }

// HasResuming returns whether the backend supports resuming a fetch
// process. It does not.
func (b *Backend) HasResuming() bool { return false }

// FetchOptions scope a fetch to a date window. A nil FromDate means
// "from the beginning of time"; a nil ToDate leaves the upper bound to
// the service.
type FetchOptions struct {
	FromDate *time.Time
	ToDate   *time.Time
}

// Fetch retrieves the test results updated within the given window and
// returns a lazy iterator over them. Items appear in the order the
// service listed them, page by page. Any transport or parse failure
// stops the iterator; items already yielded stand.
func (b *Backend) Fetch(ctx context.Context, opts FetchOptions) *Iterator {
	from := datetime.DefaultDateTime
	if opts.FromDate != nil {
		from = datetime.ToUTC(*opts.FromDate)
	}

	var to *time.Time
	resolvedTo := datetime.UTCNow()
	if opts.ToDate != nil {
		t := datetime.ToUTC(*opts.ToDate)
		to = &t
		resolvedTo = t
	}

	logger := b.logger.With().Str("fetch_id", uuid.NewString()).Logger()
	logger.Info().
		Str("origin", b.url).
		Str("from_date", datetime.Format(from)).
		Str("to_date", datetime.Format(resolvedTo)).
		Msg("Fetching tests data")

	return &Iterator{
		backend: b,
		logger:  logger,
		pages:   b.client.Results(ctx, from, to),
	}
}

// Iterator produces the items of one fetch, in the style of
// bufio.Scanner: call Next until it returns false, then check Err. It
// is finite and non-restartable; abandoning it needs no cleanup.
type Iterator struct {
	backend *Backend
	logger  zerolog.Logger
	pages   *client.Pages

	buf   []map[string]any
	item  backend.Item
	count int
	err   error
	done  bool
}

// Next advances to the next item, fetching and parsing further pages
// as needed. It returns false when the fetch is exhausted or failed.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	for len(it.buf) == 0 {
		if !it.pages.Next() {
			if err := it.pages.Err(); err != nil {
				it.fail(err)
				return false
			}

			it.done = true
			functestFetchesTotal.WithLabelValues("completed").Inc()
			it.logger.Info().
				Int("items", it.count).
				Msg("Fetch process completed")
			return false
		}

		records, err := ParsePage(it.pages.Body())
		if err != nil {
			it.fail(err)
			return false
		}

		functestPagesTotal.Inc()
		it.buf = records
	}

	data := it.buf[0]
	it.buf = it.buf[1:]

	item, err := backend.Wrap(it.backend, it.backend.tag, datetime.UTCNow(), data)
	if err != nil {
		it.fail(err)
		return false
	}

	it.item = item
	it.count++
	functestItemsTotal.Inc()
	return true
}

// Item returns the current item. Valid after a call to Next that
// returned true.
func (it *Iterator) Item() backend.Item {
	return it.item
}

// Err returns the first error encountered, or nil when the fetch
// completed exhaustively.
func (it *Iterator) Err() error {
	return it.err
}

// Count returns the number of items yielded so far.
func (it *Iterator) Count() int {
	return it.count
}

func (it *Iterator) fail(err error) {
	it.err = err
	functestFetchesTotal.WithLabelValues("failed").Inc()
	it.logger.Error().Err(err).Int("items", it.count).Msg("Fetch process failed")
}

// ParsePage parses a raw page body and returns the records listed
// under its `results` key. It fails on malformed JSON and on pages
// without a `results` key.
func ParsePage(raw []byte) ([]map[string]any, error) {
	var page map[string]json.RawMessage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	rawResults, ok := page["results"]
	if !ok {
		return nil, ErrMissingResults
	}

	var records []map[string]any
	if err := json.Unmarshal(rawResults, &records); err != nil {
		return nil, fmt.Errorf("parse page results: %w", err)
	}

	return records, nil
}

// ItemID extracts the unique identifier of a test result: the string
// form of its `_id` field.
func (b *Backend) ItemID(data map[string]any) (string, error) {
	v, ok := data["_id"]
	if !ok {
		return "", ErrMissingID
	}
	return stringify(v), nil
}

// ItemUpdatedOn extracts the last update time of a test result. The
// service exposes no real update timestamp, so `start_date` stands in
// for it.
func (b *Backend) ItemUpdatedOn(data map[string]any) (time.Time, error) {
	v, ok := data["start_date"]
	if !ok {
		return time.Time{}, ErrMissingStartDate
	}

	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("start_date is not a string: %v", v)
	}

	return datetime.Parse(s)
}

// ItemCategory returns the category of a test result. This backend
// only generates one type of item.
func (b *Backend) ItemCategory(data map[string]any) string {
	return CategoryFunctest
}

// stringify renders a decoded JSON scalar the way the service printed
// it, keeping integral numbers free of an exponent or trailing zeros.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
