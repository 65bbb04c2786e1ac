package functest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mafesan/grimoirelab-perceval-opnfv/internal/testutil"
	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/backend"
	"github.com/mafesan/grimoirelab-perceval-opnfv/pkg/client"
)

func TestNew(t *testing.T) {
	b, err := New("http://localhost:8000")
	require.NoError(t, err)

	assert.Equal(t, "functest", b.Name())
	assert.Equal(t, "http://localhost:8000", b.Origin())
	assert.Equal(t, Version, b.Version())
	assert.False(t, b.HasCaching())
	assert.False(t, b.HasResuming())
}

func TestNew_EmptyURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr error
	}{
		{
			name: "valid page",
			raw:  `{"results": [{"_id": "a1"}, {"_id": "a2"}], "pagination": {"current_page": 1, "total_pages": 1}}`,
			want: 2,
		},
		{
			name: "empty results",
			raw:  `{"results": [], "pagination": {"current_page": 1, "total_pages": 1}}`,
			want: 0,
		},
		{
			name:    "missing results key",
			raw:     `{"pagination": {"current_page": 1, "total_pages": 1}}`,
			wantErr: ErrMissingResults,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ParsePage([]byte(tt.raw))

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}
}

func TestParsePage_InvalidJSON(t *testing.T) {
	_, err := ParsePage([]byte(`{"results": [,]`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingResults)
}

func TestItemID(t *testing.T) {
	b, err := New("http://localhost:8000")
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    map[string]any
		want    string
		wantErr error
	}{
		{
			name: "string id",
			data: map[string]any{"_id": "5893a91d9a1d9a1000d4b4f8"},
			want: "5893a91d9a1d9a1000d4b4f8",
		},
		{
			name: "integral numeric id",
			data: map[string]any{"_id": float64(42)},
			want: "42",
		},
		{
			name:    "missing id",
			data:    map[string]any{"start_date": "2017-01-01 10:00:00"},
			wantErr: ErrMissingID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := b.ItemID(tt.data)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestItemUpdatedOn(t *testing.T) {
	b, err := New("http://localhost:8000")
	require.NoError(t, err)

	t.Run("valid start date", func(t *testing.T) {
		updated, err := b.ItemUpdatedOn(map[string]any{
			"start_date": "2017-01-01 10:00:00",
		})
		require.NoError(t, err)

		want := time.Date(2017, time.January, 1, 10, 0, 0, 0, time.UTC)
		assert.Equal(t, want.Unix(), updated.Unix())
	})

	t.Run("missing start date", func(t *testing.T) {
		_, err := b.ItemUpdatedOn(map[string]any{"_id": "a1"})
		require.ErrorIs(t, err, ErrMissingStartDate)
	})

	t.Run("unparsable start date", func(t *testing.T) {
		_, err := b.ItemUpdatedOn(map[string]any{"start_date": "yesterday"})
		require.Error(t, err)
	})

	t.Run("non-string start date", func(t *testing.T) {
		_, err := b.ItemUpdatedOn(map[string]any{"start_date": float64(1483264800)})
		require.Error(t, err)
	})
}

func TestItemCategory(t *testing.T) {
	b, err := New("http://localhost:8000")
	require.NoError(t, err)

	assert.Equal(t, "functest", b.ItemCategory(map[string]any{"_id": "a1"}))
	assert.Equal(t, "functest", b.ItemCategory(nil))
}

func TestFetch(t *testing.T) {
	mock := testutil.NewMockFunctest()
	defer mock.Close()

	mock.SetResultsPages(
		testutil.ResultsPage(1, 2, testutil.Record("a1", "2017-01-01 10:00:00")),
		testutil.ResultsPage(2, 2, testutil.Record("a2", "2017-01-02 10:00:00")),
	)

	b, err := New(mock.URL())
	require.NoError(t, err)

	it := b.Fetch(context.Background(), FetchOptions{})

	var items []backend.Item
	for it.Next() {
		items = append(items, it.Item())
	}
	require.NoError(t, it.Err())

	require.Len(t, items, 2)
	assert.Equal(t, 2, it.Count())

	// Items are yielded in page order, then record order.
	assert.Equal(t, "a1", items[0].Data["_id"])
	assert.Equal(t, "a2", items[1].Data["_id"])

	first := items[0]
	assert.Equal(t, "functest", first.BackendName)
	assert.Equal(t, Version, first.BackendVersion)
	assert.Equal(t, mock.URL(), first.Origin)
	assert.Equal(t, mock.URL(), first.Tag)
	assert.Equal(t, CategoryFunctest, first.Category)
	assert.Equal(t, backend.UUID(mock.URL(), "a1"), first.UUID)

	wantUpdated := time.Date(2017, time.January, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, float64(wantUpdated.Unix()), first.UpdatedOn)
	assert.Greater(t, first.Timestamp, float64(0))

	// An omitted from date means "everything": the epoch sentinel goes
	// out on the wire.
	queries := mock.GetQueries()
	require.Len(t, queries, 2)
	assert.Equal(t, "1970-01-01 00:00:00", queries[0].Get("from"))
	assert.False(t, queries[0].Has("to"))
}

func TestFetch_Window(t *testing.T) {
	mock := testutil.NewMockFunctest()
	defer mock.Close()

	mock.SetResultsPages(testutil.ResultsPage(1, 1))

	b, err := New(mock.URL())
	require.NoError(t, err)

	// Offsets are normalized to UTC before hitting the wire.
	cet := time.FixedZone("CET", 3600)
	from := time.Date(2017, time.January, 1, 11, 0, 0, 0, cet)
	to := time.Date(2017, time.June, 1, 13, 30, 0, 0, cet)

	it := b.Fetch(context.Background(), FetchOptions{FromDate: &from, ToDate: &to})
	for it.Next() {
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 0, it.Count())

	queries := mock.GetQueries()
	require.Len(t, queries, 1)
	assert.Equal(t, "2017-01-01 10:00:00", queries[0].Get("from"))
	assert.Equal(t, "2017-06-01 12:30:00", queries[0].Get("to"))
}

func TestFetch_Tag(t *testing.T) {
	mock := testutil.NewMockFunctest()
	defer mock.Close()

	mock.SetResultsPages(
		testutil.ResultsPage(1, 1, testutil.Record("a1", "2017-01-01 10:00:00")),
	)

	b, err := New(mock.URL(), WithTag("opnfv-colorado"))
	require.NoError(t, err)

	it := b.Fetch(context.Background(), FetchOptions{})
	require.True(t, it.Next())
	assert.Equal(t, "opnfv-colorado", it.Item().Tag)
}

func TestFetch_ServerError(t *testing.T) {
	mock := testutil.NewMockFunctest()
	defer mock.Close()

	mock.SetResponse(testutil.ResultsPath, testutil.NewServerErrorResponse())

	b, err := New(mock.URL())
	require.NoError(t, err)

	it := b.Fetch(context.Background(), FetchOptions{})

	// The failure happens before any item is yielded.
	require.False(t, it.Next())
	assert.Equal(t, 0, it.Count())

	var httpErr *client.HTTPError
	require.True(t, errors.As(it.Err(), &httpErr))
	assert.Equal(t, 500, httpErr.StatusCode)
}

func TestFetch_BadStartDate(t *testing.T) {
	mock := testutil.NewMockFunctest()
	defer mock.Close()

	mock.SetResultsPages(
		testutil.ResultsPage(1, 1,
			testutil.Record("a1", "2017-01-01 10:00:00"),
			testutil.Record("a2", "not-a-date"),
		),
	)

	b, err := New(mock.URL())
	require.NoError(t, err)

	it := b.Fetch(context.Background(), FetchOptions{})

	// The first record is sound and already yielded; the second aborts
	// the fetch. Yielded items stand.
	require.True(t, it.Next())
	assert.Equal(t, "a1", it.Item().Data["_id"])

	require.False(t, it.Next())
	require.Error(t, it.Err())
	assert.Equal(t, 1, it.Count())
}

func TestFetch_NonRestartable(t *testing.T) {
	mock := testutil.NewMockFunctest()
	defer mock.Close()

	mock.SetResultsPages(
		testutil.ResultsPage(1, 1, testutil.Record("a1", "2017-01-01 10:00:00")),
	)

	b, err := New(mock.URL())
	require.NoError(t, err)

	it := b.Fetch(context.Background(), FetchOptions{})
	for it.Next() {
	}
	require.NoError(t, it.Err())

	// Exhausted iterators stay exhausted.
	assert.False(t, it.Next())
	assert.Equal(t, 1, it.Count())
}
