package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/bc-odata-client/pkg/odata"
)

type call struct {
	method   string
	endpoint string
	url      string
	query    odata.QueryParameters
}

// fakeRequester serves a fixed sequence of pages and records each call.
type fakeRequester struct {
	pages []*Page
	errAt int // 1-based call that fails, 0 = never
	err   error
	calls []call
}

func (f *fakeRequester) next() (*Page, error) {
	n := len(f.calls)
	if f.errAt == n {
		return nil, f.err
	}
	if n > len(f.pages) {
		return nil, fmt.Errorf("unexpected call %d", n)
	}
	return f.pages[n-1], nil
}

func (f *fakeRequester) Request(_ context.Context, method, endpoint string, _ any, query odata.QueryParameters) (*Page, error) {
	f.calls = append(f.calls, call{method: method, endpoint: endpoint, query: query})
	return f.next()
}

func (f *fakeRequester) RequestURL(_ context.Context, method, rawURL string) (*Page, error) {
	f.calls = append(f.calls, call{method: method, url: rawURL})
	return f.next()
}

func makePage(t *testing.T, start, n int, next string) *Page {
	t.Helper()
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{"id": fmt.Sprintf("r%d", start+i)}
	}
	raw, err := json.Marshal(items)
	require.NoError(t, err)
	return &Page{Value: raw, NextLink: next}
}

func TestFetchAllPages_FollowsNextLinkUntilAbsent(t *testing.T) {
	r := &fakeRequester{pages: []*Page{
		makePage(t, 0, 100, "https://bc.test/next?$skiptoken=1"),
		makePage(t, 100, 100, "https://bc.test/next?$skiptoken=2"),
		makePage(t, 200, 37, ""),
	}}

	records, err := NewFetcher(r, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/customers", nil, nil, 0)
	require.NoError(t, err)

	assert.Len(t, records, 237)
	require.Len(t, r.calls, 3)
	assert.Equal(t, "/customers", r.calls[0].endpoint)
	assert.Equal(t, "100", r.calls[0].query[odata.ParamTop])
	assert.Equal(t, http.MethodGet, r.calls[1].method)
	assert.Equal(t, "https://bc.test/next?$skiptoken=1", r.calls[1].url)
	assert.Equal(t, "https://bc.test/next?$skiptoken=2", r.calls[2].url)
	assert.Equal(t, "r236", records[236]["id"])
}

func TestFetchAllPages_StopsAtLimit(t *testing.T) {
	r := &fakeRequester{pages: []*Page{
		makePage(t, 0, 100, "https://bc.test/p2"),
		makePage(t, 100, 100, "https://bc.test/p3"),
		makePage(t, 200, 100, ""),
	}}

	records, err := NewFetcher(r, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/items", nil, nil, 150)
	require.NoError(t, err)

	assert.Len(t, records, 150)
	assert.Len(t, r.calls, 2, "no request after the limit is reached")
}

func TestFetchAllPages_LimitWithinFirstPage(t *testing.T) {
	r := &fakeRequester{pages: []*Page{makePage(t, 0, 100, "https://bc.test/p2")}}

	records, err := NewFetcher(r, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/items", nil, nil, 10)
	require.NoError(t, err)

	assert.Len(t, records, 10)
	assert.Len(t, r.calls, 1)
}

func TestFetchAllPages_MissingValueStillFollowsNextLink(t *testing.T) {
	r := &fakeRequester{pages: []*Page{
		{NextLink: "https://bc.test/p2"},
		{Value: json.RawMessage(`{"not":"an array"}`), NextLink: "https://bc.test/p3"},
		makePage(t, 0, 3, ""),
	}}

	records, err := NewFetcher(r, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/vendors", nil, nil, 0)
	require.NoError(t, err)

	assert.Len(t, records, 3)
	assert.Len(t, r.calls, 3)
}

func TestFetchAllPages_EmptyResult(t *testing.T) {
	r := &fakeRequester{pages: []*Page{{Value: json.RawMessage(`[]`)}}}

	records, err := NewFetcher(r, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/vendors", nil, nil, 0)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFetchAllPages_ErrorPropagatesUnchanged(t *testing.T) {
	sentinel := errors.New("boom")
	r := &fakeRequester{
		pages: []*Page{makePage(t, 0, 100, "https://bc.test/p2")},
		errAt: 2,
		err:   sentinel,
	}

	records, err := NewFetcher(r, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/items", nil, nil, 0)
	assert.Same(t, sentinel, err)
	assert.Nil(t, records)
}

func TestFetchAllPages_DoesNotMutateCallerQuery(t *testing.T) {
	r := &fakeRequester{pages: []*Page{makePage(t, 0, 1, "")}}
	query := odata.QueryParameters{odata.ParamFilter: "blocked eq false"}

	_, err := NewFetcher(r, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/items", nil, query, 0)
	require.NoError(t, err)

	_, hasTop := query[odata.ParamTop]
	assert.False(t, hasTop)
	assert.Equal(t, "100", r.calls[0].query[odata.ParamTop])
	assert.Equal(t, "blocked eq false", r.calls[0].query[odata.ParamFilter])
}

func TestFetchAllPages_KeepsCallerTop(t *testing.T) {
	r := &fakeRequester{pages: []*Page{makePage(t, 0, 1, "")}}
	query := odata.QueryParameters{}
	query.SetTop(20)

	_, err := NewFetcher(r, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/items", nil, query, 0)
	require.NoError(t, err)
	assert.Equal(t, "20", r.calls[0].query[odata.ParamTop])
}

func TestFetchAllPages_MaxPages(t *testing.T) {
	r := &fakeRequester{pages: []*Page{
		makePage(t, 0, 1, "https://bc.test/p2"),
		makePage(t, 1, 1, "https://bc.test/p3"),
	}}

	_, err := NewFetcher(r, Config{MaxPages: 2}).FetchAllPages(context.Background(), http.MethodGet, "/items", nil, nil, 0)
	assert.ErrorIs(t, err, ErrMaxPagesExceeded)
	assert.Len(t, r.calls, 2)
}

func TestFetchPage_Bounded(t *testing.T) {
	r := &fakeRequester{pages: []*Page{makePage(t, 0, 5, "https://bc.test/ignored")}}

	records, err := NewFetcher(r, DefaultConfig()).FetchPage(context.Background(), http.MethodGet, "/items", nil, nil, 5)
	require.NoError(t, err)

	assert.Len(t, records, 5)
	assert.Len(t, r.calls, 1)
	assert.Equal(t, "5", r.calls[0].query[odata.ParamTop])
}

func TestFetchAllPages_EmptyTopGetsPageSize(t *testing.T) {
	r := &fakeRequester{pages: []*Page{makePage(t, 0, 3, "")}}

	query := odata.QueryParameters{odata.ParamTop: "", odata.ParamFilter: "blocked eq false"}
	_, err := NewFetcher(r, Config{PageSize: 50}).FetchAllPages(context.Background(), http.MethodGet, "/items", nil, query, 0)
	require.NoError(t, err)

	require.Len(t, r.calls, 1)
	assert.Equal(t, "50", r.calls[0].query[odata.ParamTop])
	assert.Equal(t, "", query[odata.ParamTop])
}

func TestFetchAllPages_NilPageEndsFetch(t *testing.T) {
	r := &fakeRequester{pages: []*Page{
		makePage(t, 0, 2, "https://bc.test/next?$skiptoken=1"),
		nil,
	}}

	records, err := NewFetcher(r, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/vendors", nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Len(t, r.calls, 2)

	empty := &fakeRequester{pages: []*Page{nil}}
	records, err = NewFetcher(empty, DefaultConfig()).FetchAllPages(context.Background(), http.MethodGet, "/vendors", nil, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
}
