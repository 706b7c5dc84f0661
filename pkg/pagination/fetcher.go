package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/bc-odata-client/pkg/logging"
	"github.com/Sternrassler/bc-odata-client/pkg/odata"
)

// DefaultPageSize is the $top applied when the caller does not set one.
const DefaultPageSize = 100

// ErrMaxPagesExceeded is returned when Config.MaxPages is reached before
// the server stops sending nextLink.
var ErrMaxPagesExceeded = errors.New("pagination: max pages exceeded")

// Requester is the transport capability the fetcher depends on.
type Requester interface {
	// Request issues method against an endpoint relative to the API base URL.
	Request(ctx context.Context, method, endpoint string, body any, query odata.QueryParameters) (*Page, error)

	// RequestURL issues method against an absolute URL, sent verbatim.
	RequestURL(ctx context.Context, method, rawURL string) (*Page, error)
}

// Config holds fetcher configuration
type Config struct {
	// PageSize is the default $top (default: 100)
	PageSize int

	// MaxPages stops runaway loops; 0 disables the check
	MaxPages int
}

// DefaultConfig returns the default fetcher configuration
func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		MaxPages: 0,
	}
}

// Fetcher follows @odata.nextLink sequentially.
type Fetcher struct {
	requester Requester
	config    Config
}

// NewFetcher creates a new fetcher
func NewFetcher(r Requester, config Config) *Fetcher {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}

	return &Fetcher{
		requester: r,
		config:    config,
	}
}

// FetchAllPages collects records across pages until nextLink is absent or
// limit records have been gathered. A limit <= 0 means unlimited. An absent
// or empty $top is set to the configured page size, and a nil page counts
// as an empty last page.
//
// The caller's query is not modified. Any Requester error is returned
// unchanged and records gathered so far are discarded.
func (f *Fetcher) FetchAllPages(ctx context.Context, method, endpoint string, body any, query odata.QueryParameters, limit int) ([]Record, error) {
	start := time.Now()
	logger := logging.NewLogger("pagination").With().Str(logging.FieldEndpoint, endpoint).Logger()

	q := query.Clone()
	if q[odata.ParamTop] == "" {
		q.SetTop(f.config.PageSize)
	}

	var (
		records  []Record
		nextLink string
		pages    int
	)

	for {
		if f.config.MaxPages > 0 && pages >= f.config.MaxPages {
			PagesPerCall.Observe(float64(pages))
			return nil, fmt.Errorf("%w: %d pages for %s", ErrMaxPagesExceeded, pages, endpoint)
		}

		var (
			page *Page
			err  error
		)
		if pages == 0 {
			page, err = f.requester.Request(ctx, method, endpoint, body, q)
		} else {
			page, err = f.requester.RequestURL(ctx, http.MethodGet, nextLink)
		}
		if err != nil {
			PagesPerCall.Observe(float64(pages))
			return nil, err
		}
		if page == nil {
			page = &Page{}
		}
		pages++
		PagesFetched.Inc()

		pageRecords := page.Records()
		records = append(records, pageRecords...)

		logger.Debug().
			Int("page", pages).
			Int("records", len(pageRecords)).
			Int("accumulated", len(records)).
			Msg("Fetched page")

		if limit > 0 && len(records) >= limit {
			records = records[:limit]
			break
		}

		if page.NextLink == "" {
			break
		}
		nextLink = page.NextLink
	}

	if records == nil {
		records = []Record{}
	}

	PagesPerCall.Observe(float64(pages))
	RecordsFetched.Add(float64(len(records)))

	logger.Info().
		Int("pages", pages).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return records, nil
}

// FetchPage issues a single bounded request with $top = limit and returns
// the records of that page. nextLink is ignored.
func (f *Fetcher) FetchPage(ctx context.Context, method, endpoint string, body any, query odata.QueryParameters, limit int) ([]Record, error) {
	q := query.Clone()
	if limit > 0 {
		q.SetTop(limit)
	}

	page, err := f.requester.Request(ctx, method, endpoint, body, q)
	if err != nil {
		return nil, err
	}
	PagesFetched.Inc()

	records := page.Records()
	RecordsFetched.Add(float64(len(records)))
	return records, nil
}
