package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts every page request issued by the fetcher
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bc_pagination_pages_total",
			Help: "Total number of OData pages fetched",
		},
	)

	// RecordsFetched counts records returned to callers after truncation
	RecordsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bc_pagination_records_total",
			Help: "Total number of OData records returned by paginated fetches",
		},
	)

	// PagesPerCall tracks how many pages a single FetchAllPages call needed
	PagesPerCall = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bc_pagination_pages_per_call",
			Help:    "Number of pages fetched per paginated call",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)
)
