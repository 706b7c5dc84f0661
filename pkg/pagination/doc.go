// Package pagination drives OData server-driven paging to completion.
//
// Business Central returns at most one page per response and signals the
// next page with an @odata.nextLink annotation holding an absolute URL.
// The Fetcher follows that link verbatim, one request at a time, until the
// link disappears or an optional record limit is reached.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(bcClient, pagination.DefaultConfig())
//	query := odata.BuildQuery(filters, odata.OptionSet{Select: []string{"id", "number"}})
//	records, err := fetcher.FetchAllPages(ctx, http.MethodGet, "/companies(123)/customers", nil, query, 0)
//
// The fetcher:
//   - Defaults $top to Config.PageSize when the caller did not set it
//   - Issues the first request with the caller's method, endpoint, and body
//   - Issues every follow-up request as GET on the nextLink URL
//   - Truncates to the limit and stops once it is reached (limit <= 0 = unlimited)
//   - Returns transport errors unchanged and discards partial results
package pagination
