package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "bc"

// CacheKey identifies a cached Business Central response.
type CacheKey struct {
	// Tenant is the Azure AD tenant ID or domain
	Tenant string

	// Environment is the Business Central environment name
	Environment string

	// Endpoint is the request path relative to the API root
	Endpoint string

	// QueryParams are the OData query options
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: bc:tenant:environment:endpoint:param1=val1:param2=val2
//
// Example:
//
//	bc:contoso:production:companies(123)/customers:$top=100
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Tenant != "" {
		parts = append(parts, k.Tenant)
	}
	if k.Environment != "" {
		parts = append(parts, k.Environment)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, key+"="+k.QueryParams.Get(key))
		}
	}

	return strings.Join(parts, ":")
}

// ScopePattern returns a Redis MATCH pattern covering every cached response
// that a write to k can make stale: everything under the same company, or
// under the same endpoint when k is not company-scoped.
//
//	bc:contoso:production:companies(123)*
func (k CacheKey) ScopePattern() string {
	scoped := CacheKey{Tenant: k.Tenant, Environment: k.Environment, Endpoint: companyScope(k.Endpoint)}
	return globEscape(scoped.String()) + "*"
}

// companyScope cuts endpoint after its companies(...) segment.
func companyScope(endpoint string) string {
	i := strings.Index(endpoint, "companies(")
	if i < 0 {
		return endpoint
	}
	end := strings.IndexByte(endpoint[i:], ')')
	if end < 0 {
		return endpoint
	}
	return endpoint[:i+end+1]
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func globEscape(s string) string {
	return globEscaper.Replace(s)
}
