// Package client provides the Business Central HTTP client with request
// pacing, throttle tracking, response caching, and error mapping.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gonobo/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bc-odata-client/pkg/cache"
	"github.com/Sternrassler/bc-odata-client/pkg/logging"
	"github.com/Sternrassler/bc-odata-client/pkg/odata"
	"github.com/Sternrassler/bc-odata-client/pkg/ratelimit"
)

// Prometheus metrics for Business Central client operations.
var (
	bcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bc_requests_total",
		Help: "Total Business Central requests by method and status",
	}, []string{"method", "status"})

	bcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bc_request_duration_seconds",
		Help:    "Business Central request duration in seconds by method",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})

	bcErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bc_errors_total",
		Help: "Total Business Central errors by class",
	}, []string{"class"})
)

// baseURLFormat is the v2.0 API root for a tenant and environment.
const baseURLFormat = "https://api.businesscentral.dynamics.com/v2.0/%s/%s/api/v2.0"

// Client is the Business Central API client.
type Client struct {
	httpClient *http.Client
	tracker    *ratelimit.Tracker
	cache      *cache.Manager
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// TenantID is the Azure AD tenant ID or primary domain
	TenantID string

	// Environment is the Business Central environment, e.g. "production"
	Environment string

	// CompanyID is the default company; operations may override it
	CompanyID string

	// BaseURL overrides the API root derived from tenant and environment
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout applies when HTTPClient is nil
	Timeout time.Duration

	// HTTPClient performs requests; normally from NewOAuth2HTTPClient
	HTTPClient *http.Client

	// Redis enables the response cache and a shared throttle window
	Redis *redis.Client

	// CacheTTL is how long GET responses are cached; 0 disables caching
	CacheTTL time.Duration

	// RateLimit is the client-side requests per second
	RateLimit float64

	// Burst is the token bucket size
	Burst int
}

// DefaultConfig returns a default configuration for a tenant and environment.
func DefaultConfig(tenantID, environment string) Config {
	return Config{
		TenantID:    tenantID,
		Environment: environment,
		UserAgent:   "bc-odata-client/1.0",
		Timeout:     30 * time.Second,
		RateLimit:   ratelimit.DefaultRequestsPerSecond,
		Burst:       ratelimit.DefaultBurst,
	}
}

// Validate checks the configuration.
func (cfg Config) Validate() error {
	return validator.Validate(
		validator.All(
			validator.Rule(cfg.TenantID != "", "tenant id is required"),
			validator.Rule(cfg.Environment != "", "environment is required"),
			validator.Rule(cfg.CompanyID == "" || odata.IsValidGuid(cfg.CompanyID), "company id must be a GUID"),
			validator.Rule(cfg.RateLimit > 0, "rate limit must be positive"),
			validator.Rule(cfg.Burst > 0, "burst must be positive"),
			validator.Rule(cfg.CacheTTL >= 0, "cache ttl must not be negative"),
		),
	)
}

// New creates a new Business Central client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	logger := logging.NewLogger("bc-client")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf(baseURLFormat, url.PathEscape(cfg.TenantID), url.PathEscape(cfg.Environment))
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil && cfg.CacheTTL > 0 {
		cacheManager = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	tracker := ratelimit.NewTracker(cfg.Redis, ratelimit.Config{
		Tenant:            cfg.TenantID,
		Environment:       cfg.Environment,
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.Burst,
	}, logger)

	return &Client{
		httpClient: httpClient,
		tracker:    tracker,
		cache:      cacheManager,
		baseURL:    baseURL,
		config:     cfg,
		logger:     logger,
	}, nil
}

// BaseURL returns the API root all endpoints are relative to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CompanyID resolves the company for an operation: the configured company
// wins, then override.
func (c *Client) CompanyID(override string) (string, error) {
	if c.config.CompanyID != "" {
		return c.config.CompanyID, nil
	}
	if override != "" {
		return override, nil
	}
	return "", ErrCompanyRequired
}

// CompanyEndpoint returns endpoint scoped to a company,
// e.g. /companies(123)/customers.
func CompanyEndpoint(companyID, endpoint string) string {
	return "/companies(" + companyID + ")" + endpoint
}

// Do performs an HTTP request with pacing, caching, and error mapping.
// Responses with status >= 400 are returned as *APIError with the body
// consumed. Nothing is retried.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	method := req.Method

	startTime := time.Now()
	defer func() {
		bcRequestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: throttle window and token bucket
	if err := c.tracker.Wait(ctx); err != nil {
		if errors.Is(err, ratelimit.ErrThrottled) {
			bcErrorsTotal.WithLabelValues(string(ErrorClassThrottled)).Inc()
			bcRequestsTotal.WithLabelValues(method, "throttled").Inc()
		}
		return nil, err
	}

	// Step 2: cache lookup for GET
	var (
		cacheKey    cache.CacheKey
		cachedEntry *cache.Entry
	)
	useCache := c.cache != nil && method == http.MethodGet
	if useCache {
		cacheKey = c.cacheKey(req.URL)

		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", cacheKey.String()).Msg("Cache get error")
		}
		cachedEntry = entry

		if cache.ShouldMakeConditionalRequest(cachedEntry) {
			cache.AddConditionalHeaders(req, cachedEntry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("url", req.URL.Path).
				Str("etag", cachedEntry.ETag).
				Msg("Making conditional request")
		}
	}

	// Step 3: headers
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", req.URL.Path).
		Msg("Executing Business Central request")

	// Step 4: send
	resp, err := c.httpClient.Do(req)
	if err != nil {
		bcErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		bcRequestsTotal.WithLabelValues(method, "network_error").Inc()
		c.logger.Error().Err(err).Str("method", method).Str("url", req.URL.Path).Msg("HTTP request failed")
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Redacted(), err)
	}

	bcRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 5: server throttling
	if resp.StatusCode == http.StatusTooManyRequests {
		c.tracker.RecordThrottle(ctx, resp.Header)
	}

	// Step 6: serve 304 from cache
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		resp.Body.Close()
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("url", req.URL.Path).Msg("304 Not Modified - using cache")

		if err := c.cache.Refresh(ctx, cacheKey); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	// Step 7: errors
	if resp.StatusCode >= 400 {
		body, _ := readBody(resp)
		apiErr := newAPIError(method, req.URL.Redacted(), resp.StatusCode, body)
		class := classifyStatus(resp.StatusCode)
		bcErrorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Warn().
			Str("method", method).
			Str("url", req.URL.Path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Str("code", apiErr.Code).
			Msg("Business Central request error")
		return nil, apiErr
	}

	// Step 8: writes make cached reads of the company stale
	if c.cache != nil && method != http.MethodGet && method != http.MethodHead {
		if n, err := c.cache.Invalidate(ctx, c.cacheKey(req.URL)); err != nil {
			c.logger.Warn().Err(err).Str("url", req.URL.Path).Msg("Cache invalidation failed")
		} else if n > 0 {
			c.logger.Debug().Int("removed", n).Str("url", req.URL.Path).Msg("Cache invalidated")
		}
	}

	// Step 9: store successful GETs
	if useCache && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp, c.cache.TTL())
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// cacheKey scopes a request URL to the configured tenant and environment.
func (c *Client) cacheKey(u *url.URL) cache.CacheKey {
	return cache.CacheKey{
		Tenant:      c.config.TenantID,
		Environment: c.config.Environment,
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
