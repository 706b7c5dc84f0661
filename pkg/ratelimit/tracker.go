package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrThrottled is returned while a throttle window is open.
var ErrThrottled = errors.New("throttled by business central")

// Prometheus metrics for throttle tracking.
var (
	bcThrottleWindowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bc_throttle_windows_total",
		Help: "Total number of throttle windows opened by 429 responses",
	})

	bcThrottleBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bc_throttle_blocks_total",
		Help: "Total number of requests rejected during a throttle window",
	})
)

// ThrottleError carries the time left in the throttle window.
type ThrottleError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *ThrottleError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrThrottled, e.RetryAfter.Round(time.Second))
}

// Unwrap returns ErrThrottled.
func (e *ThrottleError) Unwrap() error {
	return ErrThrottled
}

// Config holds tracker configuration.
type Config struct {
	// Tenant and Environment scope the shared throttle window
	Tenant      string
	Environment string

	// RequestsPerSecond is the sustained client-side rate (default: 5)
	RequestsPerSecond float64

	// Burst is the token bucket size (default: 10)
	Burst int
}

// DefaultConfig returns the default pacing configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
	}
}

// extendWindow sets KEYS[1] to ARGV[1] with a PX of ARGV[2] unless the
// stored window already ends later.
var extendWindow = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]))
if current and current >= tonumber(ARGV[1]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// Tracker gates requests on the token bucket and the throttle window.
// The window is kept in memory and mirrored to Redis when a client is set,
// so processes sharing a tenant environment also share its window.
type Tracker struct {
	redis   *redis.Client
	key     string
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu    sync.Mutex
	until time.Time
}

// NewTracker creates a new tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	return &Tracker{
		redis:   redisClient,
		key:     ThrottleKey(cfg.Tenant, cfg.Environment),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// GetState returns the current throttle window. Redis is consulted when
// configured; a Redis error falls back to the local state.
func (t *Tracker) GetState(ctx context.Context) (*ThrottleState, error) {
	t.mu.Lock()
	until := t.until
	t.mu.Unlock()

	state := &ThrottleState{Until: until, LastUpdate: time.Now()}
	if t.redis == nil {
		return state, nil
	}

	ms, err := t.redis.Get(ctx, t.key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state, nil
		}
		return state, fmt.Errorf("get throttle state: %w", err)
	}

	shared := time.UnixMilli(ms)
	if shared.After(state.Until) {
		state.Until = shared
		t.mu.Lock()
		if shared.After(t.until) {
			t.until = shared
		}
		t.mu.Unlock()
	}

	return state, nil
}

// Wait blocks on the token bucket, then checks the throttle window. It
// returns a *ThrottleError without sleeping when the window is open.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Throttle state unavailable, using local state")
	}

	if state.IsThrottled(time.Now()) {
		remaining := state.Remaining()
		bcThrottleBlocksTotal.Inc()
		t.logger.Warn().
			Dur("retry_after", remaining).
			Msg("Request rejected, throttle window open")
		return &ThrottleError{RetryAfter: remaining}
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// RecordThrottle opens a throttle window from a 429 response's headers and
// returns the window length. A window that already ends later is kept.
func (t *Tracker) RecordThrottle(ctx context.Context, headers http.Header) time.Duration {
	now := time.Now()
	retryAfter := ParseRetryAfter(headers.Get("Retry-After"), now)
	until := now.Add(retryAfter)

	t.mu.Lock()
	if until.After(t.until) {
		t.until = until
	}
	t.mu.Unlock()

	bcThrottleWindowsTotal.Inc()
	t.logger.Warn().
		Dur("retry_after", retryAfter).
		Time("until", until).
		Msg("Business Central throttled request")

	if t.redis != nil {
		px := max(retryAfter.Milliseconds(), 1)
		args := []any{strconv.FormatInt(until.UnixMilli(), 10), px}
		if err := extendWindow.Run(ctx, t.redis, []string{t.key}, args...).Err(); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to store throttle state in redis")
		}
	}

	return retryAfter
}

// Reset clears the throttle window.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.until = time.Time{}
	t.mu.Unlock()

	if t.redis == nil {
		return nil
	}
	if err := t.redis.Del(ctx, t.key).Err(); err != nil {
		return fmt.Errorf("clear throttle state: %w", err)
	}
	return nil
}
