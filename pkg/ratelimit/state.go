// Package ratelimit paces Business Central requests and tracks server-side
// throttling. A client-side token bucket smooths bursts, and a 429 response
// opens a throttle window during which requests fail fast instead of
// adding load to an already throttled tenant.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ThrottleKey is the Redis key holding the end of a tenant environment's
// throttle window as a unix timestamp in milliseconds.
func ThrottleKey(tenant, environment string) string {
	return fmt.Sprintf("bc:throttle:%s:%s", tenant, environment)
}

// DefaultRetryAfter applies when a 429 carries no usable Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// Defaults for the client-side token bucket.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 10
)

// ThrottleState is the current throttle window.
type ThrottleState struct {
	// Until is when the window closes. Zero means no window was recorded.
	Until time.Time `json:"until"`

	// LastUpdate is when the state was last read or written.
	LastUpdate time.Time `json:"last_update"`
}

// IsThrottled reports whether the window is open at now.
func (s *ThrottleState) IsThrottled(now time.Time) bool {
	return now.Before(s.Until)
}

// Remaining returns the time until the window closes, or 0.
func (s *ThrottleState) Remaining() time.Duration {
	d := time.Until(s.Until)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter reads a Retry-After header, either delta-seconds or an
// HTTP date. Missing, malformed, or non-positive values yield
// DefaultRetryAfter.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultRetryAfter
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return DefaultRetryAfter
}
