package cache

import (
	"time"
)

// Entry is a cached 200 response to a Business Central GET.
//
// Only the body and the headers needed to replay it are kept; request ids
// and other per-response headers are dropped.
type Entry struct {
	Body        []byte    `json:"body"`
	ETag        string    `json:"etag,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its lifetime at now.
// An entry without ExpiresAt is always expired.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Remaining is the lifetime left at now, never negative.
func (e *Entry) Remaining(now time.Time) time.Duration {
	if d := e.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Age is how long ago the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	if e.StoredAt.IsZero() {
		return 0
	}
	return now.Sub(e.StoredAt)
}

// extend restarts the entry's lifetime at now.
func (e *Entry) extend(now time.Time, ttl time.Duration) {
	e.ExpiresAt = now.Add(ttl)
}
