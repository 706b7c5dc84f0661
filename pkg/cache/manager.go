package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned when no live entry exists for a key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned when a stored entry cannot be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// scanBatch is the COUNT hint for invalidation scans.
const scanBatch = 200

// Manager stores Business Central GET responses in Redis for a fixed TTL.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a cache manager whose entries live for ttl.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("cache: redis client cannot be nil")
	}
	return &Manager{redis: redisClient, ttl: ttl, now: time.Now}
}

// TTL returns the lifetime given to new and refreshed entries.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get returns the live entry for key or ErrCacheMiss. A stored entry that
// cannot be decoded is removed and reported as ErrInvalidEntry.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry := &Entry{}
	if err := json.Unmarshal(data, entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		_ = m.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	// Redis expiry normally removes entries first; clocks can disagree.
	if entry.Expired(m.now()) {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return entry, nil
}

// Set stores entry under key until entry.ExpiresAt. Entries already past
// their lifetime are ignored.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	ttl := entry.Remaining(m.now())
	if ttl == 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))
	return nil
}

// Delete removes the entry for key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Refresh restarts the lifetime of the entry for key after a 304 Not
// Modified confirmed it.
func (m *Manager) Refresh(ctx context.Context, key CacheKey) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	entry.extend(m.now(), m.ttl)
	return m.Set(ctx, key, entry)
}

// Invalidate removes every entry a write to key may have made stale (see
// CacheKey.ScopePattern) and returns how many were removed.
func (m *Manager) Invalidate(ctx context.Context, key CacheKey) (int, error) {
	pattern := key.ScopePattern()
	removed := 0

	iter := m.redis.Scan(ctx, 0, pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := m.redis.Del(ctx, batch...).Result()
		removed += int(n)
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				CacheErrors.WithLabelValues("invalidate").Inc()
				return removed, fmt.Errorf("redis del: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		return removed, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		return removed, fmt.Errorf("redis del: %w", err)
	}

	CacheInvalidations.Add(float64(removed))
	return removed, nil
}
