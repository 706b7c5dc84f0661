package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotStored indicates no subscription is recorded for an event and URL.
var ErrNotStored = errors.New("subscription not stored")

// Store remembers subscription ids between create and delete.
type Store interface {
	Get(ctx context.Context, event Event, notificationURL string) (string, error)
	Put(ctx context.Context, event Event, notificationURL, subscriptionID string) error
	Delete(ctx context.Context, event Event, notificationURL string) error
}

// StoreKey returns the key a subscription is stored under.
func StoreKey(event Event, notificationURL string) string {
	return fmt.Sprintf("bc:webhook:%s:%s", event, notificationURL)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, event Event, notificationURL string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.subs[StoreKey(event, notificationURL)]
	if !ok {
		return "", ErrNotStored
	}
	return id, nil
}

func (s *MemoryStore) Put(_ context.Context, event Event, notificationURL, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[StoreKey(event, notificationURL)] = subscriptionID
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, event Event, notificationURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, StoreKey(event, notificationURL))
	return nil
}

// RedisStore keeps subscription ids in Redis so every replica of a
// receiver sees them.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. A ttl of 0 keeps ids until
// deleted.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, event Event, notificationURL string) (string, error) {
	id, err := s.redis.Get(ctx, StoreKey(event, notificationURL)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotStored
		}
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Put(ctx context.Context, event Event, notificationURL, subscriptionID string) error {
	if err := s.redis.Set(ctx, StoreKey(event, notificationURL), subscriptionID, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, event Event, notificationURL string) error {
	if err := s.redis.Del(ctx, StoreKey(event, notificationURL)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
