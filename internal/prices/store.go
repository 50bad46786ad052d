package prices

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/pkg/logger"
	"github.com/wonny/notes/backend/pkg/redis"
)

// MemoryStore is an in-process price cache, used by tests and the CLI
// when records come from a file
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]contracts.PriceRecord
}

// NewMemoryStore creates a store seeded with records
func NewMemoryStore(records ...contracts.PriceRecord) *MemoryStore {
	s := &MemoryStore{records: make(map[string]contracts.PriceRecord)}
	for _, r := range records {
		s.Put(r)
	}
	return s
}

// Put inserts or replaces a record
func (s *MemoryStore) Put(record contracts.PriceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[strings.ToUpper(record.FullTicker)] = record
}

// GetRecord implements contracts.PriceStore
func (s *MemoryStore) GetRecord(_ context.Context, fullTicker string) (*contracts.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[strings.ToUpper(fullTicker)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrDataUnavailable, fullTicker)
	}
	record.History = append([]contracts.PricePoint(nil), record.History...)
	return &record, nil
}

// RedisStore reads JSON price records written by the upstream price feed
type RedisStore struct {
	cache *redis.Cache
}

// NewRedisStore creates a store over cache
func NewRedisStore(cache *redis.Cache) *RedisStore {
	return &RedisStore{cache: cache}
}

// GetRecord implements contracts.PriceStore
func (s *RedisStore) GetRecord(ctx context.Context, fullTicker string) (*contracts.PriceRecord, error) {
	var record contracts.PriceRecord
	found, err := s.cache.Get(ctx, redis.PriceRecordKey(fullTicker), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", contracts.ErrDataUnavailable, fullTicker)
	}
	return &record, nil
}

// PutRecord writes a record with ttl (0 = no expiry)
func (s *RedisStore) PutRecord(ctx context.Context, record contracts.PriceRecord, ttl time.Duration) error {
	return s.cache.Set(ctx, redis.PriceRecordKey(record.FullTicker), record, ttl)
}

// CachedStore is a Redis read-through in front of a slower store.
// Misses are not cached so a record appearing upstream is seen on the next call.
type CachedStore struct {
	cache  *redis.Cache
	next   contracts.PriceStore
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedStore wraps next with cache
func NewCachedStore(cache *redis.Cache, next contracts.PriceStore, ttl time.Duration, log *logger.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = redis.TTLMedium
	}
	return &CachedStore{cache: cache, next: next, ttl: ttl, logger: log.WithComponent("price-cache")}
}

// GetRecord implements contracts.PriceStore
func (s *CachedStore) GetRecord(ctx context.Context, fullTicker string) (*contracts.PriceRecord, error) {
	var record contracts.PriceRecord
	err := s.cache.GetOrSet(ctx, redis.PriceRecordKey(fullTicker), &record, s.ttl, func() (interface{}, error) {
		return s.next.GetRecord(ctx, fullTicker)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}
