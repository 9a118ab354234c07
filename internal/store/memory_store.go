package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore implements Backend using an in-memory map.
// It is used for local development and as the store in tests.
type MemoryStore struct {
	data    map[string]*memoryItem
	mu      sync.RWMutex
	maxSize int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (i *memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source, mostly for expiry tests
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithJanitor starts a goroutine removing expired entries every interval
func WithJanitor(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			go s.cleanup(interval)
		}
	}
}

// NewMemoryStore creates a new in-memory store. maxSize <= 0 means unbounded.
func NewMemoryStore(maxSize int, logger *zap.Logger, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data:    make(map[string]*memoryItem),
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves a value
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.data[key]
	if !exists || item.expired(s.now()) {
		return nil, ErrNotFound
	}

	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

// Set stores a value, expiring it after ttl when ttl is positive
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, exists := s.data[key]; !exists && s.maxSize > 0 && len(s.data) >= s.maxSize {
		s.evict(now)
	}

	item := &memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}
	s.data[key] = item

	return nil
}

// evict drops an expired entry if there is one, otherwise an arbitrary entry.
// Callers hold the write lock.
func (s *MemoryStore) evict(now time.Time) {
	for k, v := range s.data {
		if v.expired(now) {
			delete(s.data, k)
			return
		}
	}
	for k := range s.data {
		s.logger.Debug("Evicting key from memory store", zap.String("key", k))
		delete(s.data, k)
		return
	}
}

// Delete removes a value
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Keys returns live keys matching a Redis-style glob pattern, sorted
func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	g, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	keys := make([]string, 0)
	for k, item := range s.data {
		if item.expired(now) {
			continue
		}
		if g.Match(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the janitor
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// Size returns the number of entries, expired or not
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// cleanup periodically removes expired entries
func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, item := range s.data {
		if item.expired(now) {
			delete(s.data, key)
		}
	}
}
