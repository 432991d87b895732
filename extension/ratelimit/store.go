package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterEntry holds a token bucket and its last access time.
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Store is an in-memory limiter table shared by every route the extension
// wraps. Keys embed the route path, so routes with different limits never
// share a bucket. Entries unused for the TTL are dropped by a periodic
// cleanup between Start and Stop.
type Store struct {
	mu       sync.RWMutex
	limiters map[string]*limiterEntry

	cleanupInterval time.Duration
	ttl             time.Duration
	cleanup         *time.Ticker
	stopped         chan struct{}
	startOnce       sync.Once
	stopOnce        sync.Once
}

// NewStore creates a store. Cleanup does not run until Start.
func NewStore(cleanupInterval, ttl time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		limiters:        make(map[string]*limiterEntry),
		cleanupInterval: cleanupInterval,
		ttl:             ttl,
		stopped:         make(chan struct{}),
	}
}

// Allow reports whether one event may proceed under key. The first sighting
// of a key creates its bucket with the given limit and burst.
func (s *Store) Allow(key string, limit rate.Limit, burst int) bool {
	now := time.Now()

	s.mu.Lock()
	entry, exists := s.limiters[key]
	if !exists {
		entry = &limiterEntry{
			limiter:    rate.NewLimiter(limit, burst),
			lastAccess: now,
		}
		s.limiters[key] = entry
	} else {
		entry.lastAccess = now
	}
	s.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Reset drops the bucket for key.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	delete(s.limiters, key)
	s.mu.Unlock()
}

// Size returns the current number of buckets.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// Start launches the periodic cleanup. Calling it again is a no-op.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		s.cleanup = time.NewTicker(s.cleanupInterval)
		go s.cleanupRoutine()
	})
}

// Stop ends the cleanup routine. Safe to call without Start and safe to
// call twice.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		if s.cleanup != nil {
			s.cleanup.Stop()
		}
		close(s.stopped)
	})
}

func (s *Store) cleanupRoutine() {
	for {
		select {
		case <-s.cleanup.C:
			s.performCleanup()
		case <-s.stopped:
			return
		}
	}
}

func (s *Store) performCleanup() {
	now := time.Now()
	expired := make([]string, 0)

	s.mu.RLock()
	for key, entry := range s.limiters {
		if now.Sub(entry.lastAccess) > s.ttl {
			expired = append(expired, key)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}
	s.mu.Lock()
	for _, key := range expired {
		// Re-check under the write lock; the key may have been touched.
		if entry, exists := s.limiters[key]; exists && now.Sub(entry.lastAccess) > s.ttl {
			delete(s.limiters, key)
		}
	}
	s.mu.Unlock()
}
