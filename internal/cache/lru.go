package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/fortuna/linemate/internal/analysis"
)

// StoreCache keeps the most recently used season stores in memory so queries do not reload
// game logs from the database on every request.
type StoreCache struct {
	cache *lru.Cache
	mu    sync.Mutex
}

// NewStoreCache creates a cache holding up to size seasons.
func NewStoreCache(size int) *StoreCache {
	if size < 1 {
		size = 1
	}
	c, _ := lru.New(size)
	return &StoreCache{cache: c}
}

// Get returns the cached store for a season.
func (s *StoreCache) Get(season string) (*analysis.Store, bool) {
	v, ok := s.cache.Get(season)
	if !ok {
		return nil, false
	}
	store, ok := v.(*analysis.Store)
	return store, ok
}

// GetOrLoad returns the cached store, calling load on a miss. Concurrent misses for the same
// season load once.
func (s *StoreCache) GetOrLoad(season string, load func() (*analysis.Store, error)) (*analysis.Store, error) {
	if store, ok := s.Get(season); ok {
		return store, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.Get(season); ok {
		return store, nil
	}

	store, err := load()
	if err != nil {
		return nil, err
	}
	s.cache.Add(season, store)
	return store, nil
}

// Add replaces the cached store for a season.
func (s *StoreCache) Add(season string, store *analysis.Store) {
	s.cache.Add(season, store)
}

// Invalidate drops a season.
func (s *StoreCache) Invalidate(season string) {
	s.cache.Remove(season)
}

// Len is the number of cached seasons.
func (s *StoreCache) Len() int {
	return s.cache.Len()
}
