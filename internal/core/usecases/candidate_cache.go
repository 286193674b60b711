package usecases

import (
	"slices"
	"sync"
	"time"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/geofence"
)

// DefaultCacheStaleness is how long a cached candidate set stays usable.
const DefaultCacheStaleness = 10 * time.Minute

// maxCachedCandidates bounds the stored candidate set.
const maxCachedCandidates = 50

// CachedCandidates is the last candidate set the directory returned.
type CachedCandidates struct {
	Origin   domain.GeoPoint
	Stores   []domain.Store
	StoredAt time.Time
}

// CandidateCache keeps the most recent successful directory response for one
// device. It holds a single bounded entry and rejects entries older than the
// staleness threshold.
type CandidateCache struct {
	mu        sync.Mutex
	entry     *CachedCandidates
	staleness time.Duration
	now       func() time.Time
}

// NewCandidateCache creates a cache; staleness <= 0 selects the default.
func NewCandidateCache(staleness time.Duration) *CandidateCache {
	if staleness <= 0 {
		staleness = DefaultCacheStaleness
	}
	return &CandidateCache{staleness: staleness, now: time.Now}
}

// Store replaces the cached set.
func (c *CandidateCache) Store(origin domain.GeoPoint, stores []domain.Store) {
	stores = slices.Clone(stores)
	if len(stores) > maxCachedCandidates {
		stores = stores[:maxCachedCandidates]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &CachedCandidates{Origin: origin, Stores: stores, StoredAt: c.now()}
}

// Lookup returns the cached set if it is fresh and was fetched for a search
// area overlapping the one around p.
func (c *CandidateCache) Lookup(p domain.GeoPoint, radiusMeters int) (*CachedCandidates, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return nil, false
	}
	if c.now().Sub(c.entry.StoredAt) > c.staleness {
		return nil, false
	}
	if geofence.HaversineDistance(p, c.entry.Origin) > 2*float64(radiusMeters) {
		return nil, false
	}
	e := *c.entry
	e.Stores = slices.Clone(e.Stores)
	return &e, true
}

// Clear drops the cached set.
func (c *CandidateCache) Clear() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}
