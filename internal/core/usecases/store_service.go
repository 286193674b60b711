package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/ports"
	"github.com/samirrijal/storedetect/internal/pkg/metrics"
)

const (
	maxNearbyRadiusMeters = 5000
	defaultCacheTTL       = 300
)

// StoreService is a read-through cache in front of the store directory. It
// satisfies ports.StoreDirectory so detection can use it directly.
type StoreService struct {
	stores   ports.StoreDirectory
	cache    ports.CacheService
	cacheTTL int
}

// NewStoreService creates a new StoreService. ttlSeconds <= 0 selects five
// minutes; a nil cache disables caching.
func NewStoreService(stores ports.StoreDirectory, cache ports.CacheService, ttlSeconds int) *StoreService {
	if ttlSeconds <= 0 {
		ttlSeconds = defaultCacheTTL
	}
	return &StoreService{stores: stores, cache: cache, cacheTTL: ttlSeconds}
}

// FindNearby returns active and inactive stores within radiusMeters of point,
// nearest first.
func (s *StoreService) FindNearby(ctx context.Context, point domain.GeoPoint, radiusMeters int) ([]domain.Store, error) {
	if err := point.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = DefaultSearchRadiusMeters
	}
	if radiusMeters > maxNearbyRadiusMeters {
		radiusMeters = maxNearbyRadiusMeters
	}

	cacheKey := fmt.Sprintf("stores:nearby:%.5f:%.5f:%d", point.Lat, point.Lng, radiusMeters)
	var stores []domain.Store
	if s.cacheGet(ctx, "nearby", cacheKey, &stores) {
		return stores, nil
	}

	stores, err := s.stores.FindNearby(ctx, point, radiusMeters)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cacheKey, stores, s.cacheTTL)
	return stores, nil
}

// SearchByText performs a name/address search for manual selection.
func (s *StoreService) SearchByText(ctx context.Context, query string, limit int) ([]domain.Store, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("stores:search:%s:%d", strings.ToLower(query), limit)
	var stores []domain.Store
	if s.cacheGet(ctx, "search", cacheKey, &stores) {
		return stores, nil
	}

	stores, err := s.stores.SearchByText(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cacheKey, stores, s.cacheTTL)
	return stores, nil
}

// GetByID returns a single store.
func (s *StoreService) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}
	cacheKey := "stores:id:" + id
	var store domain.Store
	if s.cacheGet(ctx, "get", cacheKey, &store) {
		return &store, nil
	}

	found, err := s.stores.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	s.cacheSet(ctx, cacheKey, found, 2*s.cacheTTL)
	return found, nil
}

func (s *StoreService) cacheGet(ctx context.Context, op, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err == nil && json.Unmarshal(data, out) == nil {
		metrics.CacheHits.WithLabelValues(op).Inc()
		return true
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		metrics.CacheMisses.WithLabelValues(op).Inc()
	}
	return false
}

func (s *StoreService) cacheSet(ctx context.Context, key string, v any, ttl int) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		_ = s.cache.Set(ctx, key, data, ttl)
	}
}
