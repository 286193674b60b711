// Package memory holds in-process adapters used for single-node
// deployments, demos and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/pkg/geospatial"
)

const maxNearbyResults = 100

// StoreDirectory is a ports.StoreDirectory over a fixed slice of stores.
type StoreDirectory struct {
	mu     sync.RWMutex
	stores map[string]domain.Store
}

// NewStoreDirectory builds a directory from stores. Later duplicates win.
func NewStoreDirectory(stores []domain.Store) *StoreDirectory {
	d := &StoreDirectory{stores: make(map[string]domain.Store, len(stores))}
	for _, s := range stores {
		d.stores[s.ID] = s
	}
	return d
}

// LoadStores reads a JSON array of stores from path.
func LoadStores(path string) ([]domain.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var stores []domain.Store
	if err := json.Unmarshal(data, &stores); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	for i, s := range stores {
		if s.ID == "" {
			return nil, fmt.Errorf("seed store %d: missing id", i)
		}
		if err := s.Location.Validate(); err != nil {
			return nil, fmt.Errorf("seed store %s: %w", s.ID, err)
		}
	}
	return stores, nil
}

// Upsert adds or replaces a store.
func (d *StoreDirectory) Upsert(store domain.Store) {
	d.mu.Lock()
	d.stores[store.ID] = store
	d.mu.Unlock()
}

// Len returns the number of stores.
func (d *StoreDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.stores)
}

// FindNearby returns active stores within radiusMeters of point, nearest first.
func (d *StoreDirectory) FindNearby(ctx context.Context, point domain.GeoPoint, radiusMeters int) ([]domain.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	radius := float64(radiusMeters)
	minLat, minLng, maxLat, maxLng := geospatial.BoundingBox(point.Lat, point.Lng, radius)
	box := domain.Bounds{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}

	d.mu.RLock()
	var out []domain.Store
	for _, s := range d.stores {
		if !s.Active || !box.Contains(s.Location) {
			continue
		}
		dist := geospatial.Haversine(point.Lat, point.Lng, s.Location.Lat, s.Location.Lng)
		if dist > radius {
			continue
		}
		s.Distance = &dist
		out = append(out, s)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if *out[i].Distance != *out[j].Distance {
			return *out[i].Distance < *out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > maxNearbyResults {
		out = out[:maxNearbyResults]
	}
	return out, nil
}

// SearchByText matches the query case-insensitively against name, chain
// and address of active stores.
func (d *StoreDirectory) SearchByText(ctx context.Context, query string, limit int) ([]domain.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))

	d.mu.RLock()
	var out []domain.Store
	for _, s := range d.stores {
		if !s.Active {
			continue
		}
		if strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.Chain), q) ||
			strings.Contains(strings.ToLower(s.Address), q) {
			out = append(out, s)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		// Prefix matches on the name first.
		pi := strings.HasPrefix(strings.ToLower(out[i].Name), q)
		pj := strings.HasPrefix(strings.ToLower(out[j].Name), q)
		if pi != pj {
			return pi
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetByID returns domain.ErrNotFound for unknown ids.
func (d *StoreDirectory) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	d.mu.RLock()
	s, ok := d.stores[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store %s: %w", id, domain.ErrNotFound)
	}
	return &s, nil
}
