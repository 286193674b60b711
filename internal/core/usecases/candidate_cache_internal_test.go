package usecases

import (
	"testing"
	"time"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

func TestCandidateCache_Staleness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCandidateCache(10 * time.Minute)
	c.now = func() time.Time { return now }

	origin := domain.GeoPoint{Lat: 42.2808, Lng: -83.7430}
	if _, ok := c.Lookup(origin, 150); ok {
		t.Fatal("expected empty cache miss")
	}

	c.Store(origin, []domain.Store{{ID: "s1"}})
	got, ok := c.Lookup(origin, 150)
	if !ok || len(got.Stores) != 1 || got.Stores[0].ID != "s1" {
		t.Fatalf("expected cached s1, got %+v ok=%v", got, ok)
	}

	now = now.Add(9 * time.Minute)
	if _, ok := c.Lookup(origin, 150); !ok {
		t.Error("expected entry to be fresh after 9 minutes")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Lookup(origin, 150); ok {
		t.Error("expected entry to be stale after 11 minutes")
	}
}

func TestCandidateCache_FarPositionMisses(t *testing.T) {
	c := NewCandidateCache(0)
	origin := domain.GeoPoint{Lat: 42.2808, Lng: -83.7430}
	c.Store(origin, []domain.Store{{ID: "s1"}})

	if _, ok := c.Lookup(domain.GeoPoint{Lat: 42.2908, Lng: -83.7430}, 150); ok {
		t.Error("expected miss for a position ~1.1km away")
	}
}

func TestCandidateCache_BoundedAndIsolated(t *testing.T) {
	c := NewCandidateCache(0)
	origin := domain.GeoPoint{Lat: 1, Lng: 1}
	stores := make([]domain.Store, maxCachedCandidates+10)
	c.Store(origin, stores)

	got, ok := c.Lookup(origin, 150)
	if !ok || len(got.Stores) != maxCachedCandidates {
		t.Fatalf("expected %d cached stores, got %d", maxCachedCandidates, len(got.Stores))
	}
	got.Stores[0].ID = "mutated"
	again, _ := c.Lookup(origin, 150)
	if again.Stores[0].ID == "mutated" {
		t.Error("lookup must return a copy")
	}

	c.Clear()
	if _, ok := c.Lookup(origin, 150); ok {
		t.Error("expected miss after Clear")
	}
}
