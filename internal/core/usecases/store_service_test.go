package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/usecases"
)

func TestStoreService_FindNearby(t *testing.T) {
	repo := &mockDirectory{
		findNearbyFn: func(ctx context.Context, p domain.GeoPoint, radius int) ([]domain.Store, error) {
			return []domain.Store{
				{ID: "1", Name: "Kroger Maple Village", Location: annArbor},
				{ID: "2", Name: "Meijer Ann Arbor", Location: offset(annArbor, 100, 0)},
			}, nil
		},
	}

	svc := usecases.NewStoreService(repo, nil, 0)
	stores, err := svc.FindNearby(context.Background(), annArbor, 150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stores) != 2 {
		t.Fatalf("expected 2 stores, got %d", len(stores))
	}
	if stores[0].Name != "Kroger Maple Village" {
		t.Errorf("expected Kroger Maple Village, got %s", stores[0].Name)
	}
}

func TestStoreService_FindNearby_ClampRadius(t *testing.T) {
	var radii []int
	repo := &mockDirectory{
		findNearbyFn: func(ctx context.Context, p domain.GeoPoint, radius int) ([]domain.Store, error) {
			radii = append(radii, radius)
			return nil, nil
		},
	}

	svc := usecases.NewStoreService(repo, nil, 0)
	_, _ = svc.FindNearby(context.Background(), annArbor, 0)
	_, _ = svc.FindNearby(context.Background(), annArbor, 999999)
	if len(radii) != 2 || radii[0] != 150 || radii[1] != 5000 {
		t.Errorf("expected radii [150 5000], got %v", radii)
	}
}

func TestStoreService_FindNearby_InvalidPoint(t *testing.T) {
	svc := usecases.NewStoreService(&mockDirectory{}, nil, 0)
	_, err := svc.FindNearby(context.Background(), domain.GeoPoint{Lat: 91}, 150)
	if !errors.Is(err, domain.ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestStoreService_ReadThroughCache(t *testing.T) {
	calls := 0
	repo := &mockDirectory{
		findNearbyFn: func(ctx context.Context, p domain.GeoPoint, radius int) ([]domain.Store, error) {
			calls++
			return []domain.Store{{ID: "1", Name: "Kroger"}}, nil
		},
	}
	cache := newMockCache()
	svc := usecases.NewStoreService(repo, cache, 60)

	for i := 0; i < 3; i++ {
		stores, err := svc.FindNearby(context.Background(), annArbor, 150)
		if err != nil || len(stores) != 1 {
			t.Fatalf("unexpected result %v err=%v", stores, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 directory call, got %d", calls)
	}
}

func TestStoreService_ErrorsAreNotCached(t *testing.T) {
	calls := 0
	repo := &mockDirectory{
		findNearbyFn: func(ctx context.Context, p domain.GeoPoint, radius int) ([]domain.Store, error) {
			calls++
			return nil, domain.ErrNetwork
		},
	}
	cache := newMockCache()
	svc := usecases.NewStoreService(repo, cache, 60)

	for i := 0; i < 2; i++ {
		if _, err := svc.FindNearby(context.Background(), annArbor, 150); !errors.Is(err, domain.ErrNetwork) {
			t.Fatalf("expected ErrNetwork, got %v", err)
		}
	}
	if calls != 2 || cache.sets != 0 {
		t.Errorf("expected 2 calls and no cache writes, got %d calls %d sets", calls, cache.sets)
	}
}

func TestStoreService_SearchByText_EmptyQuery(t *testing.T) {
	svc := usecases.NewStoreService(&mockDirectory{}, nil, 0)
	if _, err := svc.SearchByText(context.Background(), "  ", 10); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestStoreService_SearchByText_ClampLimit(t *testing.T) {
	repo := &mockDirectory{
		searchByTextFn: func(ctx context.Context, query string, limit int) ([]domain.Store, error) {
			if query != "kroger" {
				t.Errorf("expected trimmed query, got %q", query)
			}
			if limit != 20 {
				t.Errorf("expected limit 20, got %d", limit)
			}
			return []domain.Store{{ID: "1"}}, nil
		},
	}
	svc := usecases.NewStoreService(repo, nil, 0)
	stores, err := svc.SearchByText(context.Background(), " kroger ", 500)
	if err != nil || len(stores) != 1 {
		t.Fatalf("unexpected result %v err=%v", stores, err)
	}
}

func TestStoreService_GetByID(t *testing.T) {
	repo := &mockDirectory{
		getByIDFn: func(ctx context.Context, id string) (*domain.Store, error) {
			if id == "missing" {
				return nil, domain.ErrNotFound
			}
			return &domain.Store{ID: id, Name: "Test Store"}, nil
		},
	}

	svc := usecases.NewStoreService(repo, newMockCache(), 0)
	store, err := svc.GetByID(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.ID != "abc-123" {
		t.Errorf("expected id abc-123, got %s", store.ID)
	}
	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
