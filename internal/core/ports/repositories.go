package ports

import (
	"context"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

// StoreDirectory is the external store catalogue. Implementations return
// domain.ErrNetwork or domain.ErrDirectoryUnavailable (wrapped) when the
// directory cannot be reached.
type StoreDirectory interface {
	// FindNearby returns stores within radiusMeters of point, nearest first,
	// with Distance populated.
	FindNearby(ctx context.Context, point domain.GeoPoint, radiusMeters int) ([]domain.Store, error)
	// SearchByText is used by manual selection only.
	SearchByText(ctx context.Context, query string, limit int) ([]domain.Store, error)
	// GetByID returns domain.ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*domain.Store, error)
}

// PreferenceRepository persists one ConfirmationState per device. Save must
// replace all four records atomically.
type PreferenceRepository interface {
	// Load returns an empty state for unknown devices.
	Load(ctx context.Context, deviceID string) (*domain.ConfirmationState, error)
	Save(ctx context.Context, deviceID string, state *domain.ConfirmationState) error
	Delete(ctx context.Context, deviceID string) error
}
