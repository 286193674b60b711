package ports

import (
	"context"
	"time"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

// PlatformLocation is the host platform's location API.
type PlatformLocation interface {
	// CheckPermission must not prompt the user.
	CheckPermission(ctx context.Context) (domain.PermissionStatus, error)
	// RequestPermission may prompt and returns once the user answered.
	RequestPermission(ctx context.Context) (domain.PermissionStatus, error)
	// CurrentPosition blocks until a fix is available or ctx is done.
	CurrentPosition(ctx context.Context) (domain.PositionFix, error)
	// StartUpdates streams fixes roughly every interval until ctx is
	// cancelled, then closes the channel.
	StartUpdates(ctx context.Context, interval time.Duration) (<-chan PositionUpdate, error)
}

// PositionUpdate carries either a fix or an error from a position stream.
type PositionUpdate struct {
	Fix domain.PositionFix
	Err error
}

// WiFiScanner reports the currently associated WiFi network. It returns
// (nil, nil) when the device is not associated, and domain.ErrUnsupported or
// domain.ErrPermissionDenied when the platform cannot tell.
type WiFiScanner interface {
	CurrentNetwork(ctx context.Context) (*domain.NetworkInfo, error)
}

// EventPublisher publishes detection events to a message broker.
type EventPublisher interface {
	PublishDetection(ctx context.Context, deviceID string, result *domain.DetectionResult) error
	PublishConfirmation(ctx context.Context, deviceID string, store *domain.Store, method domain.DetectionMethod) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
