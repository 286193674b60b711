package domain

import "errors"

// Sentinel errors shared by the core and its adapters. Adapters return these
// (optionally wrapped) so callers can branch with errors.Is.
var (
	// Location permission
	ErrPermissionDenied  = errors.New("location permission denied")
	ErrPermissionBlocked = errors.New("location permission blocked")

	// Positioning
	ErrLocationTimeout     = errors.New("location timeout")
	ErrLocationUnavailable = errors.New("location unavailable")

	// Store directory
	ErrNetwork              = errors.New("store directory network error")
	ErrDirectoryUnavailable = errors.New("store directory unavailable")
	ErrNoStoreFound         = errors.New("no store found")

	// Validation
	ErrInvalidGeofence    = errors.New("invalid geofence")
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported")
	ErrNoDetection = errors.New("no detected store to confirm")
)

// IsDirectoryFailure reports whether err is a store directory outage.
func IsDirectoryFailure(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrDirectoryUnavailable)
}
