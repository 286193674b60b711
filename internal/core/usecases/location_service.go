package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/geofence"
	"github.com/samirrijal/storedetect/internal/core/ports"
	"github.com/samirrijal/storedetect/internal/pkg/metrics"
)

// Location defaults.
const (
	DefaultGPSTimeout           = 15 * time.Second
	DefaultWatchInterval        = 10 * time.Second
	DefaultDistanceFilterMeters = 50.0
)

// LocationService wraps the platform location API: permission state,
// single-shot fixes and continuous watches.
type LocationService struct {
	platform       ports.PlatformLocation
	defaultTimeout time.Duration

	mu    sync.Mutex
	state domain.PermissionState
	last  *domain.PositionFix
}

// NewLocationService creates a new LocationService. timeout <= 0 selects
// DefaultGPSTimeout.
func NewLocationService(platform ports.PlatformLocation, timeout time.Duration) *LocationService {
	if timeout <= 0 {
		timeout = DefaultGPSTimeout
	}
	return &LocationService{
		platform:       platform,
		defaultTimeout: timeout,
		state:          domain.PermissionUnknown,
	}
}

// PermissionState returns the last observed permission state.
func (s *LocationService) PermissionState() domain.PermissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *LocationService) setState(st domain.PermissionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// CheckPermission reads the permission status without prompting.
func (s *LocationService) CheckPermission(ctx context.Context) (domain.PermissionStatus, error) {
	status, err := s.platform.CheckPermission(ctx)
	if err != nil {
		return domain.PermissionStatus{}, fmt.Errorf("check permission: %w", err)
	}
	s.setState(status.State())
	return status, nil
}

// RequestPermission prompts for permission unless it is already granted or
// blocked at the OS level.
func (s *LocationService) RequestPermission(ctx context.Context) (domain.PermissionStatus, error) {
	status, err := s.CheckPermission(ctx)
	if err != nil {
		return status, err
	}
	if status.Granted || status.State() == domain.PermissionBlocked {
		return status, nil
	}

	s.setState(domain.PermissionRequesting)
	status, err = s.platform.RequestPermission(ctx)
	if err != nil {
		s.setState(domain.PermissionUnknown)
		return domain.PermissionStatus{}, fmt.Errorf("request permission: %w", err)
	}
	s.setState(status.State())
	return status, nil
}

// GetCurrentPosition fetches a single fix. It fails with ErrLocationTimeout
// when no fix arrives within timeout (DefaultGPSTimeout when <= 0), and with
// ErrLocationUnavailable or ErrPermissionDenied for platform failures.
func (s *LocationService) GetCurrentPosition(ctx context.Context, timeout time.Duration) (domain.PositionFix, error) {
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fix, err := s.platform.CurrentPosition(fctx)
	if err != nil {
		return domain.PositionFix{}, mapPositionError(ctx, err)
	}
	if err := fix.Point.Validate(); err != nil {
		return domain.PositionFix{}, fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err)
	}
	if fix.Time.IsZero() {
		fix.Time = time.Now()
	}
	s.remember(fix)
	return fix, nil
}

// LastKnown returns the most recent fix seen by this service.
func (s *LocationService) LastKnown() (domain.PositionFix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return domain.PositionFix{}, false
	}
	return *s.last, true
}

func (s *LocationService) remember(fix domain.PositionFix) {
	s.mu.Lock()
	s.last = &fix
	s.mu.Unlock()
}

func mapPositionError(parent context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrLocationTimeout
	case errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrPermissionBlocked),
		errors.Is(err, domain.ErrLocationTimeout),
		errors.Is(err, domain.ErrLocationUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err)
	}
}

// WatchOptions tunes a continuous position watch.
type WatchOptions struct {
	Interval time.Duration
	// DistanceFilterMeters suppresses updates closer than this to the last
	// delivered fix. Zero delivers every fix.
	DistanceFilterMeters float64
}

// DefaultWatchOptions returns a 10s interval with a 50m distance filter.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{Interval: DefaultWatchInterval, DistanceFilterMeters: DefaultDistanceFilterMeters}
}

// Watch is the handle of a running position watch. Release it with
// ClearWatch (or Stop); releasing more than once is harmless.
type Watch struct {
	id        string
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
	once      sync.Once
}

// ID identifies the watch.
func (w *Watch) ID() string { return w.id }

// Done is closed once the watch goroutine has exited.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Stopped reports whether the watch was cancelled.
func (w *Watch) Stopped() bool { return w.cancelled.Load() }

// Stop cancels the watch. An update that passed its stop check just before
// Stop may still be delivered once, so callbacks should also honour the
// context given to WatchPosition.
func (w *Watch) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancelled.Store(true)
		w.cancel()
	})
}

// WatchPosition starts a continuous watch. onUpdate receives fixes that moved
// at least DistanceFilterMeters from the last delivered one; onError (may be
// nil) receives stream errors. Both run on the watch goroutine.
func (s *LocationService) WatchPosition(ctx context.Context, onUpdate func(domain.PositionFix), onError func(error), opts WatchOptions) (*Watch, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultWatchInterval
	}

	wctx, cancel := context.WithCancel(ctx)
	updates, err := s.platform.StartUpdates(wctx, opts.Interval)
	if err != nil {
		cancel()
		return nil, mapPositionError(ctx, err)
	}

	w := &Watch{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	metrics.ActiveWatches.Inc()
	go s.runWatch(wctx, w, updates, onUpdate, onError, opts.DistanceFilterMeters)
	return w, nil
}

// ClearWatch stops w. It is safe on nil and on already stopped watches.
func (s *LocationService) ClearWatch(w *Watch) {
	w.Stop()
}

func (s *LocationService) runWatch(ctx context.Context, w *Watch, updates <-chan ports.PositionUpdate,
	onUpdate func(domain.PositionFix), onError func(error), filter float64) {
	defer close(w.done)
	defer metrics.ActiveWatches.Dec()
	defer w.Stop()

	var delivered *domain.GeoPoint
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Err != nil {
				if onError != nil && !w.Stopped() {
					onError(mapPositionError(ctx, u.Err))
				}
				continue
			}
			if err := u.Fix.Point.Validate(); err != nil {
				continue
			}
			s.remember(u.Fix)
			if delivered != nil && geofence.HaversineDistance(*delivered, u.Fix.Point) < filter {
				continue
			}
			p := u.Fix.Point
			delivered = &p
			if w.Stopped() {
				return
			}
			onUpdate(u.Fix)
		}
	}
}
