// Package devicefeed implements the platform location and WiFi ports on the
// server side, fed by reports that devices push over HTTP or NATS.
package devicefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/ports"
)

// Report is one message from a device. Any field may be omitted.
type Report struct {
	Permission *domain.PermissionStatus `json:"permission,omitempty"`
	Position   *domain.PositionFix      `json:"position,omitempty"`
	WiFi       *WiFiReport              `json:"wifi,omitempty"`
}

// WiFiReport describes the device's WiFi association. Network is nil when
// the device is not associated.
type WiFiReport struct {
	Supported bool                `json:"supported"`
	Network   *domain.NetworkInfo `json:"network,omitempty"`
}

// Feed is the latest known platform state of one device.
type Feed struct {
	mu         sync.Mutex
	permission domain.PermissionStatus
	fix        *domain.PositionFix
	seq        uint64
	wifi       *WiFiReport
	changed    chan struct{}
	now        func() time.Time
}

// NewFeed returns a feed with permission not yet granted but askable.
func NewFeed() *Feed {
	return &Feed{
		permission: domain.PermissionStatus{CanAskAgain: true},
		changed:    make(chan struct{}),
		now:        time.Now,
	}
}

var (
	_ ports.PlatformLocation = (*Feed)(nil)
	_ ports.WiFiScanner      = (*Feed)(nil)
)

// Apply merges a report. A position implies granted permission.
func (f *Feed) Apply(r Report) error {
	if r.Position != nil {
		if err := r.Position.Point.Validate(); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Permission != nil {
		f.permission = *r.Permission
	}
	if r.Position != nil {
		fix := *r.Position
		if fix.Time.IsZero() {
			fix.Time = f.now()
		}
		f.fix = &fix
		f.seq++
		f.permission.Granted = true
		f.permission.Blocked = false
	}
	if r.WiFi != nil {
		w := *r.WiFi
		f.wifi = &w
	}
	close(f.changed)
	f.changed = make(chan struct{})
	return nil
}

// CheckPermission returns the last reported permission.
func (f *Feed) CheckPermission(ctx context.Context) (domain.PermissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission, nil
}

// RequestPermission cannot prompt a remote device; it reports the current
// status and the device answers with its next report.
func (f *Feed) RequestPermission(ctx context.Context) (domain.PermissionStatus, error) {
	return f.CheckPermission(ctx)
}

// CurrentPosition returns the newest fix, waiting for the first one if the
// device has not reported a position yet.
func (f *Feed) CurrentPosition(ctx context.Context) (domain.PositionFix, error) {
	for {
		f.mu.Lock()
		fix, permission, changed := f.fix, f.permission, f.changed
		f.mu.Unlock()

		if fix != nil {
			return *fix, nil
		}
		if permission.State() == domain.PermissionBlocked {
			return domain.PositionFix{}, domain.ErrPermissionBlocked
		}

		select {
		case <-ctx.Done():
			return domain.PositionFix{}, ctx.Err()
		case <-changed:
		}
	}
}

// StartUpdates emits each new fix, at most once per interval, until ctx is
// cancelled.
func (f *Feed) StartUpdates(ctx context.Context, interval time.Duration) (<-chan ports.PositionUpdate, error) {
	out := make(chan ports.PositionUpdate, 1)
	go func() {
		defer close(out)
		var lastSeq uint64
		var lastSent time.Time
		for {
			f.mu.Lock()
			fix, seq, changed := f.fix, f.seq, f.changed
			f.mu.Unlock()

			if fix != nil && seq != lastSeq {
				if wait := interval - f.now().Sub(lastSent); !lastSent.IsZero() && wait > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(wait):
					}
					continue
				}
				select {
				case out <- ports.PositionUpdate{Fix: *fix}:
					lastSeq, lastSent = seq, f.now()
				case <-ctx.Done():
					return
				}
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-changed:
			}
		}
	}()
	return out, nil
}

// CurrentNetwork returns the reported WiFi association.
func (f *Feed) CurrentNetwork(ctx context.Context) (*domain.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wifi == nil || !f.wifi.Supported {
		return nil, fmt.Errorf("wifi: %w", domain.ErrUnsupported)
	}
	if f.wifi.Network == nil {
		return nil, nil
	}
	n := *f.wifi.Network
	return &n, nil
}

// Registry holds one Feed per device. It has no bound of its own: callers
// create feeds through a session and release them from the session
// registry's eviction hook.
type Registry struct {
	mu    sync.Mutex
	feeds map[string]*Feed
}

func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string]*Feed)}
}

// Feed returns the device's feed, creating it on first use.
func (r *Registry) Feed(deviceID string) *Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.feeds[deviceID]
	if !ok {
		f = NewFeed()
		r.feeds[deviceID] = f
	}
	return f
}

// Apply routes a report to the device's feed.
func (r *Registry) Apply(deviceID string, report Report) error {
	return r.Feed(deviceID).Apply(report)
}

// Remove forgets a device, typically when its session is evicted.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	delete(r.feeds, deviceID)
	r.mu.Unlock()
}

// Len returns the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}
