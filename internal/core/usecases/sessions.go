package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/storedetect/internal/pkg/metrics"
)

// SessionFactory builds the orchestrator for a device.
type SessionFactory func(deviceID string) *DetectionService

// SessionRegistry holds one DetectionService per device, bounded in size.
// Idle sessions without a continuous watch are evicted.
type SessionRegistry struct {
	factory SessionFactory
	max     int
	idleTTL time.Duration
	onEvict func(deviceID string)
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	svc      *DetectionService
	lastUsed time.Time
}

// NewSessionRegistry creates a registry. onEvict (may be nil) runs after a
// session is closed.
func NewSessionRegistry(factory SessionFactory, maxSessions int, idleTTL time.Duration, onEvict func(deviceID string)) *SessionRegistry {
	if maxSessions <= 0 {
		maxSessions = 10000
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &SessionRegistry{
		factory:  factory,
		max:      maxSessions,
		idleTTL:  idleTTL,
		onEvict:  onEvict,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Get returns the device's orchestrator, creating it on first use. At
// capacity the least recently used session is evicted first.
func (r *SessionRegistry) Get(deviceID string) *DetectionService {
	r.mu.Lock()
	if s, ok := r.sessions[deviceID]; ok {
		s.lastUsed = r.now()
		r.mu.Unlock()
		return s.svc
	}

	var evicted []*session
	var evictedIDs []string
	for len(r.sessions) >= r.max {
		id := r.lruLocked()
		evicted = append(evicted, r.sessions[id])
		evictedIDs = append(evictedIDs, id)
		delete(r.sessions, id)
	}

	s := &session{svc: r.factory(deviceID), lastUsed: r.now()}
	r.sessions[deviceID] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	r.release(evictedIDs, evicted)
	return s.svc
}

// Lookup returns an existing orchestrator without creating one.
func (r *SessionRegistry) Lookup(deviceID string) (*DetectionService, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[deviceID]
	if !ok {
		return nil, false
	}
	s.lastUsed = r.now()
	return s.svc, true
}

// Remove closes and drops the device's session.
func (r *SessionRegistry) Remove(deviceID string) {
	r.mu.Lock()
	s, ok := r.sessions[deviceID]
	delete(r.sessions, deviceID)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	if ok {
		r.release([]string{deviceID}, []*session{s})
	}
}

// Len returns the number of sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle closes sessions idle for longer than the TTL and returns how
// many were evicted. Sessions in continuous mode are kept.
func (r *SessionRegistry) EvictIdle() int {
	now := r.now()
	r.mu.Lock()
	var ids []string
	var evicted []*session
	for id, s := range r.sessions {
		if s.svc.Continuous() {
			continue
		}
		last := s.lastUsed
		if a := s.svc.LastActivity(); a.After(last) {
			last = a
		}
		if now.Sub(last) > r.idleTTL {
			ids = append(ids, id)
			evicted = append(evicted, s)
			delete(r.sessions, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	r.release(ids, evicted)
	return len(ids)
}

// Run evicts idle sessions every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				slog.Debug("evicted idle detection sessions", "count", n)
			}
		}
	}
}

// Close stops every session.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	var ids []string
	var all []*session
	for id, s := range r.sessions {
		ids = append(ids, id)
		all = append(all, s)
	}
	r.sessions = make(map[string]*session)
	metrics.ActiveSessions.Set(0)
	r.mu.Unlock()
	r.release(ids, all)
}

// lruLocked prefers sessions without a continuous watch.
func (r *SessionRegistry) lruLocked() string {
	var oldest string
	var oldestAt time.Time
	oldestContinuous := true
	for id, s := range r.sessions {
		cont := s.svc.Continuous()
		better := oldest == "" ||
			(oldestContinuous && !cont) ||
			(oldestContinuous == cont && s.lastUsed.Before(oldestAt))
		if better {
			oldest, oldestAt, oldestContinuous = id, s.lastUsed, cont
		}
	}
	return oldest
}

func (r *SessionRegistry) release(ids []string, sessions []*session) {
	for i, s := range sessions {
		s.svc.Close()
		if r.onEvict != nil {
			r.onEvict(ids[i])
		}
	}
}
