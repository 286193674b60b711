package usecases_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/ports"
	"github.com/samirrijal/storedetect/internal/pkg/geospatial"
)

var annArbor = domain.GeoPoint{Lat: 42.2808, Lng: -83.7430}

func offset(p domain.GeoPoint, north, east float64) domain.GeoPoint {
	lat, lng := geospatial.Offset(p.Lat, p.Lng, north, east)
	return domain.GeoPoint{Lat: lat, Lng: lng}
}

// --- Mock StoreDirectory ---

type mockDirectory struct {
	findNearbyFn   func(ctx context.Context, p domain.GeoPoint, radius int) ([]domain.Store, error)
	searchByTextFn func(ctx context.Context, query string, limit int) ([]domain.Store, error)
	getByIDFn      func(ctx context.Context, id string) (*domain.Store, error)
}

func (m *mockDirectory) FindNearby(ctx context.Context, p domain.GeoPoint, radius int) ([]domain.Store, error) {
	if m.findNearbyFn != nil {
		return m.findNearbyFn(ctx, p, radius)
	}
	return nil, nil
}

func (m *mockDirectory) SearchByText(ctx context.Context, query string, limit int) ([]domain.Store, error) {
	if m.searchByTextFn != nil {
		return m.searchByTextFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockDirectory) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

// --- Mock PlatformLocation ---

type mockPlatform struct {
	mu            sync.Mutex
	status        domain.PermissionStatus
	requestResult *domain.PermissionStatus
	requestCalls  int
	positionCalls int
	positionFn    func(ctx context.Context, call int) (domain.PositionFix, error)
	updates       chan ports.PositionUpdate
}

func grantedPlatform(p domain.GeoPoint) *mockPlatform {
	return &mockPlatform{
		status: domain.PermissionStatus{Granted: true, CanAskAgain: true},
		positionFn: func(ctx context.Context, call int) (domain.PositionFix, error) {
			return domain.PositionFix{Point: p, Time: time.Now()}, nil
		},
		updates: make(chan ports.PositionUpdate, 16),
	}
}

func (m *mockPlatform) CheckPermission(ctx context.Context) (domain.PermissionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, nil
}

func (m *mockPlatform) RequestPermission(ctx context.Context) (domain.PermissionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCalls++
	if m.requestResult != nil {
		m.status = *m.requestResult
	}
	return m.status, nil
}

func (m *mockPlatform) CurrentPosition(ctx context.Context) (domain.PositionFix, error) {
	m.mu.Lock()
	m.positionCalls++
	call := m.positionCalls
	m.mu.Unlock()
	if m.positionFn != nil {
		return m.positionFn(ctx, call)
	}
	return domain.PositionFix{}, domain.ErrLocationUnavailable
}

func (m *mockPlatform) StartUpdates(ctx context.Context, interval time.Duration) (<-chan ports.PositionUpdate, error) {
	if m.updates == nil {
		return nil, errors.New("updates not supported")
	}
	return m.updates, nil
}

func (m *mockPlatform) calls() (request, position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCalls, m.positionCalls
}

// --- Mock WiFiScanner ---

type mockScanner struct {
	currentFn func(ctx context.Context) (*domain.NetworkInfo, error)
}

func (m *mockScanner) CurrentNetwork(ctx context.Context) (*domain.NetworkInfo, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx)
	}
	return nil, nil
}

// --- In-memory PreferenceRepository ---

type fakePrefRepo struct {
	mu     sync.Mutex
	states map[string]*domain.ConfirmationState
	saves  int
	err    error
}

func newFakePrefRepo() *fakePrefRepo {
	return &fakePrefRepo{states: make(map[string]*domain.ConfirmationState)}
}

func (f *fakePrefRepo) Load(ctx context.Context, deviceID string) (*domain.ConfirmationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if st, ok := f.states[deviceID]; ok {
		return st.Clone(), nil
	}
	return domain.NewConfirmationState(), nil
}

func (f *fakePrefRepo) Save(ctx context.Context, deviceID string, st *domain.ConfirmationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saves++
	f.states[deviceID] = st.Clone()
	return nil
}

func (f *fakePrefRepo) Delete(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, deviceID)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	detections    chan *domain.DetectionResult
	confirmations chan string
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{
		detections:    make(chan *domain.DetectionResult, 32),
		confirmations: make(chan string, 32),
	}
}

func (m *mockPublisher) PublishDetection(ctx context.Context, deviceID string, r *domain.DetectionResult) error {
	m.detections <- r
	return nil
}

func (m *mockPublisher) PublishConfirmation(ctx context.Context, deviceID string, s *domain.Store, method domain.DetectionMethod) error {
	m.confirmations <- s.ID
	return nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("cache miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
