package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/geofence"
	"github.com/samirrijal/storedetect/internal/core/ports"
	"github.com/samirrijal/storedetect/internal/pkg/metrics"
	"github.com/samirrijal/storedetect/internal/pkg/telemetry"
)

// DetectionConfig tunes one orchestrator.
type DetectionConfig struct {
	SearchRadiusMeters int
	ConfidenceFloor    int
	// Detections of an already confirmed store at or above this confidence
	// are recorded as recent visits.
	ConfirmationSkipThreshold int
	GPSTimeout                time.Duration
	GPSRetryTimeout           time.Duration
	DirectoryTimeout          time.Duration
	CacheStaleness            time.Duration
	Watch                     WatchOptions
}

// DefaultDetectionConfig returns the documented defaults.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		SearchRadiusMeters:        DefaultSearchRadiusMeters,
		ConfidenceFloor:           DefaultConfidenceFloor,
		ConfirmationSkipThreshold: DefaultConfirmationSkipThreshold,
		GPSTimeout:                DefaultGPSTimeout,
		GPSRetryTimeout:           30 * time.Second,
		DirectoryTimeout:          10 * time.Second,
		CacheStaleness:            DefaultCacheStaleness,
		Watch:                     DefaultWatchOptions(),
	}
}

// DetectionDeps are the collaborators of a DetectionService. Events and
// Engine may be nil.
type DetectionDeps struct {
	Location    *LocationService
	WiFi        *WiFiService
	Stores      ports.StoreDirectory
	Preferences *PreferenceService
	Events      ports.EventPublisher
	Engine      *geofence.Engine
}

// DetectionService is the detection orchestrator for one device. It owns the
// detection state machine and the device's stale-candidate cache.
type DetectionService struct {
	deviceID    string
	location    *LocationService
	wifi        *WiFiService
	stores      ports.StoreDirectory
	preferences *PreferenceService
	events      ports.EventPublisher
	engine      *geofence.Engine
	cfg         DetectionConfig
	cache       *CandidateCache
	logger      *slog.Logger
	now         func() time.Time

	mu           sync.Mutex
	state        domain.DetectionState
	last         *domain.DetectionResult
	lastActivity time.Time
	watch        *Watch
	stopWatch    context.CancelFunc
}

// NewDetectionService creates the orchestrator for deviceID. Zero-valued
// config fields fall back to DefaultDetectionConfig.
func NewDetectionService(deviceID string, deps DetectionDeps, cfg DetectionConfig) *DetectionService {
	def := DefaultDetectionConfig()
	if cfg.SearchRadiusMeters <= 0 {
		cfg.SearchRadiusMeters = def.SearchRadiusMeters
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	if cfg.ConfirmationSkipThreshold <= 0 {
		cfg.ConfirmationSkipThreshold = def.ConfirmationSkipThreshold
	}
	if cfg.GPSTimeout <= 0 {
		cfg.GPSTimeout = def.GPSTimeout
	}
	if cfg.GPSRetryTimeout <= 0 {
		cfg.GPSRetryTimeout = def.GPSRetryTimeout
	}
	if cfg.DirectoryTimeout <= 0 {
		cfg.DirectoryTimeout = def.DirectoryTimeout
	}
	if cfg.Watch.Interval <= 0 {
		cfg.Watch = def.Watch
	}
	engine := deps.Engine
	if engine == nil {
		engine = geofence.Default()
	}

	return &DetectionService{
		deviceID:     deviceID,
		location:     deps.Location,
		wifi:         deps.WiFi,
		stores:       deps.Stores,
		preferences:  deps.Preferences,
		events:       deps.Events,
		engine:       engine,
		cfg:          cfg,
		cache:        NewCandidateCache(cfg.CacheStaleness),
		logger:       slog.With("device_id", deviceID),
		now:          time.Now,
		state:        domain.StateInitial,
		lastActivity: time.Now(),
	}
}

// DeviceID returns the device this orchestrator serves.
func (s *DetectionService) DeviceID() string { return s.deviceID }

// State returns the current detection state.
func (s *DetectionService) State() domain.DetectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastResult returns a copy of the latest result, or nil before the first cycle.
func (s *DetectionService) LastResult() *domain.DetectionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyResult(s.last)
}

// Continuous reports whether a continuous watch is running.
func (s *DetectionService) Continuous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watch != nil && !s.watch.Stopped()
}

// LastActivity returns when the orchestrator was last used.
func (s *DetectionService) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *DetectionService) transition(to domain.DetectionState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.lastActivity = s.now()
	s.mu.Unlock()
	if from != to {
		s.logger.Debug("detection state", "from", from, "to", to)
	}
}

// Detect runs one detection cycle from a fresh single-shot fix. It always
// returns a result; the error, when set, is the condition to surface to the
// user (permission, location or directory failure).
func (s *DetectionService) Detect(ctx context.Context) (*domain.DetectionResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanDetectionCycle,
		trace.WithAttributes(attribute.String(telemetry.AttrDeviceID, s.deviceID)))
	defer span.End()
	start := s.now()

	if err := s.ensurePermission(ctx); err != nil {
		return s.finish(ctx, span, start, s.permissionFailed(err), err)
	}

	s.transition(domain.StateDetecting)

	var (
		fix     domain.PositionFix
		network *domain.NetworkInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := s.position(gctx)
		fix = f
		return err
	})
	g.Go(func() error {
		network = s.wifi.GetCurrentNetwork(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrPermissionBlocked) {
			return s.finish(ctx, span, start, s.permissionFailed(err), err)
		}
		res, err := s.locationFailed(err)
		return s.finish(ctx, span, start, res, err)
	}

	res, err := s.evaluate(ctx, fix, network)
	return s.finish(ctx, span, start, res, err)
}

// DetectAt runs a detection cycle for a known fix, skipping the permission
// and position steps.
func (s *DetectionService) DetectAt(ctx context.Context, fix domain.PositionFix) (*domain.DetectionResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanDetectionCycle,
		trace.WithAttributes(attribute.String(telemetry.AttrDeviceID, s.deviceID)))
	defer span.End()
	start := s.now()

	if err := fix.Point.Validate(); err != nil {
		return s.finish(ctx, span, start, s.noStore(nil, false), err)
	}
	s.transition(domain.StateDetecting)
	network := s.wifi.GetCurrentNetwork(ctx)
	res, err := s.evaluate(ctx, fix, network)
	return s.finish(ctx, span, start, res, err)
}

func (s *DetectionService) ensurePermission(ctx context.Context) error {
	status, err := s.location.CheckPermission(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err)
	}
	if status.Granted {
		return nil
	}

	s.transition(domain.StateRequestingPermissions)
	status, err = s.location.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err)
	}
	switch status.State() {
	case domain.PermissionGranted:
		return nil
	case domain.PermissionBlocked:
		return domain.ErrPermissionBlocked
	default:
		return domain.ErrPermissionDenied
	}
}

// position fetches a fix, retrying a timeout or unavailable failure once with
// the longer retry timeout. While a watch is running its latest fix is used
// if it is no older than one watch interval.
func (s *DetectionService) position(ctx context.Context) (domain.PositionFix, error) {
	if fix, ok := s.watchedFix(); ok {
		return fix, nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanPositionFetch)
	defer span.End()

	fix, err := s.location.GetCurrentPosition(ctx, s.cfg.GPSTimeout)
	if err == nil {
		return fix, nil
	}
	if !errors.Is(err, domain.ErrLocationTimeout) && !errors.Is(err, domain.ErrLocationUnavailable) {
		return fix, err
	}

	s.logger.Info("retrying position fetch", "error", err, "timeout", s.cfg.GPSRetryTimeout)
	fix, err = s.location.GetCurrentPosition(ctx, s.cfg.GPSRetryTimeout)
	if err == nil {
		metrics.LocationRetries.WithLabelValues("recovered").Inc()
		return fix, nil
	}
	metrics.LocationRetries.WithLabelValues("failed").Inc()
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, domain.ErrLocationTimeout) || errors.Is(err, domain.ErrLocationUnavailable) {
		return fix, fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err)
	}
	return fix, err
}

func (s *DetectionService) watchedFix() (domain.PositionFix, bool) {
	if !s.Continuous() {
		return domain.PositionFix{}, false
	}
	fix, ok := s.location.LastKnown()
	if !ok || s.now().Sub(fix.Time) > s.cfg.Watch.Interval {
		return domain.PositionFix{}, false
	}
	return fix, true
}

func (s *DetectionService) permissionFailed(err error) *domain.DetectionResult {
	s.logger.Info("location permission not granted, switching to manual mode", "error", err)
	s.transition(domain.StateManualMode)
	return &domain.DetectionResult{
		Method:       domain.MethodManual,
		NearbyStores: []domain.Store{},
		DetectedAt:   s.now(),
	}
}

// locationFailed falls back to the last result, marked degraded.
func (s *DetectionService) locationFailed(err error) (*domain.DetectionResult, error) {
	s.logger.Warn("position unavailable", "error", err)
	if !errors.Is(err, domain.ErrLocationUnavailable) && !errors.Is(err, domain.ErrPermissionDenied) &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, err)
	}

	s.mu.Lock()
	prev := copyResult(s.last)
	s.mu.Unlock()
	if prev == nil {
		return s.noStore(nil, false), err
	}
	prev.Degraded = true
	s.transition(stateFor(prev))
	return prev, err
}

func stateFor(r *domain.DetectionResult) domain.DetectionState {
	switch {
	case r.Store == nil && r.Method == domain.MethodManual:
		return domain.StateManualMode
	case r.Store == nil:
		return domain.StateNoStore
	case r.RequiresConfirmation:
		return domain.StatePendingConfirm
	default:
		return domain.StateConfirmed
	}
}

func (s *DetectionService) noStore(position *domain.GeoPoint, degraded bool) *domain.DetectionResult {
	s.transition(domain.StateNoStore)
	return &domain.DetectionResult{
		Method:       domain.MethodGPS,
		NearbyStores: []domain.Store{},
		Degraded:     degraded,
		Position:     position,
		DetectedAt:   s.now(),
	}
}

func (s *DetectionService) evaluate(ctx context.Context, fix domain.PositionFix, network *domain.NetworkInfo) (*domain.DetectionResult, error) {
	p := fix.Point
	stores, degraded, err := s.candidates(ctx, p)
	if err != nil {
		return s.noStore(&p, false), err
	}

	candidates := make([]Candidate, 0, len(stores))
	for _, store := range stores {
		if !store.Active {
			continue
		}
		candidates = append(candidates, s.score(p, store, network))
	}

	best, nearby := SelectBest(candidates, s.cfg.ConfidenceFloor)
	if best == nil {
		res := s.noStore(&p, degraded)
		res.NearbyStores = nearby
		return res, nil
	}

	s.transition(domain.StateDetected)
	store := withDistance(best.Store, best.Distance)
	res := &domain.DetectionResult{
		Store:        &store,
		Confidence:   best.Confidence,
		Method:       best.Method,
		NearbyStores: nearby,
		Degraded:     degraded,
		Position:     &p,
		DetectedAt:   s.now(),
	}

	confirmed, err := s.preferences.IsConfirmed(ctx, s.deviceID, store.ID)
	if err != nil {
		s.logger.Warn("could not read confirmation state", "store_id", store.ID, "error", err)
	}
	res.RequiresConfirmation = !confirmed
	if res.RequiresConfirmation {
		s.transition(domain.StatePendingConfirm)
		return res, nil
	}

	if res.Confidence >= s.cfg.ConfirmationSkipThreshold {
		if err := s.preferences.AddRecent(ctx, s.deviceID, store.ID); err != nil {
			s.logger.Warn("could not record recent store", "store_id", store.ID, "error", err)
		}
	}
	s.transition(domain.StateConfirmed)
	return res, nil
}

// candidates queries the directory, falling back to the cached set from the
// last successful query when the directory cannot be reached.
func (s *DetectionService) candidates(ctx context.Context, p domain.GeoPoint) ([]domain.Store, bool, error) {
	dctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanDirectoryQuery)
	dctx, cancel := context.WithTimeout(dctx, s.cfg.DirectoryTimeout)
	defer cancel()
	defer span.End()

	stores, err := s.stores.FindNearby(dctx, p, s.cfg.SearchRadiusMeters)
	if err == nil {
		s.cache.Store(p, stores)
		span.SetAttributes(attribute.Int(telemetry.AttrCandidates, len(stores)))
		return stores, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	span.SetStatus(codes.Error, err.Error())
	s.logger.Warn("store directory query failed", "error", err)

	if cached, ok := s.cache.Lookup(p, s.cfg.SearchRadiusMeters); ok {
		metrics.DirectoryFallbacks.WithLabelValues("cached").Inc()
		s.logger.Info("using cached candidates", "stored_at", cached.StoredAt, "count", len(cached.Stores))
		return cached.Stores, true, nil
	}
	metrics.DirectoryFallbacks.WithLabelValues("none").Inc()
	return nil, false, fmt.Errorf("%w: %v", domain.ErrNoStoreFound, err)
}

func (s *DetectionService) score(p domain.GeoPoint, store domain.Store, network *domain.NetworkInfo) Candidate {
	c := Candidate{Store: store, Distance: geofence.HaversineDistance(p, store.Location)}

	if store.Geofence != nil {
		fence, err := s.engine.Compile(store.Geofence)
		if err != nil {
			metrics.GeofenceRejections.Inc()
			s.logger.Warn("ignoring invalid geofence", "store_id", store.ID, "error", err)
		} else {
			c.HasGeofence = true
			c.InsideGeofence = fence.Contains(p)
		}
	}

	if known, ok := MatchNetwork(network, store.WiFiNetworks); ok {
		c.WiFiMatch = true
		c.WiFiSignalDBM = network.SignalStrengthDBM
		if c.WiFiSignalDBM == nil {
			c.WiFiSignalDBM = known.SignalStrengthDBM
		}
	}

	ScoreCandidate(&c)
	return c
}

func (s *DetectionService) finish(ctx context.Context, span trace.Span, start time.Time,
	res *domain.DetectionResult, err error) (*domain.DetectionResult, error) {
	// A cancelled cycle is neither recorded nor published.
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		if err == nil {
			err = ctx.Err()
		}
		return res, err
	}

	s.mu.Lock()
	s.last = copyResult(res)
	s.mu.Unlock()

	outcome := "detected"
	switch {
	case res.Method == domain.MethodManual:
		outcome = "manual"
	case res.Store == nil && err != nil:
		outcome = "error"
	case res.Store == nil:
		outcome = "no_store"
	case res.Degraded:
		outcome = "degraded"
	}
	metrics.DetectionCycles.WithLabelValues(outcome, string(res.Method)).Inc()
	metrics.DetectionDuration.Observe(s.now().Sub(start).Seconds())
	if res.Store != nil {
		metrics.DetectionConfidence.Observe(float64(res.Confidence))
	}

	span.SetAttributes(
		attribute.String(telemetry.AttrStoreID, res.StoreID()),
		attribute.Int(telemetry.AttrConfidence, res.Confidence),
		attribute.String(telemetry.AttrMethod, string(res.Method)),
		attribute.Bool(telemetry.AttrDegraded, res.Degraded),
	)
	if err != nil {
		span.RecordError(err)
	}

	s.logger.Info("detection cycle",
		"store_id", res.StoreID(),
		"confidence", res.Confidence,
		"method", res.Method,
		"requires_confirmation", res.RequiresConfirmation,
		"degraded", res.Degraded,
		"nearby", len(res.NearbyStores),
		"error", err,
	)

	if s.events != nil {
		if perr := s.events.PublishDetection(ctx, s.deviceID, res); perr != nil {
			s.logger.Warn("publish detection failed", "error", perr)
		}
	}
	return copyResult(res), err
}

// Confirm accepts the pending detection.
func (s *DetectionService) Confirm(ctx context.Context) (*domain.DetectionResult, error) {
	s.mu.Lock()
	res := copyResult(s.last)
	state := s.state
	s.mu.Unlock()

	if res == nil || res.Store == nil ||
		(state != domain.StatePendingConfirm && state != domain.StateDetected && state != domain.StateConfirmed) {
		return nil, domain.ErrNoDetection
	}

	if err := s.preferences.Confirm(ctx, s.deviceID, res.Store.ID); err != nil {
		return nil, err
	}
	res.RequiresConfirmation = false

	s.mu.Lock()
	s.last = copyResult(res)
	s.mu.Unlock()
	s.transition(domain.StateConfirmed)

	s.logger.Info("store confirmed", "store_id", res.Store.ID, "confidence", res.Confidence)
	s.publishConfirmation(ctx, res.Store, res.Method)
	return res, nil
}

// ChangeStore discards the detected store and enters manual mode. The
// discarded store stays available as the first alternative.
func (s *DetectionService) ChangeStore() *domain.DetectionResult {
	s.mu.Lock()
	prev := s.last
	res := &domain.DetectionResult{
		Method:       domain.MethodManual,
		NearbyStores: []domain.Store{},
		DetectedAt:   s.now(),
	}
	if prev != nil {
		if prev.Store != nil {
			res.NearbyStores = append(res.NearbyStores, *prev.Store)
		}
		res.NearbyStores = append(res.NearbyStores, prev.NearbyStores...)
		res.Position = prev.Position
	}
	s.last = copyResult(res)
	s.mu.Unlock()

	s.transition(domain.StateManualMode)
	return res
}

// SelectStore records a manual choice, treated like a confirmed detection.
func (s *DetectionService) SelectStore(ctx context.Context, storeID string) (*domain.DetectionResult, error) {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DirectoryTimeout)
	store, err := s.stores.GetByID(dctx, storeID)
	cancel()
	if err != nil {
		return nil, err
	}

	if err := s.preferences.Confirm(ctx, s.deviceID, store.ID); err != nil {
		return nil, err
	}

	res := &domain.DetectionResult{
		Store:        store,
		Confidence:   100,
		Method:       domain.MethodManual,
		NearbyStores: []domain.Store{},
		DetectedAt:   s.now(),
	}
	s.mu.Lock()
	s.last = copyResult(res)
	s.mu.Unlock()
	s.transition(domain.StateConfirmed)

	metrics.DetectionCycles.WithLabelValues("manual_select", string(domain.MethodManual)).Inc()
	s.logger.Info("store selected manually", "store_id", store.ID)
	s.publishConfirmation(ctx, store, domain.MethodManual)
	return copyResult(res), nil
}

func (s *DetectionService) publishConfirmation(ctx context.Context, store *domain.Store, method domain.DetectionMethod) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishConfirmation(ctx, s.deviceID, store, method); err != nil {
		s.logger.Warn("publish confirmation failed", "error", err)
	}
}

// StartContinuous watches the position and runs a cycle for every update
// that passes the distance filter. The watch lives until StopContinuous or
// until ctx is done. Starting twice is a no-op.
func (s *DetectionService) StartContinuous(ctx context.Context) error {
	if s.Continuous() {
		return nil
	}
	if err := s.ensurePermission(ctx); err != nil {
		res := s.permissionFailed(err)
		s.mu.Lock()
		s.last = res
		s.mu.Unlock()
		return err
	}

	wctx, cancel := context.WithCancel(ctx)
	onUpdate := func(fix domain.PositionFix) {
		if _, err := s.DetectAt(wctx, fix); err != nil && wctx.Err() == nil {
			s.logger.Debug("continuous detection cycle failed", "error", err)
		}
	}
	onError := func(err error) {
		if wctx.Err() != nil {
			return
		}
		s.logger.Warn("position watch error", "error", err)
		if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrPermissionBlocked) {
			s.StopContinuous()
			s.transition(domain.StateManualMode)
		}
	}

	w, err := s.location.WatchPosition(wctx, onUpdate, onError, s.cfg.Watch)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	if s.watch != nil && !s.watch.Stopped() {
		s.mu.Unlock()
		w.Stop()
		cancel()
		return nil
	}
	s.watch = w
	s.stopWatch = cancel
	s.lastActivity = s.now()
	s.mu.Unlock()

	s.logger.Info("continuous detection started", "watch_id", w.ID())
	return nil
}

// StopContinuous stops the watch and cancels any in-flight cycle. Results of
// a cancelled cycle are discarded. Safe to call when not running.
func (s *DetectionService) StopContinuous() {
	s.mu.Lock()
	w, cancel := s.watch, s.stopWatch
	s.watch, s.stopWatch = nil, nil
	s.mu.Unlock()

	if w == nil {
		return
	}
	s.location.ClearWatch(w)
	cancel()
	s.logger.Info("continuous detection stopped", "watch_id", w.ID())
}

// Close stops the watch and drops the cached candidates.
func (s *DetectionService) Close() {
	s.StopContinuous()
	s.cache.Clear()
}

func copyResult(r *domain.DetectionResult) *domain.DetectionResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Store != nil {
		st := *r.Store
		c.Store = &st
	}
	c.NearbyStores = append([]domain.Store{}, r.NearbyStores...)
	if r.Position != nil {
		p := *r.Position
		c.Position = &p
	}
	return &c
}
