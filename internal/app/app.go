// Package app wires the adapters and use cases shared by the API and the
// realtime worker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/storedetect/internal/adapters/devicefeed"
	"github.com/samirrijal/storedetect/internal/adapters/memory"
	natsadapter "github.com/samirrijal/storedetect/internal/adapters/nats"
	"github.com/samirrijal/storedetect/internal/adapters/postgres"
	"github.com/samirrijal/storedetect/internal/adapters/sqlite"
	"github.com/samirrijal/storedetect/internal/adapters/valkey"
	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/ports"
	"github.com/samirrijal/storedetect/internal/core/usecases"
	"github.com/samirrijal/storedetect/internal/pkg/config"
)

// sessionSweepInterval is how often idle detection sessions are evicted.
const sessionSweepInterval = time.Minute

// Runtime holds the long-lived components of a process.
type Runtime struct {
	DB          *postgres.DB
	Cache       *valkey.Cache
	Publisher   *natsadapter.Publisher
	Stores      *usecases.StoreService
	Preferences *usecases.PreferenceService
	Feeds       *devicefeed.Registry
	Sessions    *usecases.SessionRegistry
	Checks      map[string]func(ctx context.Context) error

	closers []func()
}

// Build connects the configured backends and starts the session sweeper.
// The sweeper stops when ctx is cancelled. Optional backends (cache, broker)
// that cannot be reached are logged and skipped.
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{
		Feeds:  devicefeed.NewRegistry(),
		Checks: map[string]func(ctx context.Context) error{},
	}

	if cfg.Valkey.Addr != "" {
		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			rt.Cache = cache
			rt.closers = append(rt.closers, cache.Close)
		}
	}

	directory, err := rt.directory(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	var cache ports.CacheService
	if rt.Cache != nil {
		cache = rt.Cache
	}
	rt.Stores = usecases.NewStoreService(directory, cache, cfg.Directory.CacheTTL)

	prefs, err := rt.preferenceRepo(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Preferences = usecases.NewPreferenceService(prefs)

	var events ports.EventPublisher
	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, detection events disabled", "error", err)
		} else {
			rt.Publisher = pub
			events = pub
			rt.closers = append(rt.closers, pub.Close)
		}
	}

	detectionCfg := DetectionConfig(cfg.Detection)
	rt.Sessions = usecases.NewSessionRegistry(func(deviceID string) *usecases.DetectionService {
		feed := rt.Feeds.Feed(deviceID)
		return usecases.NewDetectionService(deviceID, usecases.DetectionDeps{
			Location:    usecases.NewLocationService(feed, detectionCfg.GPSTimeout),
			WiFi:        usecases.NewWiFiService(feed),
			Stores:      rt.Stores,
			Preferences: rt.Preferences,
			Events:      events,
		}, detectionCfg)
	}, cfg.Detection.MaxSessions, cfg.Detection.SessionIdleTTL, rt.Feeds.Remove)

	go rt.Sessions.Run(ctx, sessionSweepInterval)

	return rt, nil
}

func (rt *Runtime) directory(ctx context.Context, cfg *config.Config) (ports.StoreDirectory, error) {
	switch cfg.Directory.Backend {
	case "memory":
		var stores []domain.Store
		if cfg.Directory.SeedFile != "" {
			loaded, err := memory.LoadStores(cfg.Directory.SeedFile)
			if err != nil {
				return nil, fmt.Errorf("load store seed: %w", err)
			}
			stores = loaded
		} else {
			slog.Warn("memory store directory has no seed file, directory is empty")
		}
		slog.Info("using in-memory store directory", "stores", len(stores))
		return memory.NewStoreDirectory(stores), nil
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		rt.DB = db
		rt.closers = append(rt.closers, db.Close)
		return postgres.NewStoreRepo(db), nil
	}
}

func (rt *Runtime) preferenceRepo(cfg *config.Config) (ports.PreferenceRepository, error) {
	switch cfg.Preferences.Backend {
	case "valkey":
		if rt.Cache == nil {
			return nil, fmt.Errorf("valkey preference backend requires a reachable valkey at %s", cfg.Valkey.Addr)
		}
		return valkey.NewPreferenceRepo(rt.Cache), nil
	case "sqlite":
		repo, err := sqlite.Open(cfg.Preferences.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite preferences: %w", err)
		}
		rt.Checks["sqlite"] = repo.Ping
		rt.closers = append(rt.closers, func() {
			if err := repo.Close(); err != nil {
				slog.Warn("close sqlite preferences", "error", err)
			}
		})
		return repo, nil
	default:
		slog.Warn("confirmation state is kept in memory and lost on restart")
		return memory.NewPreferenceRepo(), nil
	}
}

// Close stops every session and releases backends in reverse order.
func (rt *Runtime) Close() {
	if rt.Sessions != nil {
		rt.Sessions.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// DetectionConfig maps configuration onto orchestrator settings.
func DetectionConfig(d config.DetectionConfig) usecases.DetectionConfig {
	return usecases.DetectionConfig{
		SearchRadiusMeters:        d.SearchRadiusMeters,
		ConfidenceFloor:           d.ConfidenceFloor,
		ConfirmationSkipThreshold: d.ConfirmationSkipThreshold,
		GPSTimeout:                d.GPSTimeout,
		GPSRetryTimeout:           d.GPSRetryTimeout,
		DirectoryTimeout:          d.DirectoryTimeout,
		CacheStaleness:            d.CacheStaleness,
		Watch: usecases.WatchOptions{
			Interval:             d.WatchInterval,
			DistanceFilterMeters: d.DistanceFilterMeters,
		},
	}
}
