package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/storedetect/internal/adapters/devicefeed"
	"github.com/samirrijal/storedetect/internal/adapters/postgres"
	"github.com/samirrijal/storedetect/internal/adapters/valkey"
	"github.com/samirrijal/storedetect/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Stores      *usecases.StoreService
	Preferences *usecases.PreferenceService
	Sessions    *usecases.SessionRegistry
	Feeds       *devicefeed.Registry
	NATS        *nats.Conn
	DB          *postgres.DB
	Cache       *valkey.Cache
	// Checks are extra readiness probes, e.g. the sqlite preference store.
	Checks map[string]func(ctx context.Context) error
	// BaseContext parents continuous detection watches started over HTTP.
	// It is cancelled on shutdown.
	BaseContext context.Context
}

func (d *Dependencies) background() context.Context {
	if d.BaseContext != nil {
		return d.BaseContext
	}
	return context.Background()
}
