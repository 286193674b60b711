package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/storedetect/internal/pkg/metrics"
)

const (
	requestTimeout = 15 * time.Second
	// A detection cycle may wait for a first fix and retry once.
	detectTimeout = 50 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, 429, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	// Store directory
	v1.Get("/stores/nearby", timeout.NewWithContext(NearbyStoresHandler(deps), requestTimeout))
	v1.Get("/stores/search", timeout.NewWithContext(SearchStoresHandler(deps), requestTimeout))
	v1.Get("/stores/:id", timeout.NewWithContext(GetStoreHandler(deps), requestTimeout))

	// Device detection sessions
	dev := v1.Group("/devices/:id")
	dev.Post("/reports", DeviceReportHandler(deps))
	dev.Post("/detect", timeout.NewWithContext(DetectHandler(deps), detectTimeout))
	dev.Get("/detection", GetDetectionHandler(deps))
	dev.Post("/confirm", timeout.NewWithContext(ConfirmHandler(deps), requestTimeout))
	dev.Post("/manual", ManualHandler(deps))
	dev.Post("/select", timeout.NewWithContext(SelectHandler(deps), requestTimeout))
	dev.Post("/continuous", timeout.NewWithContext(StartContinuousHandler(deps), requestTimeout))
	dev.Delete("/continuous", StopContinuousHandler(deps))

	// Device preferences
	dev.Get("/preferences", timeout.NewWithContext(GetPreferencesHandler(deps), requestTimeout))
	dev.Delete("/preferences", timeout.NewWithContext(ResetPreferencesHandler(deps), requestTimeout))
	dev.Post("/favorites/:storeId", timeout.NewWithContext(ToggleFavoriteHandler(deps), requestTimeout))
	dev.Put("/default", timeout.NewWithContext(SetDefaultHandler(deps), requestTimeout))
	dev.Delete("/default", timeout.NewWithContext(ClearDefaultHandler(deps), requestTimeout))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
