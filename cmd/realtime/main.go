package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samirrijal/storedetect/internal/adapters/devicefeed"
	natsadapter "github.com/samirrijal/storedetect/internal/adapters/nats"
	"github.com/samirrijal/storedetect/internal/app"
	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/pkg/config"
	"github.com/samirrijal/storedetect/internal/pkg/logging"
	"github.com/samirrijal/storedetect/internal/pkg/telemetry"
)

// The realtime worker consumes device reports from storedetect.position.<device>
// and keeps a continuous detection running for every reporting device.
// Results are published back on storedetect.detection.<device>.
func main() {
	cfg, err := config.Load("storedetect-realtime")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, slog.String("service", cfg.Telemetry.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	rt, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer rt.Close()
	if rt.Publisher == nil {
		log.Fatal("nats: the realtime worker needs JetStream")
	}

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer sub.Close()

	if err := sub.SubscribePositionReports(ctx, reportHandler(rt)); err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	slog.Info("realtime worker started", "subject", natsadapter.SubjectPosition+">")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig.String(), "sessions", rt.Sessions.Len())
	cancel()
}

// reportHandler feeds a report into the device's platform adapter and makes
// sure the device is under continuous detection.
func reportHandler(rt *app.Runtime) natsadapter.ReportHandler {
	return func(ctx context.Context, deviceID string, report devicefeed.Report) error {
		// The session owns the feed, so it must exist before the report lands.
		session := rt.Sessions.Get(deviceID)
		if err := rt.Feeds.Apply(deviceID, report); err != nil {
			if errors.Is(err, domain.ErrInvalidCoordinates) {
				slog.Warn("dropping report with invalid position", "device_id", deviceID, "error", err)
				return nil
			}
			return err
		}

		if session.Continuous() {
			return nil
		}
		if err := session.StartContinuous(ctx); err != nil {
			if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrPermissionBlocked) {
				slog.Info("continuous detection not started", "device_id", deviceID, "error", err)
				return nil
			}
			return err
		}
		return nil
	}
}
