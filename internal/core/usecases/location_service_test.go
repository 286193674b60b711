package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/ports"
	"github.com/samirrijal/storedetect/internal/core/usecases"
)

func TestLocationService_PermissionStates(t *testing.T) {
	platform := &mockPlatform{status: domain.PermissionStatus{CanAskAgain: true}}
	svc := usecases.NewLocationService(platform, 0)

	if svc.PermissionState() != domain.PermissionUnknown {
		t.Fatalf("expected UNKNOWN before first check, got %s", svc.PermissionState())
	}
	if _, err := svc.CheckPermission(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.PermissionState() != domain.PermissionDenied {
		t.Errorf("expected DENIED, got %s", svc.PermissionState())
	}

	platform.requestResult = &domain.PermissionStatus{Granted: true, CanAskAgain: true}
	status, err := svc.RequestPermission(context.Background())
	if err != nil || !status.Granted {
		t.Fatalf("expected granted, got %+v err=%v", status, err)
	}
	if svc.PermissionState() != domain.PermissionGranted {
		t.Errorf("expected GRANTED, got %s", svc.PermissionState())
	}
}

func TestLocationService_RequestPermission_IdempotentWhenGranted(t *testing.T) {
	platform := grantedPlatform(annArbor)
	svc := usecases.NewLocationService(platform, 0)

	for i := 0; i < 3; i++ {
		if _, err := svc.RequestPermission(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if req, _ := platform.calls(); req != 0 {
		t.Errorf("expected no platform prompt when already granted, got %d", req)
	}
}

func TestLocationService_RequestPermission_BlockedDoesNotPrompt(t *testing.T) {
	platform := &mockPlatform{status: domain.PermissionStatus{Blocked: true}}
	svc := usecases.NewLocationService(platform, 0)

	status, err := svc.RequestPermission(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State() != domain.PermissionBlocked {
		t.Errorf("expected BLOCKED, got %s", status.State())
	}
	if req, _ := platform.calls(); req != 0 {
		t.Errorf("expected no prompt when blocked, got %d", req)
	}
}

func TestLocationService_GetCurrentPosition_Timeout(t *testing.T) {
	platform := &mockPlatform{
		positionFn: func(ctx context.Context, call int) (domain.PositionFix, error) {
			<-ctx.Done()
			return domain.PositionFix{}, ctx.Err()
		},
	}
	svc := usecases.NewLocationService(platform, 0)

	_, err := svc.GetCurrentPosition(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, domain.ErrLocationTimeout) {
		t.Fatalf("expected ErrLocationTimeout, got %v", err)
	}
}

func TestLocationService_GetCurrentPosition_ErrorMapping(t *testing.T) {
	platform := &mockPlatform{
		positionFn: func(ctx context.Context, call int) (domain.PositionFix, error) {
			if call == 1 {
				return domain.PositionFix{}, errors.New("gps hardware fault")
			}
			return domain.PositionFix{}, domain.ErrPermissionDenied
		},
	}
	svc := usecases.NewLocationService(platform, time.Second)

	if _, err := svc.GetCurrentPosition(context.Background(), 0); !errors.Is(err, domain.ErrLocationUnavailable) {
		t.Errorf("expected ErrLocationUnavailable, got %v", err)
	}
	if _, err := svc.GetCurrentPosition(context.Background(), 0); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestLocationService_GetCurrentPosition_RemembersFix(t *testing.T) {
	svc := usecases.NewLocationService(grantedPlatform(annArbor), 0)

	if _, ok := svc.LastKnown(); ok {
		t.Fatal("expected no last known fix")
	}
	fix, err := svc.GetCurrentPosition(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last, ok := svc.LastKnown()
	if !ok || last.Point != fix.Point {
		t.Errorf("expected last known %v, got %v", fix.Point, last.Point)
	}
}

func TestLocationService_WatchPosition_DistanceFilter(t *testing.T) {
	platform := grantedPlatform(annArbor)
	svc := usecases.NewLocationService(platform, 0)

	delivered := make(chan domain.PositionFix, 8)
	w, err := svc.WatchPosition(context.Background(), func(fix domain.PositionFix) {
		delivered <- fix
	}, nil, usecases.WatchOptions{Interval: time.Millisecond, DistanceFilterMeters: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer svc.ClearWatch(w)

	platform.updates <- ports.PositionUpdate{Fix: domain.PositionFix{Point: annArbor}}
	platform.updates <- ports.PositionUpdate{Fix: domain.PositionFix{Point: offset(annArbor, 10, 0)}}
	platform.updates <- ports.PositionUpdate{Fix: domain.PositionFix{Point: offset(annArbor, 120, 0)}}

	var got []domain.PositionFix
	for len(got) < 2 {
		select {
		case fix := <-delivered:
			got = append(got, fix)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %d updates", len(got))
		}
	}
	if got[0].Point != annArbor {
		t.Errorf("expected first fix delivered, got %v", got[0].Point)
	}
	if got[1].Point != offset(annArbor, 120, 0) {
		t.Errorf("expected the 10m move suppressed, got %v", got[1].Point)
	}
}

func TestLocationService_ClearWatch_NoCallbacksAfterStop(t *testing.T) {
	platform := grantedPlatform(annArbor)
	svc := usecases.NewLocationService(platform, 0)

	delivered := make(chan domain.PositionFix, 8)
	w, err := svc.WatchPosition(context.Background(), func(fix domain.PositionFix) {
		delivered <- fix
	}, nil, usecases.WatchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.ID() == "" {
		t.Error("expected a watch id")
	}

	platform.updates <- ports.PositionUpdate{Fix: domain.PositionFix{Point: annArbor}}
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first update")
	}

	svc.ClearWatch(w)
	svc.ClearWatch(w)
	svc.ClearWatch(nil)

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch goroutine did not exit")
	}

	platform.updates <- ports.PositionUpdate{Fix: domain.PositionFix{Point: offset(annArbor, 500, 0)}}
	select {
	case fix := <-delivered:
		t.Fatalf("unexpected callback after ClearWatch: %v", fix)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocationService_WatchPosition_Errors(t *testing.T) {
	platform := grantedPlatform(annArbor)
	svc := usecases.NewLocationService(platform, 0)

	errs := make(chan error, 1)
	w, err := svc.WatchPosition(context.Background(), func(domain.PositionFix) {}, func(err error) {
		errs <- err
	}, usecases.DefaultWatchOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer svc.ClearWatch(w)

	platform.updates <- ports.PositionUpdate{Err: errors.New("signal lost")}
	select {
	case err := <-errs:
		if !errors.Is(err, domain.ErrLocationUnavailable) {
			t.Errorf("expected ErrLocationUnavailable, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
}
