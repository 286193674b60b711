package devicefeed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/storedetect/internal/adapters/devicefeed"
	"github.com/samirrijal/storedetect/internal/core/domain"
)

var annArbor = domain.GeoPoint{Lat: 42.2808, Lng: -83.7430}

func position(p domain.GeoPoint) devicefeed.Report {
	return devicefeed.Report{Position: &domain.PositionFix{Point: p}}
}

func TestFeed_PermissionFromReports(t *testing.T) {
	f := devicefeed.NewFeed()
	ctx := context.Background()

	st, _ := f.CheckPermission(ctx)
	if st.State() != domain.PermissionDenied {
		t.Fatalf("expected DENIED before any report, got %s", st.State())
	}

	_ = f.Apply(devicefeed.Report{Permission: &domain.PermissionStatus{Blocked: true}})
	st, _ = f.RequestPermission(ctx)
	if st.State() != domain.PermissionBlocked {
		t.Errorf("expected BLOCKED, got %s", st.State())
	}
	if _, err := f.CurrentPosition(ctx); !errors.Is(err, domain.ErrPermissionBlocked) {
		t.Errorf("expected ErrPermissionBlocked, got %v", err)
	}

	_ = f.Apply(position(annArbor))
	st, _ = f.CheckPermission(ctx)
	if !st.Granted {
		t.Error("a position report implies granted permission")
	}
}

func TestFeed_ApplyRejectsInvalidPosition(t *testing.T) {
	f := devicefeed.NewFeed()
	err := f.Apply(position(domain.GeoPoint{Lat: 100}))
	if !errors.Is(err, domain.ErrInvalidCoordinates) {
		t.Fatalf("expected ErrInvalidCoordinates, got %v", err)
	}
}

func TestFeed_CurrentPositionWaitsForFirstFix(t *testing.T) {
	f := devicefeed.NewFeed()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = f.Apply(position(annArbor))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fix, err := f.CurrentPosition(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.Point != annArbor || fix.Time.IsZero() {
		t.Errorf("unexpected fix %+v", fix)
	}
}

func TestFeed_CurrentPositionHonoursContext(t *testing.T) {
	f := devicefeed.NewFeed()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.CurrentPosition(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestFeed_StartUpdates(t *testing.T) {
	f := devicefeed.NewFeed()
	ctx, cancel := context.WithCancel(context.Background())

	updates, err := f.StartUpdates(ctx, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = f.Apply(position(annArbor))
	select {
	case u := <-updates:
		if u.Err != nil || u.Fix.Point != annArbor {
			t.Fatalf("unexpected update %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}

	next := domain.GeoPoint{Lat: 42.29, Lng: -83.74}
	_ = f.Apply(position(next))
	select {
	case u := <-updates:
		if u.Fix.Point != next {
			t.Fatalf("expected newest fix, got %+v", u.Fix.Point)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second update")
	}

	cancel()
	select {
	case _, ok := <-updates:
		for ok {
			_, ok = <-updates
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestFeed_CurrentNetwork(t *testing.T) {
	f := devicefeed.NewFeed()
	ctx := context.Background()

	if _, err := f.CurrentNetwork(ctx); !errors.Is(err, domain.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported before any wifi report, got %v", err)
	}

	_ = f.Apply(devicefeed.Report{WiFi: &devicefeed.WiFiReport{Supported: true}})
	n, err := f.CurrentNetwork(ctx)
	if err != nil || n != nil {
		t.Errorf("expected not associated, got %v err=%v", n, err)
	}

	_ = f.Apply(devicefeed.Report{WiFi: &devicefeed.WiFiReport{
		Supported: true,
		Network:   &domain.NetworkInfo{SSID: "Kroger-Guest"},
	}})
	n, err = f.CurrentNetwork(ctx)
	if err != nil || n == nil || n.SSID != "Kroger-Guest" {
		t.Errorf("expected Kroger-Guest, got %v err=%v", n, err)
	}
}

func TestRegistry(t *testing.T) {
	r := devicefeed.NewRegistry()
	if r.Feed("a") != r.Feed("a") {
		t.Error("expected the same feed per device")
	}
	if err := r.Apply("b", position(annArbor)); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 feeds, got %d", r.Len())
	}
	r.Remove("a")
	if r.Len() != 1 {
		t.Errorf("expected 1 feed, got %d", r.Len())
	}
}
