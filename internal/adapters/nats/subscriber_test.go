package natsadapter_test

import (
	"errors"
	"testing"

	natsadapter "github.com/samirrijal/storedetect/internal/adapters/nats"
	"github.com/samirrijal/storedetect/internal/core/domain"
)

func TestDeviceFromSubject(t *testing.T) {
	id, err := natsadapter.DeviceFromSubject(natsadapter.SubjectPosition + "dev-42")
	if err != nil || id != "dev-42" {
		t.Fatalf("expected dev-42, got %q err=%v", id, err)
	}
	if _, err := natsadapter.DeviceFromSubject("storedetect.position."); !errors.Is(err, domain.ErrInvalidDeviceID) {
		t.Errorf("expected ErrInvalidDeviceID, got %v", err)
	}
}
