package usecases

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/ports"
)

// WiFiService reports the currently associated network as a detection hint.
type WiFiService struct {
	scanner ports.WiFiScanner
}

// NewWiFiService creates a new WiFiService. A nil scanner means WiFi hints
// are unsupported on this platform.
func NewWiFiService(scanner ports.WiFiScanner) *WiFiService {
	return &WiFiService{scanner: scanner}
}

// GetCurrentNetwork returns nil when WiFi is unsupported, not permitted or
// not associated. Other scanner failures are logged and also yield nil.
func (s *WiFiService) GetCurrentNetwork(ctx context.Context) *domain.NetworkInfo {
	if s == nil || s.scanner == nil {
		return nil
	}
	info, err := s.scanner.CurrentNetwork(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrUnsupported) && !errors.Is(err, domain.ErrPermissionDenied) {
			slog.Debug("wifi scan failed", "error", err)
		}
		return nil
	}
	if info == nil || (info.SSID == "" && info.BSSID == "") {
		return nil
	}
	return info
}

// MatchNetwork finds the known store network the device is associated with.
// BSSIDs are compared when both sides carry one; otherwise the SSID decides.
func MatchNetwork(info *domain.NetworkInfo, known []domain.WiFiNetwork) (domain.WiFiNetwork, bool) {
	if info == nil {
		return domain.WiFiNetwork{}, false
	}
	bssid := domain.NormalizeBSSID(info.BSSID)
	for _, n := range known {
		if bssid != "" && n.BSSID != "" {
			if domain.NormalizeBSSID(n.BSSID) == bssid {
				return n, true
			}
			continue
		}
		if info.SSID != "" && n.SSID == info.SSID {
			return n, true
		}
	}
	return domain.WiFiNetwork{}, false
}
