package domain

import (
	"strings"
	"time"
)

// Store represents one physical retail location.
type Store struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Address       string        `json:"address,omitempty"`
	Chain         string        `json:"chain,omitempty"`
	Location      GeoPoint      `json:"location"`
	Geofence      *Geofence     `json:"geofence,omitempty"`
	WiFiNetworks  []WiFiNetwork `json:"wifi_networks,omitempty"`
	WICAuthorized bool          `json:"wic_authorized"`
	Active        bool          `json:"active"`
	Distance      *float64      `json:"distance,omitempty"` // computed field
}

// WiFiNetwork is a network known to be broadcast inside a store.
type WiFiNetwork struct {
	SSID              string `json:"ssid"`
	BSSID             string `json:"bssid,omitempty"`
	SignalStrengthDBM *int   `json:"signal_strength_dbm,omitempty"`
}

// NetworkInfo is the WiFi network the device is currently associated with.
type NetworkInfo struct {
	SSID              string `json:"ssid"`
	BSSID             string `json:"bssid,omitempty"`
	SignalStrengthDBM *int   `json:"signal_strength_dbm,omitempty"`
}

// NormalizeBSSID lower-cases a MAC address and unifies separators.
func NormalizeBSSID(bssid string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(bssid)), "-", ":")
}

// DetectionMethod attributes a detection result to its strongest signal.
type DetectionMethod string

const (
	MethodGPS      DetectionMethod = "gps"
	MethodWiFi     DetectionMethod = "wifi"
	MethodGeofence DetectionMethod = "geofence"
	MethodManual   DetectionMethod = "manual"
)

// DetectionState is the state of a device's detection state machine.
type DetectionState string

const (
	StateInitial               DetectionState = "INITIAL"
	StateRequestingPermissions DetectionState = "REQUESTING_PERMISSIONS"
	StateDetecting             DetectionState = "DETECTING"
	StateDetected              DetectionState = "DETECTED"
	StateNoStore               DetectionState = "NO_STORE"
	StatePendingConfirm        DetectionState = "PENDING_CONFIRM"
	StateConfirmed             DetectionState = "CONFIRMED"
	StateManualMode            DetectionState = "MANUAL_MODE"
)

// DetectionResult is produced once per detection cycle. It is never persisted.
type DetectionResult struct {
	Store                *Store          `json:"store"`
	Confidence           int             `json:"confidence"`
	Method               DetectionMethod `json:"method"`
	NearbyStores         []Store         `json:"nearby_stores"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	// Degraded is set when the candidates came from the stale-candidate
	// cache because the store directory could not be reached.
	Degraded   bool      `json:"degraded"`
	Position   *GeoPoint `json:"position,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// StoreID returns the detected store id or "".
func (r *DetectionResult) StoreID() string {
	if r == nil || r.Store == nil {
		return ""
	}
	return r.Store.ID
}

// PermissionState is the platform location permission state.
type PermissionState string

const (
	PermissionUnknown    PermissionState = "UNKNOWN"
	PermissionRequesting PermissionState = "REQUESTING"
	PermissionGranted    PermissionState = "GRANTED"
	PermissionDenied     PermissionState = "DENIED"
	PermissionBlocked    PermissionState = "BLOCKED"
)

// PermissionStatus is what the platform reports about location permission.
// Blocked means the user must change it in system settings; a denied but
// not blocked permission may be requested again.
type PermissionStatus struct {
	Granted     bool `json:"granted"`
	CanAskAgain bool `json:"can_ask_again"`
	Blocked     bool `json:"blocked"`
}

// State maps the status onto the permission state machine.
func (p PermissionStatus) State() PermissionState {
	switch {
	case p.Granted:
		return PermissionGranted
	case p.Blocked || !p.CanAskAgain:
		return PermissionBlocked
	default:
		return PermissionDenied
	}
}

// PositionFix is a single position reading from the platform.
type PositionFix struct {
	Point          GeoPoint  `json:"point"`
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	Time           time.Time `json:"time"`
}
