// Package storeimport reads store lists (for example state WIC vendor
// lists) in CSV form.
package storeimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

// Columns understood by ParseCSV. Only id, name, lat and lng are required.
const (
	ColID             = "id"
	ColName           = "name"
	ColAddress        = "address"
	ColChain          = "chain"
	ColLat            = "lat"
	ColLng            = "lng"
	ColGeofenceRadius = "geofence_radius"
	ColWiFiSSIDs      = "wifi_ssids"
	ColWICAuthorized  = "wic_authorized"
	ColActive         = "active"
)

// Rejected describes a row that was skipped.
type Rejected struct {
	Line   int
	Reason string
}

// Result is the outcome of parsing one list.
type Result struct {
	Stores   []domain.Store
	Rejected []Rejected
}

// ParseCSV parses a header-prefixed store list. Rows with a missing id or
// name, or an invalid location, are skipped and reported. idPrefix is
// prepended to every id so lists from different sources cannot collide.
func ParseCSV(r io.Reader, idPrefix, defaultChain string) (*Result, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)
	for _, required := range []string{ColID, ColName, ColLat, ColLng} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	res := &Result{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			res.Rejected = append(res.Rejected, Rejected{Line: line, Reason: err.Error()})
			continue
		}

		store, reason := parseRow(record, cols, idPrefix, defaultChain)
		if reason != "" {
			res.Rejected = append(res.Rejected, Rejected{Line: line, Reason: reason})
			continue
		}
		res.Stores = append(res.Stores, store)
	}
	return res, nil
}

func parseRow(record []string, cols map[string]int, idPrefix, defaultChain string) (domain.Store, string) {
	id := getField(record, cols, ColID)
	name := getField(record, cols, ColName)
	if id == "" || name == "" {
		return domain.Store{}, "missing id or name"
	}

	lat, errLat := strconv.ParseFloat(getField(record, cols, ColLat), 64)
	lng, errLng := strconv.ParseFloat(getField(record, cols, ColLng), 64)
	if errLat != nil || errLng != nil {
		return domain.Store{}, "unparseable coordinates"
	}
	location := domain.GeoPoint{Lat: lat, Lng: lng}
	if err := location.Validate(); err != nil {
		return domain.Store{}, err.Error()
	}

	chain := getField(record, cols, ColChain)
	if chain == "" {
		chain = defaultChain
	}

	store := domain.Store{
		ID:            idPrefix + id,
		Name:          name,
		Address:       getField(record, cols, ColAddress),
		Chain:         chain,
		Location:      location,
		WICAuthorized: parseBool(getField(record, cols, ColWICAuthorized), true),
		Active:        parseBool(getField(record, cols, ColActive), true),
	}

	if raw := getField(record, cols, ColGeofenceRadius); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(radius > 0) || math.IsInf(radius, 1) {
			return domain.Store{}, "invalid geofence radius"
		}
		store.Geofence = domain.NewCircleGeofence(location, radius)
	}

	for _, ssid := range strings.Split(getField(record, cols, ColWiFiSSIDs), ";") {
		if ssid = strings.TrimSpace(ssid); ssid != "" {
			store.WiFiNetworks = append(store.WiFiNetworks, domain.WiFiNetwork{SSID: ssid})
		}
	}
	return store, ""
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(s) {
	case "1", "y", "yes", "true":
		return true
	case "0", "n", "no", "false":
		return false
	default:
		return def
	}
}

func indexColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		// Strip BOM from first column
		col = strings.TrimPrefix(col, "\xef\xbb\xbf")
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

func getField(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
