package domain

import (
	"fmt"
	"math"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that both coordinates are finite and in range.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: non-finite coordinate (%v, %v)", ErrInvalidCoordinates, p.Lat, p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: lat %.6f out of range", ErrInvalidCoordinates, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: lng %.6f out of range", ErrInvalidCoordinates, p.Lng)
	}
	return nil
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// GeofenceType discriminates the Geofence variant.
type GeofenceType string

const (
	GeofenceCircle  GeofenceType = "circle"
	GeofencePolygon GeofenceType = "polygon"
)

// MinPolygonVertices is the smallest vertex count of a valid polygon.
const MinPolygonVertices = 3

// Circle is a circular store boundary.
type Circle struct {
	Center       GeoPoint `json:"center"`
	RadiusMeters float64  `json:"radius_meters"`
}

// Polygon is a store boundary given by its vertices. Winding order does not
// matter and the ring does not need to be closed.
type Polygon struct {
	Vertices []GeoPoint `json:"vertices"`
}

// Geofence is a tagged union of Circle and Polygon. Exactly one of the
// variant fields is set, matching Type.
type Geofence struct {
	Type    GeofenceType `json:"type"`
	Circle  *Circle      `json:"circle,omitempty"`
	Polygon *Polygon     `json:"polygon,omitempty"`
}

// NewCircleGeofence builds a circle geofence.
func NewCircleGeofence(center GeoPoint, radiusMeters float64) *Geofence {
	return &Geofence{
		Type:   GeofenceCircle,
		Circle: &Circle{Center: center, RadiusMeters: radiusMeters},
	}
}

// NewPolygonGeofence builds a polygon geofence.
func NewPolygonGeofence(vertices ...GeoPoint) *Geofence {
	return &Geofence{
		Type:    GeofencePolygon,
		Polygon: &Polygon{Vertices: vertices},
	}
}

// Validate checks the variant invariants.
func (g *Geofence) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil geofence", ErrInvalidGeofence)
	}
	switch g.Type {
	case GeofenceCircle:
		if g.Circle == nil {
			return fmt.Errorf("%w: circle geofence without circle", ErrInvalidGeofence)
		}
		if !(g.Circle.RadiusMeters > 0) || math.IsInf(g.Circle.RadiusMeters, 1) {
			return fmt.Errorf("%w: radius must be positive, got %.2f", ErrInvalidGeofence, g.Circle.RadiusMeters)
		}
		return g.Circle.Center.Validate()
	case GeofencePolygon:
		if g.Polygon == nil {
			return fmt.Errorf("%w: polygon geofence without polygon", ErrInvalidGeofence)
		}
		if len(g.Polygon.Vertices) < MinPolygonVertices {
			return fmt.Errorf("%w: polygon needs at least %d vertices, got %d",
				ErrInvalidGeofence, MinPolygonVertices, len(g.Polygon.Vertices))
		}
		for i, v := range g.Polygon.Vertices {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("vertex %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidGeofence, g.Type)
	}
}
