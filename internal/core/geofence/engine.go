// Package geofence holds the pure geometry used to decide whether a position
// lies inside a store: great-circle distance, point-in-circle, bounding-box
// rejection and point-in-polygon by ray casting.
//
// Polygon edges are treated as planar segments in (lng, lat) space, which is
// accurate at store scale. Points lying exactly on a polygon edge or vertex
// are inside, matching the inclusive `distance <= radius` rule for circles.
// Polygons crossing the antimeridian are not supported.
package geofence

import (
	"math"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/pkg/geospatial"
)

// edgeEpsilon is the collinearity tolerance (degrees squared) of the edge test.
const edgeEpsilon = 1e-12

// RayCaster decides polygon containment for a point already known to lie in
// the polygon's bounding box.
type RayCaster func(p domain.GeoPoint, vertices []domain.GeoPoint) bool

// Engine evaluates geofences. The zero value is not usable; use NewEngine.
type Engine struct {
	rayCast RayCaster
}

// Option configures an Engine.
type Option func(*Engine)

// WithRayCaster replaces the even-odd ray cast, mostly for instrumentation.
func WithRayCaster(rc RayCaster) Option {
	return func(e *Engine) { e.rayCast = rc }
}

// NewEngine creates an Engine using the even-odd rule by default.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rayCast: EvenOdd}
	for _, o := range opts {
		o(e)
	}
	return e
}

var defaultEngine = NewEngine()

// Default returns the shared engine used by the package-level functions.
func Default() *Engine { return defaultEngine }

// HaversineDistance returns the great-circle distance in meters.
func HaversineDistance(a, b domain.GeoPoint) float64 {
	return geospatial.Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// IsInsideCircle reports whether p is within radius of the circle center.
func IsInsideCircle(p domain.GeoPoint, c domain.Circle) bool {
	return HaversineDistance(p, c.Center) <= c.RadiusMeters
}

// BoundingBox returns the smallest box containing every vertex.
func BoundingBox(poly domain.Polygon) domain.Bounds {
	if len(poly.Vertices) == 0 {
		return domain.Bounds{}
	}
	b := domain.Bounds{
		MinLat: poly.Vertices[0].Lat, MaxLat: poly.Vertices[0].Lat,
		MinLng: poly.Vertices[0].Lng, MaxLng: poly.Vertices[0].Lng,
	}
	for _, v := range poly.Vertices[1:] {
		b.MinLat = math.Min(b.MinLat, v.Lat)
		b.MaxLat = math.Max(b.MaxLat, v.Lat)
		b.MinLng = math.Min(b.MinLng, v.Lng)
		b.MaxLng = math.Max(b.MaxLng, v.Lng)
	}
	return b
}

// IsInsidePolygon reports whether p is inside poly using the default engine.
func IsInsidePolygon(p domain.GeoPoint, poly domain.Polygon) bool {
	return defaultEngine.IsInsidePolygon(p, poly)
}

// IsInsideGeofence dispatches on the geofence variant using the default engine.
func IsInsideGeofence(p domain.GeoPoint, g *domain.Geofence) bool {
	return defaultEngine.IsInsideGeofence(p, g)
}

// IsInsidePolygon rejects points outside the bounding box before running the
// ray cast. Polygons with fewer than three vertices contain nothing.
func (e *Engine) IsInsidePolygon(p domain.GeoPoint, poly domain.Polygon) bool {
	if len(poly.Vertices) < domain.MinPolygonVertices {
		return false
	}
	return e.insidePolygon(p, poly.Vertices, BoundingBox(poly))
}

// IsInsideGeofence reports containment; malformed geofences contain nothing.
// Use Compile to find out why a geofence is rejected.
func (e *Engine) IsInsideGeofence(p domain.GeoPoint, g *domain.Geofence) bool {
	f, err := e.Compile(g)
	if err != nil {
		return false
	}
	return f.Contains(p)
}

func (e *Engine) insidePolygon(p domain.GeoPoint, vertices []domain.GeoPoint, bounds domain.Bounds) bool {
	if !bounds.Contains(p) {
		return false
	}
	return e.rayCast(p, vertices)
}

// Fence is a validated geofence with its polygon bounding box precomputed.
type Fence struct {
	geofence *domain.Geofence
	bounds   domain.Bounds
	engine   *Engine
}

// Compile validates g and precomputes what containment checks need.
func Compile(g *domain.Geofence) (*Fence, error) {
	return defaultEngine.Compile(g)
}

// Compile validates g and precomputes what containment checks need.
func (e *Engine) Compile(g *domain.Geofence) (*Fence, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	f := &Fence{geofence: g, engine: e}
	if g.Type == domain.GeofencePolygon {
		f.bounds = BoundingBox(*g.Polygon)
	}
	return f, nil
}

// Type returns the geofence variant.
func (f *Fence) Type() domain.GeofenceType { return f.geofence.Type }

// Bounds returns the polygon bounding box; it is zero for circles.
func (f *Fence) Bounds() domain.Bounds { return f.bounds }

// Contains reports whether p lies inside the fence.
func (f *Fence) Contains(p domain.GeoPoint) bool {
	switch f.geofence.Type {
	case domain.GeofenceCircle:
		return IsInsideCircle(p, *f.geofence.Circle)
	case domain.GeofencePolygon:
		return f.engine.insidePolygon(p, f.geofence.Polygon.Vertices, f.bounds)
	}
	return false
}

// EvenOdd is the ray-casting containment test: a horizontal ray from p
// toward increasing longitude crosses the boundary an odd number of times
// iff p is inside. Points on an edge are inside.
func EvenOdd(p domain.GeoPoint, vertices []domain.GeoPoint) bool {
	inside := false
	n := len(vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := vertices[i], vertices[j]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			crossLng := (b.Lng-a.Lng)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lng
			if p.Lng < crossLng {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(p, a, b domain.GeoPoint) bool {
	cross := (b.Lng-a.Lng)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lng-a.Lng)
	if math.Abs(cross) > edgeEpsilon {
		return false
	}
	return p.Lng >= math.Min(a.Lng, b.Lng) && p.Lng <= math.Max(a.Lng, b.Lng) &&
		p.Lat >= math.Min(a.Lat, b.Lat) && p.Lat <= math.Max(a.Lat, b.Lat)
}
