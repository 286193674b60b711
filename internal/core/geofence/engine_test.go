package geofence_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/geofence"
	"github.com/samirrijal/storedetect/internal/pkg/geospatial"
)

var annArbor = domain.GeoPoint{Lat: 42.2808, Lng: -83.7430}

func square() domain.Polygon {
	return domain.Polygon{Vertices: []domain.GeoPoint{
		{Lat: 42.280, Lng: -83.745},
		{Lat: 42.280, Lng: -83.741},
		{Lat: 42.282, Lng: -83.741},
		{Lat: 42.282, Lng: -83.745},
	}}
}

// lShape is concave: the north-east quadrant is cut out.
func lShape() domain.Polygon {
	return domain.Polygon{Vertices: []domain.GeoPoint{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 2},
		{Lat: 1, Lng: 2},
		{Lat: 1, Lng: 1},
		{Lat: 2, Lng: 1},
		{Lat: 2, Lng: 0},
	}}
}

func offset(p domain.GeoPoint, north, east float64) domain.GeoPoint {
	lat, lng := geospatial.Offset(p.Lat, p.Lng, north, east)
	return domain.GeoPoint{Lat: lat, Lng: lng}
}

func TestHaversineDistance_EndToEnd(t *testing.T) {
	nyc := domain.GeoPoint{Lat: 40.7128, Lng: -74.0060}
	la := domain.GeoPoint{Lat: 34.0522, Lng: -118.2437}
	d := geofence.HaversineDistance(nyc, la)
	assert.True(t, d >= 3935000 && d <= 3940000, "got %.0f", d)
	assert.Equal(t, d, geofence.HaversineDistance(la, nyc))
	assert.Equal(t, 0.0, geofence.HaversineDistance(nyc, nyc))
}

func TestIsInsideCircle_CenterIsInside(t *testing.T) {
	c := domain.Circle{Center: annArbor, RadiusMeters: 75}
	assert.True(t, geofence.IsInsideCircle(annArbor, c))
}

func TestIsInsideCircle_StrictDistanceProperty(t *testing.T) {
	c := domain.Circle{Center: annArbor, RadiusMeters: 75}
	for bearing := 0.0; bearing < 360; bearing += 15 {
		rad := bearing * math.Pi / 180
		for _, d := range []float64{1, 30, 70, 74, 74.9, 75.1, 76, 80, 150} {
			p := offset(annArbor, d*math.Cos(rad), d*math.Sin(rad))
			dist := geofence.HaversineDistance(p, annArbor)
			if dist < c.RadiusMeters {
				assert.True(t, geofence.IsInsideCircle(p, c), "bearing %.0f dist %.2f", bearing, dist)
			}
			if dist > c.RadiusMeters {
				assert.False(t, geofence.IsInsideCircle(p, c), "bearing %.0f dist %.2f", bearing, dist)
			}
		}
	}
}

func TestBoundingBox(t *testing.T) {
	b := geofence.BoundingBox(square())
	assert.Equal(t, domain.Bounds{MinLat: 42.280, MaxLat: 42.282, MinLng: -83.745, MaxLng: -83.741}, b)
}

func TestIsInsidePolygon_Square(t *testing.T) {
	poly := square()
	assert.True(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 42.281, Lng: -83.743}, poly))
	assert.False(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 42.283, Lng: -83.743}, poly))
	assert.False(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 42.281, Lng: -83.740}, poly))
}

func TestIsInsidePolygon_EdgesAndVerticesAreInside(t *testing.T) {
	poly := square()
	assert.True(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 42.280, Lng: -83.743}, poly), "bottom edge")
	assert.True(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 42.281, Lng: -83.745}, poly), "left edge")
	assert.True(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 42.282, Lng: -83.743}, poly), "top edge")
	assert.True(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 42.281, Lng: -83.741}, poly), "right edge")
	assert.True(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 42.282, Lng: -83.741}, poly), "vertex")
}

func TestIsInsidePolygon_Concave(t *testing.T) {
	poly := lShape()
	assert.True(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 0.5, Lng: 1.5}, poly))
	assert.True(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 1.5, Lng: 0.5}, poly))
	// Inside the bounding box but in the notch.
	assert.False(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 1.5, Lng: 1.5}, poly))
}

func TestIsInsidePolygon_WindingAndClosureDoNotMatter(t *testing.T) {
	poly := lShape()
	reversed := domain.Polygon{}
	for i := len(poly.Vertices) - 1; i >= 0; i-- {
		reversed.Vertices = append(reversed.Vertices, poly.Vertices[i])
	}
	closed := domain.Polygon{Vertices: append(append([]domain.GeoPoint{}, poly.Vertices...), poly.Vertices[0])}

	for _, p := range []domain.GeoPoint{{Lat: 0.5, Lng: 1.5}, {Lat: 1.5, Lng: 1.5}, {Lat: 1.5, Lng: 0.5}, {Lat: 3, Lng: 3}} {
		want := geofence.IsInsidePolygon(p, poly)
		assert.Equal(t, want, geofence.IsInsidePolygon(p, reversed), "reversed %v", p)
		assert.Equal(t, want, geofence.IsInsidePolygon(p, closed), "closed %v", p)
	}
}

func TestIsInsidePolygon_TooFewVertices(t *testing.T) {
	poly := domain.Polygon{Vertices: []domain.GeoPoint{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}}
	assert.False(t, geofence.IsInsidePolygon(domain.GeoPoint{Lat: 0.5, Lng: 0.5}, poly))
}

func TestIsInsidePolygon_BoundingBoxSkipsRayCast(t *testing.T) {
	calls := 0
	engine := geofence.NewEngine(geofence.WithRayCaster(func(p domain.GeoPoint, vs []domain.GeoPoint) bool {
		calls++
		return geofence.EvenOdd(p, vs)
	}))

	outside := []domain.GeoPoint{
		{Lat: 42.290, Lng: -83.743},
		{Lat: 42.270, Lng: -83.743},
		{Lat: 42.281, Lng: -83.700},
		{Lat: 42.281, Lng: -83.800},
	}
	for _, p := range outside {
		assert.False(t, engine.IsInsidePolygon(p, square()))
	}
	assert.Equal(t, 0, calls, "ray cast must not run for points outside the bounding box")

	assert.True(t, engine.IsInsidePolygon(domain.GeoPoint{Lat: 42.281, Lng: -83.743}, square()))
	assert.Equal(t, 1, calls)
}

func TestCompile(t *testing.T) {
	_, err := geofence.Compile(domain.NewPolygonGeofence(annArbor, annArbor))
	assert.ErrorIs(t, err, domain.ErrInvalidGeofence)

	f, err := geofence.Compile(domain.NewPolygonGeofence(square().Vertices...))
	require.NoError(t, err)
	assert.Equal(t, domain.GeofencePolygon, f.Type())
	assert.Equal(t, geofence.BoundingBox(square()), f.Bounds())
	assert.True(t, f.Contains(domain.GeoPoint{Lat: 42.281, Lng: -83.743}))

	c, err := geofence.Compile(domain.NewCircleGeofence(annArbor, 75))
	require.NoError(t, err)
	assert.True(t, c.Contains(annArbor))
	assert.False(t, c.Contains(offset(annArbor, 100, 0)))
}

func TestIsInsideGeofence_Dispatch(t *testing.T) {
	assert.True(t, geofence.IsInsideGeofence(annArbor, domain.NewCircleGeofence(annArbor, 75)))
	assert.True(t, geofence.IsInsideGeofence(domain.GeoPoint{Lat: 42.281, Lng: -83.743},
		domain.NewPolygonGeofence(square().Vertices...)))
	assert.False(t, geofence.IsInsideGeofence(annArbor, domain.NewCircleGeofence(annArbor, -1)))
	assert.False(t, geofence.IsInsideGeofence(annArbor, nil))
}
