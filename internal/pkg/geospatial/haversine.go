package geospatial

import "math"

// EarthRadiusMeters is the mean earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// metersPerDegreeLat is the length of one degree of latitude on the sphere
// used by Haversine, so BoundingBox never clips the haversine circle.
const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180

// Haversine calculates the great-circle distance in meters between two points.
// Identical points yield exactly 0 and the result does not depend on argument order.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding pushes a past 1 for near-antipodal points.
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / metersPerDegreeLat
	cosLat := math.Cos(toRad(lat))
	if cosLat < 1e-9 {
		// At the poles every longitude is within reach.
		return lat - latDelta, -180, lat + latDelta, 180
	}
	lonDelta := radiusMeters / (metersPerDegreeLat * cosLat)

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// Offset moves a point north and east by the given number of meters.
// It is a flat-earth approximation, accurate for the short distances
// used by store geofences and tests.
func Offset(lat, lon, northMeters, eastMeters float64) (float64, float64) {
	dLat := northMeters / metersPerDegreeLat
	dLon := eastMeters / (metersPerDegreeLat * math.Cos(toRad(lat)))
	return lat + dLat, lon + dLon
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
