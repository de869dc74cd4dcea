// Package geo provides great-circle distance calculations for coordinate pairs.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used for Haversine distances.
const earthRadiusMeters = 6371000.0

// DistanceMeters returns the Haversine great-circle distance in meters
// between two WGS84 coordinates. It is numerically stable for identical or
// near-identical points and always returns a non-negative value.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	a := sinLat*sinLat + math.Cos(radians(lat1))*math.Cos(radians(lat2))*sinLon*sinLon

	// Clamp against floating point drift before the square roots.
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// WithinRadius reports whether two coordinates are within radiusMeters of
// each other.
func WithinRadius(lat1, lon1, lat2, lon2, radiusMeters float64) bool {
	return DistanceMeters(lat1, lon1, lat2, lon2) <= radiusMeters
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
