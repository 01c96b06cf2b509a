// Package geo classifies device positions against registered sites.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by DistanceKm.
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two coordinates using
// the haversine formula. NaN inputs yield NaN.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
