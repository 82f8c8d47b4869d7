package utils

import "math"

const earthRadiusM = 6371000.0

// HaversineMeters is the great-circle distance between two WGS84 points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLon := degreesToRadians(lon2 - lon1)

	lat1R := degreesToRadians(lat1)
	lat2R := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1R)*math.Cos(lat2R)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Within reports whether two optional coordinate pairs are both set and no
// more than radiusM metres apart.
func Within(lat1, lon1, lat2, lon2 *float64, radiusM float64) bool {
	if lat1 == nil || lon1 == nil || lat2 == nil || lon2 == nil {
		return false
	}
	return HaversineMeters(*lat1, *lon1, *lat2, *lon2) <= radiusM
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}
