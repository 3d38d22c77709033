// internal/models/location.go
package models

import "math"

// earthRadiusMeters is the mean Earth radius used for great-circle distances.
const earthRadiusMeters = 6371000.0

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceMeters returns the haversine great-circle distance between l and o in meters.
func (l Location) DistanceMeters(o Location) float64 {
	lat1 := l.Latitude * math.Pi / 180
	lat2 := o.Latitude * math.Pi / 180
	dLat := (o.Latitude - l.Latitude) * math.Pi / 180
	dLon := (o.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
