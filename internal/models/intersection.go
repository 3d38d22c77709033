// internal/models/intersection.go
package models

// Intersection is the nearest street crossing to a coordinate, as resolved by a reverse geocoder.
type Intersection struct {
	Street1        string   `json:"street1"`
	Street2        string   `json:"street2"`
	Location       Location `json:"location"`
	DistanceMeters float64  `json:"distanceMeters"`
}
