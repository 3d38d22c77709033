package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	seattle := Location{Latitude: 47.6062, Longitude: -122.3321}

	assert.Equal(t, 0.0, seattle.DistanceMeters(seattle))

	// Seattle to Portland is roughly 234 km.
	portland := Location{Latitude: 45.5152, Longitude: -122.6784}
	d := seattle.DistanceMeters(portland)
	assert.InDelta(t, 234_000, d, 5_000)
	assert.InDelta(t, d, portland.DistanceMeters(seattle), 1e-6, "distance should be symmetric")
}

func TestHasSingleImage(t *testing.T) {
	assert.False(t, ReportedItem{}.HasSingleImage())
	assert.True(t, ReportedItem{ImageURLs: []string{"a.jpg"}}.HasSingleImage())
	assert.False(t, ReportedItem{ImageURLs: []string{"a.jpg", "b.jpg"}}.HasSingleImage())
}
