// internal/models/reported_item.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// ReportedItem is one civic report: a photo of a car blocking a bike lane, plus where it was taken.
// Location is nil when the upload carried no usable GPS data.
type ReportedItem struct {
	ID        uuid.UUID `json:"id"`
	Location  *Location `json:"location,omitempty"`
	ImageURLs []string  `json:"imageUrls"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasSingleImage reports whether the item carries exactly one photo.
func (r ReportedItem) HasSingleImage() bool {
	return len(r.ImageURLs) == 1
}
