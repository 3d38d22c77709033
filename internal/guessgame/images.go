// internal/guessgame/images.go
package guessgame

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bikelane/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// minImageSeparationMeters keeps two rounds of the same game from showing the same spot.
	minImageSeparationMeters = 300.0

	// intersectionRadiusMeters is how close a reverse-geocoded crossing must be to count as the photo's intersection.
	intersectionRadiusMeters = 10.0

	// proximityAttempts is how many too-close candidates one round may reject before the
	// separation rule is relaxed.
	proximityAttempts = 25
)

var (
	// ErrNoItems is returned (wrapped) by an ItemSource that has nothing left to offer.
	ErrNoItems = errors.New("no reported items available")

	// ErrNoEligibleItems means the data source could not seed every round of a game.
	ErrNoEligibleItems = errors.New("not enough eligible reported items")
)

// ItemSource hands out reported items at random. Items whose IDs are in exclude must not be returned;
// when nothing else is left the source returns an error wrapping ErrNoItems. Sources may skip items
// that cannot be a round subject, but need not.
type ItemSource interface {
	RandomItem(ctx context.Context, exclude []uuid.UUID) (models.ReportedItem, error)
}

// Geocoder finds the street intersection nearest to a coordinate. A nil intersection with a nil error
// means none was found.
type Geocoder interface {
	NearestIntersection(ctx context.Context, loc models.Location) (*models.Intersection, error)
}

// RoundImage is the subject of one round: the reported item and how it is presented.
type RoundImage struct {
	Item         models.ReportedItem
	Info         ImageInfo
	Intersection *models.Intersection
}

// Location is the true location players are scored against.
func (ri RoundImage) Location() models.Location {
	return *ri.Item.Location
}

// selectRoundImages draws n round subjects from source. Candidates need a location and exactly one photo.
// A candidate within minImageSeparationMeters of an already selected image is rejected until the
// round has rejected proximityAttempts of them; after that the next eligible candidate is taken
// regardless of distance. Ineligible candidates are skipped without limit: every draw excludes the
// items already seen, so the loop ends when the source reports ErrNoItems. If the source runs dry
// while only too-close candidates were seen, the farthest of those is used.
func selectRoundImages(ctx context.Context, source ItemSource, n int, logger logrus.FieldLogger) ([]RoundImage, error) {
	selected := make([]RoundImage, 0, n)
	used := make([]uuid.UUID, 0, n)

	for len(selected) < n {
		item, err := drawRoundItem(ctx, source, selected, used, logger)
		if err != nil {
			return nil, fmt.Errorf("round %d of %d: %w", len(selected)+1, n, err)
		}
		selected = append(selected, RoundImage{
			Item: item,
			Info: ImageInfo{ImageURL: item.ImageURLs[0], Type: GuessTypeGPS},
		})
		used = append(used, item.ID)
	}
	return selected, nil
}

// drawRoundItem picks the item for the next round.
func drawRoundItem(ctx context.Context, source ItemSource, selected []RoundImage, used []uuid.UUID, logger logrus.FieldLogger) (models.ReportedItem, error) {
	exclude := append([]uuid.UUID(nil), used...)
	seen := make(map[uuid.UUID]struct{}, len(used))
	for _, id := range used {
		seen[id] = struct{}{}
	}
	rejectedTooClose := 0

	var fallback *models.ReportedItem
	fallbackDistance := -1.0

	for {
		if err := ctx.Err(); err != nil {
			return models.ReportedItem{}, err
		}
		item, err := source.RandomItem(ctx, exclude)
		if err != nil {
			if errors.Is(err, ErrNoItems) {
				break
			}
			return models.ReportedItem{}, fmt.Errorf("drawing reported item: %w", err)
		}
		if _, dup := seen[item.ID]; dup {
			// the source ignored exclude
			logger.WithField("item", item.ID).Warn("Item source returned an excluded item, treating it as exhausted")
			break
		}
		seen[item.ID] = struct{}{}
		exclude = append(exclude, item.ID)

		if item.Location == nil || !item.HasSingleImage() {
			continue
		}

		nearest := nearestSelectedMeters(*item.Location, selected)
		if nearest >= 0 && nearest <= minImageSeparationMeters {
			if nearest > fallbackDistance {
				candidate := item
				fallback = &candidate
				fallbackDistance = nearest
			}
			if rejectedTooClose < proximityAttempts {
				rejectedTooClose++
				continue
			}
			logger.WithField("item", item.ID).Debugf("Accepting item %.0fm from an earlier round after %d proximity rejections", nearest, rejectedTooClose)
		}
		return item, nil
	}

	if fallback != nil {
		logger.WithField("item", fallback.ID).Infof("Reported items exhausted, reusing closest-available item %.0fm from an earlier round", fallbackDistance)
		return *fallback, nil
	}
	return models.ReportedItem{}, ErrNoEligibleItems
}

// nearestSelectedMeters returns the distance to the closest already selected image, or -1 if none are selected.
func nearestSelectedMeters(loc models.Location, selected []RoundImage) float64 {
	nearest := -1.0
	for _, ri := range selected {
		d := loc.DistanceMeters(ri.Location())
		if nearest < 0 || d < nearest {
			nearest = d
		}
	}
	return nearest
}

// classifyRoundImages marks images taken at a street intersection. Geocoder failures leave the image as GPS.
func classifyRoundImages(ctx context.Context, images []RoundImage, geocoder Geocoder, logger logrus.FieldLogger) {
	if geocoder == nil {
		return
	}
	for i := range images {
		inter, err := geocoder.NearestIntersection(ctx, images[i].Location())
		if err != nil {
			logger.WithField("item", images[i].Item.ID).Warnf("Reverse geocode failed, using gps guess type: %v", err)
			continue
		}
		if inter != nil && inter.DistanceMeters <= intersectionRadiusMeters {
			images[i].Info.Type = GuessTypeIntersection
			images[i].Intersection = inter
		}
	}
}
