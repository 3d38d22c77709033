// Package geocode resolves the street intersection nearest to a coordinate through the GeoNames web service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jason-s-yu/bikelane/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the public GeoNames API.
const DefaultBaseURL = "http://api.geonames.org"

// Cache stores lookups. A cached nil intersection means GeoNames found none.
type Cache interface {
	Get(ctx context.Context, loc models.Location) (in *models.Intersection, hit bool, err error)
	Set(ctx context.Context, loc models.Location, in *models.Intersection) error
}

// Client calls findNearestIntersectionJSON. It satisfies guessgame.Geocoder.
type Client struct {
	BaseURL  string
	Username string
	HTTP     *http.Client
	Cache    Cache // optional
	Logger   logrus.FieldLogger
}

// NewClient returns a client for username against baseURL (DefaultBaseURL when empty).
func NewClient(baseURL, username string, cache Cache, logger logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		BaseURL:  baseURL,
		Username: username,
		HTTP:     &http.Client{Timeout: 5 * time.Second},
		Cache:    cache,
		Logger:   logger,
	}
}

// APIError is a failure reported in the GeoNames status object.
type APIError struct {
	Message string
	Value   int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("geonames error %d: %s", e.Value, e.Message)
}

// GeoNames encodes every field of the intersection as a string.
type intersectionResponse struct {
	Intersection *struct {
		Street1  string `json:"street1"`
		Street2  string `json:"street2"`
		Lat      string `json:"lat"`
		Lng      string `json:"lng"`
		Distance string `json:"distance"` // km
	} `json:"intersection"`
	Status *struct {
		Message string `json:"message"`
		Value   int    `json:"value"`
	} `json:"status"`
}

// NearestIntersection returns the closest intersection to loc, or nil when there is none.
func (c *Client) NearestIntersection(ctx context.Context, loc models.Location) (*models.Intersection, error) {
	if c.Cache != nil {
		in, hit, err := c.Cache.Get(ctx, loc)
		if err != nil {
			c.Logger.Warnf("intersection cache read failed: %v", err)
		} else if hit {
			return in, nil
		}
	}

	in, err := c.lookup(ctx, loc)
	if err != nil {
		return nil, err
	}

	if c.Cache != nil {
		if err := c.Cache.Set(ctx, loc, in); err != nil {
			c.Logger.Warnf("intersection cache write failed: %v", err)
		}
	}
	return in, nil
}

func (c *Client) lookup(ctx context.Context, loc models.Location) (*models.Intersection, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("username", c.Username)
	endpoint := c.BaseURL + "/findNearestIntersectionJSON?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building geonames request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geonames request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geonames returned HTTP %d", resp.StatusCode)
	}

	var body intersectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding geonames response: %w", err)
	}
	if body.Status != nil {
		return nil, &APIError{Message: body.Status.Message, Value: body.Status.Value}
	}
	if body.Intersection == nil {
		return nil, nil
	}

	raw := body.Intersection
	lat, err := strconv.ParseFloat(raw.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid intersection lat %q: %w", raw.Lat, err)
	}
	lng, err := strconv.ParseFloat(raw.Lng, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid intersection lng %q: %w", raw.Lng, err)
	}
	km, err := strconv.ParseFloat(raw.Distance, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid intersection distance %q: %w", raw.Distance, err)
	}

	return &models.Intersection{
		Street1:        raw.Street1,
		Street2:        raw.Street2,
		Location:       models.Location{Latitude: lat, Longitude: lng},
		DistanceMeters: km * 1000,
	}, nil
}
