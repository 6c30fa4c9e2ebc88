package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/citydwell/sessions-backend-go/internal/models"
)

// Geocoder resolves coordinates to venue names. Lookups are best
// effort: a failure or timeout means "name unknown" and must never
// block or abort dwell detection.
type Geocoder interface {
	// BestVenueName returns the most likely venue name for the
	// coordinate, or "" when unknown.
	BestVenueName(ctx context.Context, lat, lon float64) (string, error)

	// NearbyVenues returns candidate venues around the coordinate, for
	// user-facing manual correction only.
	NearbyVenues(ctx context.Context, lat, lon, radiusMeters float64) ([]models.VenueCandidate, error)
}

// HTTPGeocoder calls an external reverse-geocoding service.
type HTTPGeocoder struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGeocoder creates a geocoder against the given base URL.
func NewHTTPGeocoder(baseURL string, timeout time.Duration) *HTTPGeocoder {
	return &HTTPGeocoder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type reverseResponse struct {
	Name string `json:"name"`
}

// BestVenueName queries GET {base}/reverse?lat=..&lon=..
func (g *HTTPGeocoder) BestVenueName(ctx context.Context, lat, lon float64) (string, error) {
	endpoint := fmt.Sprintf("%s/reverse?%s", g.baseURL, coordQuery(lat, lon).Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build reverse geocode request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: unexpected status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode reverse geocode response: %w", err)
	}
	return body.Name, nil
}

// NearbyVenues queries GET {base}/nearby?lat=..&lon=..&radius=..
func (g *HTTPGeocoder) NearbyVenues(ctx context.Context, lat, lon, radiusMeters float64) ([]models.VenueCandidate, error) {
	q := coordQuery(lat, lon)
	q.Set("radius", strconv.FormatFloat(radiusMeters, 'f', 0, 64))
	endpoint := fmt.Sprintf("%s/nearby?%s", g.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build nearby venues request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nearby venues: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nearby venues: unexpected status %d", resp.StatusCode)
	}

	var venues []models.VenueCandidate
	if err := json.NewDecoder(resp.Body).Decode(&venues); err != nil {
		return nil, fmt.Errorf("decode nearby venues response: %w", err)
	}
	return venues, nil
}

func coordQuery(lat, lon float64) url.Values {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	return q
}

// Noop is a geocoder that knows nothing. Used when no geocoding service
// is configured, and in tests.
type Noop struct{}

// BestVenueName always reports an unknown venue.
func (Noop) BestVenueName(ctx context.Context, lat, lon float64) (string, error) {
	return "", nil
}

// NearbyVenues always reports no candidates.
func (Noop) NearbyVenues(ctx context.Context, lat, lon, radiusMeters float64) ([]models.VenueCandidate, error) {
	return nil, nil
}
