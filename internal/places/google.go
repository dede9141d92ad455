package places

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"googlemaps.github.io/maps"
)

const (
	defaultLanguage = "zh-TW"
	requestTimeout  = 10 * time.Second
)

// ErrMissingAPIKey is returned when no Google API key is configured.
var ErrMissingAPIKey = errors.New("places: GOOGLE_API_KEY is not set")

// GoogleClient implements Directory over the Google Maps Geocoding and
// Places Nearby Search services.
type GoogleClient struct {
	maps     *maps.Client
	language string
}

type googleSettings struct {
	baseURL string
	http    *http.Client
}

// GoogleOption configures a GoogleClient.
type GoogleOption func(*googleSettings)

// WithBaseURL points the client at another host, e.g. an httptest server.
func WithBaseURL(u string) GoogleOption {
	return func(s *googleSettings) { s.baseURL = u }
}

// WithHTTPClient replaces the default 10s-timeout HTTP client.
func WithHTTPClient(hc *http.Client) GoogleOption {
	return func(s *googleSettings) { s.http = hc }
}

// NewGoogleClient creates a Directory backed by Google Maps web services.
func NewGoogleClient(apiKey string, opts ...GoogleOption) (*GoogleClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	settings := googleSettings{http: &http.Client{Timeout: requestTimeout}}
	for _, opt := range opts {
		opt(&settings)
	}

	clientOpts := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(settings.http),
	}
	if settings.baseURL != "" {
		clientOpts = append(clientOpts, maps.WithBaseURL(settings.baseURL))
	}

	mc, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &GoogleClient{maps: mc, language: defaultLanguage}, nil
}

// Geocode resolves query to coordinates.
func (c *GoogleClient) Geocode(ctx context.Context, query string) (LatLng, error) {
	results, err := c.maps.Geocode(ctx, &maps.GeocodingRequest{
		Address:  query,
		Language: c.language,
	})
	if err != nil {
		return LatLng{}, upstreamError("geocode", err)
	}
	if len(results) == 0 {
		return LatLng{}, ErrNotFound
	}
	loc := results[0].Geometry.Location
	return LatLng{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// SearchNearby fetches one page of nearby venues. When PageToken is set only
// the token is sent, as the upstream API requires.
func (c *GoogleClient) SearchNearby(ctx context.Context, req NearbyRequest) (Page, error) {
	r := &maps.NearbySearchRequest{PageToken: req.PageToken}
	if req.PageToken == "" {
		r.Location = &maps.LatLng{Lat: req.Origin.Lat, Lng: req.Origin.Lng}
		r.Radius = uint(req.Radius)
		r.Type = maps.PlaceType(req.Type)
		r.Language = c.language
	}

	resp, err := c.maps.NearbySearch(ctx, r)
	if err != nil {
		return Page{Status: StatusError}, upstreamError("nearby search", err)
	}

	page := Page{NextPageToken: resp.NextPageToken, Status: StatusOK}
	if len(resp.Results) == 0 && resp.NextPageToken == "" {
		page.Status = StatusZeroResults
		return page, nil
	}

	page.Items = make([]Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		page.Items = append(page.Items, fromSearchResult(r))
	}
	return page, nil
}

// fromSearchResult converts a library result. The library decodes omitted
// numeric fields as zero, so zero rating, count and price read as unknown.
func fromSearchResult(r maps.PlacesSearchResult) Place {
	p := Place{
		ID:       r.PlaceID,
		Name:     r.Name,
		Vicinity: r.Vicinity,
		Location: LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		Types:    r.Types,
	}
	if r.Rating > 0 {
		// Ratings carry one decimal; undo the float32 widening noise.
		rating := math.Round(float64(r.Rating)*10) / 10
		p.Rating = &rating
	}
	if r.UserRatingsTotal > 0 {
		total := r.UserRatingsTotal
		p.UserRatingsTotal = &total
	}
	if r.PriceLevel > 0 {
		level := r.PriceLevel
		p.PriceLevel = &level
	}
	if r.OpeningHours != nil {
		p.OpenNow = r.OpeningHours.OpenNow
	}
	if len(r.Photos) > 0 {
		p.PhotoRef = r.Photos[0].PhotoReference
	}
	return p
}

// upstreamError wraps a library error. Status errors read
// "maps: STATUS - message"; anything else is a transport failure.
func upstreamError(op string, err error) *UpstreamError {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, "maps: "); ok {
		status, detail, _ := strings.Cut(rest, " - ")
		if status != "" && status == strings.ToUpper(status) && !strings.ContainsAny(status, " :") {
			return &UpstreamError{Op: op, Status: status, Message: detail}
		}
	}
	return &UpstreamError{Op: op, Err: err}
}

// Ensure GoogleClient implements Directory.
var _ Directory = (*GoogleClient)(nil)
