// Package places talks to the external places directory: geocoding the
// search origin and paging through nearby venue results.
package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrNotFound is returned when geocoding yields no location.
	ErrNotFound = errors.New("places: not found")
	// ErrUpstreamUnavailable wraps transport failures and non-success statuses.
	ErrUpstreamUnavailable = errors.New("places: upstream unavailable")
)

// UpstreamError describes a failed directory call.
type UpstreamError struct {
	Op      string
	Status  string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	msg := "places: " + e.Op + " failed"
	if e.Status != "" {
		msg += ": status " + e.Status
	}
	if e.Message != "" {
		msg += " (" + e.Message + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap lets errors.Is match both the cause and ErrUpstreamUnavailable.
func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstreamUnavailable, e.Err}
	}
	return []error{ErrUpstreamUnavailable}
}

// LatLng is a coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String formats the pair as "lat,lng".
func (l LatLng) String() string {
	return fmt.Sprintf("%f,%f", l.Lat, l.Lng)
}

// Status is the directory's result status for one page.
type Status int

const (
	StatusOK Status = iota
	StatusZeroResults
	StatusError
)

// Place is one raw directory result.
type Place struct {
	ID               string
	Name             string
	Vicinity         string
	Location         LatLng
	PriceLevel       *int
	Rating           *float64
	UserRatingsTotal *int
	Types            []string
	OpenNow          *bool
	PhotoRef         string
}

// NearbyRequest asks for one page of venues around Origin.
type NearbyRequest struct {
	Origin    LatLng
	Radius    int
	Type      string
	PageToken string
}

// Page is one page of nearby results.
type Page struct {
	Items         []Place
	NextPageToken string
	Status        Status
}

// Directory is the external places directory.
type Directory interface {
	// Geocode resolves a free-form query to coordinates, or ErrNotFound.
	Geocode(ctx context.Context, query string) (LatLng, error)

	// SearchNearby fetches one page of venues.
	SearchNearby(ctx context.Context, req NearbyRequest) (Page, error)
}

// Unavailable returns a Directory whose calls all fail with err, for
// processes that never reach the directory (e.g. history-only CLI commands).
func Unavailable(err error) Directory {
	return unavailableDirectory{err: err}
}

type unavailableDirectory struct{ err error }

func (d unavailableDirectory) Geocode(context.Context, string) (LatLng, error) {
	return LatLng{}, &UpstreamError{Op: "geocode", Err: d.err}
}

func (d unavailableDirectory) SearchNearby(context.Context, NearbyRequest) (Page, error) {
	return Page{Status: StatusError}, &UpstreamError{Op: "nearby search", Err: d.err}
}

// ResolveOrigin geocodes each query in turn and returns the first hit. When
// none resolve it returns fallback, or ErrNotFound when fallback is nil.
// Upstream errors on one query do not stop the remaining queries. A nil
// logger means slog.Default.
func ResolveOrigin(ctx context.Context, dir Directory, queries []string, fallback *LatLng, logger *slog.Logger) (LatLng, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error
	for _, q := range queries {
		loc, err := dir.Geocode(ctx, q)
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("Geocoding failed", "query", q, "error", err)
		}
		lastErr = err
	}

	if fallback != nil {
		logger.Warn("Using fallback coordinates", "lat", fallback.Lat, "lng", fallback.Lng)
		return *fallback, nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrNotFound) {
		return LatLng{}, fmt.Errorf("geocoding failed and no fallback coordinates provided: %w", lastErr)
	}
	return LatLng{}, fmt.Errorf("geocoding failed and no fallback coordinates provided: %w", ErrNotFound)
}
