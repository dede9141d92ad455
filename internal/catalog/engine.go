// Package catalog reconciles the external places directory into the venue store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/ashureev/lunch-picker/internal/places"
	"github.com/ashureev/lunch-picker/internal/store"
	"golang.org/x/sync/singleflight"
)

// SyncError reports the category filter whose fetch aborted a cycle.
type SyncError struct {
	Filter string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("catalog sync aborted on filter %q: %v", e.Filter, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Result summarizes one sync cycle.
type Result struct {
	Fetched  int      `json:"fetched"`
	Unique   int      `json:"unique"`
	NewNames []string `json:"new_names"`
}

// Origin describes where and what to search in a scheduled cycle.
type Origin struct {
	Queries  []string
	Fallback *places.LatLng
	Radius   int
	Filters  []string
}

// Engine runs catalog sync cycles.
type Engine struct {
	directory places.Directory
	pager     *places.Pager
	venues    store.VenueStore
	origin    Origin
	now       func() time.Time
	logger    *slog.Logger
	flight    singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source used to stamp first/last seen.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a sync engine. pager.Directory is used for searches and
// dir for geocoding the origin.
func NewEngine(dir places.Directory, pager *places.Pager, venues store.VenueStore, origin Origin, opts ...Option) *Engine {
	e := &Engine{
		directory: dir,
		pager:     pager,
		venues:    venues,
		origin:    origin,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOnce resolves the configured origin and runs one Sync. Concurrent
// callers share a single in-flight cycle and its result.
func (e *Engine) RunOnce(ctx context.Context) (*Result, error) {
	v, err, shared := e.flight.Do("sync", func() (any, error) {
		origin, err := places.ResolveOrigin(ctx, e.directory, e.origin.Queries, e.origin.Fallback, e.logger)
		if err != nil {
			return nil, fmt.Errorf("resolve origin: %w", err)
		}
		return e.Sync(ctx, origin, e.origin.Radius, e.origin.Filters)
	})
	if shared {
		e.logger.Debug("Catalog sync joined in-flight cycle")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Sync fetches every filter around origin and reconciles unique venues into
// the store. A venue returned for several filters is written once per cycle.
// An upstream failure aborts with *SyncError; venues already reconciled for
// earlier filters stay written.
func (e *Engine) Sync(ctx context.Context, origin places.LatLng, radius int, filters []string) (*Result, error) {
	now := e.now()
	seen := make(map[string]struct{})
	result := &Result{NewNames: []string{}}

	for _, filter := range filters {
		var batch []places.Place
		for page, err := range e.pager.Pages(ctx, places.NearbyRequest{Origin: origin, Radius: radius, Type: filter}) {
			if err != nil {
				return nil, &SyncError{Filter: filter, Err: err}
			}
			for _, item := range page.Items {
				result.Fetched++
				if !intersects(item.Types, filters) {
					continue
				}
				if _, dup := seen[item.ID]; dup {
					continue
				}
				seen[item.ID] = struct{}{}
				batch = append(batch, item)
			}
		}

		for _, item := range batch {
			inserted, err := e.venues.UpsertVenue(ctx, toVenue(item), now)
			if err != nil {
				return nil, fmt.Errorf("reconcile venue %s: %w", item.ID, err)
			}
			if inserted {
				result.NewNames = append(result.NewNames, item.Name)
			}
		}
		e.logger.Info("Catalog filter synced", "filter", filter, "unique_so_far", len(seen))
	}

	result.Unique = len(seen)
	e.logger.Info("Catalog sync completed",
		"fetched", result.Fetched,
		"unique", result.Unique,
		"new", len(result.NewNames))
	return result, nil
}

// IsUpstreamFailure reports whether err came from the directory rather than the store.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, places.ErrUpstreamUnavailable)
}

func intersects(tags, filters []string) bool {
	for _, t := range tags {
		for _, f := range filters {
			if t == f {
				return true
			}
		}
	}
	return false
}

func toVenue(p places.Place) *domain.Venue {
	v := &domain.Venue{
		ID:          p.ID,
		Name:        p.Name,
		Address:     p.Vicinity,
		Lat:         p.Location.Lat,
		Lng:         p.Location.Lng,
		PriceLevel:  p.PriceLevel,
		Rating:      p.Rating,
		RatingCount: p.UserRatingsTotal,
		Types:       p.Types,
		OpenNow:     domain.OpenUnknown,
	}
	if p.OpenNow != nil {
		if *p.OpenNow {
			v.OpenNow = domain.OpenNow
		} else {
			v.OpenNow = domain.Closed
		}
	}
	if p.PhotoRef != "" {
		ref := p.PhotoRef
		v.PhotoRef = &ref
	}
	return v
}
