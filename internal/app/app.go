// Package app assembles the core components shared by the server and the CLI.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/lunch-picker/internal/catalog"
	"github.com/ashureev/lunch-picker/internal/config"
	"github.com/ashureev/lunch-picker/internal/history"
	"github.com/ashureev/lunch-picker/internal/places"
	"github.com/ashureev/lunch-picker/internal/recommend"
	"github.com/ashureev/lunch-picker/internal/store"
)

// cityQuerySuffix disambiguates a bare plus code for the geocoder.
const cityQuerySuffix = ", Taichung, Taiwan"

// Core holds the storage-backed engines.
type Core struct {
	Repo        *store.SQLiteStore
	Directory   places.Directory
	Catalog     *catalog.Engine
	Recommender *recommend.Engine
	Recorder    *history.Recorder
}

// NewCore opens the database and wires the engines. dir overrides the Google
// directory when non-nil. Without an API key the directory is unavailable and
// only sync fails.
func NewCore(cfg *config.Config, dir places.Directory) (*Core, error) {
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	if dir == nil {
		google, err := places.NewGoogleClient(cfg.GoogleAPIKey)
		switch {
		case errors.Is(err, places.ErrMissingAPIKey):
			dir = places.Unavailable(err)
		case err != nil:
			_ = repo.Close()
			return nil, fmt.Errorf("initialize places directory: %w", err)
		default:
			dir = google
		}
	}

	pager := places.NewPager(dir)
	pager.MaxPages = cfg.Sync.MaxPages
	pager.Delay = cfg.Sync.PageDelay

	return &Core{
		Repo:        repo,
		Directory:   dir,
		Catalog:     catalog.NewEngine(dir, pager, repo, SyncOrigin(cfg), catalog.WithLogger(slog.Default())),
		Recommender: recommend.NewEngine(repo),
		Recorder:    history.NewRecorder(repo, cfg.Location(), history.WithLogger(slog.Default())),
	}, nil
}

// Close releases the database.
func (c *Core) Close() error {
	return c.Repo.Close()
}

// SyncOrigin derives the sync origin from configuration: the configured
// query, then the query with a city suffix, then the fallback coordinates.
func SyncOrigin(cfg *config.Config) catalog.Origin {
	origin := catalog.Origin{
		Radius:  cfg.Sync.RadiusMeters,
		Filters: cfg.Sync.Types,
	}
	if q := cfg.Sync.OriginQuery; q != "" {
		origin.Queries = []string{q, q + cityQuerySuffix}
	}
	if cfg.Sync.FallbackLat != nil && cfg.Sync.FallbackLng != nil {
		origin.Fallback = &places.LatLng{Lat: *cfg.Sync.FallbackLat, Lng: *cfg.Sync.FallbackLng}
	}
	return origin
}
