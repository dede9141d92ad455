package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ashureev/lunch-picker/internal/config"
	"github.com/ashureev/lunch-picker/internal/places"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncOrigin(t *testing.T) {
	lat, lng := 24.18, 120.61
	cfg := &config.Config{Sync: config.SyncConfig{
		OriginQuery:  "5JJ8+QQ",
		FallbackLat:  &lat,
		FallbackLng:  &lng,
		RadiusMeters: 700,
		Types:        []string{"restaurant"},
	}}

	origin := SyncOrigin(cfg)
	assert.Equal(t, []string{"5JJ8+QQ", "5JJ8+QQ, Taichung, Taiwan"}, origin.Queries)
	require.NotNil(t, origin.Fallback)
	assert.Equal(t, places.LatLng{Lat: 24.18, Lng: 120.61}, *origin.Fallback)
	assert.Equal(t, 700, origin.Radius)
	assert.Equal(t, []string{"restaurant"}, origin.Filters)

	cfg.Sync.OriginQuery = ""
	cfg.Sync.FallbackLng = nil
	origin = SyncOrigin(cfg)
	assert.Empty(t, origin.Queries)
	assert.Nil(t, origin.Fallback)
}

type noDirectory struct{}

func (noDirectory) Geocode(context.Context, string) (places.LatLng, error) {
	return places.LatLng{}, places.ErrNotFound
}

func (noDirectory) SearchNearby(context.Context, places.NearbyRequest) (places.Page, error) {
	return places.Page{Status: places.StatusZeroResults}, nil
}

func TestNewCore(t *testing.T) {
	cfg := &config.Config{
		DBPath:   filepath.Join(t.TempDir(), "nested", "lunch.db"),
		TimeZone: "Asia/Taipei",
		Sync:     config.SyncConfig{RadiusMeters: 700, Types: []string{"restaurant"}, MaxPages: 1},
	}

	core, err := NewCore(cfg, noDirectory{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })

	require.NoError(t, core.Repo.Ping(context.Background()))
	_, err = core.Catalog.RunOnce(context.Background())
	require.ErrorIs(t, err, places.ErrNotFound, "no queries and no fallback")
}

func TestNewCoreWithoutAPIKey(t *testing.T) {
	cfg := &config.Config{
		DBPath:   filepath.Join(t.TempDir(), "lunch.db"),
		TimeZone: "Asia/Taipei",
		Sync:     config.SyncConfig{OriginQuery: "office", RadiusMeters: 700, Types: []string{"restaurant"}, MaxPages: 1},
	}

	core, err := NewCore(cfg, nil)
	require.NoError(t, err, "history and recommend work without a directory")
	t.Cleanup(func() { _ = core.Close() })

	_, err = core.Catalog.RunOnce(context.Background())
	require.ErrorIs(t, err, places.ErrMissingAPIKey)
}
