package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/lunch-picker/internal/places"
	"github.com/ashureev/lunch-picker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	mu      sync.Mutex
	byType  map[string][]places.Page // page index by token "", "1", "2"...
	failOn  string
	calls   atomic.Int32
	gate    chan struct{}
	origins []places.LatLng
}

func (f *fakeDirectory) Geocode(_ context.Context, query string) (places.LatLng, error) {
	if query == "office" {
		return places.LatLng{Lat: 24.18, Lng: 120.61}, nil
	}
	return places.LatLng{}, places.ErrNotFound
}

func (f *fakeDirectory) SearchNearby(_ context.Context, req places.NearbyRequest) (places.Page, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.origins = append(f.origins, req.Origin)
	if req.Type == f.failOn {
		return places.Page{}, &places.UpstreamError{Op: "nearby search", Status: "OVER_QUERY_LIMIT"}
	}
	pages := f.byType[req.Type]
	idx := 0
	if req.PageToken != "" {
		idx = int(req.PageToken[0] - '0')
	}
	if idx >= len(pages) {
		return places.Page{Status: places.StatusZeroResults}, nil
	}
	page := pages[idx]
	if idx+1 < len(pages) {
		page.NextPageToken = string(rune('0' + idx + 1))
	}
	return page, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func place(id, name string, types ...string) places.Place {
	return places.Place{ID: id, Name: name, Vicinity: "西屯區", Types: types}
}

func newEngine(t *testing.T, dir *fakeDirectory, now func() time.Time) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "lunch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	pager := &places.Pager{Directory: dir, MaxPages: 3, Sleep: noSleep}
	origin := Origin{Queries: []string{"office"}, Radius: 700, Filters: []string{"restaurant", "cafe"}}
	return NewEngine(dir, pager, s, origin, WithClock(now)), s
}

func standardDirectory() *fakeDirectory {
	return &fakeDirectory{byType: map[string][]places.Page{
		"restaurant": {
			{Status: places.StatusOK, Items: []places.Place{
				place("p1", "阜瑪烤肉飯", "restaurant", "food"),
				place("p2", "咖啡簡餐", "restaurant", "cafe"),
				place("lodging", "旅館", "lodging"),
			}},
			{Status: places.StatusOK, Items: []places.Place{
				place("p3", "牛肉麵", "restaurant"),
			}},
		},
		"cafe": {
			{Status: places.StatusOK, Items: []places.Place{
				place("p2", "咖啡簡餐", "restaurant", "cafe"),
				place("p4", "路易莎", "cafe"),
			}},
		},
	}}
}

func TestSyncDeduplicatesAndFilters(t *testing.T) {
	dir := standardDirectory()
	t0 := time.Unix(1_700_000_000, 0)
	e, s := newEngine(t, dir, func() time.Time { return t0 })
	ctx := context.Background()

	res, err := e.Sync(ctx, places.LatLng{Lat: 1, Lng: 2}, 700, []string{"restaurant", "cafe"})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Fetched)
	assert.Equal(t, 4, res.Unique)
	assert.Equal(t, []string{"阜瑪烤肉飯", "咖啡簡餐", "牛肉麵", "路易莎"}, res.NewNames)

	n, err := s.CountVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	lodging, err := s.GetVenue(ctx, "lodging")
	require.NoError(t, err)
	assert.Nil(t, lodging, "items outside the filter list are discarded")
}

func TestSyncIsIdempotent(t *testing.T) {
	dir := standardDirectory()
	now := time.Unix(1_700_000_000, 0)
	e, s := newEngine(t, dir, func() time.Time { return now })
	ctx := context.Background()
	filters := []string{"restaurant", "cafe"}

	_, err := e.Sync(ctx, places.LatLng{}, 700, filters)
	require.NoError(t, err)

	now = now.Add(24 * time.Hour)
	res, err := e.Sync(ctx, places.LatLng{}, 700, filters)
	require.NoError(t, err)
	assert.Empty(t, res.NewNames)

	n, err := s.CountVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	v, err := s.GetVenue(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1_700_000_000, 0), v.FirstSeenAt)
	assert.Equal(t, now, v.LastSeenAt)
}

func TestSyncAbortKeepsEarlierFilters(t *testing.T) {
	dir := standardDirectory()
	dir.failOn = "cafe"
	e, s := newEngine(t, dir, time.Now)
	ctx := context.Background()

	_, err := e.Sync(ctx, places.LatLng{}, 700, []string{"restaurant", "cafe"})
	require.Error(t, err)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "cafe", syncErr.Filter)
	assert.True(t, IsUpstreamFailure(err))

	n, err := s.CountVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "restaurant filter results were committed before the failure")
}

func TestSyncZeroResultsIsNotAnError(t *testing.T) {
	dir := &fakeDirectory{byType: map[string][]places.Page{}}
	e, _ := newEngine(t, dir, time.Now)

	res, err := e.Sync(context.Background(), places.LatLng{}, 700, []string{"restaurant"})
	require.NoError(t, err)
	assert.Zero(t, res.Unique)
	assert.Empty(t, res.NewNames)
}

func TestRunOnceResolvesOrigin(t *testing.T) {
	dir := standardDirectory()
	e, _ := newEngine(t, dir, time.Now)

	res, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.NewNames, 4)
	require.NotEmpty(t, dir.origins)
	assert.Equal(t, places.LatLng{Lat: 24.18, Lng: 120.61}, dir.origins[0])
}

func TestRunOnceOriginNotFound(t *testing.T) {
	dir := standardDirectory()
	e, _ := newEngine(t, dir, time.Now)
	e.origin.Queries = []string{"nowhere"}

	_, err := e.RunOnce(context.Background())
	require.ErrorIs(t, err, places.ErrNotFound)
	assert.Zero(t, dir.calls.Load())
}

func TestRunOnceSharesInFlightCycle(t *testing.T) {
	dir := standardDirectory()
	dir.gate = make(chan struct{})
	e, _ := newEngine(t, dir, time.Now)

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.RunOnce(context.Background())
		}(i)
	}

	// Let the first cycle block on the directory, then release it.
	require.Eventually(t, func() bool { return dir.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(dir.gate)
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, int32(3), dir.calls.Load(), "two restaurant pages and one cafe page, fetched once")
	assert.Len(t, results[0].NewNames, 4)
	assert.Same(t, results[0], results[1])
}

func TestSyncErrorMessage(t *testing.T) {
	err := &SyncError{Filter: "cafe", Err: errors.New("boom")}
	assert.Contains(t, err.Error(), `"cafe"`)
	assert.Contains(t, err.Error(), "boom")
}
