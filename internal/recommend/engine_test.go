package recommend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/ashureev/lunch-picker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func names(venues []domain.Venue) []string {
	out := make([]string, 0, len(venues))
	for _, v := range venues {
		out = append(out, v.Name)
	}
	return out
}

func TestRankByRatingThenCount(t *testing.T) {
	venues := []domain.Venue{
		{Name: "a", Rating: floatPtr(4.8), RatingCount: intPtr(10)},
		{Name: "b", Rating: floatPtr(4.8), RatingCount: intPtr(50)},
		{Name: "c", Rating: floatPtr(4.2), RatingCount: intPtr(5)},
		{Name: "d", Rating: nil, RatingCount: intPtr(100)},
	}
	// Shuffle input order so the test does not pass by accident.
	venues[0], venues[3] = venues[3], venues[0]

	Rank(venues)
	assert.Equal(t, []string{"b", "a", "c", "d"}, names(venues))
}

func TestRankNullCountsLastAndStable(t *testing.T) {
	venues := []domain.Venue{
		{Name: "first", Rating: floatPtr(4.0)},
		{Name: "counted", Rating: floatPtr(4.0), RatingCount: intPtr(1)},
		{Name: "second", Rating: floatPtr(4.0)},
		{Name: "unrated"},
	}
	Rank(venues)
	assert.Equal(t, []string{"counted", "first", "second", "unrated"}, names(venues))
}

func TestBuildQuery(t *testing.T) {
	rice, _ := domain.LookupCategory("飯")
	cafe, _ := domain.LookupCategory("咖啡")
	wildcard, _ := domain.LookupCategory("不限")
	budget, _ := domain.LookupBudget("$$")

	q := BuildQuery(Request{Category: &cafe})
	assert.Equal(t, "cafe", q.FilterKey)
	assert.Empty(t, q.LabelFallback)

	q = BuildQuery(Request{Category: &rice})
	assert.Empty(t, q.FilterKey)
	assert.Equal(t, "飯", q.LabelFallback)

	q = BuildQuery(Request{Category: &wildcard, Budget: &budget, Keyword: "便當"})
	assert.Empty(t, q.FilterKey)
	assert.Empty(t, q.LabelFallback)
	assert.Equal(t, "便當", q.Keyword)
	require.NotNil(t, q.MaxPrice)
	assert.Equal(t, 2, *q.MaxPrice)

	q = BuildQuery(Request{Exclude: map[string]struct{}{"b": {}, "a": {}}})
	assert.Equal(t, []string{"a", "b"}, q.Exclude)

	q = BuildQuery(Request{})
	assert.Equal(t, store.VenueQuery{}, q)
}

func newSeededEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "lunch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := time.Unix(1_700_000_000, 0)
	seed := []domain.Venue{
		{ID: "v1", Name: "雞肉飯", PriceLevel: intPtr(1), Rating: floatPtr(4.8), RatingCount: intPtr(10), Types: []string{"restaurant"}},
		{ID: "v2", Name: "焢肉飯", PriceLevel: intPtr(2), Rating: floatPtr(4.8), RatingCount: intPtr(50), Types: []string{"restaurant"}},
		{ID: "v3", Name: "炒飯", PriceLevel: intPtr(1), Rating: floatPtr(4.2), RatingCount: intPtr(5), Types: []string{"restaurant"}},
		{ID: "v4", Name: "燴飯", Rating: nil, RatingCount: intPtr(100), Types: []string{"restaurant"}},
		{ID: "v5", Name: "咖啡廳", PriceLevel: intPtr(2), Rating: floatPtr(4.9), Types: []string{"cafe"}},
		{ID: "v6", Name: "拉麵", PriceLevel: intPtr(2), Rating: floatPtr(3.9), Types: []string{"restaurant"}},
		{ID: "v7", Name: "鍋燒麵", PriceLevel: intPtr(1), Rating: floatPtr(3.5), Types: []string{"restaurant"}},
	}
	for i := range seed {
		_, err := s.UpsertVenue(context.Background(), &seed[i], now)
		require.NoError(t, err)
	}
	return NewEngine(s)
}

func TestRecommendRanksFilteredCandidates(t *testing.T) {
	e := newSeededEngine(t)
	rice, _ := domain.LookupCategory("飯")

	got, err := e.Recommend(context.Background(), Request{Category: &rice})
	require.NoError(t, err)
	assert.Equal(t, []string{"焢肉飯", "雞肉飯", "炒飯", "燴飯"}, names(got))
}

func TestRecommendCapsAtLimit(t *testing.T) {
	e := newSeededEngine(t)

	got, err := e.Recommend(context.Background(), Request{})
	require.NoError(t, err)
	assert.Len(t, got, DefaultLimit)
	assert.Equal(t, "咖啡廳", got[0].Name)
}

func TestRecommendBudgetExcludesUnknownPrice(t *testing.T) {
	e := newSeededEngine(t)
	rice, _ := domain.LookupCategory("飯")
	budget, _ := domain.LookupBudget("$$$")

	got, err := e.Recommend(context.Background(), Request{Category: &rice, Budget: &budget})
	require.NoError(t, err)
	assert.NotContains(t, names(got), "燴飯")

	got, err = e.Recommend(context.Background(), Request{Category: &rice})
	require.NoError(t, err)
	assert.Contains(t, names(got), "燴飯")
}

func TestRecommendHonorsExclusion(t *testing.T) {
	e := newSeededEngine(t)
	rice, _ := domain.LookupCategory("飯")

	got, err := e.Recommend(context.Background(), Request{
		Category: &rice,
		Exclude:  map[string]struct{}{"v2": {}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"雞肉飯", "炒飯", "燴飯"}, names(got))
}

func TestRecommendEmptyIsNotError(t *testing.T) {
	e := newSeededEngine(t)

	got, err := e.Recommend(context.Background(), Request{Keyword: "披薩"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

type failingStore struct{ store.VenueStore }

func (failingStore) SearchVenues(context.Context, store.VenueQuery) ([]domain.Venue, error) {
	return nil, errors.New("disk I/O error")
}

func TestRecommendStoreFailure(t *testing.T) {
	e := NewEngine(failingStore{})
	_, err := e.Recommend(context.Background(), Request{})
	require.ErrorIs(t, err, ErrUnavailable)
}
