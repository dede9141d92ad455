// Package recommend selects and ranks venues for a user's preferences.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/ashureev/lunch-picker/internal/store"
)

// DefaultLimit is the maximum number of venues returned.
const DefaultLimit = 5

// ErrUnavailable is returned when candidates cannot be read.
var ErrUnavailable = errors.New("recommend: unavailable")

// Request carries the preference state for one recommendation.
type Request struct {
	Keyword  string
	Category *domain.Category
	Budget   *domain.Budget
	Exclude  map[string]struct{}
}

// Engine produces ranked recommendations from the venue store.
type Engine struct {
	venues store.VenueStore
	limit  int
}

// NewEngine creates an Engine returning at most DefaultLimit venues.
func NewEngine(venues store.VenueStore) *Engine {
	return &Engine{venues: venues, limit: DefaultLimit}
}

// Recommend returns up to the engine limit of matching venues, best first.
// No match is an empty slice and a nil error.
func (e *Engine) Recommend(ctx context.Context, req Request) ([]domain.Venue, error) {
	candidates, err := e.venues.SearchVenues(ctx, BuildQuery(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	Rank(candidates)
	if len(candidates) > e.limit {
		candidates = candidates[:e.limit]
	}
	return candidates, nil
}

// BuildQuery translates preference state into store predicates. A category's
// filter key takes precedence over its label; the wildcard category adds no
// constraint. A budget ceiling excludes venues whose price level is unknown.
func BuildQuery(req Request) store.VenueQuery {
	q := store.VenueQuery{Keyword: req.Keyword}

	if c := req.Category; c != nil && !c.Wildcard {
		if c.FilterKey != "" {
			q.FilterKey = c.FilterKey
		} else {
			q.LabelFallback = c.Label
		}
	}

	if req.Budget != nil {
		maxPrice := req.Budget.MaxPrice
		q.MaxPrice = &maxPrice
	}

	if len(req.Exclude) > 0 {
		q.Exclude = make([]string, 0, len(req.Exclude))
		for id := range req.Exclude {
			q.Exclude = append(q.Exclude, id)
		}
		sort.Strings(q.Exclude)
	}
	return q
}

// Rank orders venues by rating then rating count, both descending with
// unknown values last. Equal venues keep their input order.
func Rank(venues []domain.Venue) {
	sort.SliceStable(venues, func(i, j int) bool {
		a, b := venues[i], venues[j]
		if c := compareDesc(a.Rating, b.Rating); c != 0 {
			return c < 0
		}
		return compareDesc(intToFloat(a.RatingCount), intToFloat(b.RatingCount)) < 0
	})
}

// compareDesc returns -1 when a sorts before b.
func compareDesc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a > *b:
		return -1
	case *a < *b:
		return 1
	default:
		return 0
	}
}

func intToFloat(p *int) *float64 {
	if p == nil {
		return nil
	}
	f := float64(*p)
	return &f
}
