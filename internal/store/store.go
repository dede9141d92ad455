// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/lunch-picker/internal/domain"
)

// VenueQuery is a multi-predicate venue read. All set predicates are ANDed.
type VenueQuery struct {
	// Keyword matches name or address by substring.
	Keyword string
	// FilterKey matches a category tag exactly.
	FilterKey string
	// LabelFallback matches name or address by substring when no FilterKey applies.
	LabelFallback string
	// MaxPrice, when set, requires a known price level <= MaxPrice.
	MaxPrice *int
	// Exclude lists venue IDs that must not be returned.
	Exclude []string
}

// ChoiceOutcome describes what ApplyDailyChoice did.
type ChoiceOutcome int

const (
	// ChoiceCreated means no record existed for the day and one was inserted.
	ChoiceCreated ChoiceOutcome = iota + 1
	// ChoiceReplaced means a record for a different venue was replaced.
	ChoiceReplaced
	// ChoiceDuplicate means the same venue was already recorded; nothing was written.
	ChoiceDuplicate
)

// String returns the outcome name.
func (o ChoiceOutcome) String() string {
	switch o {
	case ChoiceCreated:
		return "created"
	case ChoiceReplaced:
		return "replaced"
	case ChoiceDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// VenueStore persists the venue catalog.
type VenueStore interface {
	// GetVenue retrieves a venue by place ID. Returns nil, nil when absent.
	GetVenue(ctx context.Context, id string) (*domain.Venue, error)

	// UpsertVenue inserts the venue stamped with now, or updates its mutable
	// attributes and advances last_seen. Reports whether a row was inserted.
	UpsertVenue(ctx context.Context, v *domain.Venue, now time.Time) (bool, error)

	// SearchVenues returns matching venues in storage order.
	SearchVenues(ctx context.Context, q VenueQuery) ([]domain.Venue, error)

	// CountVenues returns the catalog size.
	CountVenues(ctx context.Context) (int, error)
}

// ChoiceHistory persists per-day venue choices.
type ChoiceHistory interface {
	// ApplyDailyChoice atomically enforces one record per user per [dayStart, dayEnd).
	ApplyDailyChoice(ctx context.Context, rec *domain.ChoiceRecord, dayStart, dayEnd time.Time) (ChoiceOutcome, error)

	// ChoicesSince lists a user's records chosen at or after since.
	ChoicesSince(ctx context.Context, userID string, since time.Time) ([]domain.ChoiceRecord, error)
}

// Repository is the full durable store used by the service.
type Repository interface {
	VenueStore
	ChoiceHistory

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
