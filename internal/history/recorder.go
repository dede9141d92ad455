// Package history records confirmed venue choices and derives the recency
// exclusion set used by recommendations.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/ashureev/lunch-picker/internal/store"
)

// DefaultWindowDays is the trailing window for recency exclusion.
const DefaultWindowDays = 3

// Recorder enforces one choice per user per calendar day.
type Recorder struct {
	history  store.ChoiceHistory
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder creates a Recorder whose calendar days are taken in loc.
func NewRecorder(history store.ChoiceHistory, loc *time.Location, opts ...Option) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	r := &Recorder{history: history, location: loc, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetClock replaces the time source used by RecentVenueIDs.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// RecordChoice stores venueID as the user's choice for the day containing now.
// Confirming the same venue again that day is a no-op reported as
// store.ChoiceDuplicate; a different venue replaces the earlier record.
func (r *Recorder) RecordChoice(ctx context.Context, userID, venueID string, now time.Time) (store.ChoiceOutcome, error) {
	if userID == "" || venueID == "" {
		return 0, fmt.Errorf("record choice: user and venue are required")
	}

	dayStart, dayEnd := domain.DayBounds(now, r.location)
	outcome, err := r.history.ApplyDailyChoice(ctx, &domain.ChoiceRecord{
		UserID:   userID,
		VenueID:  venueID,
		ChosenAt: now,
	}, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("record choice: %w", err)
	}

	r.logger.Info("Choice recorded", "user_id", userID, "venue_id", venueID, "outcome", outcome.String())
	return outcome, nil
}

// RecentVenueIDs returns the venues the user chose within the trailing windowDays.
func (r *Recorder) RecentVenueIDs(ctx context.Context, userID string, windowDays int) (map[string]struct{}, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	since := r.now().Add(-time.Duration(windowDays) * 24 * time.Hour)

	records, err := r.history.ChoicesSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("recent choices: %w", err)
	}

	ids := make(map[string]struct{}, len(records))
	for _, rec := range records {
		ids[rec.VenueID] = struct{}{}
	}
	return ids, nil
}
