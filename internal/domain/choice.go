package domain

import "time"

// ChoiceRecord is a user's confirmed venue for one calendar day.
type ChoiceRecord struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	VenueID  string    `json:"venue_id"`
	ChosenAt time.Time `json:"chosen_at"`
}

// DayBounds returns the [start, end) instants of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
