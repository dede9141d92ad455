// Package domain contains core domain types for the lunch picker.
package domain

import (
	"slices"
	"time"
)

// OpenState is the tri-state open-now flag reported by the places directory.
type OpenState int

const (
	OpenUnknown OpenState = iota
	OpenNow
	Closed
)

// String returns a short label used in logs and rendered cards.
func (s OpenState) String() string {
	switch s {
	case OpenNow:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Venue is a food venue known to the catalog, keyed by the directory's place ID.
type Venue struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	PriceLevel  *int      `json:"price_level,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	RatingCount *int      `json:"rating_count,omitempty"`
	Types       []string  `json:"types"`
	OpenNow     OpenState `json:"open_now"`
	HoursText   *string   `json:"hours_text,omitempty"`
	PhotoRef    *string   `json:"photo_ref,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// HasType reports whether the venue carries the given category tag.
func (v *Venue) HasType(tag string) bool {
	return slices.Contains(v.Types, tag)
}

// HasAnyType reports whether the venue's tag set intersects tags.
func (v *Venue) HasAnyType(tags []string) bool {
	for _, t := range tags {
		if v.HasType(t) {
			return true
		}
	}
	return false
}
