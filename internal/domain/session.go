package domain

import "time"

// Stage is the dialogue position of a user session.
type Stage int

const (
	// StageIdle is equivalent to having no session at all.
	StageIdle Stage = iota
	StageCategorySelected
	StageBudgetSelected
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageCategorySelected:
		return "category_selected"
	case StageBudgetSelected:
		return "budget_selected"
	default:
		return "idle"
	}
}

// Session holds the preference slots a user has filled so far.
type Session struct {
	UserID    string    `json:"user_id"`
	Stage     Stage     `json:"stage"`
	Category  *Category `json:"category,omitempty"`
	Budget    *Budget   `json:"budget,omitempty"`
	TouchedAt time.Time `json:"touched_at"`
}

// SelectCategory records the category slot and advances the stage.
func (s *Session) SelectCategory(c Category, now time.Time) {
	s.Category = &c
	s.Stage = StageCategorySelected
	s.TouchedAt = now
}

// SelectBudget records the budget slot; the session becomes terminal.
func (s *Session) SelectBudget(b Budget, now time.Time) {
	s.Budget = &b
	s.Stage = StageBudgetSelected
	s.TouchedAt = now
}

// Expired reports whether the session is older than ttl at now.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.TouchedAt) > ttl
}
