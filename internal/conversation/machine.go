// Package conversation drives the per-user lunch dialogue: category prompt,
// budget prompt, recommendation, and choice confirmation.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/ashureev/lunch-picker/internal/history"
	"github.com/ashureev/lunch-picker/internal/recommend"
	"github.com/ashureev/lunch-picker/internal/session"
	"github.com/ashureev/lunch-picker/internal/store"
)

// Recommender ranks venues for a preference request.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) ([]domain.Venue, error)
}

// ChoiceLog records confirmations and reports recent choices.
type ChoiceLog interface {
	RecordChoice(ctx context.Context, userID, venueID string, now time.Time) (store.ChoiceOutcome, error)
	RecentVenueIDs(ctx context.Context, userID string, windowDays int) (map[string]struct{}, error)
}

// VenueLookup resolves a venue by ID; nil, nil means unknown.
type VenueLookup interface {
	GetVenue(ctx context.Context, id string) (*domain.Venue, error)
}

// Machine is the session state machine. It is safe for concurrent use;
// messages from the same user are handled one at a time.
type Machine struct {
	sessions    session.Store
	recommender Recommender
	choices     ChoiceLog
	venues      VenueLookup
	windowDays  int
	now         func() time.Time
	logger      *slog.Logger

	locks lockTable
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock injects the time source for session touches and choices.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithWindowDays sets the recency exclusion window.
func WithWindowDays(days int) Option {
	return func(m *Machine) { m.windowDays = days }
}

// WithLogger sets the machine logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithVenueLookup enables validation of confirmed venue IDs.
func WithVenueLookup(v VenueLookup) Option {
	return func(m *Machine) { m.venues = v }
}

// NewMachine creates a state machine over the given collaborators.
func NewMachine(sessions session.Store, recommender Recommender, choices ChoiceLog, opts ...Option) *Machine {
	m := &Machine{
		sessions:    sessions,
		recommender: recommender,
		choices:     choices,
		windowDays:  history.DefaultWindowDays,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// sweep evicts expired sessions ahead of every inbound event.
func (m *Machine) sweep(ctx context.Context) {
	if removed, err := m.sessions.Sweep(ctx); err != nil {
		m.logger.Warn("Session sweep failed", "error", err)
	} else if removed > 0 {
		m.logger.Debug("Expired sessions evicted", "count", removed)
	}
}

// Handle advances the user's dialogue for one inbound text and returns the
// single reply to send.
func (m *Machine) Handle(ctx context.Context, userID, text string) Reply {
	m.sweep(ctx)

	unlock := m.locks.lock(userID)
	defer unlock()

	msg := normalize(text)
	switch {
	case isGreeting(msg):
		return categoryPrompt()
	case strings.HasPrefix(msg, prefixCategory):
		return m.selectCategory(ctx, userID, strings.TrimSpace(strings.TrimPrefix(msg, prefixCategory)))
	case strings.HasPrefix(msg, prefixBudget):
		return m.selectBudget(ctx, userID, strings.TrimSpace(strings.TrimPrefix(msg, prefixBudget)))
	case strings.HasPrefix(msg, prefixSearch):
		keyword := strings.TrimSpace(strings.TrimPrefix(msg, prefixSearch))
		return m.recommend(ctx, userID, recommend.Request{Keyword: keyword})
	case msg == cmdShortcut:
		return m.shortcut(ctx, userID)
	case strings.HasPrefix(msg, prefixChoose):
		venueID := strings.TrimSpace(strings.TrimPrefix(msg, prefixChoose))
		if venueID == "" {
			return helpReply()
		}
		return m.confirm(ctx, userID, venueID)
	default:
		return helpReply()
	}
}

// Confirm records venueID as the user's choice for today.
func (m *Machine) Confirm(ctx context.Context, userID, venueID string) Reply {
	m.sweep(ctx)

	unlock := m.locks.lock(userID)
	defer unlock()
	return m.confirm(ctx, userID, venueID)
}

func isGreeting(msg string) bool {
	_, ok := greetings[msg]
	return ok
}

func (m *Machine) selectCategory(ctx context.Context, userID, label string) Reply {
	category, ok := domain.LookupCategory(label)
	if !ok {
		return helpReply()
	}

	s, err := m.loadSession(ctx, userID)
	if err != nil {
		m.logger.Error("Failed to load session", "user_id", userID, "error", err)
		return errorReply()
	}
	s.SelectCategory(category, m.now())
	if err := m.sessions.Put(ctx, s); err != nil {
		m.logger.Error("Failed to save session", "user_id", userID, "error", err)
		return errorReply()
	}
	return budgetPrompt(category)
}

func (m *Machine) selectBudget(ctx context.Context, userID, label string) Reply {
	budget, ok := domain.LookupBudget(label)
	if !ok {
		return helpReply()
	}

	s, err := m.sessions.Get(ctx, userID)
	if err != nil {
		m.logger.Error("Failed to load session", "user_id", userID, "error", err)
		return errorReply()
	}
	// A budget only follows a live category selection; otherwise start over.
	if s == nil || s.Stage != domain.StageCategorySelected {
		return categoryPrompt()
	}
	s.SelectBudget(budget, m.now())

	// The completed session is consumed by this recommendation and never stored.
	m.clearSession(ctx, userID)
	return m.recommend(ctx, userID, recommend.Request{Category: s.Category, Budget: s.Budget})
}

func (m *Machine) shortcut(ctx context.Context, userID string) Reply {
	s, err := m.sessions.Get(ctx, userID)
	if err != nil {
		m.logger.Error("Failed to load session", "user_id", userID, "error", err)
		return errorReply()
	}

	req := recommend.Request{}
	if s != nil {
		req.Category = s.Category
		req.Budget = s.Budget
		m.clearSession(ctx, userID)
	}
	return m.recommend(ctx, userID, req)
}

func (m *Machine) loadSession(ctx context.Context, userID string) (*domain.Session, error) {
	s, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &domain.Session{UserID: userID, Stage: domain.StageIdle}
	}
	return s, nil
}

func (m *Machine) clearSession(ctx context.Context, userID string) {
	if err := m.sessions.Delete(ctx, userID); err != nil {
		m.logger.Warn("Failed to clear session", "user_id", userID, "error", err)
	}
}

func (m *Machine) recommend(ctx context.Context, userID string, req recommend.Request) Reply {
	exclude, err := m.choices.RecentVenueIDs(ctx, userID, m.windowDays)
	if err != nil {
		m.logger.Error("Failed to load recent choices", "user_id", userID, "error", err)
		return errorReply()
	}
	req.Exclude = exclude

	venues, err := m.recommender.Recommend(ctx, req)
	if err != nil {
		m.logger.Error("Recommendation failed", "user_id", userID, "error", err)
		return errorReply()
	}

	m.logger.Info("Recommendation served",
		"user_id", userID,
		"keyword", req.Keyword,
		"excluded", len(exclude),
		"results", len(venues))
	return recommendationReply(venues)
}

func (m *Machine) confirm(ctx context.Context, userID, venueID string) Reply {
	if m.venues != nil {
		v, err := m.venues.GetVenue(ctx, venueID)
		if err != nil {
			m.logger.Error("Failed to look up venue", "venue_id", venueID, "error", err)
			return errorReply()
		}
		if v == nil {
			return Reply{Kind: ReplyChoice, Text: TextUnknownVenue}
		}
	}

	outcome, err := m.choices.RecordChoice(ctx, userID, venueID, m.now())
	if err != nil {
		m.logger.Error("Failed to record choice", "user_id", userID, "venue_id", venueID, "error", err)
		return errorReply()
	}

	switch outcome {
	case store.ChoiceDuplicate:
		return Reply{Kind: ReplyChoice, Text: TextChoiceSame}
	case store.ChoiceReplaced:
		return Reply{Kind: ReplyChoice, Text: TextChoiceReplaced}
	default:
		return Reply{Kind: ReplyChoice, Text: TextChoiceCreated}
	}
}
