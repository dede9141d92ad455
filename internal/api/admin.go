package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ashureev/lunch-picker/internal/bot"
	"github.com/ashureev/lunch-picker/internal/catalog"
	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/ashureev/lunch-picker/internal/recommend"
	"github.com/ashureev/lunch-picker/internal/store"
	"github.com/go-chi/chi/v5"
)

// SyncTrigger runs a catalog sync cycle on demand.
type SyncTrigger interface {
	RunScheduledSync(ctx context.Context) (*bot.Notification, error)
}

// Recommender ranks venues for a preference request.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) ([]domain.Venue, error)
}

// ChoiceLog records confirmations and reports recent choices.
type ChoiceLog interface {
	RecordChoice(ctx context.Context, userID, venueID string, now time.Time) (store.ChoiceOutcome, error)
	RecentVenueIDs(ctx context.Context, userID string, windowDays int) (map[string]struct{}, error)
}

// AdminHandler exposes operational endpoints for the catalog and history.
type AdminHandler struct {
	*Handler
	syncer      SyncTrigger
	recommender Recommender
	choices     ChoiceLog
	windowDays  int
	now         func() time.Time
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(base *Handler, syncer SyncTrigger, recommender Recommender, choices ChoiceLog, windowDays int) *AdminHandler {
	return &AdminHandler{
		Handler:     base,
		syncer:      syncer,
		recommender: recommender,
		choices:     choices,
		windowDays:  windowDays,
		now:         time.Now,
	}
}

// RegisterRoutes registers the admin routes. protect wraps every route
// except health.
func (h *AdminHandler) RegisterRoutes(r chi.Router, protect func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Group(func(r chi.Router) {
			r.Use(protect)
			r.Post("/sync", h.Sync)
			r.Get("/recommend", h.Recommend)
			r.Post("/choices", h.RecordChoice)
			r.Get("/choices/{userID}", h.RecentChoices)
		})
	})
}

// Sync runs a catalog sync cycle and reports what was discovered.
func (h *AdminHandler) Sync(w http.ResponseWriter, r *http.Request) {
	n, err := h.syncer.RunScheduledSync(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if catalog.IsUpstreamFailure(err) {
			status = http.StatusBadGateway
		}
		Error(w, status, err.Error())
		return
	}

	resp := map[string]interface{}{
		"new_names": []string{},
		"pushed":    false,
	}
	if n != nil {
		resp["new_names"] = n.NewNames
		resp["pushed"] = n.Pushed
	}
	JSON(w, http.StatusOK, resp)
}

// Recommend serves a ranked list for query parameters user, keyword,
// category and budget.
func (h *AdminHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := recommend.Request{Keyword: q.Get("keyword")}

	if label := q.Get("category"); label != "" {
		c, ok := domain.LookupCategory(label)
		if !ok {
			Error(w, http.StatusBadRequest, "unknown category")
			return
		}
		req.Category = &c
	}
	if label := q.Get("budget"); label != "" {
		b, ok := domain.LookupBudget(label)
		if !ok {
			Error(w, http.StatusBadRequest, "unknown budget")
			return
		}
		req.Budget = &b
	}

	ctx := r.Context()
	if user := q.Get("user"); user != "" {
		exclude, err := h.choices.RecentVenueIDs(ctx, user, h.windowDays)
		if err != nil {
			slog.Error("Failed to load recent choices", "user_id", user, "error", err)
			Error(w, http.StatusServiceUnavailable, "history unavailable")
			return
		}
		req.Exclude = exclude
	}

	venues, err := h.recommender.Recommend(ctx, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, recommend.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		Error(w, status, "recommendation unavailable")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"venues": venues})
}

type recordChoiceRequest struct {
	UserID  string `json:"user_id"`
	VenueID string `json:"venue_id"`
	// DaysAgo backdates the choice, for seeding history.
	DaysAgo int `json:"days_ago"`
}

// RecordChoice records a venue choice for a user.
func (h *AdminHandler) RecordChoice(w http.ResponseWriter, r *http.Request) {
	var body recordChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.UserID == "" || body.VenueID == "" || body.DaysAgo < 0 {
		Error(w, http.StatusBadRequest, "user_id and venue_id are required")
		return
	}

	at := h.now().AddDate(0, 0, -body.DaysAgo)
	outcome, err := h.choices.RecordChoice(r.Context(), body.UserID, body.VenueID, at)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to record choice")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"outcome":   outcome.String(),
		"chosen_at": at.Format(time.RFC3339),
	})
}

// RecentChoices lists the venues a user chose within the recency window,
// or within ?days= when given.
func (h *AdminHandler) RecentChoices(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	days := h.windowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	recent, err := h.choices.RecentVenueIDs(r.Context(), userID, days)
	if err != nil {
		Error(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	ids := make([]string, 0, len(recent))
	for id := range recent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":   userID,
		"days":      days,
		"venue_ids": ids,
	})
}
