package conversation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/ashureev/lunch-picker/internal/history"
	"github.com/ashureev/lunch-picker/internal/recommend"
	"github.com/ashureev/lunch-picker/internal/session"
	"github.com/ashureev/lunch-picker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecommender struct {
	mu       sync.Mutex
	requests []recommend.Request
	venues   []domain.Venue
	err      error
}

func (f *fakeRecommender) Recommend(_ context.Context, req recommend.Request) ([]domain.Venue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.venues, nil
}

func (f *fakeRecommender) calls() []recommend.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recommend.Request(nil), f.requests...)
}

type fakeChoices struct {
	recent    map[string]struct{}
	recentErr error
	outcome   store.ChoiceOutcome
	recorded  []string
}

func (f *fakeChoices) RecordChoice(_ context.Context, userID, venueID string, _ time.Time) (store.ChoiceOutcome, error) {
	f.recorded = append(f.recorded, userID+"/"+venueID)
	return f.outcome, nil
}

func (f *fakeChoices) RecentVenueIDs(context.Context, string, int) (map[string]struct{}, error) {
	return f.recent, f.recentErr
}

type fixture struct {
	machine  *Machine
	sessions *session.MemoryStore
	rec      *fakeRecommender
	choices  *fakeChoices
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewMemoryStore(10 * time.Minute),
		rec:      &fakeRecommender{},
		choices:  &fakeChoices{outcome: store.ChoiceCreated},
		now:      time.Date(2026, 5, 6, 11, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.sessions.SetClock(clock)
	f.machine = NewMachine(f.sessions, f.rec, f.choices, WithClock(clock))
	return f
}

func TestGreetingPromptsForCategory(t *testing.T) {
	for _, text := range []string{"午餐", "午餐?", "午餐？", "  午餐  "} {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)
			reply := f.machine.Handle(context.Background(), "U", text)

			assert.Equal(t, ReplyPrompt, reply.Kind)
			assert.Equal(t, TextCategoryPrompt, reply.Text)
			require.Len(t, reply.QuickReplies, 4)
			assert.Equal(t, "類型:飯", reply.QuickReplies[0].Text)
			assert.Equal(t, "不限", reply.QuickReplies[3].Label)
			assert.Zero(t, f.sessions.Len(), "greeting does not create a session")
		})
	}
}

func TestCategoryThenBudgetRecommendsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.machine.Handle(ctx, "U", "類型:麵")
	assert.Equal(t, ReplyPrompt, reply.Kind)
	assert.Equal(t, "已選「麵」，預算多少？", reply.Text)
	require.Len(t, reply.QuickReplies, 3)
	assert.Equal(t, "預算:$$", reply.QuickReplies[1].Text)

	f.now = f.now.Add(time.Minute)
	f.machine.Handle(ctx, "U", "類型:飯")
	assert.Empty(t, f.rec.calls(), "category selection alone never recommends")

	f.now = f.now.Add(time.Minute)
	reply = f.machine.Handle(ctx, "U", "預算:$$")
	assert.Equal(t, ReplyRecommendation, reply.Kind)

	calls := f.rec.calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Category)
	assert.Equal(t, "飯", calls[0].Category.Label)
	require.NotNil(t, calls[0].Budget)
	assert.Equal(t, 2, calls[0].Budget.MaxPrice)
	assert.Zero(t, f.sessions.Len(), "session cleared after recommendation")
}

func TestFullWidthColonIsNormalized(t *testing.T) {
	f := newFixture(t)
	reply := f.machine.Handle(context.Background(), "U", "類型：咖啡")
	assert.Equal(t, ReplyPrompt, reply.Kind)

	s, err := f.sessions.Get(context.Background(), "U")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "cafe", s.Category.FilterKey)
	assert.Equal(t, domain.StageCategorySelected, s.Stage)
}

func TestExpiredSessionRestartsDialogue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.machine.Handle(ctx, "U", "類型:咖啡")
	f.now = f.now.Add(10*time.Minute + time.Second)

	reply := f.machine.Handle(ctx, "U", "預算:$")
	assert.Equal(t, ReplyPrompt, reply.Kind)
	assert.Equal(t, TextCategoryPrompt, reply.Text)
	assert.Empty(t, f.rec.calls(), "a stale budget tap never recommends")
	assert.Zero(t, f.sessions.Len(), "nothing is written for the restarted dialogue")
}

func TestBudgetWithoutCategoryPromptsForCategory(t *testing.T) {
	f := newFixture(t)

	reply := f.machine.Handle(context.Background(), "U", "預算:$$")
	assert.Equal(t, ReplyPrompt, reply.Kind)
	assert.Equal(t, TextCategoryPrompt, reply.Text)
	require.Len(t, reply.QuickReplies, len(domain.Categories))
	assert.Empty(t, f.rec.calls())
	assert.Zero(t, f.sessions.Len())
}

func TestInboundMessageSweepsOtherUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.machine.Handle(ctx, "A", "類型:飯")
	f.now = f.now.Add(11 * time.Minute)
	f.machine.Handle(ctx, "B", "hello")

	assert.Zero(t, f.sessions.Len())
}

func TestChoiceConfirmationSweepsOtherUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.machine.Handle(ctx, "A", "類型:飯")
	f.now = f.now.Add(11 * time.Minute)
	f.machine.Confirm(ctx, "B", "v1")

	assert.Zero(t, f.sessions.Len(), "A's stale session is evicted by B's confirmation")
}

func TestSearchBypassesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.machine.Handle(ctx, "U", "類型:飯")
	reply := f.machine.Handle(ctx, "U", "搜尋  牛肉麵 ")
	assert.Equal(t, ReplyRecommendation, reply.Kind)

	calls := f.rec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "牛肉麵", calls[0].Keyword)
	assert.Nil(t, calls[0].Category)
	assert.Nil(t, calls[0].Budget)

	s, _ := f.sessions.Get(ctx, "U")
	require.NotNil(t, s, "search leaves the session alone")
	assert.Equal(t, "飯", s.Category.Label)
}

func TestShortcutUsesCurrentSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.machine.Handle(ctx, "U", "類型:咖啡")
	f.machine.Handle(ctx, "U", "找午餐")
	f.machine.Handle(ctx, "U", "找午餐")

	calls := f.rec.calls()
	require.Len(t, calls, 2)
	require.NotNil(t, calls[0].Category)
	assert.Equal(t, "咖啡", calls[0].Category.Label)
	assert.Nil(t, calls[1].Category, "session consumed by the first shortcut")
}

func TestUnrecognizedTextIsHelp(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"hello", "", "類型:披薩", "預算:$$$$", "搜尋", "選擇:"} {
		reply := f.machine.Handle(context.Background(), "U", text)
		assert.Equal(t, ReplyHelp, reply.Kind, text)
		assert.Equal(t, TextHelp, reply.Text)
	}
	assert.Empty(t, f.rec.calls())
	assert.Zero(t, f.sessions.Len())
}

func TestRecommendationReplies(t *testing.T) {
	f := newFixture(t)
	rating := 4.5
	f.rec.venues = []domain.Venue{
		{ID: "a", Name: "阜瑪烤肉飯", Address: "台中市西屯區", Rating: &rating},
		{ID: "b", Name: "無名麵店", Address: "福和里"},
	}

	reply := f.machine.Handle(context.Background(), "U", "找午餐")
	assert.Equal(t, ReplyRecommendation, reply.Kind)
	assert.Len(t, reply.Venues, 2)
	assert.Equal(t, "阜瑪烤肉飯 (4.5⭐)\n台中市西屯區\n\n無名麵店 (N/A⭐)\n福和里", reply.Text)
}

func TestEmptyRecommendation(t *testing.T) {
	f := newFixture(t)
	reply := f.machine.Handle(context.Background(), "U", "找午餐")
	assert.Equal(t, ReplyRecommendation, reply.Kind)
	assert.Equal(t, TextNoMatch, reply.Text)
	assert.NotNil(t, reply.Venues)
	assert.Empty(t, reply.Venues)
}

func TestRecommendationFailureIsTryAgain(t *testing.T) {
	f := newFixture(t)
	f.rec.err = fmt.Errorf("%w: disk I/O error", recommend.ErrUnavailable)
	ctx := context.Background()

	f.machine.Handle(ctx, "U", "類型:飯")
	reply := f.machine.Handle(ctx, "U", "預算:$")
	assert.Equal(t, ReplyError, reply.Kind)
	assert.Equal(t, TextTryAgain, reply.Text)
	assert.Zero(t, f.sessions.Len(), "session cleared regardless of outcome")
}

func TestHistoryFailureIsTryAgain(t *testing.T) {
	f := newFixture(t)
	f.choices.recentErr = errors.New("locked")

	reply := f.machine.Handle(context.Background(), "U", "搜尋 飯")
	assert.Equal(t, ReplyError, reply.Kind)
	assert.Empty(t, f.rec.calls())
}

func TestRecentChoicesAreExcluded(t *testing.T) {
	f := newFixture(t)
	f.choices.recent = map[string]struct{}{"v1": {}}

	f.machine.Handle(context.Background(), "U", "找午餐")
	calls := f.rec.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Exclude, "v1")
}

func TestConfirmOutcomes(t *testing.T) {
	tests := []struct {
		outcome store.ChoiceOutcome
		want    string
	}{
		{store.ChoiceCreated, TextChoiceCreated},
		{store.ChoiceDuplicate, TextChoiceSame},
		{store.ChoiceReplaced, TextChoiceReplaced},
	}
	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			f := newFixture(t)
			f.choices.outcome = tt.outcome

			reply := f.machine.Confirm(context.Background(), "U", "v1")
			assert.Equal(t, ReplyChoice, reply.Kind)
			assert.Equal(t, tt.want, reply.Text)
			assert.Equal(t, []string{"U/v1"}, f.choices.recorded)
		})
	}
}

func TestChoiceTokenRoutesToConfirm(t *testing.T) {
	f := newFixture(t)
	reply := f.machine.Handle(context.Background(), "U", ChoiceToken("v9"))
	assert.Equal(t, ReplyChoice, reply.Kind)
	assert.Equal(t, []string{"U/v9"}, f.choices.recorded)
}

type lookupFunc func(id string) (*domain.Venue, error)

func (f lookupFunc) GetVenue(_ context.Context, id string) (*domain.Venue, error) { return f(id) }

func TestConfirmUnknownVenue(t *testing.T) {
	f := newFixture(t)
	f.machine = NewMachine(f.sessions, f.rec, f.choices, WithVenueLookup(lookupFunc(func(string) (*domain.Venue, error) {
		return nil, nil
	})))

	reply := f.machine.Confirm(context.Background(), "U", "ghost")
	assert.Equal(t, TextUnknownVenue, reply.Text)
	assert.Empty(t, f.choices.recorded)
}

func TestConcurrentUsersKeepSeparateSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("U%d", i)
			label := domain.Categories[i%len(domain.Categories)].Label
			f.machine.Handle(ctx, user, "類型:"+label)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, f.sessions.Len())

	s, err := f.sessions.Get(ctx, "U2")
	require.NoError(t, err)
	assert.Equal(t, domain.Categories[2].Label, s.Category.Label)
	assert.Zero(t, f.machine.locks.len(), "per-user locks are released after use")
}

func TestUserLockSerializesAndReleases(t *testing.T) {
	var table lockTable
	var active, peak int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := table.lock("U")
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak, "one holder per user at a time")
	assert.Zero(t, table.len())
}

// End to end against SQLite: a venue confirmed yesterday is never recommended.
func TestRecencyExclusionWithStore(t *testing.T) {
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "lunch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	now := time.Date(2026, 5, 6, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"yesterday", "old", "fresh"} {
		_, err := db.UpsertVenue(ctx, &domain.Venue{ID: id, Name: id + "飯館", Types: []string{"restaurant"}}, now)
		require.NoError(t, err)
	}

	recorder := history.NewRecorder(db, time.UTC)
	recorder.SetClock(func() time.Time { return now })
	_, err = recorder.RecordChoice(ctx, "U", "yesterday", now.AddDate(0, 0, -1))
	require.NoError(t, err)
	_, err = recorder.RecordChoice(ctx, "U", "old", now.AddDate(0, 0, -4))
	require.NoError(t, err)

	m := NewMachine(session.NewMemoryStore(time.Minute), recommend.NewEngine(db), recorder,
		WithClock(func() time.Time { return now }), WithWindowDays(3), WithVenueLookup(db))

	reply := m.Handle(ctx, "U", "搜尋 飯館")
	require.Equal(t, ReplyRecommendation, reply.Kind)
	got := make([]string, 0, len(reply.Venues))
	for _, v := range reply.Venues {
		got = append(got, v.ID)
	}
	assert.ElementsMatch(t, []string{"old", "fresh"}, got)
}
