package achievement

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type harness struct {
	t            *testing.T
	chores       *store.ChoreStore
	profiles     *store.ProfileStore
	achievements *store.AchievementStore
	eval         *Evaluator
	userID       int64
	clock        time.Time
}

func setup(t *testing.T) *harness {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	u, err := users.Register("sam@example.com", "sam", "hash", "Sam")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	h := &harness{
		t:            t,
		chores:       store.NewChoreStore(db),
		profiles:     store.NewProfileStore(db),
		achievements: store.NewAchievementStore(db),
		userID:       u.ID,
		clock:        time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
	h.eval = New(h.chores, h.profiles, h.achievements, WithClock(func() time.Time { return h.clock }))
	return h
}

// complete stores a completed chore for the harness user and evaluates it.
func (h *harness) complete(completedAt time.Time, category string, due *time.Time) *Result {
	h.t.Helper()
	c, err := h.chores.Create(store.ChoreParams{
		Title:       "chore",
		AssigneeID:  &h.userID,
		DueDate:     due,
		CompletedAt: &completedAt,
		Category:    category,
	})
	if err != nil {
		h.t.Fatalf("create chore: %v", err)
	}
	res, err := h.eval.Evaluate(Trigger{
		UserID:      h.userID,
		ChoreID:     c.ID,
		CompletedAt: completedAt,
		DueDate:     due,
		Category:    category,
	})
	if err != nil {
		h.t.Fatalf("evaluate: %v", err)
	}
	return res
}

func (h *harness) profile() *model.Profile {
	h.t.Helper()
	p, err := h.profiles.GetByUserID(h.userID)
	if err != nil {
		h.t.Fatalf("get profile: %v", err)
	}
	return p
}

func (h *harness) achievement(title string) *model.Achievement {
	h.t.Helper()
	a, err := h.achievements.GetByUserTitle(h.userID, title)
	if err != nil {
		h.t.Fatalf("get achievement: %v", err)
	}
	return a
}

func titles(as []model.Achievement) map[string]bool {
	m := make(map[string]bool)
	for _, a := range as {
		m[a.Title] = true
	}
	return m
}

func TestEvaluateFirstCompletion(t *testing.T) {
	h := setup(t)
	res := h.complete(at(1, 10), "kitchen", nil)

	if res.Profile.CurrentStreak != 1 || res.Profile.LongestStreak != 1 {
		t.Errorf("streak = %d/%d, want 1/1", res.Profile.CurrentStreak, res.Profile.LongestStreak)
	}
	if len(res.Unlocked) != 1 || res.Unlocked[0].Title != "1 Chores Completed" {
		t.Fatalf("unlocked = %v, want only 1 Chores Completed", titles(res.Unlocked))
	}
	a := res.Unlocked[0]
	if !a.Completed || a.Progress != a.Requirement || a.CompletedAt == nil {
		t.Errorf("achievement not fully unlocked: %+v", a)
	}
	if a.Rarity != model.RarityCommon || a.Points != 10 {
		t.Errorf("rarity/points = %s/%d, want common/10", a.Rarity, a.Points)
	}
}

func TestEvaluateStreakScenario(t *testing.T) {
	h := setup(t)

	h.complete(at(1, 10), "", nil)
	h.complete(at(2, 10), "", nil)
	res := h.complete(at(3, 10), "", nil)
	if res.Profile.CurrentStreak != 3 {
		t.Fatalf("streak after day 3 = %d, want 3", res.Profile.CurrentStreak)
	}
	if a := h.achievement("2-Day Streak"); a == nil || !a.Completed {
		t.Error("2-Day Streak not unlocked")
	}

	res = h.complete(at(6, 10), "", nil)
	if res.Profile.CurrentStreak != 1 {
		t.Errorf("streak after gap = %d, want 1", res.Profile.CurrentStreak)
	}
	if res.Profile.LongestStreak != 3 {
		t.Errorf("longest = %d, want 3", res.Profile.LongestStreak)
	}
}

func TestEvaluateSameDayNoDoubleCount(t *testing.T) {
	h := setup(t)
	h.complete(at(1, 8), "", nil)
	h.complete(at(2, 8), "", nil)
	res := h.complete(at(2, 19), "", nil)

	if res.Profile.CurrentStreak != 2 {
		t.Errorf("streak = %d, want 2", res.Profile.CurrentStreak)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	h := setup(t)
	h.complete(at(1, 7), "kitchen", nil)
	h.complete(at(2, 7), "garden", nil)

	due := at(2, 0)
	completedAt := at(3, 7)
	c, err := h.chores.Create(store.ChoreParams{Title: "late", AssigneeID: &h.userID, DueDate: &due, CompletedAt: &completedAt})
	if err != nil {
		t.Fatalf("create chore: %v", err)
	}
	trigger := Trigger{UserID: h.userID, ChoreID: c.ID, CompletedAt: completedAt, DueDate: &due}

	if _, err := h.eval.Evaluate(trigger); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	profileBefore := h.profile()
	achievementsBefore, err := h.achievements.ListByUser(h.userID)
	if err != nil {
		t.Fatalf("list achievements: %v", err)
	}

	h.clock = h.clock.Add(48 * time.Hour)
	res, err := h.eval.Evaluate(trigger)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(res.Unlocked) != 0 {
		t.Errorf("second pass unlocked %v", titles(res.Unlocked))
	}

	profileAfter := h.profile()
	if profileAfter.CurrentStreak != profileBefore.CurrentStreak ||
		profileAfter.LongestStreak != profileBefore.LongestStreak ||
		profileAfter.StreakDate != profileBefore.StreakDate {
		t.Errorf("profile changed: %+v -> %+v", profileBefore, profileAfter)
	}

	achievementsAfter, err := h.achievements.ListByUser(h.userID)
	if err != nil {
		t.Fatalf("list achievements: %v", err)
	}
	if len(achievementsAfter) != len(achievementsBefore) {
		t.Fatalf("achievement count %d -> %d", len(achievementsBefore), len(achievementsAfter))
	}
	for i := range achievementsBefore {
		b, a := achievementsBefore[i], achievementsAfter[i]
		if b.Title != a.Title || b.Completed != a.Completed || b.Progress != a.Progress ||
			!b.CompletedAt.Equal(*a.CompletedAt) || b.Points != a.Points || b.Rarity != a.Rarity {
			t.Errorf("achievement %q changed: %+v -> %+v", b.Title, b, a)
		}
	}
}

func TestEvaluateOverdueHeroOnce(t *testing.T) {
	h := setup(t)
	due := at(1, 9)
	h.complete(at(1, 12), "", &due)
	h.complete(at(1, 13), "", &due)

	list, err := h.achievements.ListByUser(h.userID)
	if err != nil {
		t.Fatalf("list achievements: %v", err)
	}
	count := 0
	for _, a := range list {
		if a.Title == "Overdue Hero" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Overdue Hero rows = %d, want 1", count)
	}
}

func TestEvaluateVariety(t *testing.T) {
	h := setup(t)
	for i, cat := range []string{"kitchen", "laundry", "garden", "pets", "bath"} {
		h.complete(at(1, 10+i), cat, nil)
	}
	if a := h.achievement("Variety Explorer"); a == nil || !a.Completed {
		t.Errorf("Variety Explorer = %+v, want completed", a)
	}

	h.complete(at(1, 16), "garage", nil)
	if a := h.achievement("Category Master"); a != nil {
		t.Errorf("Category Master = %+v, want none", a)
	}
}

func TestEvaluateLightningFast(t *testing.T) {
	h := setup(t)
	start := at(4, 10)
	step := (119 * time.Minute) / 9
	var unlocked []model.Achievement
	for i := 0; i < 10; i++ {
		res := h.complete(start.Add(time.Duration(i)*step), "", nil)
		unlocked = append(unlocked, res.Unlocked...)
	}

	var lf *model.Achievement
	for i := range unlocked {
		if unlocked[i].Title == "Lightning Fast" {
			lf = &unlocked[i]
		}
	}
	if lf == nil {
		t.Fatalf("Lightning Fast not unlocked; got %v", titles(unlocked))
	}
	if lf.Rarity != model.RarityEpic || lf.Points != 150 {
		t.Errorf("Lightning Fast = %s/%d, want epic/150", lf.Rarity, lf.Points)
	}
	if !titles(unlocked)["Speed Demon"] {
		t.Error("Speed Demon not unlocked")
	}
}

func TestEvaluateCompletesLockedAchievement(t *testing.T) {
	h := setup(t)
	locked, err := h.achievements.Create(model.Achievement{
		UserID:      h.userID,
		Title:       "1 Chores Completed",
		Category:    model.AchievementCompletion,
		Requirement: 1,
		Rarity:      model.RarityRare,
		Points:      999,
	})
	if err != nil || locked == nil {
		t.Fatalf("create locked: %v %v", locked, err)
	}

	res := h.complete(at(1, 10), "", nil)
	if len(res.Unlocked) != 1 || res.Unlocked[0].ID != locked.ID {
		t.Fatalf("unlocked = %+v, want existing row %d", res.Unlocked, locked.ID)
	}
	got := res.Unlocked[0]
	if !got.Completed || got.Progress != 1 {
		t.Errorf("not completed: %+v", got)
	}
	// rarity and points are fixed when the row is created
	if got.Rarity != model.RarityRare || got.Points != 999 {
		t.Errorf("rarity/points recomputed: %s/%d", got.Rarity, got.Points)
	}
}

func TestEvaluateProfileMissing(t *testing.T) {
	h := setup(t)
	_, err := h.eval.Evaluate(Trigger{UserID: h.userID + 100, ChoreID: 1, CompletedAt: at(1, 1)})
	if !errors.Is(err, ErrProfileMissing) {
		t.Errorf("err = %v, want ErrProfileMissing", err)
	}
}

// memCompletions serves a fixed history without touching the chore table.
type memCompletions []model.Completion

func (m memCompletions) ListCompletedByAssignee(int64) ([]model.Completion, error) {
	return append([]model.Completion(nil), m...), nil
}

func TestEvaluateFiveHundredCompletions(t *testing.T) {
	h := setup(t)
	history := spaced(time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC), 500, 7*time.Hour)
	eval := New(memCompletions(history), h.profiles, h.achievements)

	last := history[len(history)-1]
	res, err := eval.Evaluate(Trigger{UserID: h.userID, ChoreID: last.ChoreID, CompletedAt: last.CompletedAt})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	want := map[string]model.Rarity{
		"1 Chores Completed":   model.RarityCommon,
		"10 Chores Completed":  model.RarityCommon,
		"50 Chores Completed":  model.RarityRare,
		"100 Chores Completed": model.RarityEpic,
		"500 Chores Completed": model.RarityLegendary,
	}
	got := make(map[string]model.Rarity)
	for _, a := range res.Unlocked {
		got[a.Title] = a.Rarity
	}
	for title, rarity := range want {
		r, ok := got[title]
		if !ok {
			t.Errorf("%s not unlocked", title)
			continue
		}
		if r != rarity {
			t.Errorf("%s rarity = %s, want %s", title, r, rarity)
		}
	}
}

func TestEvaluateConcurrentSameUser(t *testing.T) {
	h := setup(t)
	completedAt := at(1, 10)
	c, err := h.chores.Create(store.ChoreParams{Title: "c", AssigneeID: &h.userID, CompletedAt: &completedAt})
	if err != nil {
		t.Fatalf("create chore: %v", err)
	}
	trigger := Trigger{UserID: h.userID, ChoreID: c.ID, CompletedAt: completedAt}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.eval.Evaluate(trigger); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("evaluate: %v", err)
	}

	p := h.profile()
	if p.CurrentStreak != 1 || p.LongestStreak != 1 {
		t.Errorf("streak = %d/%d, want 1/1", p.CurrentStreak, p.LongestStreak)
	}
	list, err := h.achievements.ListByUser(h.userID)
	if err != nil {
		t.Fatalf("list achievements: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("achievement rows = %d, want 1", len(list))
	}
}

func TestLongestNeverBelowCurrent(t *testing.T) {
	h := setup(t)
	days := []int{1, 2, 3, 4, 8, 9, 15, 16, 17, 18, 19, 20}
	for _, d := range days {
		res := h.complete(at(d, 12), "", nil)
		if res.Profile.LongestStreak < res.Profile.CurrentStreak {
			t.Fatalf("day %d: longest %d < current %d", d, res.Profile.LongestStreak, res.Profile.CurrentStreak)
		}
	}
	p := h.profile()
	if p.CurrentStreak != 6 || p.LongestStreak != 6 {
		t.Errorf("streak = %d/%d, want 6/6", p.CurrentStreak, p.LongestStreak)
	}
}
