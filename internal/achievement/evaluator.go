package achievement

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

// ErrProfileMissing means a user completed a chore but has no profile row.
// Profiles are created alongside users, so this is a data integrity fault.
var ErrProfileMissing = errors.New("achievement: profile missing for user")

// CompletionSource lists a user's completed chores in any order.
type CompletionSource interface {
	ListCompletedByAssignee(userID int64) ([]model.Completion, error)
}

// ProfileUpdater performs an atomic read-modify-write of a user's streak
// fields. It returns (nil, nil) when the user has no profile.
type ProfileUpdater interface {
	UpdateStreak(userID int64, fn func(p *model.Profile) error) (*model.Profile, error)
}

// AchievementWriter is the (user, title) keyed achievement store.
type AchievementWriter interface {
	GetOrCreate(a model.Achievement) (*model.Achievement, bool, error)
	CompleteIfLocked(id int64, at time.Time) (bool, error)
	GetByID(id int64) (*model.Achievement, error)
}

// Trigger describes a chore that has just moved into the completed state.
type Trigger struct {
	UserID      int64
	ChoreID     int64
	CompletedAt time.Time
	DueDate     *time.Time
	Category    string
}

func (t Trigger) completion() model.Completion {
	return model.Completion{
		ChoreID:     t.ChoreID,
		CompletedAt: t.CompletedAt,
		DueDate:     t.DueDate,
		Category:    t.Category,
	}
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Profile *model.Profile
	// Unlocked holds achievements that moved to completed during this pass.
	Unlocked []model.Achievement
}

// Evaluator updates streaks and unlocks achievements when chores are completed.
type Evaluator struct {
	completions  CompletionSource
	profiles     ProfileUpdater
	achievements AchievementWriter
	rules        []Rule
	loc          *time.Location
	now          func() time.Time
	logger       *slog.Logger

	mu    sync.Mutex
	users map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLocation sets the time zone used for calendar days and local hours.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock overrides the clock used to stamp unlocks.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// WithRules replaces the built-in rule table.
func WithRules(rules []Rule) Option {
	return func(e *Evaluator) { e.rules = rules }
}

func New(completions CompletionSource, profiles ProfileUpdater, achievements AchievementWriter, opts ...Option) *Evaluator {
	e := &Evaluator{
		completions:  completions,
		profiles:     profiles,
		achievements: achievements,
		rules:        DefaultRules(),
		loc:          time.UTC,
		now:          time.Now,
		logger:       slog.Default(),
		users:        make(map[int64]*userLock),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the active rule table.
func (e *Evaluator) Rules() []Rule {
	return e.rules
}

// Evaluate runs the streak update and the achievement pass for one completion.
// Callers invoke it only when a chore's completed_at goes from null to set.
// Running it again for the same trigger leaves all state unchanged.
func (e *Evaluator) Evaluate(t Trigger) (*Result, error) {
	unlock := e.lock(t.UserID)
	defer unlock()

	history, err := e.completions.ListCompletedByAssignee(t.UserID)
	if err != nil {
		return nil, fmt.Errorf("load completions: %w", err)
	}
	trigger := t.completion()
	history = withTrigger(history, trigger)
	sortCompletions(history)
	prev := previousCompletion(history, trigger)

	profile, err := e.profiles.UpdateStreak(t.UserID, func(p *model.Profile) error {
		advanceStreak(p, prev, t.CompletedAt, e.loc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update streak: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w %d", ErrProfileMissing, t.UserID)
	}

	facts := &Facts{
		Completions: history,
		Trigger:     trigger,
		Streak:      profile.CurrentStreak,
		Location:    e.loc,
	}
	unlocked, err := e.reconcile(t.UserID, Match(e.rules, facts))
	if err != nil {
		return nil, err
	}

	if len(unlocked) > 0 {
		e.logger.Info("achievements unlocked", "user_id", t.UserID, "count", len(unlocked))
	}
	return &Result{Profile: profile, Unlocked: unlocked}, nil
}

// reconcile makes every qualifying rule's achievement completed and returns
// the ones that changed.
func (e *Evaluator) reconcile(userID int64, qualifying []Rule) ([]model.Achievement, error) {
	var unlocked []model.Achievement
	for _, r := range qualifying {
		at := e.now().UTC()
		ach, changed, err := e.unlock(userID, r, at)
		if err != nil {
			return nil, fmt.Errorf("unlock %q: %w", r.Title, err)
		}
		if changed {
			e.logger.Debug("achievement unlocked", "user_id", userID, "title", r.Title, "rarity", r.Rarity)
			unlocked = append(unlocked, *ach)
		}
	}
	return unlocked, nil
}

// unlock is the single upsert used for every rule: create it completed, or
// complete an existing locked row, or do nothing.
func (e *Evaluator) unlock(userID int64, r Rule, at time.Time) (*model.Achievement, bool, error) {
	ach, created, err := e.achievements.GetOrCreate(r.unlocked(userID, at))
	if err != nil {
		return nil, false, err
	}
	if created {
		return ach, true, nil
	}
	if ach.Completed {
		return ach, false, nil
	}

	changed, err := e.achievements.CompleteIfLocked(ach.ID, at)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return ach, false, nil
	}
	ach, err = e.achievements.GetByID(ach.ID)
	if err != nil {
		return nil, false, err
	}
	if ach == nil {
		return nil, false, fmt.Errorf("achievement %q for user %d deleted during unlock", r.Title, userID)
	}
	return ach, true, nil
}

// withTrigger adds the trigger to history when the store has not yet
// persisted it.
func withTrigger(history []model.Completion, trigger model.Completion) []model.Completion {
	for i, c := range history {
		if c.ChoreID == trigger.ChoreID {
			history[i] = trigger
			return history
		}
	}
	return append(history, trigger)
}

func (e *Evaluator) lock(userID int64) func() {
	e.mu.Lock()
	l, ok := e.users[userID]
	if !ok {
		l = &userLock{}
		e.users[userID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.users, userID)
		}
		e.mu.Unlock()
	}
}
