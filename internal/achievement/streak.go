package achievement

import (
	"sort"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

// sortCompletions orders completions by (CompletedAt, ChoreID), the total
// order used everywhere "previous" or "most recent" is asked.
func sortCompletions(cs []model.Completion) {
	sort.Slice(cs, func(i, j int) bool {
		return before(cs[i], cs[j])
	})
}

func before(a, b model.Completion) bool {
	if !a.CompletedAt.Equal(b.CompletedAt) {
		return a.CompletedAt.Before(b.CompletedAt)
	}
	return a.ChoreID < b.ChoreID
}

// previousCompletion returns the latest completion strictly before trigger, or
// nil. history must be sorted.
func previousCompletion(history []model.Completion, trigger model.Completion) *model.Completion {
	var prev *model.Completion
	for i := range history {
		if !before(history[i], trigger) {
			break
		}
		prev = &history[i]
	}
	return prev
}

// civilDate truncates t to its calendar date in loc, expressed in UTC so that
// day arithmetic is unaffected by DST transitions.
func civilDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time, loc *time.Location) string {
	return civilDate(t, loc).Format(time.DateOnly)
}

// advanceStreak applies one completion to the profile's streak counters.
//
// Same day as the previous completion leaves the streak alone, the day after
// extends it, anything else restarts it at 1. A day already recorded in
// StreakDate is never counted twice, which keeps repeated evaluation of the
// same completion a no-op.
func advanceStreak(p *model.Profile, prev *model.Completion, completedAt time.Time, loc *time.Location) {
	today := civilDate(completedAt, loc)
	todayKey := today.Format(time.DateOnly)

	switch {
	case p.StreakDate != "" && p.StreakDate >= todayKey:
		// already counted
	case prev == nil:
		p.CurrentStreak = 1
	default:
		prevDay := civilDate(prev.CompletedAt, loc)
		switch {
		case prevDay.Equal(today):
		case prevDay.Equal(today.AddDate(0, 0, -1)):
			p.CurrentStreak++
		default:
			p.CurrentStreak = 1
		}
	}

	if p.CurrentStreak < 1 {
		p.CurrentStreak = 1
	}
	if p.StreakDate < todayKey {
		p.StreakDate = todayKey
	}
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
}
