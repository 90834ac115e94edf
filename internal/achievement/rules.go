package achievement

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

// Facts is everything a rule may look at for one evaluation pass.
type Facts struct {
	// Completions holds every completed chore of the user, sorted oldest first.
	Completions []model.Completion
	// Trigger is the completion that started the pass.
	Trigger model.Completion
	// Streak is the user's current streak after the trigger was applied.
	Streak   int
	Location *time.Location
}

func (f *Facts) loc() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// Rule is one row of the achievement table.
type Rule struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Icon        string       `json:"icon"`
	Category    string       `json:"category"`
	Rarity      model.Rarity `json:"rarity"`
	Points      int          `json:"points"`
	Requirement int          `json:"requirement"`

	Check func(f *Facts) bool `json:"-"`
}

// unlocked builds the row stored the first time the rule qualifies.
func (r Rule) unlocked(userID int64, at time.Time) model.Achievement {
	return model.Achievement{
		UserID:      userID,
		Title:       r.Title,
		Description: r.Description,
		Icon:        r.Icon,
		Category:    r.Category,
		Requirement: r.Requirement,
		Progress:    r.Requirement,
		Completed:   true,
		CompletedAt: &at,
		Rarity:      r.Rarity,
		Points:      r.Points,
	}
}

var (
	completionMilestones = []int{1, 10, 50, 100, 500}
	streakMilestones     = []int{2, 5, 7, 30, 100}
)

// DefaultRules returns the built-in achievement table.
func DefaultRules() []Rule {
	var rules []Rule
	for _, n := range completionMilestones {
		rules = append(rules, completionRule(n))
	}
	for _, n := range streakMilestones {
		rules = append(rules, streakRule(n))
	}
	rules = append(rules,
		speedRule("Speed Demon", "⚡", 5, time.Hour, model.RarityRare),
		speedRule("Lightning Fast", "⚡⚡", 10, 2*time.Hour, model.RarityEpic),
		varietyRule("Variety Explorer", "🌈", 5, model.RarityCommon),
		varietyRule("Category Master", "🎨", 10, model.RarityRare),
		Rule{
			Title:       "Perfect Week",
			Description: "Complete at least one chore every day for a week.",
			Icon:        "✨",
			Category:    model.AchievementSpecial,
			Rarity:      model.RarityEpic,
			Points:      200,
			Requirement: 1,
			Check:       perfectWeek,
		},
		countRule("Early Bird", "Complete 5 chores before 9 AM.", "🌅", model.RarityRare, 75, 5,
			func(t time.Time) bool { return t.Hour() < 9 }),
		countRule("Night Owl", "Complete 5 chores after 8 PM.", "🦉", model.RarityRare, 75, 5,
			func(t time.Time) bool { return t.Hour() >= 20 }),
		countRule("Weekend Warrior", "Complete 10 chores on weekends.", "🏖️", model.RarityCommon, 50, 10,
			func(t time.Time) bool { return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday }),
		Rule{
			Title:       "Overdue Hero",
			Description: "Complete an overdue chore.",
			Icon:        "🦸",
			Category:    model.AchievementSpecial,
			Rarity:      model.RarityRare,
			Points:      100,
			Requirement: 1,
			Check:       overdueHero,
		},
	)
	return rules
}

func completionRarity(n int) model.Rarity {
	switch {
	case n <= 10:
		return model.RarityCommon
	case n <= 50:
		return model.RarityRare
	case n <= 100:
		return model.RarityEpic
	default:
		return model.RarityLegendary
	}
}

func streakRarity(n int) model.Rarity {
	switch {
	case n <= 5:
		return model.RarityCommon
	case n <= 7:
		return model.RarityRare
	case n <= 30:
		return model.RarityEpic
	default:
		return model.RarityLegendary
	}
}

func completionRule(n int) Rule {
	return Rule{
		Title:       fmt.Sprintf("%d Chores Completed", n),
		Description: fmt.Sprintf("Completed %d chores!", n),
		Icon:        "🏅",
		Category:    model.AchievementCompletion,
		Rarity:      completionRarity(n),
		Points:      n * 10,
		Requirement: n,
		Check:       func(f *Facts) bool { return len(f.Completions) >= n },
	}
}

func streakRule(n int) Rule {
	return Rule{
		Title:       fmt.Sprintf("%d-Day Streak", n),
		Description: fmt.Sprintf("Completed chores %d days in a row!", n),
		Icon:        "🔥",
		Category:    model.AchievementStreak,
		Rarity:      streakRarity(n),
		Points:      n * 20,
		Requirement: n,
		Check:       func(f *Facts) bool { return f.Streak >= n },
	}
}

// speedRule qualifies when the n most recent completions, oldest to newest,
// fit inside the window.
func speedRule(title, icon string, n int, within time.Duration, rarity model.Rarity) Rule {
	hours := int(within / time.Hour)
	unit := "hour"
	if hours > 1 {
		unit = "hours"
	}
	return Rule{
		Title:       title,
		Description: fmt.Sprintf("Complete %d chores in under %d %s", n, hours, unit),
		Icon:        icon,
		Category:    model.AchievementSpeed,
		Rarity:      rarity,
		Points:      n * 15,
		Requirement: n,
		Check: func(f *Facts) bool {
			total := len(f.Completions)
			if total < n {
				return false
			}
			newest := f.Completions[total-1].CompletedAt
			oldest := f.Completions[total-n].CompletedAt
			return newest.Sub(oldest) <= within
		},
	}
}

func varietyRule(title, icon string, n int, rarity model.Rarity) Rule {
	return Rule{
		Title:       title,
		Description: fmt.Sprintf("Complete chores in %d different categories", n),
		Icon:        icon,
		Category:    model.AchievementVariety,
		Rarity:      rarity,
		Points:      n * 10,
		Requirement: n,
		Check:       func(f *Facts) bool { return distinctCategories(f.Completions) >= n },
	}
}

func distinctCategories(cs []model.Completion) int {
	seen := make(map[string]struct{})
	for _, c := range cs {
		if strings.TrimSpace(c.Category) == "" {
			continue
		}
		seen[c.Category] = struct{}{}
	}
	return len(seen)
}

// countRule qualifies once at least n completions match, judged on local time.
func countRule(title, description, icon string, rarity model.Rarity, points, n int, match func(local time.Time) bool) Rule {
	return Rule{
		Title:       title,
		Description: description,
		Icon:        icon,
		Category:    model.AchievementSpecial,
		Rarity:      rarity,
		Points:      points,
		Requirement: n,
		Check: func(f *Facts) bool {
			count := 0
			for _, c := range f.Completions {
				if match(c.CompletedAt.In(f.loc())) {
					count++
				}
			}
			return count >= n
		},
	}
}

// perfectWeek qualifies when each day Monday through Sunday of the week
// containing the trigger has a completion.
func perfectWeek(f *Facts) bool {
	loc := f.loc()
	day := civilDate(f.Trigger.CompletedAt, loc)
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)

	days := make(map[string]struct{})
	for _, c := range f.Completions {
		days[dayKey(c.CompletedAt, loc)] = struct{}{}
	}
	for i := 0; i < 7; i++ {
		if _, ok := days[monday.AddDate(0, 0, i).Format(time.DateOnly)]; !ok {
			return false
		}
	}
	return true
}

func overdueHero(f *Facts) bool {
	for _, c := range f.Completions {
		if c.DueDate != nil && c.CompletedAt.After(*c.DueDate) {
			return true
		}
	}
	return false
}

// Match returns the rules whose predicate holds, in table order.
func Match(rules []Rule, f *Facts) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Check(f) {
			out = append(out, r)
		}
	}
	return out
}
