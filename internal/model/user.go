package model

import "time"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Profile struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	DisplayName   string     `json:"display_name"`
	Role          string     `json:"role"`
	AvatarURL     string     `json:"avatar_url"`
	LastLoginAt   *time.Time `json:"last_login_at"`
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	// StreakDate is the YYYY-MM-DD day of the last completion counted into
	// CurrentStreak, empty before the first one.
	StreakDate string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

type LeaderboardEntry struct {
	UserID            int64  `json:"user_id"`
	Username          string `json:"username"`
	DisplayName       string `json:"display_name"`
	CompletedChores   int    `json:"completed_chores"`
	CurrentStreak     int    `json:"current_streak"`
	LongestStreak     int    `json:"longest_streak"`
	AchievementPoints int    `json:"achievement_points"`
}
