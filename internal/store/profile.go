package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	var lastLogin sql.NullTime
	err := scanner.Scan(
		&p.ID, &p.UserID, &p.DisplayName, &p.Role, &p.AvatarURL, &lastLogin,
		&p.CurrentStreak, &p.LongestStreak, &p.StreakDate, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		p.LastLoginAt = &lastLogin.Time
	}
	return &p, nil
}

const profileCols = `id, user_id, display_name, role, avatar_url, last_login_at, current_streak, longest_streak, streak_date, created_at`

func (s *ProfileStore) GetByID(id int64) (*model.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileCols+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) GetByUserID(userID int64) (*model.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileCols+` FROM profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile by user: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) List() ([]model.Profile, error) {
	rows, err := s.db.Query(`SELECT ` + profileCols + ` FROM profiles ORDER BY display_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// ListAdminUserIDs returns the user IDs of every admin profile.
func (s *ProfileStore) ListAdminUserIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT user_id FROM profiles WHERE role = ? ORDER BY user_id`, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateDetails changes the user-editable fields. Streak counters are not touched.
func (s *ProfileStore) UpdateDetails(userID int64, displayName, avatarURL string) (*model.Profile, error) {
	_, err := s.db.Exec(
		`UPDATE profiles SET display_name = ?, avatar_url = ? WHERE user_id = ?`,
		displayName, avatarURL, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.GetByUserID(userID)
}

func (s *ProfileStore) SetRole(userID int64, role string) (*model.Profile, error) {
	_, err := s.db.Exec(`UPDATE profiles SET role = ? WHERE user_id = ?`, role, userID)
	if err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}
	return s.GetByUserID(userID)
}

func (s *ProfileStore) TouchLogin(userID int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE profiles SET last_login_at = ? WHERE user_id = ?`, at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

// UpdateStreak performs an atomic read-modify-write of a user's streak fields.
// fn receives the current profile and mutates it in place; only the streak
// columns are written back. Returns (nil, nil) if the user has no profile.
func (s *ProfileStore) UpdateStreak(userID int64, fn func(p *model.Profile) error) (*model.Profile, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+profileCols+` FROM profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile for update: %w", err)
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(
		`UPDATE profiles SET current_streak = ?, longest_streak = ?, streak_date = ? WHERE id = ?`,
		p.CurrentStreak, p.LongestStreak, p.StreakDate, p.ID,
	); err != nil {
		return nil, fmt.Errorf("update streak: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// Leaderboard aggregates completed chores and unlocked achievement points per
// profile, ordered by completed chores then points.
func (s *ProfileStore) Leaderboard() ([]model.LeaderboardEntry, error) {
	rows, err := s.db.Query(`
		SELECT p.user_id, u.username, p.display_name, p.current_streak, p.longest_streak,
			(SELECT COUNT(*) FROM chores c WHERE c.assignee_id = p.user_id AND c.completed_at IS NOT NULL),
			(SELECT COALESCE(SUM(a.points), 0) FROM achievements a WHERE a.user_id = p.user_id AND a.completed = 1)
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		ORDER BY 6 DESC, 7 DESC, p.display_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(
			&e.UserID, &e.Username, &e.DisplayName, &e.CurrentStreak, &e.LongestStreak,
			&e.CompletedChores, &e.AchievementPoints,
		); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
