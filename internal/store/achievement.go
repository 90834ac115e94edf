package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type AchievementStore struct {
	db *sql.DB
}

func NewAchievementStore(db *sql.DB) *AchievementStore {
	return &AchievementStore{db: db}
}

func scanAchievement(scanner interface{ Scan(...any) error }) (*model.Achievement, error) {
	var a model.Achievement
	var completed int
	var completedAt sql.NullTime
	var rarity string

	err := scanner.Scan(
		&a.ID, &a.UserID, &a.Title, &a.Description, &a.Icon, &a.Category,
		&a.Requirement, &a.Progress, &completed, &completedAt, &rarity, &a.Points, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Completed = completed != 0
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if a.Rarity, err = model.ParseRarity(rarity); err != nil {
		return nil, err
	}
	return &a, nil
}

const achievementCols = `id, user_id, title, description, icon, category, requirement, progress, completed, completed_at, rarity, points, created_at`

// GetOrCreate inserts the achievement unless a row for (user, title) already
// exists, then returns the stored row. created reports whether this call
// inserted it. The insert is a single statement against the unique
// (user_id, title) index, so concurrent callers never produce duplicates.
func (s *AchievementStore) GetOrCreate(a model.Achievement) (ach *model.Achievement, created bool, err error) {
	result, err := s.db.Exec(
		`INSERT INTO achievements (user_id, title, description, icon, category, requirement, progress, completed, completed_at, rarity, points)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, title) DO NOTHING`,
		a.UserID, a.Title, a.Description, a.Icon, a.Category, a.Requirement, a.Progress,
		boolInt(a.Completed), nullTime(a.CompletedAt), a.Rarity.String(), a.Points,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert achievement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	ach, err = s.GetByUserTitle(a.UserID, a.Title)
	if err != nil {
		return nil, false, err
	}
	if ach == nil {
		return nil, false, fmt.Errorf("achievement %q for user %d vanished after insert", a.Title, a.UserID)
	}
	return ach, n > 0, nil
}

// CompleteIfLocked unlocks the achievement, filling progress to the
// requirement. It reports false if the row was already completed.
func (s *AchievementStore) CompleteIfLocked(id int64, at time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE achievements SET completed = 1, completed_at = ?, progress = requirement
		 WHERE id = ? AND completed = 0`,
		at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("complete achievement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Create inserts a locked achievement. Returns (nil, nil) if (user, title) already exists.
func (s *AchievementStore) Create(a model.Achievement) (*model.Achievement, error) {
	a.Completed = false
	a.CompletedAt = nil
	ach, created, err := s.GetOrCreate(a)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	return ach, nil
}

// AdvanceProgress raises progress toward the requirement. Progress never
// decreases and a row that reaches its requirement becomes completed.
func (s *AchievementStore) AdvanceProgress(id int64, progress int, at time.Time) (*model.Achievement, error) {
	_, err := s.db.Exec(
		`UPDATE achievements SET
			progress = MAX(progress, MIN(?, requirement)),
			completed_at = CASE WHEN completed = 0 AND ? >= requirement THEN ? ELSE completed_at END,
			completed = CASE WHEN completed = 1 OR ? >= requirement THEN 1 ELSE 0 END
		 WHERE id = ?`,
		progress, progress, at.UTC(), progress, id,
	)
	if err != nil {
		return nil, fmt.Errorf("advance progress: %w", err)
	}
	return s.GetByID(id)
}

func (s *AchievementStore) GetByID(id int64) (*model.Achievement, error) {
	row := s.db.QueryRow(`SELECT `+achievementCols+` FROM achievements WHERE id = ?`, id)
	a, err := scanAchievement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get achievement: %w", err)
	}
	return a, nil
}

func (s *AchievementStore) GetByUserTitle(userID int64, title string) (*model.Achievement, error) {
	row := s.db.QueryRow(`SELECT `+achievementCols+` FROM achievements WHERE user_id = ? AND title = ?`, userID, title)
	a, err := scanAchievement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get achievement by title: %w", err)
	}
	return a, nil
}

func (s *AchievementStore) ListByUser(userID int64) ([]model.Achievement, error) {
	rows, err := s.db.Query(
		`SELECT `+achievementCols+` FROM achievements WHERE user_id = ? ORDER BY completed DESC, completed_at DESC, title ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list achievements by user: %w", err)
	}
	defer rows.Close()
	return scanAchievements(rows)
}

func (s *AchievementStore) List() ([]model.Achievement, error) {
	rows, err := s.db.Query(`SELECT ` + achievementCols + ` FROM achievements ORDER BY user_id ASC, title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()
	return scanAchievements(rows)
}

func (s *AchievementStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM achievements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete achievement: %w", err)
	}
	return nil
}

func scanAchievements(rows *sql.Rows) ([]model.Achievement, error) {
	var list []model.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}
