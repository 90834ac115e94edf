package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type ChoreStore struct {
	db *sql.DB
}

func NewChoreStore(db *sql.DB) *ChoreStore {
	return &ChoreStore{db: db}
}

// ChoreParams carries the writable fields of a chore.
type ChoreParams struct {
	Title             string
	Description       string
	AssigneeID        *int64
	DueDate           *time.Time
	CompletedAt       *time.Time
	Category          string
	Priority          string
	RecurrencePattern string
	BlocksOthers      bool
	Dependencies      []int64
}

// ParamsFromChore copies a chore's writable fields, for read-modify-write updates.
func ParamsFromChore(c *model.Chore) ChoreParams {
	return ChoreParams{
		Title:             c.Title,
		Description:       c.Description,
		AssigneeID:        c.AssigneeID,
		DueDate:           c.DueDate,
		CompletedAt:       c.CompletedAt,
		Category:          c.Category,
		Priority:          c.Priority,
		RecurrencePattern: c.RecurrencePattern,
		BlocksOthers:      c.BlocksOthers,
		Dependencies:      c.Dependencies,
	}
}

func scanChore(scanner interface{ Scan(...any) error }) (*model.Chore, error) {
	var c model.Chore
	var assignee sql.NullInt64
	var due, completed sql.NullTime
	var blocks int

	err := scanner.Scan(
		&c.ID, &c.Title, &c.Description, &assignee, &due, &completed,
		&c.Category, &c.Priority, &c.RecurrencePattern, &blocks,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignee.Valid {
		c.AssigneeID = &assignee.Int64
	}
	if due.Valid {
		c.DueDate = &due.Time
	}
	if completed.Valid {
		c.CompletedAt = &completed.Time
	}
	c.BlocksOthers = blocks != 0
	return &c, nil
}

const choreCols = `id, title, description, assignee_id, due_date, completed_at, category, priority, recurrence_pattern, blocks_others, created_at, updated_at`

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *ChoreStore) Create(p ChoreParams) (*model.Chore, error) {
	if p.Priority == "" {
		p.Priority = model.PriorityMedium
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO chores (title, description, assignee_id, due_date, completed_at, category, priority, recurrence_pattern, blocks_others)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Description, nullInt64(p.AssigneeID), nullTime(p.DueDate), nullTime(p.CompletedAt),
		p.Category, p.Priority, p.RecurrencePattern, boolInt(p.BlocksOthers),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := replaceDependencies(tx, id, p.Dependencies); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func replaceDependencies(tx *sql.Tx, choreID int64, deps []int64) error {
	if _, err := tx.Exec(`DELETE FROM chore_dependencies WHERE chore_id = ?`, choreID); err != nil {
		return fmt.Errorf("clear dependencies: %w", err)
	}
	for _, dep := range deps {
		if _, err := tx.Exec(
			`INSERT INTO chore_dependencies (chore_id, depends_on_id) VALUES (?, ?)
			 ON CONFLICT(chore_id, depends_on_id) DO NOTHING`,
			choreID, dep,
		); err != nil {
			return fmt.Errorf("insert dependency: %w", err)
		}
	}
	return nil
}

func (s *ChoreStore) GetByID(id int64) (*model.Chore, error) {
	row := s.db.QueryRow(`SELECT `+choreCols+` FROM chores WHERE id = ?`, id)
	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}

	deps, err := s.DependencyGraph()
	if err != nil {
		return nil, err
	}
	c.Dependencies = deps[c.ID]
	return c, nil
}

// List returns chores matching the filter, newest first.
func (s *ChoreStore) List(f model.ChoreFilter) ([]model.Chore, error) {
	var where []string
	var args []any
	if f.AssigneeID != nil {
		where = append(where, "assignee_id = ?")
		args = append(args, *f.AssigneeID)
	}
	if f.Completed != nil {
		if *f.Completed {
			where = append(where, "completed_at IS NOT NULL")
		} else {
			where = append(where, "completed_at IS NULL")
		}
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.Search != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + choreCols + ` FROM chores`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	chores, err := s.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	return chores, nil
}

// query runs a chore SELECT and attaches dependencies once the rows are closed.
func (s *ChoreStore) query(query string, args ...any) ([]model.Chore, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}

	var chores []model.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(chores) == 0 {
		return chores, nil
	}
	deps, err := s.DependencyGraph()
	if err != nil {
		return nil, err
	}
	for i := range chores {
		chores[i].Dependencies = deps[chores[i].ID]
	}
	return chores, nil
}

func (s *ChoreStore) Update(id int64, p ChoreParams) (*model.Chore, error) {
	if p.Priority == "" {
		p.Priority = model.PriorityMedium
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE chores SET title = ?, description = ?, assignee_id = ?, due_date = ?, completed_at = ?,
		 category = ?, priority = ?, recurrence_pattern = ?, blocks_others = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		p.Title, p.Description, nullInt64(p.AssigneeID), nullTime(p.DueDate), nullTime(p.CompletedAt),
		p.Category, p.Priority, p.RecurrencePattern, boolInt(p.BlocksOthers), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update chore: %w", err)
	}

	if err := replaceDependencies(tx, id, p.Dependencies); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChoreStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM chores WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chore: %w", err)
	}
	return nil
}

// DependencyGraph maps each chore ID to the IDs it depends on.
func (s *ChoreStore) DependencyGraph() (map[int64][]int64, error) {
	rows, err := s.db.Query(`SELECT chore_id, depends_on_id FROM chore_dependencies ORDER BY chore_id, depends_on_id`)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	graph := make(map[int64][]int64)
	for rows.Next() {
		var choreID, dependsOn int64
		if err := rows.Scan(&choreID, &dependsOn); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		graph[choreID] = append(graph[choreID], dependsOn)
	}
	return graph, rows.Err()
}

// ListCompletedByAssignee returns every completed chore assigned to the user,
// in no particular order.
func (s *ChoreStore) ListCompletedByAssignee(userID int64) ([]model.Completion, error) {
	rows, err := s.db.Query(
		`SELECT id, completed_at, due_date, category FROM chores
		 WHERE assignee_id = ? AND completed_at IS NOT NULL`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.Completion
	for rows.Next() {
		var c model.Completion
		var due sql.NullTime
		if err := rows.Scan(&c.ChoreID, &c.CompletedAt, &due, &c.Category); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		if due.Valid {
			c.DueDate = &due.Time
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

// ListOverdue returns incomplete, assigned chores whose due date is before now.
func (s *ChoreStore) ListOverdue(now time.Time) ([]model.Chore, error) {
	chores, err := s.query(
		`SELECT `+choreCols+` FROM chores
		 WHERE completed_at IS NULL AND assignee_id IS NOT NULL AND due_date IS NOT NULL AND due_date < ?
		 ORDER BY due_date ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue chores: %w", err)
	}
	return chores, nil
}
