package model

import "time"

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

type Chore struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	AssigneeID        *int64     `json:"assignee_id"`
	DueDate           *time.Time `json:"due_date"`
	CompletedAt       *time.Time `json:"completed_at"`
	Category          string     `json:"category"`
	Priority          string     `json:"priority"`
	RecurrencePattern string     `json:"recurrence_pattern"`
	BlocksOthers      bool       `json:"blocks_others"`
	Dependencies      []int64    `json:"dependencies"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsRecurring reports whether completing the chore schedules a follow-up.
func (c Chore) IsRecurring() bool {
	return c.RecurrencePattern != ""
}

// Completion is the slice of a completed chore the achievement evaluator reads.
type Completion struct {
	ChoreID     int64      `json:"chore_id"`
	CompletedAt time.Time  `json:"completed_at"`
	DueDate     *time.Time `json:"due_date"`
	Category    string     `json:"category"`
}

// ChoreFilter narrows ChoreStore.List. Zero values match everything.
type ChoreFilter struct {
	AssigneeID *int64
	Completed  *bool
	Category   string
	Priority   string
	Search     string
}
