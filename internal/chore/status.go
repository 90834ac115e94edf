package chore

import (
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusOverdue   Status = "overdue"
)

// ParseStatus reports whether s names a status filter.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusOverdue:
		return st, true
	}
	return "", false
}

// ChoreWithStatus is a chore annotated with its derived status.
type ChoreWithStatus struct {
	model.Chore
	Status Status `json:"status"`
}

// ComputeStatus derives a chore's status at now. A chore with no due date is
// never overdue.
func ComputeStatus(c model.Chore, now time.Time) Status {
	if c.CompletedAt != nil {
		return StatusCompleted
	}
	if c.DueDate != nil && c.DueDate.Before(now) {
		return StatusOverdue
	}
	return StatusPending
}

// WithStatus annotates chores and, when filter is non-empty, keeps only those
// whose status matches.
func WithStatus(chores []model.Chore, now time.Time, filter Status) []ChoreWithStatus {
	out := make([]ChoreWithStatus, 0, len(chores))
	for _, c := range chores {
		st := ComputeStatus(c, now)
		if filter != "" && st != filter {
			continue
		}
		out = append(out, ChoreWithStatus{Chore: c, Status: st})
	}
	return out
}

// Transition describes how a save changed a chore's completion.
type Transition int

const (
	Unchanged Transition = iota
	Completed
	Reopened
)

// CompletionTransition compares completed_at before and after a save. Only
// Completed should trigger streak and achievement evaluation; re-saving an
// already completed chore is Unchanged.
func CompletionTransition(before, after *model.Chore) Transition {
	wasDone := before != nil && before.CompletedAt != nil
	isDone := after != nil && after.CompletedAt != nil
	switch {
	case !wasDone && isDone:
		return Completed
	case wasDone && !isDone:
		return Reopened
	}
	return Unchanged
}

// AssigneeChanged reports whether after has an assignee that before did not.
func AssigneeChanged(before, after *model.Chore) bool {
	if after == nil || after.AssigneeID == nil {
		return false
	}
	if before == nil || before.AssigneeID == nil {
		return true
	}
	return *before.AssigneeID != *after.AssigneeID
}
