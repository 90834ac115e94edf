package chore

import (
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestComputeStatus(t *testing.T) {
	now := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		chore model.Chore
		want  Status
	}{
		{"no due date", model.Chore{Title: "Buy shelves"}, StatusPending},
		{"due later", model.Chore{DueDate: ptr(now.Add(time.Hour))}, StatusPending},
		{"due earlier", model.Chore{DueDate: ptr(now.Add(-time.Hour))}, StatusOverdue},
		{"completed late", model.Chore{DueDate: ptr(now.Add(-time.Hour)), CompletedAt: ptr(now)}, StatusCompleted},
	}
	for _, tt := range tests {
		if got := ComputeStatus(tt.chore, now); got != tt.want {
			t.Errorf("%s: status = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestWithStatusFilter(t *testing.T) {
	now := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	chores := []model.Chore{
		{ID: 1},
		{ID: 2, DueDate: ptr(now.Add(-time.Hour))},
		{ID: 3, CompletedAt: ptr(now)},
	}

	all := WithStatus(chores, now, "")
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}

	overdue := WithStatus(chores, now, StatusOverdue)
	if len(overdue) != 1 || overdue[0].ID != 2 {
		t.Errorf("overdue = %+v, want chore 2", overdue)
	}
}

func TestParseStatus(t *testing.T) {
	if _, ok := ParseStatus("overdue"); !ok {
		t.Error("overdue not accepted")
	}
	if _, ok := ParseStatus("not_due"); ok {
		t.Error("not_due accepted")
	}
}

func TestCompletionTransition(t *testing.T) {
	done := &model.Chore{CompletedAt: ptr(time.Now())}
	open := &model.Chore{}

	tests := []struct {
		name          string
		before, after *model.Chore
		want          Transition
	}{
		{"created completed", nil, done, Completed},
		{"created open", nil, open, Unchanged},
		{"completed now", open, done, Completed},
		{"re-save completed", done, done, Unchanged},
		{"reopened", done, open, Reopened},
	}
	for _, tt := range tests {
		if got := CompletionTransition(tt.before, tt.after); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestAssigneeChanged(t *testing.T) {
	a, b := int64(1), int64(2)
	tests := []struct {
		name          string
		before, after *model.Chore
		want          bool
	}{
		{"new chore assigned", nil, &model.Chore{AssigneeID: &a}, true},
		{"new chore unassigned", nil, &model.Chore{}, false},
		{"same assignee", &model.Chore{AssigneeID: &a}, &model.Chore{AssigneeID: ptr(a)}, false},
		{"reassigned", &model.Chore{AssigneeID: &a}, &model.Chore{AssigneeID: &b}, true},
		{"unassigned", &model.Chore{AssigneeID: &a}, &model.Chore{}, false},
	}
	for _, tt := range tests {
		if got := AssigneeChanged(tt.before, tt.after); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
