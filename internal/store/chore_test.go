package store

import (
	"slices"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

func setupChoreStore(t *testing.T) (*ChoreStore, *model.User, *model.User) {
	t.Helper()
	db := setupTestDB(t)
	us := NewUserStore(db)
	return NewChoreStore(db), mustRegister(t, us, "alice"), mustRegister(t, us, "bob")
}

func TestChoreCreate(t *testing.T) {
	cs, alice, _ := setupChoreStore(t)

	due := time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)
	c, err := cs.Create(ChoreParams{
		Title:             "Dishes",
		Description:       "after dinner",
		AssigneeID:        &alice.ID,
		DueDate:           &due,
		Category:          "kitchen",
		RecurrencePattern: "daily",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == 0 || c.Title != "Dishes" || c.Category != "kitchen" {
		t.Errorf("chore = %+v", c)
	}
	if c.Priority != model.PriorityMedium {
		t.Errorf("priority = %q, want medium default", c.Priority)
	}
	if c.AssigneeID == nil || *c.AssigneeID != alice.ID {
		t.Errorf("assignee = %v", c.AssigneeID)
	}
	if c.DueDate == nil || !c.DueDate.Equal(due) {
		t.Errorf("due = %v, want %v", c.DueDate, due)
	}
	if c.CompletedAt != nil {
		t.Errorf("completed_at = %v, want nil", c.CompletedAt)
	}
	if !c.IsRecurring() {
		t.Error("expected recurring chore")
	}
}

func TestChoreCreateRejectsInvalidColumns(t *testing.T) {
	cs, _, _ := setupChoreStore(t)

	if _, err := cs.Create(ChoreParams{Title: "x", Priority: "urgent"}); err == nil {
		t.Error("expected error for unknown priority")
	}
	if _, err := cs.Create(ChoreParams{Title: "x", RecurrencePattern: "hourly"}); err == nil {
		t.Error("expected error for unknown recurrence")
	}
}

func TestChoreDependencies(t *testing.T) {
	cs, _, _ := setupChoreStore(t)

	a, _ := cs.Create(ChoreParams{Title: "Buy soap", BlocksOthers: true})
	b, _ := cs.Create(ChoreParams{Title: "Wash car"})
	c, err := cs.Create(ChoreParams{Title: "Wax car", Dependencies: []int64{a.ID, b.ID, a.ID}})
	if err != nil {
		t.Fatalf("create with deps: %v", err)
	}
	if !slices.Equal(c.Dependencies, []int64{a.ID, b.ID}) {
		t.Errorf("deps = %v, want [%d %d]", c.Dependencies, a.ID, b.ID)
	}
	if !a.BlocksOthers {
		t.Error("blocks_others not stored")
	}

	c, err = cs.Update(c.ID, ChoreParams{Title: "Wax car", Dependencies: []int64{b.ID}})
	if err != nil {
		t.Fatalf("update deps: %v", err)
	}
	if !slices.Equal(c.Dependencies, []int64{b.ID}) {
		t.Errorf("deps after update = %v", c.Dependencies)
	}

	if _, err := cs.Update(c.ID, ChoreParams{Title: "Wax car", Dependencies: []int64{b.ID, c.ID}}); err == nil {
		t.Error("expected error for self dependency")
	}
	kept, err := cs.GetByID(c.ID)
	if err != nil {
		t.Fatalf("get after rejected update: %v", err)
	}
	if !slices.Equal(kept.Dependencies, []int64{b.ID}) {
		t.Errorf("deps after rejected update = %v, want [%d]", kept.Dependencies, b.ID)
	}

	if err := cs.Delete(b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	graph, err := cs.DependencyGraph()
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if len(graph) != 0 {
		t.Errorf("graph = %v, want empty after deleting the dependency", graph)
	}
}

func TestChoreUpdate(t *testing.T) {
	cs, alice, bob := setupChoreStore(t)
	c, _ := cs.Create(ChoreParams{Title: "Trash", AssigneeID: &alice.ID})

	p := ParamsFromChore(c)
	p.AssigneeID = &bob.ID
	done := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	p.CompletedAt = &done
	p.Priority = model.PriorityHigh

	updated, err := cs.Update(c.ID, p)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if *updated.AssigneeID != bob.ID || updated.Priority != model.PriorityHigh {
		t.Errorf("updated = %+v", updated)
	}
	if updated.CompletedAt == nil || !updated.CompletedAt.Equal(done) {
		t.Errorf("completed_at = %v", updated.CompletedAt)
	}

	p = ParamsFromChore(updated)
	p.AssigneeID = nil
	p.CompletedAt = nil
	updated, _ = cs.Update(c.ID, p)
	if updated.AssigneeID != nil || updated.CompletedAt != nil {
		t.Errorf("nullable fields not cleared: %+v", updated)
	}
}

func TestChoreGetMissing(t *testing.T) {
	cs, _, _ := setupChoreStore(t)
	c, err := cs.GetByID(999)
	if err != nil || c != nil {
		t.Errorf("GetByID(missing) = %+v, %v", c, err)
	}
}

func TestChoreList(t *testing.T) {
	cs, alice, bob := setupChoreStore(t)
	now := time.Now().UTC()

	cs.Create(ChoreParams{Title: "Dishes", Category: "kitchen", AssigneeID: &alice.ID})
	cs.Create(ChoreParams{Title: "Mop", Description: "kitchen floor", Category: "cleaning", AssigneeID: &bob.ID, Priority: model.PriorityHigh})
	cs.Create(ChoreParams{Title: "Laundry", Category: "cleaning", AssigneeID: &alice.ID, CompletedAt: &now})

	done, notDone := true, false
	tests := []struct {
		name   string
		filter model.ChoreFilter
		want   []string
	}{
		{"all newest first", model.ChoreFilter{}, []string{"Laundry", "Mop", "Dishes"}},
		{"assignee", model.ChoreFilter{AssigneeID: &alice.ID}, []string{"Laundry", "Dishes"}},
		{"completed", model.ChoreFilter{Completed: &done}, []string{"Laundry"}},
		{"open", model.ChoreFilter{Completed: &notDone}, []string{"Mop", "Dishes"}},
		{"category", model.ChoreFilter{Category: "cleaning"}, []string{"Laundry", "Mop"}},
		{"priority", model.ChoreFilter{Priority: model.PriorityHigh}, []string{"Mop"}},
		{"search title or description", model.ChoreFilter{Search: "kitchen"}, []string{"Mop"}},
		{"combined", model.ChoreFilter{AssigneeID: &alice.ID, Completed: &notDone}, []string{"Dishes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chores, err := cs.List(tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var got []string
			for _, c := range chores {
				got = append(got, c.Title)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("titles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChoreListCompletedByAssignee(t *testing.T) {
	cs, alice, bob := setupChoreStore(t)
	done := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	due := done.Add(time.Hour)

	c, _ := cs.Create(ChoreParams{Title: "A", Category: "kitchen", AssigneeID: &alice.ID, CompletedAt: &done, DueDate: &due})
	cs.Create(ChoreParams{Title: "B", AssigneeID: &alice.ID})
	cs.Create(ChoreParams{Title: "C", AssigneeID: &bob.ID, CompletedAt: &done})
	cs.Create(ChoreParams{Title: "D", CompletedAt: &done})

	completions, err := cs.ListCompletedByAssignee(alice.ID)
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	if len(completions) != 1 {
		t.Fatalf("completions = %+v, want 1", completions)
	}
	got := completions[0]
	if got.ChoreID != c.ID || got.Category != "kitchen" || !got.CompletedAt.Equal(done) {
		t.Errorf("completion = %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("due = %v, want %v", got.DueDate, due)
	}
}

func TestChoreListOverdue(t *testing.T) {
	cs, alice, _ := setupChoreStore(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-2 * time.Hour)
	earlier := now.Add(-48 * time.Hour)
	future := now.Add(time.Hour)

	cs.Create(ChoreParams{Title: "late", AssigneeID: &alice.ID, DueDate: &past})
	cs.Create(ChoreParams{Title: "very late", AssigneeID: &alice.ID, DueDate: &earlier})
	cs.Create(ChoreParams{Title: "upcoming", AssigneeID: &alice.ID, DueDate: &future})
	cs.Create(ChoreParams{Title: "done", AssigneeID: &alice.ID, DueDate: &past, CompletedAt: &past})
	cs.Create(ChoreParams{Title: "unassigned", DueDate: &past})
	cs.Create(ChoreParams{Title: "no due", AssigneeID: &alice.ID})

	chores, err := cs.ListOverdue(now)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	var got []string
	for _, c := range chores {
		got = append(got, c.Title)
	}
	if want := []string{"very late", "late"}; !slices.Equal(got, want) {
		t.Errorf("overdue = %v, want %v", got, want)
	}
}

func TestChoreAssigneeDeleted(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	cs := NewChoreStore(db)
	alice := mustRegister(t, us, "alice")
	c, _ := cs.Create(ChoreParams{Title: "Dishes", AssigneeID: &alice.ID})

	if err := us.Delete(alice.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	got, _ := cs.GetByID(c.ID)
	if got == nil || got.AssigneeID != nil {
		t.Errorf("chore after assignee delete = %+v, want unassigned", got)
	}
}
