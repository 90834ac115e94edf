package store

import (
	"slices"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

func TestBackupLifecycle(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	started := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)

	b, err := bs.Create("backup-1.db.enc", "chorequest/backup-1.db.enc", started)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != model.BackupStatusPending || !b.StartedAt.Equal(started) || b.CompletedAt != nil {
		t.Errorf("created = %+v", b)
	}

	if err := bs.UpdateStatus(b.ID, model.BackupStatusFailed, "upload: timeout"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := bs.GetByID(b.ID)
	if got.Status != model.BackupStatusFailed || got.ErrorMessage != "upload: timeout" {
		t.Errorf("failed = %+v", got)
	}

	done := started.Add(time.Minute)
	if err := bs.MarkCompleted(b.ID, 4096, done); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	got, _ = bs.GetByID(b.ID)
	if got.Status != model.BackupStatusCompleted || got.SizeBytes != 4096 || got.ErrorMessage != "" {
		t.Errorf("completed = %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, done)
	}

	if missing, err := bs.GetByID(999); err != nil || missing != nil {
		t.Errorf("GetByID(missing) = %+v, %v", missing, err)
	}
}

func TestBackupListAndPrune(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	base := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		day := base.AddDate(0, 0, i)
		name := day.Format("2006-01-02")
		if _, err := bs.Create(name, "k/"+name, day); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := bs.List(3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, b := range list {
		names = append(names, b.Filename)
	}
	if want := []string{"2025-03-04", "2025-03-03", "2025-03-02"}; !slices.Equal(names, want) {
		t.Errorf("list = %v, want %v", names, want)
	}

	keys, err := bs.DeleteOlderThan(base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if want := []string{"k/2025-03-01", "k/2025-03-02"}; !slices.Equal(keys, want) {
		t.Errorf("pruned keys = %v, want %v", keys, want)
	}
	if list, _ := bs.List(10); len(list) != 2 {
		t.Errorf("remaining = %d, want 2", len(list))
	}
}
