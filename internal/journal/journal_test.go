package journal

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ShayCichocki/relay/internal/taskstore"
	"github.com/ShayCichocki/relay/pkg/models"
)

// setupTestJournal opens a fresh journal in a temp directory.
func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test journal: %v", err)
	}
	t.Cleanup(func() {
		j.Close()
	})
	return j
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "journal.db")
	j, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("journal file missing: %v", err)
	}
	if j.Path() != path || j.RunID() == "" {
		t.Errorf("path = %q run = %q", j.Path(), j.RunID())
	}
}

func TestOpen_MigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 2; i++ {
		j, err := Open(path, nil)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i, err)
		}
		j.Close()
	}
}

func TestAttach_RecordsLifecycle(t *testing.T) {
	j := setupTestJournal(t)
	store := taskstore.New()
	detach := j.Attach(store)

	parent := store.Create(models.TaskSpec{Name: "plan", Kind: models.TaskKindPlan})
	store.Start(parent.ID)
	child := store.Create(models.TaskSpec{Name: "step", Kind: models.TaskKindToolCall, ParentID: parent.ID})
	store.Start(child.ID)
	store.Fail(child.ID, "tool down")
	store.Fail(parent.ID, "bucket 0 failed")

	detach()
	store.Create(models.TaskSpec{Name: "after detach"})

	ctx := context.Background()
	all, err := j.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("entries = %d, want 6", len(all))
	}
	want := []taskstore.EventType{
		taskstore.EventCreated, taskstore.EventStarted,
		taskstore.EventCreated, taskstore.EventStarted,
		taskstore.EventError, taskstore.EventError,
	}
	for i, w := range want {
		if all[i].Event != w {
			t.Errorf("entry[%d] = %s, want %s", i, all[i].Event, w)
		}
		if all[i].RunID != j.RunID() {
			t.Errorf("entry[%d] run = %s", i, all[i].RunID)
		}
	}

	failed := all[4]
	if failed.TaskID != child.ID || failed.Error != "tool down" || failed.Status != models.TaskStatusFailed {
		t.Errorf("failed entry = %+v", failed)
	}
	if failed.ParentID != parent.ID || failed.Task.ParentID != parent.ID {
		t.Errorf("parent link lost: %+v", failed)
	}
	if failed.Task.CompletedAt == nil {
		t.Error("task snapshot should carry completedAt")
	}

	// Filtering by the plan task includes its children.
	byParent, err := j.List(ctx, Filter{TaskID: parent.ID})
	if err != nil {
		t.Fatalf("List(task): %v", err)
	}
	if len(byParent) != 6 {
		t.Errorf("by parent = %d, want 6", len(byParent))
	}

	byChild, _ := j.List(ctx, Filter{TaskID: child.ID})
	if len(byChild) != 3 {
		t.Errorf("by child = %d, want 3", len(byChild))
	}

	last, _ := j.List(ctx, Filter{Limit: 2})
	if len(last) != 2 || last[0].Seq >= last[1].Seq || last[1].Event != taskstore.EventError {
		t.Errorf("limit should keep the most recent in order: %+v", last)
	}
}

func TestRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	first, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	first.StartRun(ctx, "relay run a.yaml")
	store := taskstore.New()
	first.Attach(store)
	store.Create(models.TaskSpec{Name: "x"})
	first.Close()

	second, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	second.StartRun(ctx, "relay history")

	runs, err := second.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	counts := map[string]int{}
	for _, r := range runs {
		counts[r.Command] = r.Events
	}
	if counts["relay run a.yaml"] != 1 || counts["relay history"] != 0 {
		t.Errorf("counts = %v", counts)
	}

	only, _ := second.List(ctx, Filter{RunID: first.RunID()})
	if len(only) != 1 {
		t.Errorf("run filter = %d, want 1", len(only))
	}
}

func TestAttach_ConcurrentWriters(t *testing.T) {
	j := setupTestJournal(t)
	store := taskstore.New()
	j.Attach(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := store.Create(models.TaskSpec{Name: "c"})
			store.Start(task.ID)
			store.Finish(task.ID, map[string]any{"ok": true})
		}()
	}
	wg.Wait()

	all, err := j.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 60 {
		t.Errorf("entries = %d, want 60", len(all))
	}
}
