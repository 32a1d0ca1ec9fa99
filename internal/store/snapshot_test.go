package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/model"
)

func setupTestDB(t *testing.T) *SnapshotStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSnapshotStore(db)
}

func liveCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(cache.Options{StaleTime: time.Minute})
	t.Cleanup(c.Close)
	return c
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	src := liveCache(t)
	est := 90
	task := model.Task{ID: 1, Title: "Write report", Status: model.TaskStatusTodo, Priority: model.PriorityHigh}
	_, err := src.Fetch(ctx, cache.TaskDetail(1), func(context.Context) (cache.Result, error) {
		return cache.Result{
			Entities: []model.Entity{
				task,
				model.TaskStep{ID: 10, TaskID: 1, OrderIndex: 1, EstimateMinutes: &est},
				model.Session{ID: 5, Type: model.SessionTypeTask},
			},
			Refs:      []model.Ref{task.Ref(), model.SessionRef(5)},
			Owner:     task.Ref(),
			OwnedKind: model.KindStep,
		}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	src.Append(cache.SessionMessages(5), model.Message{ID: 20, SessionID: 5, Role: model.RoleUser, Content: "hi"})
	src.Append(cache.SessionMessages(5), model.Message{ID: math.MaxUint64, SessionID: 5, Role: model.RoleUser, Content: "pending"})

	if err := s.SaveSnapshot(ctx, "me@example.com", src.Snapshot()); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	snap, err := s.LoadSnapshot(ctx, "me@example.com")
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(snap.Entities) != 4 {
		t.Errorf("entities = %d, want 4 without the pending message", len(snap.Entities))
	}

	dst := liveCache(t)
	dst.Restore(snap)
	got, ok := dst.Task(1)
	if !ok || got.Title != "Write report" || got.Priority != model.PriorityHigh {
		t.Errorf("restored task = %+v, %v", got, ok)
	}
	steps := dst.StepsOf(1)
	if len(steps) != 1 || steps[0].EstimateMinutes == nil || *steps[0].EstimateMinutes != 90 {
		t.Errorf("restored steps = %+v", steps)
	}
	if refs := dst.Refs(cache.TaskDetail(1)); len(refs) != 2 {
		t.Errorf("restored refs = %v", refs)
	}
	if msgs := dst.Resolve(cache.SessionMessages(5)); len(msgs) != 1 {
		t.Errorf("restored messages = %d, want 1", len(msgs))
	}
	if st := dst.State(cache.TaskDetail(1)); !st.Stale || !st.HasData {
		t.Errorf("restored state = %+v, want stale with data", st)
	}
}

func TestSnapshotIsPerAccount(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	c := liveCache(t)
	c.Append(cache.Tasks, model.Task{ID: 1, Title: "mine"})

	if err := s.SaveSnapshot(ctx, "a@example.com", c.Snapshot()); err != nil {
		t.Fatal(err)
	}
	snap, err := s.LoadSnapshot(ctx, "b@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Entities) != 0 || len(snap.Queries) != 0 {
		t.Errorf("other account sees %+v", snap)
	}
}

func TestSaveReplacesAndClear(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	first := liveCache(t)
	first.Append(cache.Tasks, model.Task{ID: 1})
	first.Append(cache.Tasks, model.Task{ID: 2})
	if err := s.SaveSnapshot(ctx, "me", first.Snapshot()); err != nil {
		t.Fatal(err)
	}

	second := liveCache(t)
	second.Append(cache.Tasks, model.Task{ID: 2, Title: "renamed"})
	if err := s.SaveSnapshot(ctx, "me", second.Snapshot()); err != nil {
		t.Fatal(err)
	}

	snap, err := s.LoadSnapshot(ctx, "me")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Entities) != 1 || snap.Entities[0].(model.Task).Title != "renamed" {
		t.Errorf("entities = %+v, want only the second snapshot", snap.Entities)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if snap, _ := s.LoadSnapshot(ctx, "me"); len(snap.Entities) != 0 {
		t.Errorf("entities after Clear = %d", len(snap.Entities))
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := decodeEntity("widget", []byte(`{}`)); err == nil {
		t.Error("decodeEntity(widget) error = nil")
	}
}
