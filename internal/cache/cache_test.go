package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qisumi/qisumi-tui/internal/model"
)

func bg() context.Context { return context.Background() }

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c := New(Options{StaleTime: time.Minute, RequestTimeout: time.Second})
	t.Cleanup(c.Close)
	return c
}

func listResult(tasks ...model.Task) Result {
	var res Result
	for _, task := range tasks {
		for _, s := range task.Steps {
			res.Entities = append(res.Entities, s)
		}
		task.Steps = nil
		res.Entities = append(res.Entities, task)
		res.Refs = append(res.Refs, task.Ref())
	}
	return res
}

func detailResult(task model.Task) Result {
	res := listResult(task)
	res.Owner = task.Ref()
	res.OwnedKind = model.KindStep
	return res
}

// waitFor polls cond until it holds or a second passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFetchServesFreshData(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int32
	loader := func(context.Context) (Result, error) {
		calls.Add(1)
		return listResult(model.Task{ID: 1, Title: "a"}), nil
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(bg(), Tasks, loader); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("loader calls = %d, want 1", got)
	}
	if task, ok := c.Task(1); !ok || task.Title != "a" {
		t.Errorf("Task(1) = %+v, %v", task, ok)
	}
	if st := c.State(Tasks); st.Status != StatusSuccess || st.Stale || !st.HasData {
		t.Errorf("State() = %+v", st)
	}
}

func TestFetchError(t *testing.T) {
	c := newTestCache(t)
	boom := errors.New("boom")
	_, err := c.Fetch(bg(), TaskDetail(9), func(context.Context) (Result, error) {
		return Result{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Fetch() error = %v, want boom", err)
	}
	st := c.State(TaskDetail(9))
	if st.Status != StatusError || st.HasData || !errors.Is(st.Err, boom) {
		t.Errorf("State() = %+v", st)
	}
}

func TestInvalidateRefetchesInBackground(t *testing.T) {
	c := newTestCache(t)
	var title atomic.Value
	title.Store("old")
	loader := func(context.Context) (Result, error) {
		return listResult(model.Task{ID: 1, Title: title.Load().(string)}), nil
	}
	if _, err := c.Fetch(bg(), Tasks, loader); err != nil {
		t.Fatal(err)
	}

	var (
		mu      sync.Mutex
		changes []Change
	)
	defer c.Subscribe(Tasks, func(ch Change) {
		mu.Lock()
		changes = append(changes, ch)
		mu.Unlock()
	})()

	title.Store("new")
	c.Invalidate(Tasks)

	waitFor(t, "refetch", func() bool {
		task, _ := c.Task(1)
		return task.Title == "new"
	})
	c.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(changes) < 2 {
		t.Fatalf("changes = %d, want stale then refreshed", len(changes))
	}
	if first := changes[0].State; !first.Stale || !first.HasData {
		t.Errorf("first change = %+v, want stale-but-displayed", first)
	}
	if last := changes[len(changes)-1].State; last.Stale || last.Fetching {
		t.Errorf("last change = %+v, want fresh", last)
	}
}

func TestLastInvalidationWins(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int32
	gate := make(chan struct{})
	loader := func(ctx context.Context) (Result, error) {
		switch calls.Add(1) {
		case 1:
			return listResult(model.Task{ID: 1, Title: "initial"}), nil
		case 2:
			// first refetch answers late with data older than the second
			<-gate
			return listResult(model.Task{ID: 1, Title: "older"}), nil
		default:
			return listResult(model.Task{ID: 1, Title: "newest"}), nil
		}
	}
	if _, err := c.Fetch(bg(), Tasks, loader); err != nil {
		t.Fatal(err)
	}

	c.Invalidate(Tasks)
	waitFor(t, "first refetch to start", func() bool { return calls.Load() == 2 })
	c.Invalidate(Tasks)
	waitFor(t, "second refetch", func() bool {
		task, _ := c.Task(1)
		return task.Title == "newest"
	})

	close(gate)
	c.wg.Wait()

	if task, _ := c.Task(1); task.Title != "newest" {
		t.Errorf("Title = %q, want the last invalidation's result", task.Title)
	}
}

func TestInvalidateScopeFilter(t *testing.T) {
	c := newTestCache(t)
	var loads sync.Map
	loaderFor := func(key Key) Loader {
		return func(context.Context) (Result, error) {
			n, _ := loads.LoadOrStore(key, new(atomic.Int32))
			n.(*atomic.Int32).Add(1)
			return Result{}, nil
		}
	}
	for _, key := range []Key{TaskDetail(1), TaskDetail(2), Tasks} {
		if _, err := c.Fetch(bg(), key, loaderFor(key)); err != nil {
			t.Fatal(err)
		}
	}

	c.Invalidate(All(ScopeTaskDetail))
	c.wg.Wait()

	count := func(key Key) int32 {
		n, _ := loads.Load(key)
		return n.(*atomic.Int32).Load()
	}
	if count(TaskDetail(1)) != 2 || count(TaskDetail(2)) != 2 {
		t.Errorf("detail loads = %d, %d; want 2 each", count(TaskDetail(1)), count(TaskDetail(2)))
	}
	if count(Tasks) != 1 {
		t.Errorf("list loads = %d, want 1", count(Tasks))
	}
}

func TestStepChangeNotifiesListAndDetail(t *testing.T) {
	c := newTestCache(t)
	task := model.Task{ID: 1, Title: "t", Steps: []model.TaskStep{{ID: 10, TaskID: 1, OrderIndex: 1}}}
	_, _ = c.Fetch(bg(), Tasks, func(context.Context) (Result, error) { return listResult(task), nil })
	_, _ = c.Fetch(bg(), TaskDetail(1), func(context.Context) (Result, error) { return detailResult(task), nil })
	_, _ = c.Fetch(bg(), TaskDetail(2), func(context.Context) (Result, error) {
		return detailResult(model.Task{ID: 2}), nil
	})

	got := make(map[Key]int)
	var mu sync.Mutex
	defer c.Subscribe(All(ScopeTaskDetail), func(ch Change) { mu.Lock(); got[ch.Key]++; mu.Unlock() })()
	defer c.Subscribe(Tasks, func(ch Change) { mu.Lock(); got[ch.Key]++; mu.Unlock() })()

	done := model.StepStatusDone
	ok := c.Update(model.StepRef(10), func(e model.Entity) model.Entity {
		return model.StepPatch{TaskID: 1, StepID: 10, Status: &done}.Apply(e, time.Now())
	})
	if !ok {
		t.Fatal("Update() = false")
	}

	mu.Lock()
	defer mu.Unlock()
	if got[Tasks] != 1 || got[TaskDetail(1)] != 1 {
		t.Errorf("notifications = %v, want list and detail of task 1", got)
	}
	if got[TaskDetail(2)] != 0 {
		t.Errorf("unrelated detail notified")
	}
}

func TestDetailRefetchPrunesRemovedSteps(t *testing.T) {
	c := newTestCache(t)
	steps := []model.TaskStep{{ID: 10, TaskID: 1, OrderIndex: 1}, {ID: 11, TaskID: 1, OrderIndex: 2}}
	var current atomic.Value
	current.Store(steps)
	loader := func(context.Context) (Result, error) {
		return detailResult(model.Task{ID: 1, Steps: current.Load().([]model.TaskStep)}), nil
	}
	_, _ = c.Fetch(bg(), TaskDetail(1), loader)
	if got := len(c.StepsOf(1)); got != 2 {
		t.Fatalf("StepsOf(1) = %d steps, want 2", got)
	}

	current.Store(steps[1:])
	c.Invalidate(TaskDetail(1))
	c.wg.Wait()

	got := c.StepsOf(1)
	if len(got) != 1 || got[0].ID != 11 {
		t.Errorf("StepsOf(1) = %+v, want only step 11", got)
	}
	if _, ok := c.Step(10); ok {
		t.Errorf("step 10 still cached")
	}
}

func TestStepsOfOrdersByOrderIndex(t *testing.T) {
	c := newTestCache(t)
	c.Put(
		model.TaskStep{ID: 3, TaskID: 1, OrderIndex: 3},
		model.TaskStep{ID: 1, TaskID: 1, OrderIndex: 1},
		model.TaskStep{ID: 2, TaskID: 1, OrderIndex: 2},
		model.TaskStep{ID: 9, TaskID: 2, OrderIndex: 1},
	)
	got := c.StepsOf(1)
	if len(got) != 3 {
		t.Fatalf("StepsOf(1) = %d steps", len(got))
	}
	for i, s := range got {
		if s.OrderIndex != i+1 {
			t.Errorf("StepsOf(1)[%d].OrderIndex = %d", i, s.OrderIndex)
		}
	}
}

func TestRemoveDropsRefsAndChildren(t *testing.T) {
	c := newTestCache(t)
	task := model.Task{ID: 1, Steps: []model.TaskStep{{ID: 10, TaskID: 1}}}
	_, _ = c.Fetch(bg(), Tasks, func(context.Context) (Result, error) {
		return listResult(task, model.Task{ID: 2}), nil
	})

	c.Remove(model.TaskRef(1))

	if refs := c.Refs(Tasks); len(refs) != 1 || refs[0] != model.TaskRef(2) {
		t.Errorf("Refs(Tasks) = %v, want only task 2", refs)
	}
	if _, ok := c.Step(10); ok {
		t.Errorf("child step survived removal")
	}
}

func TestAppendAndResolve(t *testing.T) {
	c := newTestCache(t)
	key := SessionMessages(5)
	c.Append(key, model.Message{ID: 1, SessionID: 5, Content: "hi"})
	c.Append(key, model.Message{ID: 2, SessionID: 5, Content: "there"})

	got := c.Resolve(key)
	if len(got) != 2 || got[1].(model.Message).Content != "there" {
		t.Errorf("Resolve() = %v", got)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	c := newTestCache(t)
	var n atomic.Int32
	stop := c.Subscribe(Tasks, func(Change) { n.Add(1) })
	stop()
	stop()

	c.Append(Tasks, model.Task{ID: 1})
	if n.Load() != 0 {
		t.Errorf("notified %d times after unsubscribe", n.Load())
	}
}

func TestWatchNonBlocking(t *testing.T) {
	c := newTestCache(t)
	ch, stop := c.Watch(Tasks)
	defer stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Append(Tasks, model.Task{ID: uint64(i + 1)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Append blocked on an undrained watcher")
	}

	select {
	case <-ch:
	default:
		t.Error("expected a pending signal")
	}
}

func TestCloseCancelsRefetch(t *testing.T) {
	c := New(Options{RequestTimeout: time.Minute})
	var calls atomic.Int32
	started := make(chan struct{})
	loader := func(ctx context.Context) (Result, error) {
		if calls.Add(1) == 1 {
			return Result{}, nil
		}
		close(started)
		<-ctx.Done()
		return Result{}, ctx.Err()
	}
	if _, err := c.Fetch(bg(), Tasks, loader); err != nil {
		t.Fatal(err)
	}

	c.Invalidate(Tasks)
	<-started

	closed := make(chan struct{})
	go func() { c.Close(); close(closed) }()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close() did not cancel the in-flight refetch")
	}

	if _, err := c.Fetch(bg(), Tasks, loader); !errors.Is(err, ErrClosed) {
		t.Errorf("Fetch() after Close error = %v, want ErrClosed", err)
	}
}

func TestStopFromRefetch(t *testing.T) {
	c := New(Options{StaleTime: time.Minute, RequestTimeout: time.Second})
	defer c.Close()
	var calls atomic.Int32
	loader := func(context.Context) (Result, error) {
		if calls.Add(1) == 1 {
			return listResult(model.Task{ID: 1, Title: "t"}), nil
		}
		c.Stop()
		return Result{}, errors.New("rejected")
	}
	if _, err := c.Fetch(bg(), Tasks, loader); err != nil {
		t.Fatal(err)
	}

	c.Invalidate(Tasks)
	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refetch calling Stop() did not return")
	}
	if _, ok := c.Task(1); ok {
		t.Error("Stop() kept the cached task")
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := newTestCache(t)
	task := model.Task{ID: 1, Title: "kept", Steps: []model.TaskStep{{ID: 10, TaskID: 1}}}
	_, _ = c.Fetch(bg(), TaskDetail(1), func(context.Context) (Result, error) { return detailResult(task), nil })
	c.SetValue(LLMSettings, model.LLMSettings{Model: "m"})

	snap := c.Snapshot()
	if len(snap.Queries) != 1 {
		t.Fatalf("Snapshot().Queries = %d, want only the entity query", len(snap.Queries))
	}

	warm := newTestCache(t)
	warm.Restore(snap)

	if got, ok := warm.Task(1); !ok || got.Title != "kept" {
		t.Errorf("restored Task(1) = %+v, %v", got, ok)
	}
	st := warm.State(TaskDetail(1))
	if !st.Stale || !st.HasData {
		t.Errorf("restored state = %+v, want stale with data", st)
	}

	var calls atomic.Int32
	_, _ = warm.Fetch(bg(), TaskDetail(1), func(context.Context) (Result, error) {
		calls.Add(1)
		return detailResult(task), nil
	})
	if calls.Load() != 1 {
		t.Errorf("Fetch() after Restore did not refetch")
	}
}
