package tracker_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/qisumi/qisumi-tui/internal/api"
	"github.com/qisumi/qisumi-tui/internal/apitest"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/tracker"
)

func setup(t *testing.T) (*tracker.Tracker, *apitest.Server) {
	t.Helper()
	srv := apitest.New(t)
	client := api.NewClient(srv.URL(), api.WithToken(srv.Token()))
	c := cache.New(cache.Options{StaleTime: time.Minute, RequestTimeout: 2 * time.Second})
	t.Cleanup(c.Close)
	return tracker.New(client, c), srv
}

func TestFetchTasksNormalizesSteps(t *testing.T) {
	tr, srv := setup(t)
	task := srv.SeedTask(model.Task{
		Title: "Write report",
		Steps: []model.TaskStep{{Title: "outline"}, {Title: "draft"}},
	})

	if _, err := tr.Fetch(context.Background(), cache.Tasks); err != nil {
		t.Fatalf("Fetch(tasks) error = %v", err)
	}
	c := tr.Cache()
	cached, ok := c.Task(task.ID)
	if !ok {
		t.Fatal("task not cached")
	}
	if len(cached.Steps) != 0 {
		t.Errorf("cached task embeds %d steps, want none", len(cached.Steps))
	}
	if steps := c.StepsOf(task.ID); len(steps) != 2 || steps[0].Title != "outline" {
		t.Errorf("StepsOf() = %+v", steps)
	}
}

func TestFetchDetailIncludesSession(t *testing.T) {
	tr, srv := setup(t)
	task := srv.SeedTask(model.Task{Title: "Plan trip"})

	if _, err := tr.Fetch(context.Background(), cache.TaskDetail(task.ID)); err != nil {
		t.Fatalf("Fetch(detail) error = %v", err)
	}
	refs := tr.Cache().Refs(cache.TaskDetail(task.ID))
	if len(refs) != 2 || refs[0] != task.Ref() || refs[1].Kind != model.KindSession {
		t.Fatalf("Refs() = %v, want task then session", refs)
	}
	if _, ok := tr.Cache().Session(refs[1].ID); !ok {
		t.Error("session not cached")
	}
}

func TestFetchDetailNotFound(t *testing.T) {
	tr, _ := setup(t)
	_, err := tr.Fetch(context.Background(), cache.TaskDetail(999))
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Fetch() error = %v, want not found", err)
	}
	if st := tr.Cache().State(cache.TaskDetail(999)); !errors.Is(st.Err, api.ErrNotFound) {
		t.Errorf("State().Err = %v", st.Err)
	}
}

func TestInvalidateUsesRememberedLoader(t *testing.T) {
	tr, srv := setup(t)
	task := srv.SeedTask(model.Task{Title: "Before"})
	ctx := context.Background()
	if _, err := tr.Fetch(ctx, cache.Tasks); err != nil {
		t.Fatal(err)
	}

	srv.MutateTask(task.ID, func(t *model.Task) { t.Title = "After" })
	ch, stop := tr.Cache().Watch(cache.Tasks)
	defer stop()
	tr.Cache().Invalidate(cache.Tasks)

	deadline := time.After(2 * time.Second)
	for {
		if got, _ := tr.Cache().Task(task.ID); got.Title == "After" {
			return
		}
		select {
		case <-ch:
		case <-deadline:
			t.Fatal("refetch never delivered the server-side change")
		}
	}
}

func TestMessagesAndSettings(t *testing.T) {
	tr, srv := setup(t)
	ctx := context.Background()
	srv.Reply = func(uint64, string) (string, []model.TaskPatchHint) { return "hi", nil }

	if _, err := tr.Fetch(ctx, cache.GlobalSession); err != nil {
		t.Fatalf("Fetch(global) error = %v", err)
	}
	refs := tr.Cache().Refs(cache.GlobalSession)
	if len(refs) != 1 {
		t.Fatalf("Refs(global) = %v", refs)
	}
	sessionID := refs[0].ID

	client := api.NewClient(srv.URL(), api.WithToken(srv.Token()))
	if _, err := client.SendMessage(ctx, sessionID, "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Fetch(ctx, cache.SessionMessages(sessionID)); err != nil {
		t.Fatalf("Fetch(messages) error = %v", err)
	}
	if msgs := tr.Cache().Resolve(cache.SessionMessages(sessionID)); len(msgs) != 2 {
		t.Errorf("Resolve(messages) = %d, want 2", len(msgs))
	}

	if _, err := tr.Fetch(ctx, cache.LLMSettings); err != nil {
		t.Fatalf("Fetch(settings) error = %v", err)
	}
	if _, ok := tr.Cache().Value(cache.LLMSettings); !ok {
		t.Error("settings value not cached")
	}
}

func TestFetchTransientFailure(t *testing.T) {
	tr, srv := setup(t)
	srv.FailNext(http.MethodGet, "/tasks", http.StatusBadGateway, "upstream down")

	_, err := tr.Fetch(context.Background(), cache.Tasks)
	if api.KindOf(err) != api.KindTransient {
		t.Errorf("KindOf(%v) = %v, want transient", err, api.KindOf(err))
	}
}

func TestUnknownScope(t *testing.T) {
	tr, _ := setup(t)
	if _, err := tr.Loader(cache.Key{Scope: "nope"}); err == nil {
		t.Error("Loader() for an unknown scope returned no error")
	}
}

func TestUnauthorizedLoadCallsHook(t *testing.T) {
	srv := apitest.New(t)
	client := api.NewClient(srv.URL(), api.WithToken(srv.Token()))
	c := cache.New(cache.Options{StaleTime: time.Minute, RequestTimeout: 2 * time.Second})
	t.Cleanup(c.Close)

	rejected := make(chan error, 2)
	tr := tracker.New(client, c, tracker.WithUnauthorized(func(err error) { rejected <- err }))

	srv.FailNext(http.MethodGet, "/tasks", http.StatusUnauthorized, "token expired")
	if _, err := tr.Fetch(context.Background(), cache.Tasks); api.KindOf(err) != api.KindUnauthorized {
		t.Fatalf("Fetch() error = %v, want unauthorized", err)
	}
	select {
	case err := <-rejected:
		if !errors.Is(err, api.ErrUnauthorized) {
			t.Errorf("hook called with %v", err)
		}
	default:
		t.Fatal("hook not called for a 401 fetch")
	}

	// background refetches reach the hook too
	if _, err := tr.Fetch(context.Background(), cache.Tasks); err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	srv.FailNext(http.MethodGet, "/tasks", http.StatusUnauthorized, "token expired")
	c.Invalidate(cache.Tasks)
	select {
	case <-rejected:
	case <-time.After(time.Second):
		t.Fatal("hook not called for a 401 refetch")
	}

	srv.FailNext(http.MethodGet, "/tasks", http.StatusInternalServerError, "boom")
	c.Invalidate(cache.Tasks)
	select {
	case err := <-rejected:
		t.Errorf("hook called for a 500: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}
