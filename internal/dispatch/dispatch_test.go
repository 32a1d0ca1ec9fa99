package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qisumi/qisumi-tui/internal/api"
	"github.com/qisumi/qisumi-tui/internal/apitest"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/dispatch"
	"github.com/qisumi/qisumi-tui/internal/edit"
	"github.com/qisumi/qisumi-tui/internal/fields"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/notify"
	"github.com/qisumi/qisumi-tui/internal/tracker"
)

type env struct {
	srv    *apitest.Server
	client *api.Client
	cache  *cache.Cache
	tr     *tracker.Tracker
	toasts *notify.Recorder
	d      *dispatch.Dispatcher
}

func setup(t *testing.T, opts dispatch.Options) *env {
	t.Helper()
	srv := apitest.New(t)
	client := api.NewClient(srv.URL(), api.WithToken(srv.Token()))
	c := cache.New(cache.Options{StaleTime: time.Minute, RequestTimeout: 2 * time.Second})
	t.Cleanup(c.Close)
	toasts := &notify.Recorder{}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	return &env{
		srv:    srv,
		client: client,
		cache:  c,
		tr:     tracker.New(client, c),
		toasts: toasts,
		d:      dispatch.New(client, c, toasts, opts),
	}
}

// load seeds a task and fetches the list and its detail
func (e *env) load(t *testing.T, task model.Task) model.Task {
	t.Helper()
	seeded := e.srv.SeedTask(task)
	ctx := context.Background()
	if _, err := e.tr.Fetch(ctx, cache.Tasks); err != nil {
		t.Fatal(err)
	}
	if _, err := e.tr.Fetch(ctx, cache.TaskDetail(seeded.ID)); err != nil {
		t.Fatal(err)
	}
	e.srv.ResetCalls()
	return seeded
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTitleCommitInvalidatesDetailAndList(t *testing.T) {
	e := setup(t, dispatch.Options{})
	task := e.load(t, model.Task{Title: "Draft"})
	cached, _ := e.cache.Task(task.ID)

	ed := fields.NewEditor(fields.TaskTitle, cached)
	ed.Begin()
	_ = ed.Change("Final")
	patch, out := ed.Commit()
	if out != edit.Submit {
		t.Fatalf("Commit() outcome = %v", out)
	}
	err := e.d.Submit(context.Background(), patch)
	ed.Resolve(err)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	patches := e.srv.Calls(http.MethodPatch, fmt.Sprintf("/tasks/%d", task.ID))
	if len(patches) != 1 || len(patches[0].Body) != 1 || patches[0].Body["title"] != "Final" {
		t.Fatalf("PATCH calls = %+v, want one with only the title", patches)
	}
	if got, _ := e.cache.Task(task.ID); got.Title != "Final" {
		t.Errorf("cached Title = %q, want Final", got.Title)
	}
	if ed.Phase() != edit.Viewing || ed.Value() != "Final" {
		t.Errorf("editor = %v %q, want viewing Final", ed.Phase(), ed.Value())
	}

	waitFor(t, "list and detail refetch", func() bool {
		return len(e.srv.Calls(http.MethodGet, "/tasks")) == 1 &&
			len(e.srv.Calls(http.MethodGet, fmt.Sprintf("/tasks/%d", task.ID))) == 1
	})

	if e.toasts.Count(notify.Success) != 1 || e.toasts.Count(notify.Error) != 0 {
		t.Errorf("toasts = %+v, want one success", e.toasts.Toasts)
	}
	if last, _ := e.toasts.Last(); last.Message != "title updated" {
		t.Errorf("toast = %q, want %q", last.Message, "title updated")
	}
}

func TestStepStatusNetworkFailureLeavesCache(t *testing.T) {
	e := setup(t, dispatch.Options{})
	task := e.load(t, model.Task{Title: "Plan", Steps: []model.TaskStep{{Title: "book"}}})
	step := task.Steps[0]
	e.srv.FailNext(http.MethodPatch, fmt.Sprintf("/tasks/%d/steps/%d", task.ID, step.ID), http.StatusServiceUnavailable, "try later")

	cached, _ := e.cache.Step(step.ID)
	ed := fields.NewEditor(fields.StepStatus, cached)
	ed.Begin()
	_ = ed.Change(model.StepStatusDone)
	patch, _ := ed.Commit()

	err := e.d.Submit(context.Background(), patch)
	ed.Resolve(err)

	var f *dispatch.Failure
	if !errors.As(err, &f) {
		t.Fatalf("Submit() error = %v, want *Failure", err)
	}
	if f.Kind != api.KindTransient {
		t.Errorf("Kind = %v, want transient", f.Kind)
	}
	if len(f.Fields) != 1 || f.Fields[0] != "status" {
		t.Errorf("Fields = %v, want [status]", f.Fields)
	}

	if got, _ := e.cache.Step(step.ID); got.Status != model.StepStatusTodo || got.CompletedAt != nil {
		t.Errorf("cached step = %+v, want unchanged", got)
	}
	if ed.Controller().Baseline() != model.StepStatusTodo {
		t.Errorf("displayed value = %v, want todo", ed.Controller().Baseline())
	}
	if ed.Phase() != edit.Editing || ed.Controller().Draft() != model.StepStatusDone {
		t.Errorf("editor = %v draft %v, want editing with the draft kept", ed.Phase(), ed.Controller().Draft())
	}
	if e.toasts.Count(notify.Error) != 1 || len(e.toasts.Toasts) != 1 {
		t.Errorf("toasts = %+v, want exactly one error", e.toasts.Toasts)
	}
	if got := e.srv.Calls(http.MethodGet, ""); len(got) != 0 {
		t.Errorf("failure triggered %d refetches", len(got))
	}
}

func TestNoOpCommitSendsNothing(t *testing.T) {
	e := setup(t, dispatch.Options{})
	task := e.load(t, model.Task{Title: "Same"})
	cached, _ := e.cache.Task(task.ID)

	ed := fields.NewEditor(fields.TaskTitle, cached)
	ed.Begin()
	_ = ed.Change("Same")
	patch, out := ed.Commit()
	if out != edit.Unchanged || patch != nil {
		t.Fatalf("Commit() = %v, %v; want nil, unchanged", patch, out)
	}
	if err := e.d.Submit(context.Background(), model.TaskPatch{ID: task.ID}); err != nil {
		t.Fatalf("Submit(empty) error = %v", err)
	}

	if calls := e.srv.Calls("", ""); len(calls) != 0 {
		t.Errorf("requests = %+v, want none", calls)
	}
	if len(e.toasts.Toasts) != 0 {
		t.Errorf("toasts = %+v, want none", e.toasts.Toasts)
	}
}

func TestRejectedTitle(t *testing.T) {
	e := setup(t, dispatch.Options{})
	task := e.load(t, model.Task{Title: "Draft"})
	e.srv.FailNext(http.MethodPatch, fmt.Sprintf("/tasks/%d", task.ID), http.StatusUnprocessableEntity, "title too long")

	title := strings.Repeat("x", 10)
	err := e.d.Submit(context.Background(), model.TaskPatch{ID: task.ID, Title: &title})

	var f *dispatch.Failure
	if !errors.As(err, &f) || f.Kind != api.KindRejected {
		t.Fatalf("Submit() error = %v, want rejected failure", err)
	}
	if f.Message() != "title too long" {
		t.Errorf("Message() = %q", f.Message())
	}
	if last, _ := e.toasts.Last(); !strings.Contains(last.Message, "title too long") {
		t.Errorf("toast = %q, want the backend's message", last.Message)
	}
}

func TestNotFoundInvalidatesDetail(t *testing.T) {
	e := setup(t, dispatch.Options{})
	task := e.load(t, model.Task{Title: "Gone soon"})
	e.srv.RemoveTask(task.ID)

	title := "New"
	err := e.d.Submit(context.Background(), model.TaskPatch{ID: task.ID, Title: &title})
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Submit() error = %v, want not found", err)
	}

	waitFor(t, "detail to report not found", func() bool {
		return errors.Is(e.cache.State(cache.TaskDetail(task.ID)).Err, api.ErrNotFound)
	})
	if len(e.toasts.Toasts) != 1 {
		t.Errorf("toasts = %d, want 1", len(e.toasts.Toasts))
	}
}

func TestUnauthorizedCallsHook(t *testing.T) {
	var hooked atomic.Int32
	e := setup(t, dispatch.Options{OnUnauthorized: func(error) { hooked.Add(1) }})
	task := e.load(t, model.Task{Title: "x"})
	e.client.SetToken("expired")

	title := "y"
	err := e.d.Submit(context.Background(), model.TaskPatch{ID: task.ID, Title: &title})
	if api.KindOf(err) != api.KindUnauthorized {
		t.Fatalf("KindOf(%v) = %v, want unauthorized", err, api.KindOf(err))
	}
	if hooked.Load() != 1 {
		t.Errorf("OnUnauthorized called %d times, want 1", hooked.Load())
	}
}

func TestStepPatchTouchesParent(t *testing.T) {
	e := setup(t, dispatch.Options{Now: func() time.Time {
		return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	}})
	task := e.load(t, model.Task{Title: "Plan", Steps: []model.TaskStep{{Title: "a"}}})
	step := task.Steps[0]

	m := 120
	if err := e.d.Submit(context.Background(), model.StepPatch{TaskID: task.ID, StepID: step.ID, EstimateMinutes: &m}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	got, _ := e.cache.Task(task.ID)
	if got.UpdatedAt.Year() != 2030 {
		t.Errorf("parent UpdatedAt = %v, want touched", got.UpdatedAt)
	}
	if s, _ := e.cache.Step(step.ID); s.EstimateMinutes == nil || *s.EstimateMinutes != 120 {
		t.Errorf("step estimate = %v", s.EstimateMinutes)
	}
}

func TestSendMessageTaskPatchesInvalidateTasks(t *testing.T) {
	e := setup(t, dispatch.Options{})
	e.load(t, model.Task{Title: "x"})
	ctx := context.Background()
	if _, err := e.tr.Fetch(ctx, cache.GlobalSession); err != nil {
		t.Fatal(err)
	}
	sessionID := e.cache.Refs(cache.GlobalSession)[0].ID
	if _, err := e.tr.Fetch(ctx, cache.SessionMessages(sessionID)); err != nil {
		t.Fatal(err)
	}
	e.srv.Reply = func(uint64, string) (string, []model.TaskPatchHint) {
		return "done", []model.TaskPatchHint{{Kind: "update_task"}}
	}
	release := e.srv.Hold(http.MethodPost, fmt.Sprintf("/sessions/%d/messages", sessionID))
	e.srv.ResetCalls()

	errc := make(chan error, 1)
	go func() {
		_, err := e.d.SendMessage(ctx, sessionID, "mark it done")
		errc <- err
	}()

	waitFor(t, "optimistic message", func() bool {
		msgs := e.cache.Resolve(cache.SessionMessages(sessionID))
		return len(msgs) == 1 && msgs[0].(model.Message).Content == "mark it done"
	})
	release()
	if err := <-errc; err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	waitFor(t, "task list refetch", func() bool {
		return len(e.srv.Calls(http.MethodGet, "/tasks")) >= 1
	})
	waitFor(t, "transcript reconcile", func() bool {
		msgs := e.cache.Resolve(cache.SessionMessages(sessionID))
		if len(msgs) != 2 {
			return false
		}
		return msgs[0].(model.Message).ID < 1<<32
	})
}

func TestSendMessageFailureDropsPending(t *testing.T) {
	e := setup(t, dispatch.Options{})
	sess, err := e.client.GlobalSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	e.srv.FailNext(http.MethodPost, fmt.Sprintf("/sessions/%d/messages", sess.ID), http.StatusInternalServerError, "llm down")

	if _, err := e.d.SendMessage(context.Background(), sess.ID, "hello"); err == nil {
		t.Fatal("SendMessage() error = nil")
	}
	if msgs := e.cache.Resolve(cache.SessionMessages(sess.ID)); len(msgs) != 0 {
		t.Errorf("pending message kept after failure: %+v", msgs)
	}
	if e.toasts.Count(notify.Error) != 1 {
		t.Errorf("error toasts = %d, want 1", e.toasts.Count(notify.Error))
	}
}

func TestCreateFromTextSeedsDetail(t *testing.T) {
	e := setup(t, dispatch.Options{})
	detail, err := e.d.CreateTaskFromText(context.Background(), "Move house\npack boxes\nbook van")
	if err != nil {
		t.Fatalf("CreateTaskFromText() error = %v", err)
	}
	key := cache.TaskDetail(detail.Task.ID)
	if st := e.cache.State(key); !st.HasData {
		t.Errorf("detail state = %+v, want seeded", st)
	}
	if steps := e.cache.StepsOf(detail.Task.ID); len(steps) != 2 {
		t.Errorf("StepsOf() = %d, want 2", len(steps))
	}
	if e.toasts.Count(notify.Success) != 1 {
		t.Errorf("success toasts = %d, want 1", e.toasts.Count(notify.Success))
	}
}

func TestAddAndDeleteStep(t *testing.T) {
	e := setup(t, dispatch.Options{})
	task := e.load(t, model.Task{Title: "Plan"})
	ctx := context.Background()

	step, err := e.d.AddStep(ctx, task.ID, model.NewStep{Title: "first"})
	if err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	if got := e.cache.StepsOf(task.ID); len(got) != 1 {
		t.Fatalf("StepsOf() after add = %d", len(got))
	}

	if err := e.d.DeleteStep(ctx, task.ID, step.ID); err != nil {
		t.Fatalf("DeleteStep() error = %v", err)
	}
	if _, ok := e.cache.Step(step.ID); ok {
		t.Error("step still cached after delete")
	}
	if e.toasts.Count(notify.Success) != 2 {
		t.Errorf("success toasts = %d, want 2", e.toasts.Count(notify.Success))
	}
}

func TestDeleteTask(t *testing.T) {
	e := setup(t, dispatch.Options{})
	task := e.load(t, model.Task{Title: "Old", Steps: []model.TaskStep{{Title: "s"}}})

	if err := e.d.DeleteTask(context.Background(), task.ID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if _, ok := e.cache.Task(task.ID); ok {
		t.Error("task still cached")
	}
	if _, ok := e.cache.Step(task.Steps[0].ID); ok {
		t.Error("step still cached")
	}
}

func TestSaveSettingsRejected(t *testing.T) {
	e := setup(t, dispatch.Options{})
	_, err := e.d.SaveLLMSettings(context.Background(), model.LLMSettings{BaseURL: "https://llm", Model: "m"})

	var f *dispatch.Failure
	if !errors.As(err, &f) || f.Kind != api.KindRejected {
		t.Fatalf("SaveLLMSettings() error = %v, want rejected", err)
	}
	if last, _ := e.toasts.Last(); !strings.Contains(last.Message, "API key required on first configuration") {
		t.Errorf("toast = %q", last.Message)
	}

	saved, err := e.d.SaveLLMSettings(context.Background(), model.LLMSettings{BaseURL: "https://llm", Model: "m", APIKey: "sk"})
	if err != nil {
		t.Fatalf("SaveLLMSettings() error = %v", err)
	}
	v, ok := e.cache.Value(cache.LLMSettings)
	if !ok || v.(model.LLMSettings).Model != saved.Model {
		t.Errorf("cached settings = %v, %v", v, ok)
	}
}
