package tui

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/qisumi/qisumi-tui/internal/apitest"
	"github.com/qisumi/qisumi-tui/internal/edit"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/notify"
)

// openSeeded seeds a task with two steps and opens its detail view
func openSeeded(t *testing.T) (Model, model.Task, *apitest.Server) {
	t.Helper()
	m, srv := testModel(t)
	task := srv.SeedTask(model.Task{
		Title: "Quarterly report",
		Steps: []model.TaskStep{{Title: "Collect numbers"}, {Title: "Write summary"}},
	})
	cmd := m.openDetail(task.ID)
	m = update(m, cmd())
	if m.viewMode != ViewModeDetail || m.detail.view.Task.ID != task.ID {
		t.Fatalf("detail view not open for task %d", task.ID)
	}
	return m, task, srv
}

func TestDetailShowsTaskAndSteps(t *testing.T) {
	m, _, _ := openSeeded(t)
	view := m.View()
	for _, want := range []string{"Quarterly report", "Collect numbers", "Write summary", "0/2"} {
		if !strings.Contains(view, want) {
			t.Errorf("detail view missing %q", want)
		}
	}
}

func TestDetailTitleEdit(t *testing.T) {
	m, task, srv := openSeeded(t)

	m, _ = press(m, enterKey)
	if m.detail.editing != m.detail.rows[0] {
		t.Fatal("enter on the title did not start editing it")
	}
	if got := m.detail.input.Value(); got != "Quarterly report" {
		t.Errorf("input seeded with %q", got)
	}

	m.detail.input.SetValue("Annual report")
	m, cmd := press(m, enterKey)
	if cmd == nil {
		t.Fatal("commit returned no command")
	}
	if got := m.detail.rows[0].Phase(); got != edit.Submitting {
		t.Errorf("Phase() = %v, want submitting", got)
	}
	if !strings.Contains(m.View(), "保存中") {
		t.Error("view does not mark the field as saving")
	}

	m = update(m, cmd())
	if got := m.detail.rows[0].Phase(); got != edit.Viewing {
		t.Errorf("Phase() after success = %v, want viewing", got)
	}
	if calls := srv.Calls("PATCH", fmt.Sprintf("/tasks/%d", task.ID)); len(calls) != 1 {
		t.Fatalf("PATCH calls = %d, want 1", len(calls))
	} else if len(calls[0].Body) != 1 || calls[0].Body["title"] != "Annual report" {
		t.Errorf("PATCH body = %v, want only the title", calls[0].Body)
	}
	if cached, _ := m.session.Cache.Task(task.ID); cached.Title != "Annual report" {
		t.Errorf("cached title = %q", cached.Title)
	}
	if toasts := m.app.Toasts.All(); len(toasts) != 1 || toasts[0].Level != notify.Success {
		t.Errorf("toasts = %+v, want one success", toasts)
	}

	// editing again starts from the saved title
	m, _ = press(m, enterKey)
	if got := m.detail.input.Value(); got != "Annual report" {
		t.Errorf("input seeded with %q after save, want the saved title", got)
	}
	m, cmd = press(m, enterKey)
	if cmd != nil {
		t.Error("re-entering the saved title returned a command")
	}
	if n := len(srv.Calls("PATCH", fmt.Sprintf("/tasks/%d", task.ID))); n != 1 {
		t.Errorf("PATCH calls = %d, want 1", n)
	}
	if n := len(m.app.Toasts.All()); n != 1 {
		t.Errorf("toasts = %d, want 1", n)
	}
}

func TestDetailUnchangedSendsNothing(t *testing.T) {
	m, task, srv := openSeeded(t)

	m, _ = press(m, enterKey)
	m, cmd := press(m, enterKey)
	if cmd != nil {
		t.Error("unchanged commit returned a command")
	}
	if m.detail.editing != nil {
		t.Error("still editing after an unchanged commit")
	}
	if calls := srv.Calls("PATCH", fmt.Sprintf("/tasks/%d", task.ID)); len(calls) != 0 {
		t.Errorf("PATCH calls = %d, want 0", len(calls))
	}
	if n := len(m.app.Toasts.All()); n != 0 {
		t.Errorf("toasts = %d, want 0", n)
	}
}

func TestDetailRejectedEditKeepsDraft(t *testing.T) {
	m, task, srv := openSeeded(t)
	srv.FailNext("PATCH", fmt.Sprintf("/tasks/%d", task.ID), http.StatusBadRequest, "title too long")

	m, _ = press(m, enterKey)
	m.detail.input.SetValue("A much longer title")
	m, cmd := press(m, enterKey)
	m = update(m, cmd())

	title := m.detail.rows[0]
	if title.Phase() != edit.Editing || title.Err() == nil {
		t.Fatalf("Phase() = %v, Err() = %v; want editing with an error", title.Phase(), title.Err())
	}
	if m.detail.editing != title || m.detail.input.Value() != "A much longer title" {
		t.Errorf("input = %q, want the draft back", m.detail.input.Value())
	}
	if !strings.Contains(m.View(), "title too long") {
		t.Error("view does not show the server's message")
	}
	if cached, _ := m.session.Cache.Task(task.ID); cached.Title != "Quarterly report" {
		t.Errorf("cached title = %q, want unchanged", cached.Title)
	}
	if toasts := m.app.Toasts.All(); len(toasts) != 1 || toasts[0].Level != notify.Error {
		t.Errorf("toasts = %+v, want one error", toasts)
	}
}

func TestDetailStatusChoice(t *testing.T) {
	m, task, srv := openSeeded(t)

	m = update(m, downKey)
	m = update(m, downKey)
	m, _ = press(m, enterKey)
	if m.detail.editing == nil || !m.detail.editing.Choice() {
		t.Fatal("status row did not start a choice edit")
	}
	m = update(m, rightKey)
	m, cmd := press(m, enterKey)
	m = update(m, cmd())

	if got, _ := srv.Task(task.ID); got.Status != model.TaskStatusInProgress {
		t.Errorf("server status = %q, want in_progress", got.Status)
	}
}

func TestDetailStatusFailureShowsSaved(t *testing.T) {
	m, task, srv := openSeeded(t)
	srv.FailNext("PATCH", fmt.Sprintf("/tasks/%d", task.ID), http.StatusInternalServerError, "database unavailable")

	m.detail.cursor = 2
	m, _ = press(m, enterKey)
	m = update(m, rightKey)
	m, cmd := press(m, enterKey)
	m = update(m, cmd())

	status := m.detail.rows[2]
	if status.Err() == nil {
		t.Fatal("status row has no error after a failed save")
	}
	saved := taskStatusStyle(model.TaskStatusTodo).Render(model.TaskStatusTodo.Icon() + " " + model.TaskStatusTodo.Label())
	if got := status.Display(); got != saved {
		t.Errorf("Display() = %q, want the saved status %q", got, saved)
	}
	if cached, _ := m.session.Cache.Task(task.ID); cached.Status != model.TaskStatusTodo {
		t.Errorf("cached status = %q, want todo", cached.Status)
	}
	if toasts := m.app.Toasts.All(); len(toasts) != 1 || toasts[0].Level != notify.Error {
		t.Errorf("toasts = %+v, want one error", toasts)
	}
}

func TestDetailStepEstimate(t *testing.T) {
	m, task, srv := openSeeded(t)
	step := task.Steps[0]

	m.detail.cursor = len(m.detail.rows)
	m = update(m, enterKey)
	if m.detail.stepID != step.ID {
		t.Fatalf("stepID = %d, want %d", m.detail.stepID, step.ID)
	}

	m.detail.cursor = 3
	m, _ = press(m, enterKey)
	m.detail.input.SetValue("1.5 days")
	m, cmd := press(m, enterKey)
	m = update(m, cmd())

	got, _ := srv.Step(step.ID)
	if got.EstimateMinutes == nil || *got.EstimateMinutes != 720 {
		t.Fatalf("server estimate = %v, want 720", got.EstimateMinutes)
	}

	// Same minutes in another unit is not a change
	m, _ = press(m, enterKey)
	m.detail.input.SetValue("12 hours")
	m, cmd = press(m, enterKey)
	if cmd != nil {
		t.Error("re-entering the same minutes sent a request")
	}
	if calls := srv.Calls("PATCH", fmt.Sprintf("/tasks/%d/steps/%d", task.ID, step.ID)); len(calls) != 1 {
		t.Errorf("step PATCH calls = %d, want 1", len(calls))
	}

	m = update(m, escKey)
	if m.detail.stepID != 0 || m.detail.cursor != len(m.detail.rows) {
		t.Errorf("after esc stepID = %d, cursor = %d", m.detail.stepID, m.detail.cursor)
	}
}

func TestDetailAddAndDeleteStep(t *testing.T) {
	m, task, srv := openSeeded(t)

	m, _ = press(m, runeKey("n"))
	if !m.detail.adding {
		t.Fatal("n did not open the step input")
	}
	m.detail.input.SetValue("Send to team")
	m, cmd := press(m, enterKey)
	m = update(m, cmd())
	if n := len(m.detail.view.Steps); n != 3 {
		t.Fatalf("steps = %d, want 3", n)
	}

	m.detail.cursor = len(m.detail.rows)
	m, cmd = press(m, runeKey("x"))
	if cmd != nil || m.detail.confirm == 0 {
		t.Fatal("first x should only ask for confirmation")
	}
	m, cmd = press(m, runeKey("x"))
	m = update(m, cmd())
	if n := len(m.detail.view.Steps); n != 2 {
		t.Errorf("steps = %d, want 2", n)
	}
	if _, ok := srv.Step(task.Steps[0].ID); ok {
		t.Error("step still on the server")
	}
}

func TestDetailEscReturnsToList(t *testing.T) {
	m, _, _ := openSeeded(t)
	m, cmd := press(m, escKey)
	if m.viewMode != ViewModeList {
		t.Fatalf("viewMode = %v, want list", m.viewMode)
	}
	m = update(m, cmd())
	if len(m.list.view.Cards) != 1 {
		t.Errorf("list has %d cards, want 1", len(m.list.view.Cards))
	}
}
