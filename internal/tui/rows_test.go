package tui

import (
	"errors"
	"testing"

	"github.com/qisumi/qisumi-tui/internal/duration"
	"github.com/qisumi/qisumi-tui/internal/edit"
	"github.com/qisumi/qisumi-tui/internal/fields"
	"github.com/qisumi/qisumi-tui/internal/model"
)

func TestParseEstimate(t *testing.T) {
	tests := []struct {
		in      string
		want    duration.Draft
		wantErr bool
	}{
		{"", duration.Draft{Unit: duration.Minutes}, false},
		{"90", duration.Draft{Value: 90, Unit: duration.Minutes}, false},
		{"1.5 hours", duration.Draft{Value: 1.5, Unit: duration.Hours}, false},
		{"2d", duration.Draft{Value: 2, Unit: duration.Days}, false},
		{"3 天", duration.Draft{Value: 3, Unit: duration.Days}, false},
		{"45m", duration.Draft{Value: 45, Unit: duration.Minutes}, false},
		{"hours", duration.Draft{}, true},
		{"2 weeks", duration.Draft{}, true},
		{"1.2.3", duration.Draft{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseEstimate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseEstimate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseEstimate(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    fields.Window
		wantErr bool
	}{
		{"", fields.Window{}, false},
		{"2026-10-14 09:00 ~ 2026-10-14 11:00", fields.Window{Start: "2026-10-14 09:00", End: "2026-10-14 11:00"}, false},
		{"2026-10-14 09:00 ~", fields.Window{Start: "2026-10-14 09:00"}, false},
		{"~ 2026-10-14 11:00", fields.Window{End: "2026-10-14 11:00"}, false},
		{"2026-10-14 09:00", fields.Window{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseWindow(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseWindow(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseWindow(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatEstimateRoundTrip(t *testing.T) {
	for _, d := range []duration.Draft{
		{Value: 90, Unit: duration.Minutes},
		{Value: 1.5, Unit: duration.Hours},
		{Value: 2, Unit: duration.Days},
	} {
		got, err := parseEstimate(formatEstimate(d))
		if err != nil || got != d {
			t.Errorf("parseEstimate(formatEstimate(%+v)) = %+v, %v", d, got, err)
		}
	}
}

func TestTextRowCommit(t *testing.T) {
	task := model.Task{ID: 7, Title: "Old", Status: model.TaskStatusTodo, Priority: model.PriorityLow}
	title := taskRows(task)[0]

	seed, ok := title.Edit()
	if !ok || seed != "Old" {
		t.Fatalf("Edit() = %q, %v; want \"Old\", true", seed, ok)
	}
	if err := title.Input("  New  "); err != nil {
		t.Fatalf("Input() error = %v", err)
	}
	patch, out := title.Commit()
	if out != edit.Submit {
		t.Fatalf("Commit() outcome = %v, want submit", out)
	}
	p, ok := patch.(model.TaskPatch)
	if !ok || p.ID != 7 || p.Title == nil || *p.Title != "New" {
		t.Errorf("Commit() patch = %+v", patch)
	}
	if f := p.Fields(); len(f) != 1 {
		t.Errorf("patch fields = %v, want one", f)
	}
	if title.Phase() != edit.Submitting {
		t.Errorf("Phase() = %v, want submitting", title.Phase())
	}
}

func TestEmptyTitleInvalid(t *testing.T) {
	title := taskRows(model.Task{ID: 1, Title: "Old"})[0]
	title.Edit()
	title.Input("   ")
	if _, out := title.Commit(); out != edit.Invalid {
		t.Errorf("Commit() outcome = %v, want invalid", out)
	}
	if title.Err() == nil || title.Phase() != edit.Editing {
		t.Errorf("Err() = %v, Phase() = %v; want an error while editing", title.Err(), title.Phase())
	}
}

func TestChoiceRowCycles(t *testing.T) {
	status := taskRows(model.Task{ID: 1, Title: "t", Status: model.TaskStatusTodo})[2]
	if !status.Choice() {
		t.Fatal("status row is not a choice row")
	}
	status.Edit()
	status.Cycle(-1)
	if got := status.Text(); got != string(model.TaskStatusCancelled) {
		t.Errorf("Cycle(-1) from todo = %q, want cancelled", got)
	}
	status.Cycle(1)
	status.Cycle(1)
	if got := status.Text(); got != string(model.TaskStatusInProgress) {
		t.Errorf("Cycle(1) twice = %q, want in_progress", got)
	}
	patch, out := status.Commit()
	if out != edit.Submit || *patch.(model.TaskPatch).Status != model.TaskStatusInProgress {
		t.Errorf("Commit() = %+v, %v", patch, out)
	}
}

func TestStepRowsBlockingReason(t *testing.T) {
	est := 90
	open := model.TaskStep{ID: 3, TaskID: 1, Title: "s", Status: model.StepStatusTodo, EstimateMinutes: &est}
	blocked := open
	blocked.Status = model.StepStatusBlocked

	if n := len(stepRows(open)); n != 5 {
		t.Errorf("len(stepRows(todo)) = %d, want 5", n)
	}
	rows := stepRows(blocked)
	if n := len(rows); n != 6 {
		t.Fatalf("len(stepRows(blocked)) = %d, want 6", n)
	}
	if rows[3].Label() != fields.StepBlockingReason.Label {
		t.Errorf("rows[3] = %q, want the blocking reason", rows[3].Label())
	}
}

func TestEstimateUnitSwitchIsUnchanged(t *testing.T) {
	est := 90
	row := stepRows(model.TaskStep{ID: 3, TaskID: 1, Title: "s", Status: model.StepStatusTodo, EstimateMinutes: &est})[3]

	seed, _ := row.Edit()
	if seed != "1.5 hours" {
		t.Errorf("Edit() seed = %q, want \"1.5 hours\"", seed)
	}
	if err := row.Input("90 minutes"); err != nil {
		t.Fatalf("Input() error = %v", err)
	}
	if _, out := row.Commit(); out != edit.Unchanged {
		t.Errorf("Commit() outcome = %v, want unchanged", out)
	}
}

func TestSyncSkipsDraft(t *testing.T) {
	task := model.Task{ID: 1, Title: "Old"}
	title := taskRows(task)[0]
	title.Edit()
	title.Input("Mine")

	task.Title = "Theirs"
	title.Sync(task)
	if got := title.Text(); got != "Mine" {
		t.Errorf("draft after Sync = %q, want \"Mine\"", got)
	}

	title.Cancel()
	title.Sync(task)
	if got := title.Display(); got != "Theirs" {
		t.Errorf("Display() after Sync = %q, want \"Theirs\"", got)
	}
}

func TestFailedCommitDisplaysSaved(t *testing.T) {
	status := taskRows(model.Task{ID: 1, Title: "t", Status: model.TaskStatusTodo})[2]
	status.Edit()
	status.Cycle(1)
	if _, out := status.Commit(); out != edit.Submit {
		t.Fatalf("Commit() = %v, want submit", out)
	}
	status.Resolve(errors.New("server down"))

	saved := taskStatusStyle(model.TaskStatusTodo).Render(model.TaskStatusTodo.Icon() + " " + model.TaskStatusTodo.Label())
	draft := taskStatusStyle(model.TaskStatusInProgress).Render(model.TaskStatusInProgress.Icon() + " " + model.TaskStatusInProgress.Label())
	if got := status.Display(); got != saved {
		t.Errorf("Display() after failure = %q, want the saved %q", got, saved)
	}
	if got := status.Pending(); got != draft {
		t.Errorf("Pending() = %q, want %q", got, draft)
	}

	// cycling again clears the error and shows the draft
	status.Cycle(1)
	if got := status.Pending(); got != "" {
		t.Errorf("Pending() after a new change = %q, want empty", got)
	}
}
