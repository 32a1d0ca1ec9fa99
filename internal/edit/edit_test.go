package edit

import (
	"context"
	"errors"
	"testing"

	"github.com/qisumi/qisumi-tui/internal/duration"
)

func TestBeginRequiresViewing(t *testing.T) {
	c := New[string]("title", nil)
	if !c.Begin("a") {
		t.Fatal("Begin() = false from Viewing")
	}
	if c.Begin("b") {
		t.Error("Begin() while editing = true")
	}
	if c.Draft() != "a" {
		t.Errorf("Draft() = %q, want %q", c.Draft(), "a")
	}
}

func TestChangeOutsideEditing(t *testing.T) {
	c := New[string]("title", nil)
	if err := c.Change("x"); !errors.Is(err, ErrNotEditing) {
		t.Errorf("Change() error = %v, want ErrNotEditing", err)
	}
}

func TestCommitUnchangedSkipsSubmit(t *testing.T) {
	c := New[string]("title", RequireText("title"))
	c.Begin("Draft")
	_ = c.Change("Draft")

	_, out := c.Commit()
	if out != Unchanged {
		t.Fatalf("Commit() outcome = %v, want unchanged", out)
	}
	if c.Phase() != Viewing {
		t.Errorf("Phase() = %v, want viewing", c.Phase())
	}

	calls := 0
	c.Begin("Draft")
	out, err := c.Run(context.Background(), func(context.Context, string) error {
		calls++
		return nil
	})
	if out != Unchanged || err != nil || calls != 0 {
		t.Errorf("Run() = %v, %v with %d submits; want unchanged, nil, 0", out, err, calls)
	}
}

func TestCommitValidation(t *testing.T) {
	tests := []struct {
		name  string
		draft string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tabs and newline", "\t\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New[string]("title", RequireText("title"))
			c.Begin("Write report")
			_ = c.Change(tt.draft)

			_, out := c.Commit()
			if out != Invalid {
				t.Fatalf("Commit() outcome = %v, want invalid", out)
			}
			if c.Phase() != Editing {
				t.Errorf("Phase() = %v, want editing", c.Phase())
			}
			var verr *ValidationError
			if !errors.As(c.Err(), &verr) || verr.Msg != "title required" {
				t.Errorf("Err() = %v, want title required", c.Err())
			}
			if c.Baseline() != "Write report" {
				t.Errorf("Baseline() = %q, want unchanged", c.Baseline())
			}

			_ = c.Change("Fixed")
			if c.Err() != nil {
				t.Errorf("Err() after Change = %v, want nil", c.Err())
			}
		})
	}
}

func TestSubmitLifecycle(t *testing.T) {
	c := New[string]("title", RequireText("title"))
	c.Begin("Draft")
	_ = c.Change("Final")

	v, out := c.Commit()
	if out != Submit || v != "Final" {
		t.Fatalf("Commit() = %q, %v; want Final, submit", v, out)
	}
	if _, again := c.Commit(); again != Busy {
		t.Errorf("second Commit() = %v, want busy", again)
	}
	if c.Cancel() {
		t.Error("Cancel() while submitting = true")
	}
	c.Sync("from cache")
	if c.Draft() != "Final" {
		t.Errorf("Sync() touched the draft: %q", c.Draft())
	}

	c.Resolve(nil)
	if c.Phase() != Viewing || c.Baseline() != "Final" {
		t.Errorf("after Resolve(nil): phase %v baseline %q", c.Phase(), c.Baseline())
	}
}

func TestResolveFailureKeepsDraft(t *testing.T) {
	c := New[string]("status", nil)
	c.Begin("todo")
	_ = c.Change("done")
	c.Commit()

	boom := errors.New("network down")
	c.Resolve(boom)

	if c.Phase() != Editing {
		t.Fatalf("Phase() = %v, want editing", c.Phase())
	}
	if c.Draft() != "done" {
		t.Errorf("Draft() = %q, want done", c.Draft())
	}
	if c.Baseline() != "todo" {
		t.Errorf("Baseline() = %q, want todo", c.Baseline())
	}
	if !errors.Is(c.Err(), boom) {
		t.Errorf("Err() = %v, want %v", c.Err(), boom)
	}
}

func TestCancelDiscardsDraft(t *testing.T) {
	c := New[string]("title", nil)
	c.Begin("a")
	_ = c.Change("b")
	if !c.Cancel() {
		t.Fatal("Cancel() = false while editing")
	}
	if c.Value() != "a" || c.Phase() != Viewing {
		t.Errorf("after Cancel: value %q phase %v", c.Value(), c.Phase())
	}
	if c.Cancel() {
		t.Error("Cancel() while viewing = true")
	}
}

func TestSyncOnlyWhileViewing(t *testing.T) {
	c := New[string]("title", nil)
	c.Sync("one")
	if c.Value() != "one" {
		t.Errorf("Value() = %q, want one", c.Value())
	}

	c.Begin("one")
	_ = c.Change("mine")
	c.Sync("two")
	if c.Draft() != "mine" || c.Baseline() != "one" {
		t.Errorf("Sync while editing changed state: draft %q baseline %q", c.Draft(), c.Baseline())
	}
}

func TestSiblingControllersAreIndependent(t *testing.T) {
	title := New[string]("title", RequireText("title"))
	desc := New[string]("description", nil)

	title.Begin("T")
	desc.Begin("D")
	_ = title.Change("T2")
	_ = desc.Change("D2")

	_, out := title.Commit()
	if out != Submit {
		t.Fatalf("title Commit() = %v", out)
	}
	title.Resolve(errors.New("boom"))

	if desc.Draft() != "D2" || desc.Phase() != Editing || desc.Err() != nil {
		t.Errorf("description affected by title: draft %q phase %v err %v", desc.Draft(), desc.Phase(), desc.Err())
	}
}

func TestDurationEquality(t *testing.T) {
	c := NewWithEqual("estimate", nil, duration.SameDuration)
	c.Begin(duration.Draft{Value: 1.5, Unit: duration.Hours})
	_ = c.Change(duration.Draft{Value: 90, Unit: duration.Minutes})

	if _, out := c.Commit(); out != Unchanged {
		t.Errorf("Commit() outcome = %v, want unchanged for the same minutes", out)
	}

	c.Begin(duration.Draft{Value: 1.5, Unit: duration.Hours})
	_ = c.Change(duration.Draft{Value: 1.5, Unit: duration.Days})
	v, out := c.Commit()
	if out != Submit || v.Minutes() != 720 {
		t.Errorf("Commit() = %v minutes, %v; want 720, submit", v.Minutes(), out)
	}
}

func TestRunReportsSubmitError(t *testing.T) {
	c := New[bool]("isFocusToday", nil)
	c.Begin(false)
	_ = c.Change(true)

	boom := errors.New("rejected")
	out, err := c.Run(context.Background(), func(_ context.Context, v bool) error {
		if !v {
			t.Errorf("submit got %v, want true", v)
		}
		return boom
	})
	if out != Submit || !errors.Is(err, boom) {
		t.Errorf("Run() = %v, %v", out, err)
	}
	if c.Phase() != Editing {
		t.Errorf("Phase() = %v, want editing", c.Phase())
	}
}
