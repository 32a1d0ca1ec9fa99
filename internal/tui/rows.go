package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/qisumi/qisumi-tui/internal/duration"
	"github.com/qisumi/qisumi-tui/internal/edit"
	"github.com/qisumi/qisumi-tui/internal/fields"
	"github.com/qisumi/qisumi-tui/internal/model"
)

// row is one editable line of the detail view
type row interface {
	Label() string
	// Display is the value as shown: the draft while editing, the saved
	// value once a commit of the draft has failed
	Display() string
	// Pending is the draft a failed commit left behind
	Pending() string
	// Text is the value as typed into the input
	Text() string
	Phase() edit.Phase
	Err() error
	// Choice rows are edited by cycling through fixed values
	Choice() bool
	// Edit begins editing and returns the text to put in the input
	Edit() (seed string, ok bool)
	// Input replaces the draft with typed text
	Input(text string) error
	// Cycle moves a choice row's draft by dir
	Cycle(dir int)
	Commit() (model.Patch, edit.Outcome)
	Resolve(err error)
	Cancel() bool
	Sync(e model.Entity)
}

type field[E model.Entity, T any] struct {
	ed *fields.Editor[E, T]
	// text formats the draft for the input; show, when set, for display
	text    func(T) string
	show    func(T) string
	parse   func(string) (T, error)
	choices []T
}

func (f *field[E, T]) Label() string { return f.ed.Attr().Label }
func (f *field[E, T]) Phase() edit.Phase { return f.ed.Phase() }
func (f *field[E, T]) Err() error { return f.ed.Err() }
func (f *field[E, T]) Choice() bool { return f.choices != nil }
func (f *field[E, T]) Resolve(err error) { f.ed.Resolve(err) }
func (f *field[E, T]) Cancel() bool { return f.ed.Cancel() }

func (f *field[E, T]) Commit() (model.Patch, edit.Outcome) { return f.ed.Commit() }

func (f *field[E, T]) Display() string {
	v := f.ed.Value()
	if f.ed.Err() != nil {
		v = f.ed.Controller().Baseline()
	}
	return f.render(v)
}

func (f *field[E, T]) Pending() string {
	if f.ed.Err() == nil {
		return ""
	}
	return f.render(f.ed.Controller().Draft())
}

func (f *field[E, T]) render(v T) string {
	if f.show != nil {
		return f.show(v)
	}
	return f.text(v)
}

func (f *field[E, T]) Text() string { return f.text(f.ed.Value()) }

func (f *field[E, T]) Edit() (string, bool) {
	if !f.ed.Begin() {
		return "", false
	}
	return f.text(f.ed.Value()), true
}

func (f *field[E, T]) Input(text string) error {
	if f.parse == nil {
		return errors.New("field is picked, not typed")
	}
	v, err := f.parse(text)
	if err != nil {
		return err
	}
	return f.ed.Change(v)
}

func (f *field[E, T]) Cycle(dir int) {
	if len(f.choices) == 0 {
		return
	}
	cur := f.text(f.ed.Value())
	i := 0
	for j, c := range f.choices {
		if f.text(c) == cur {
			i = j
			break
		}
	}
	n := len(f.choices)
	_ = f.ed.Change(f.choices[((i+dir)%n+n)%n])
}

func (f *field[E, T]) Sync(e model.Entity) {
	if v, ok := e.(E); ok {
		f.ed.Sync(v)
	}
}

func plain(s string) string { return s }
func parsePlain(s string) (string, error) { return strings.TrimSpace(s), nil }

func orNotSet(s string) string {
	if s == "" {
		return DimStyle.Render("未设置")
	}
	return s
}

func focusLabel(v bool) string {
	if v {
		return FocusStyle.Render("★ 是")
	}
	return "否"
}

func taskRows(t model.Task) []row {
	return []row{
		&field[model.Task, string]{ed: fields.NewEditor(fields.TaskTitle, t), text: plain, parse: parsePlain},
		&field[model.Task, string]{ed: fields.NewEditor(fields.TaskDescription, t), text: plain, show: orNotSet, parse: parsePlain},
		&field[model.Task, model.TaskStatus]{
			ed:      fields.NewEditor(fields.TaskStatus, t),
			text:    func(s model.TaskStatus) string { return string(s) },
			show:    func(s model.TaskStatus) string { return taskStatusStyle(s).Render(s.Icon() + " " + s.Label()) },
			choices: model.TaskStatuses,
		},
		&field[model.Task, model.Priority]{
			ed:      fields.NewEditor(fields.TaskPriority, t),
			text:    func(p model.Priority) string { return string(p) },
			show:    func(p model.Priority) string { return priorityStyle(p).Render(p.Label()) },
			choices: model.Priorities,
		},
		&field[model.Task, bool]{
			ed:      fields.NewEditor(fields.TaskFocus, t),
			text:    strconv.FormatBool,
			show:    focusLabel,
			choices: []bool{false, true},
		},
		&field[model.Task, string]{ed: fields.NewEditor(fields.TaskDueAt, t), text: plain, show: orNotSet, parse: parsePlain},
	}
}

// stepRows returns the rows of s. The blocking reason is offered only
// while the step is blocked.
func stepRows(s model.TaskStep) []row {
	rows := []row{
		&field[model.TaskStep, string]{ed: fields.NewEditor(fields.StepTitle, s), text: plain, parse: parsePlain},
		&field[model.TaskStep, string]{ed: fields.NewEditor(fields.StepDetail, s), text: plain, show: orNotSet, parse: parsePlain},
		&field[model.TaskStep, model.StepStatus]{
			ed:      fields.NewEditor(fields.StepStatus, s),
			text:    func(v model.StepStatus) string { return string(v) },
			show:    func(v model.StepStatus) string { return stepStatusStyle(v).Render(v.Icon() + " " + v.Label()) },
			choices: model.StepStatuses,
		},
	}
	if s.Blocked() {
		rows = append(rows, &field[model.TaskStep, string]{
			ed: fields.NewEditor(fields.StepBlockingReason, s), text: plain, show: orNotSet, parse: parsePlain,
		})
	}
	return append(rows,
		&field[model.TaskStep, duration.Draft]{
			ed:    fields.NewEditor(fields.StepEstimate, s),
			text:  formatEstimate,
			show:  func(d duration.Draft) string { return duration.Of(d.Minutes()).Label },
			parse: parseEstimate,
		},
		&field[model.TaskStep, fields.Window]{
			ed:    fields.NewEditor(fields.StepPlan, s),
			text:  formatWindow,
			show:  func(w fields.Window) string { return orNotSet(strings.TrimSpace(formatWindow(w))) },
			parse: parseWindow,
		},
	)
}

func formatEstimate(d duration.Draft) string {
	if d.Value == 0 {
		return ""
	}
	return fmt.Sprintf("%g %s", d.Value, d.Unit)
}

// parseEstimate reads "90", "1.5 hours", "2d" or "3 天". The unit
// defaults to minutes.
func parseEstimate(s string) (duration.Draft, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return duration.Draft{Unit: duration.Minutes}, nil
	}
	i := strings.LastIndexFunc(s, func(r rune) bool { return unicode.IsDigit(r) || r == '.' })
	if i < 0 {
		return duration.Draft{}, fmt.Errorf("estimate %q has no number", s)
	}
	num, rest := s[:i+1], strings.TrimSpace(s[i+1:])
	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return duration.Draft{}, fmt.Errorf("estimate %q is not a number", num)
	}
	unit := duration.Minutes
	if rest != "" {
		if unit, err = duration.ParseUnit(rest); err != nil {
			return duration.Draft{}, err
		}
	}
	return duration.Draft{Value: v, Unit: unit}, nil
}

func formatWindow(w fields.Window) string {
	if w.Start == "" && w.End == "" {
		return ""
	}
	return w.Start + " ~ " + w.End
}

// parseWindow reads "START ~ END"; either side may be empty
func parseWindow(s string) (fields.Window, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fields.Window{}, nil
	}
	start, end, ok := strings.Cut(s, "~")
	if !ok {
		return fields.Window{}, fmt.Errorf("plan must look like %q ~ %q", fields.PlanLayout, fields.PlanLayout)
	}
	return fields.Window{Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}, nil
}
