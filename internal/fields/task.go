package fields

import (
	"time"

	"github.com/qisumi/qisumi-tui/internal/edit"
	"github.com/qisumi/qisumi-tui/internal/model"
)

// DateLayout is how due dates are typed and shown
const DateLayout = "2006-01-02"

var TaskTitle = Attr[model.Task, string]{
	Name:     "title",
	Label:    "标题",
	Get:      func(t model.Task) string { return t.Title },
	Validate: edit.RequireText("title"),
	Equal:    equal[string],
	Patch: func(t model.Task, v string) model.Patch {
		return model.TaskPatch{ID: t.ID, Title: &v}
	},
}

var TaskDescription = Attr[model.Task, string]{
	Name:  "description",
	Label: "描述",
	Get:   func(t model.Task) string { return t.Description },
	Equal: equal[string],
	Patch: func(t model.Task, v string) model.Patch {
		return model.TaskPatch{ID: t.ID, Description: &v}
	},
}

var TaskStatus = Attr[model.Task, model.TaskStatus]{
	Name:  "status",
	Label: "状态",
	Get:   func(t model.Task) model.TaskStatus { return t.Status },
	Validate: func(s model.TaskStatus) error {
		if !s.Valid() {
			return &edit.ValidationError{Field: "status", Msg: "unknown status " + string(s)}
		}
		return nil
	},
	Equal: equal[model.TaskStatus],
	Patch: func(t model.Task, v model.TaskStatus) model.Patch {
		return model.TaskPatch{ID: t.ID, Status: &v}
	},
}

var TaskPriority = Attr[model.Task, model.Priority]{
	Name:  "priority",
	Label: "优先级",
	Get:   func(t model.Task) model.Priority { return t.Priority },
	Validate: func(p model.Priority) error {
		if !p.Valid() {
			return &edit.ValidationError{Field: "priority", Msg: "unknown priority " + string(p)}
		}
		return nil
	},
	Equal: equal[model.Priority],
	Patch: func(t model.Task, v model.Priority) model.Patch {
		return model.TaskPatch{ID: t.ID, Priority: &v}
	},
}

var TaskFocus = Attr[model.Task, bool]{
	Name:  "isFocusToday",
	Label: "今日聚焦",
	Get:   func(t model.Task) bool { return t.IsFocusToday },
	Equal: equal[bool],
	Patch: func(t model.Task, v bool) model.Patch {
		return model.TaskPatch{ID: t.ID, IsFocusToday: &v}
	},
}

// TaskDueAt edits the due date as a DateLayout string; empty clears it
var TaskDueAt = Attr[model.Task, string]{
	Name:  "dueAt",
	Label: "截止日期",
	Get: func(t model.Task) string {
		if t.DueAt == nil {
			return ""
		}
		return t.DueAt.In(time.Local).Format(DateLayout)
	},
	Validate: func(v string) error {
		if _, err := parseDate(v); err != nil {
			return &edit.ValidationError{Field: "dueAt", Msg: "due date must look like " + DateLayout}
		}
		return nil
	},
	Equal: equal[string],
	Patch: func(t model.Task, v string) model.Patch {
		due := ""
		if d, err := parseDate(v); err == nil && !d.IsZero() {
			due = model.FormatTime(d)
		}
		return model.TaskPatch{ID: t.ID, DueAt: &due}
	},
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(DateLayout, v, time.Local)
}
