package fields

import (
	"time"

	"github.com/qisumi/qisumi-tui/internal/duration"
	"github.com/qisumi/qisumi-tui/internal/edit"
	"github.com/qisumi/qisumi-tui/internal/model"
)

// PlanLayout is how planned start and end times are typed and shown
const PlanLayout = "2006-01-02 15:04"

func stepPatch(s model.TaskStep) model.StepPatch {
	return model.StepPatch{TaskID: s.TaskID, StepID: s.ID}
}

var StepTitle = Attr[model.TaskStep, string]{
	Name:     "title",
	Label:    "标题",
	Get:      func(s model.TaskStep) string { return s.Title },
	Validate: edit.RequireText("title"),
	Equal:    equal[string],
	Patch: func(s model.TaskStep, v string) model.Patch {
		p := stepPatch(s)
		p.Title = &v
		return p
	},
}

var StepDetail = Attr[model.TaskStep, string]{
	Name:  "detail",
	Label: "详情",
	Get:   func(s model.TaskStep) string { return s.Detail },
	Equal: equal[string],
	Patch: func(s model.TaskStep, v string) model.Patch {
		p := stepPatch(s)
		p.Detail = &v
		return p
	},
}

var StepStatus = Attr[model.TaskStep, model.StepStatus]{
	Name:  "status",
	Label: "状态",
	Get:   func(s model.TaskStep) model.StepStatus { return s.Status },
	Validate: func(v model.StepStatus) error {
		if !v.Valid() {
			return &edit.ValidationError{Field: "status", Msg: "unknown status " + string(v)}
		}
		return nil
	},
	Equal: equal[model.StepStatus],
	Patch: func(s model.TaskStep, v model.StepStatus) model.Patch {
		p := stepPatch(s)
		p.Status = &v
		return p
	},
}

// StepBlockingReason is only offered while the step is blocked
var StepBlockingReason = Attr[model.TaskStep, string]{
	Name:  "blockingReason",
	Label: "受阻原因",
	Get:   func(s model.TaskStep) string { return s.BlockingReason },
	Equal: equal[string],
	Patch: func(s model.TaskStep, v string) model.Patch {
		p := stepPatch(s)
		p.BlockingReason = &v
		return p
	},
}

// StepEstimate edits the estimate as a value in a chosen unit. Two
// drafts storing the same minutes are equal, so switching units alone
// is not a change.
var StepEstimate = Attr[model.TaskStep, duration.Draft]{
	Name:  "estimateMinutes",
	Label: "预估时长",
	Get:   func(s model.TaskStep) duration.Draft { return duration.DraftOf(s.EstimateMinutes) },
	Validate: func(d duration.Draft) error {
		if err := duration.Validate(d.Value, d.Unit); err != nil {
			return &edit.ValidationError{Field: "estimateMinutes", Msg: err.Error()}
		}
		return nil
	},
	Equal: duration.SameDuration,
	Patch: func(s model.TaskStep, d duration.Draft) model.Patch {
		p := stepPatch(s)
		m := d.Minutes()
		p.EstimateMinutes = &m
		return p
	},
}

// Window is a planned start/end pair in PlanLayout; empty means unset
type Window struct {
	Start string
	End   string
}

var StepPlan = Attr[model.TaskStep, Window]{
	Name:  "plan",
	Label: "计划时间",
	Get: func(s model.TaskStep) Window {
		return Window{Start: formatPlan(s.PlannedStart), End: formatPlan(s.PlannedEnd)}
	},
	Validate: func(w Window) error {
		start, err := parsePlan(w.Start)
		if err != nil {
			return &edit.ValidationError{Field: "plannedStart", Msg: "start must look like " + PlanLayout}
		}
		end, err := parsePlan(w.End)
		if err != nil {
			return &edit.ValidationError{Field: "plannedEnd", Msg: "end must look like " + PlanLayout}
		}
		if !start.IsZero() && !end.IsZero() && end.Before(start) {
			return &edit.ValidationError{Field: "plannedEnd", Msg: "end must not be before start"}
		}
		return nil
	},
	Equal: equal[Window],
	Patch: func(s model.TaskStep, w Window) model.Patch {
		p := stepPatch(s)
		start, end := planWire(w.Start), planWire(w.End)
		p.PlannedStart = &start
		p.PlannedEnd = &end
		return p
	},
}

func formatPlan(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(time.Local).Format(PlanLayout)
}

func parsePlan(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(PlanLayout, v, time.Local)
}

func planWire(v string) string {
	t, err := parsePlan(v)
	if err != nil || t.IsZero() {
		return ""
	}
	return model.FormatTime(t)
}
