package reconcile

import (
	"fmt"
	"sort"

	"github.com/qisumi/qisumi-tui/internal/model"
)

// SortMode orders the task list
type SortMode string

const (
	SortFocusToday SortMode = "focusToday"
	SortUpdatedAt  SortMode = "updatedAt"
	SortCreatedAt  SortMode = "createdAt"
	SortDueAt      SortMode = "dueAt"
)

// SortModes lists the modes in the order the list cycles through them
var SortModes = []SortMode{SortFocusToday, SortUpdatedAt, SortCreatedAt, SortDueAt}

func (m SortMode) Label() string {
	switch m {
	case SortFocusToday:
		return "今日聚焦"
	case SortUpdatedAt:
		return "最近更新"
	case SortCreatedAt:
		return "创建时间"
	case SortDueAt:
		return "截止日期"
	default:
		return string(m)
	}
}

// Next is the mode after m in SortModes
func (m SortMode) Next() SortMode {
	for i, mode := range SortModes {
		if mode == m {
			return SortModes[(i+1)%len(SortModes)]
		}
	}
	return SortModes[0]
}

// ParseSortMode accepts the four mode names
func ParseSortMode(s string) (SortMode, error) {
	for _, m := range SortModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown sort mode %q (want focusToday, updatedAt, createdAt or dueAt)", s)
}

// SortTasks returns a sorted copy of tasks. The sort is stable: tasks
// that compare equal keep their input order.
func SortTasks(tasks []model.Task, mode SortMode) []model.Task {
	out := append([]model.Task(nil), tasks...)
	var less func(a, b model.Task) bool
	switch mode {
	case SortUpdatedAt:
		less = func(a, b model.Task) bool { return a.UpdatedAt.After(b.UpdatedAt) }
	case SortCreatedAt:
		less = func(a, b model.Task) bool { return a.CreatedAt.After(b.CreatedAt) }
	case SortDueAt:
		less = func(a, b model.Task) bool {
			switch {
			case a.DueAt == nil:
				return false
			case b.DueAt == nil:
				return true
			default:
				return a.DueAt.Before(*b.DueAt)
			}
		}
	default:
		less = func(a, b model.Task) bool {
			if a.IsFocusToday != b.IsFocusToday {
				return a.IsFocusToday
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
