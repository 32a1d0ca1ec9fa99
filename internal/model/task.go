package model

import "time"

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskStatuses lists task statuses in picker order
var TaskStatuses = []TaskStatus{TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusCancelled}

// Valid reports whether s is a known task status
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusCancelled:
		return true
	}
	return false
}

// Label returns the display label
func (s TaskStatus) Label() string {
	switch s {
	case TaskStatusTodo:
		return "待办"
	case TaskStatusInProgress:
		return "进行中"
	case TaskStatusDone:
		return "已完成"
	case TaskStatusCancelled:
		return "已取消"
	default:
		return string(s)
	}
}

// Icon returns the icon for the status
func (s TaskStatus) Icon() string {
	switch s {
	case TaskStatusTodo:
		return "○"
	case TaskStatusInProgress:
		return "●"
	case TaskStatusDone:
		return "✓"
	case TaskStatusCancelled:
		return "⊖"
	default:
		return "○"
	}
}

// Priority of a task
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func (p Priority) Label() string {
	switch p {
	case PriorityLow:
		return "低"
	case PriorityMedium:
		return "中"
	case PriorityHigh:
		return "高"
	default:
		return string(p)
	}
}

// Task is a unit of work owned by a user
type Task struct {
	ID           uint64     `json:"id"`
	UserID       uint64     `json:"userId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	IsFocusToday bool       `json:"isFocusToday"`
	DueAt        *time.Time `json:"dueAt,omitempty"`
	CreatedFrom  string     `json:"createdFrom,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`

	// Steps is only populated on the wire; the cache keeps steps as
	// their own entities.
	Steps []TaskStep `json:"steps,omitempty"`
}

func (t Task) Ref() Ref { return Ref{Kind: KindTask, ID: t.ID} }

// TaskRef builds the ref of the task with the given id
func TaskRef(id uint64) Ref { return Ref{Kind: KindTask, ID: id} }

// TaskPatch carries the changed fields of a task. Dates are RFC3339
// strings; an empty DueAt clears the due date.
type TaskPatch struct {
	ID uint64 `json:"-"`

	Title        *string     `json:"title,omitempty"`
	Description  *string     `json:"description,omitempty"`
	Status       *TaskStatus `json:"status,omitempty"`
	Priority     *Priority   `json:"priority,omitempty"`
	IsFocusToday *bool       `json:"isFocusToday,omitempty"`
	DueAt        *string     `json:"dueAt,omitempty"`
}

func (p TaskPatch) Target() Ref { return TaskRef(p.ID) }

func (p TaskPatch) Fields() []string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.Priority != nil {
		fields = append(fields, "priority")
	}
	if p.IsFocusToday != nil {
		fields = append(fields, "isFocusToday")
	}
	if p.DueAt != nil {
		fields = append(fields, "dueAt")
	}
	return fields
}

func (p TaskPatch) Empty() bool { return len(p.Fields()) == 0 }

// Apply merges the patch into a Task and refreshes UpdatedAt
func (p TaskPatch) Apply(e Entity, now time.Time) Entity {
	t, ok := e.(Task)
	if !ok {
		return e
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
		if t.Status == TaskStatusDone {
			if t.CompletedAt == nil {
				at := now
				t.CompletedAt = &at
			}
		} else {
			t.CompletedAt = nil
		}
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.IsFocusToday != nil {
		t.IsFocusToday = *p.IsFocusToday
	}
	if p.DueAt != nil {
		t.DueAt = parseOptionalTime(*p.DueAt)
	}
	t.UpdatedAt = now
	return t
}

// Touch refreshes UpdatedAt on a task; used when one of its steps changes
func Touch(e Entity, now time.Time) Entity {
	if t, ok := e.(Task); ok {
		t.UpdatedAt = now
		return t
	}
	return e
}

// NewTask is the body of a create request
type NewTask struct {
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Status       TaskStatus `json:"status,omitempty"`
	Priority     Priority   `json:"priority,omitempty"`
	IsFocusToday bool       `json:"isFocusToday,omitempty"`
	DueAt        *time.Time `json:"dueAt,omitempty"`
}

func parseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// FormatTime renders t the way patches carry timestamps
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}
