package model

import "time"

// StepStatus represents the status of a task step
type StepStatus string

const (
	StepStatusLocked     StepStatus = "locked"
	StepStatusTodo       StepStatus = "todo"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusDone       StepStatus = "done"
	StepStatusBlocked    StepStatus = "blocked"
)

var StepStatuses = []StepStatus{StepStatusLocked, StepStatusTodo, StepStatusInProgress, StepStatusDone, StepStatusBlocked}

func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusLocked, StepStatusTodo, StepStatusInProgress, StepStatusDone, StepStatusBlocked:
		return true
	}
	return false
}

func (s StepStatus) Label() string {
	switch s {
	case StepStatusLocked:
		return "已锁定"
	case StepStatusTodo:
		return "待办"
	case StepStatusInProgress:
		return "进行中"
	case StepStatusDone:
		return "已完成"
	case StepStatusBlocked:
		return "受阻"
	default:
		return string(s)
	}
}

// Icon returns the icon for the step status
func (s StepStatus) Icon() string {
	switch s {
	case StepStatusLocked:
		return "◌"
	case StepStatusTodo:
		return "○"
	case StepStatusInProgress:
		return "●"
	case StepStatusDone:
		return "✓"
	case StepStatusBlocked:
		return "⊘"
	default:
		return "○"
	}
}

// TaskStep is one ordered step of a task
type TaskStep struct {
	ID              uint64     `json:"id"`
	TaskID          uint64     `json:"taskId"`
	OrderIndex      int        `json:"orderIndex"`
	Title           string     `json:"title"`
	Detail          string     `json:"detail"`
	Status          StepStatus `json:"status"`
	BlockingReason  string     `json:"blockingReason"`
	EstimateMinutes *int       `json:"estimateMinutes,omitempty"`
	PlannedStart    *time.Time `json:"plannedStart,omitempty"`
	PlannedEnd      *time.Time `json:"plannedEnd,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func (s TaskStep) Ref() Ref    { return StepRef(s.ID) }
func (s TaskStep) Parent() Ref { return TaskRef(s.TaskID) }

// StepRef builds the ref of the step with the given id
func StepRef(id uint64) Ref { return Ref{Kind: KindStep, ID: id} }

// Blocked reports whether the blocking reason applies
func (s TaskStep) Blocked() bool { return s.Status == StepStatusBlocked }

// StepPatch carries the changed fields of a step
type StepPatch struct {
	TaskID uint64 `json:"-"`
	StepID uint64 `json:"-"`

	Title           *string     `json:"title,omitempty"`
	Detail          *string     `json:"detail,omitempty"`
	Status          *StepStatus `json:"status,omitempty"`
	BlockingReason  *string     `json:"blockingReason,omitempty"`
	EstimateMinutes *int        `json:"estimateMinutes,omitempty"`
	OrderIndex      *int        `json:"orderIndex,omitempty"`
	PlannedStart    *string     `json:"plannedStart,omitempty"`
	PlannedEnd      *string     `json:"plannedEnd,omitempty"`
}

func (p StepPatch) Target() Ref { return StepRef(p.StepID) }

// Parent is the task whose aggregates the step feeds
func (p StepPatch) Parent() Ref { return TaskRef(p.TaskID) }

func (p StepPatch) Fields() []string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Detail != nil {
		fields = append(fields, "detail")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.BlockingReason != nil {
		fields = append(fields, "blockingReason")
	}
	if p.EstimateMinutes != nil {
		fields = append(fields, "estimateMinutes")
	}
	if p.OrderIndex != nil {
		fields = append(fields, "orderIndex")
	}
	if p.PlannedStart != nil {
		fields = append(fields, "plannedStart")
	}
	if p.PlannedEnd != nil {
		fields = append(fields, "plannedEnd")
	}
	return fields
}

func (p StepPatch) Empty() bool { return len(p.Fields()) == 0 }

func (p StepPatch) Apply(e Entity, now time.Time) Entity {
	s, ok := e.(TaskStep)
	if !ok {
		return e
	}
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Detail != nil {
		s.Detail = *p.Detail
	}
	if p.Status != nil {
		s.Status = *p.Status
		if s.Status == StepStatusDone {
			if s.CompletedAt == nil {
				at := now
				s.CompletedAt = &at
			}
		} else {
			s.CompletedAt = nil
		}
	}
	if p.BlockingReason != nil {
		s.BlockingReason = *p.BlockingReason
	}
	if p.EstimateMinutes != nil {
		m := *p.EstimateMinutes
		s.EstimateMinutes = &m
	}
	if p.OrderIndex != nil {
		s.OrderIndex = *p.OrderIndex
	}
	if p.PlannedStart != nil {
		s.PlannedStart = parseOptionalTime(*p.PlannedStart)
	}
	if p.PlannedEnd != nil {
		s.PlannedEnd = parseOptionalTime(*p.PlannedEnd)
	}
	s.UpdatedAt = now
	return s
}

// NewStep is the body of an add-step request
type NewStep struct {
	Title           string `json:"title"`
	Detail          string `json:"detail,omitempty"`
	EstimateMinutes *int   `json:"estimateMinutes,omitempty"`
}
