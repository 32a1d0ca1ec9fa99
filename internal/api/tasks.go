package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qisumi/qisumi-tui/internal/model"
)

// TaskList is the body of the list endpoints
type TaskList struct {
	Tasks []model.Task `json:"tasks"`
	Total int          `json:"total"`
}

// TaskDetail is a task with its chat session
type TaskDetail struct {
	Task     model.Task      `json:"task"`
	Session  *model.Session  `json:"session,omitempty"`
	Messages []model.Message `json:"messages,omitempty"`
}

// ListTasks returns the user's open tasks
func (c *Client) ListTasks(ctx context.Context) (*TaskList, error) {
	var result TaskList
	if err := c.Do(ctx, http.MethodGet, "/tasks", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListCompletedTasks returns the user's finished tasks
func (c *Client) ListCompletedTasks(ctx context.Context) (*TaskList, error) {
	var result TaskList
	if err := c.Do(ctx, http.MethodGet, "/tasks/completed", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTask returns one task with its steps and session
func (c *Client) GetTask(ctx context.Context, id uint64) (*TaskDetail, error) {
	var result TaskDetail
	if err := c.Do(ctx, http.MethodGet, taskPath(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTask creates a task from explicit fields
func (c *Client) CreateTask(ctx context.Context, t model.NewTask) (*model.Task, error) {
	var result struct {
		Task model.Task `json:"task"`
	}
	if err := c.Do(ctx, http.MethodPost, "/tasks", t, &result); err != nil {
		return nil, err
	}
	return &result.Task, nil
}

// CreateTaskFromText asks the assistant to build a task from free text
func (c *Client) CreateTaskFromText(ctx context.Context, rawText string) (*TaskDetail, error) {
	body := struct {
		RawText string `json:"raw_text"`
	}{rawText}

	var result TaskDetail
	if err := c.Do(ctx, http.MethodPost, "/tasks/from-text", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateTask sends only the fields set in patch
func (c *Client) UpdateTask(ctx context.Context, patch model.TaskPatch) error {
	return c.Do(ctx, http.MethodPatch, taskPath(patch.ID), patch, nil)
}

// DeleteTask removes a task and its steps
func (c *Client) DeleteTask(ctx context.Context, id uint64) error {
	return c.Do(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

// AddStep appends a step to a task
func (c *Client) AddStep(ctx context.Context, taskID uint64, step model.NewStep) (*model.TaskStep, error) {
	var result struct {
		Step model.TaskStep `json:"step"`
	}
	if err := c.Do(ctx, http.MethodPost, taskPath(taskID)+"/steps", step, &result); err != nil {
		return nil, err
	}
	return &result.Step, nil
}

// UpdateStep sends only the fields set in patch
func (c *Client) UpdateStep(ctx context.Context, patch model.StepPatch) error {
	return c.Do(ctx, http.MethodPatch, stepPath(patch.TaskID, patch.StepID), patch, nil)
}

// DeleteStep removes one step of a task
func (c *Client) DeleteStep(ctx context.Context, taskID, stepID uint64) error {
	return c.Do(ctx, http.MethodDelete, stepPath(taskID, stepID), nil, nil)
}

func taskPath(id uint64) string {
	return fmt.Sprintf("/tasks/%d", id)
}

func stepPath(taskID, stepID uint64) string {
	return fmt.Sprintf("/tasks/%d/steps/%d", taskID, stepID)
}
