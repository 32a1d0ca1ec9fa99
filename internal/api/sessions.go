package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qisumi/qisumi-tui/internal/model"
)

// Reply is the assistant's answer to a posted message
type Reply struct {
	SessionID        uint64                `json:"sessionId"`
	AssistantMessage model.Message         `json:"assistantMessage"`
	TaskPatches      []model.TaskPatchHint `json:"taskPatches"`
}

// ChangedTasks reports whether the assistant modified tasks while answering
func (r *Reply) ChangedTasks() bool {
	return len(r.TaskPatches) > 0
}

// GlobalSession returns the user's global assistant session, creating it
// on first use
func (c *Client) GlobalSession(ctx context.Context) (*model.Session, error) {
	var result struct {
		Session model.Session `json:"session"`
	}
	if err := c.Do(ctx, http.MethodGet, "/sessions/global", nil, &result); err != nil {
		return nil, err
	}
	return &result.Session, nil
}

// ListMessages returns the transcript of a session, oldest first
func (c *Client) ListMessages(ctx context.Context, sessionID uint64) ([]model.Message, error) {
	var result struct {
		SessionID uint64          `json:"sessionId"`
		Messages  []model.Message `json:"messages"`
	}
	if err := c.Do(ctx, http.MethodGet, messagesPath(sessionID), nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// SendMessage posts a user message and waits for the assistant's reply
func (c *Client) SendMessage(ctx context.Context, sessionID uint64, content string) (*Reply, error) {
	body := struct {
		Content string `json:"content"`
	}{content}

	var result Reply
	if err := c.Do(ctx, http.MethodPost, messagesPath(sessionID), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClearMessages deletes every message of a session
func (c *Client) ClearMessages(ctx context.Context, sessionID uint64) error {
	return c.Do(ctx, http.MethodDelete, messagesPath(sessionID), nil, nil)
}

func messagesPath(sessionID uint64) string {
	return fmt.Sprintf("/sessions/%d/messages", sessionID)
}
