package api

import (
	"context"
	"net/http"

	"github.com/qisumi/qisumi-tui/internal/model"
)

// GetLLMSettings returns the user's model settings. The backend answers
// with an empty object when none are stored.
func (c *Client) GetLLMSettings(ctx context.Context) (*model.LLMSettings, error) {
	var result model.LLMSettings
	if err := c.Do(ctx, http.MethodGet, "/settings/llm", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SaveLLMSettings stores the user's model settings
func (c *Client) SaveLLMSettings(ctx context.Context, s model.LLMSettings) (*model.LLMSettings, error) {
	var result model.LLMSettings
	if err := c.Do(ctx, http.MethodPost, "/settings/llm", s, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteLLMSettings falls back to the server default settings
func (c *Client) DeleteLLMSettings(ctx context.Context) error {
	return c.Do(ctx, http.MethodDelete, "/settings/llm", nil, nil)
}
