package api

import (
	"context"
	"net/http"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges email and password for a bearer token. The client keeps
// using the new token for later requests.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	if err := c.Do(ctx, http.MethodPost, "/auth/login", credentials{email, password}, &result); err != nil {
		return "", err
	}
	c.SetToken(result.Token)
	return result.Token, nil
}

// Register creates an account; call Login afterwards
func (c *Client) Register(ctx context.Context, email, password string) error {
	return c.Do(ctx, http.MethodPost, "/auth/register", credentials{email, password}, nil)
}
