package journal

import (
	"context"
	"errors"
)

// Login exchanges credentials for a bearer token
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	var out LoginResponse
	if err := c.post(ctx, "/api/auth/login", LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user the current token belongs to
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.get(ctx, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
