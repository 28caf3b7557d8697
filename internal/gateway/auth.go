package gateway

import (
	"context"
	"errors"
	"net/http"
)

// User is the authenticated operator as the backend reports it.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	User User `json:"user"`
}

// AuthStatus is the response of the status probe. A 401 is reported as Authenticated=false.
type AuthStatus struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (User, error) {
	if err := c.check(req); err != nil {
		return User{}, err
	}
	var out userResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", req, &out, requestOpts{public: true})
	return out.User, err
}

// Login sets the session cookie on success. Bad credentials surface as an APIError, not a session expiry.
func (c *Client) Login(ctx context.Context, req LoginRequest) (User, error) {
	if err := c.check(req); err != nil {
		return User{}, err
	}
	var out userResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", req, &out, requestOpts{public: true})
	return out.User, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil, requestOpts{public: true})
}

func (c *Client) Profile(ctx context.Context) (User, error) {
	var out userResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/auth/profile", nil, &out, requestOpts{})
	return out.User, err
}

func (c *Client) Status(ctx context.Context) (AuthStatus, error) {
	var out AuthStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/auth/status", nil, &out, requestOpts{public: true})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return AuthStatus{}, nil
	}
	return out, err
}
