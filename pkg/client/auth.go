package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gradpush/extrapoints/internal/models"
)

// LoginResult is the backend's answer to a successful login
type LoginResult struct {
	User    models.User `json:"user"`
	Token   string      `json:"token,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SessionStatus is the answer of the session-check endpoint
type SessionStatus struct {
	Valid         *bool        `json:"valid,omitempty"`
	Authenticated *bool        `json:"authenticated,omitempty"`
	User          *models.User `json:"user,omitempty"`
}

// OK reports whether the backend still recognizes the session
func (s *SessionStatus) OK() bool {
	if s == nil || s.User == nil {
		return false
	}
	if s.Valid != nil {
		return *s.Valid
	}
	if s.Authenticated != nil {
		return *s.Authenticated
	}
	return true
}

type messageResponse struct {
	Message string `json:"message"`
}

// Login authenticates and returns the user profile and, for token based
// backends, the access token. The token is not stored on the client.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*LoginResult, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	raw, err := c.Request(ctx, http.MethodPost, "/login", creds, WithCallToken(""))
	if err != nil {
		return nil, err
	}

	var result struct {
		LoginResult
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &RequestError{Kind: KindDecode, Method: http.MethodPost, Endpoint: "/login", Message: "failed to decode login response", Cause: err}
	}
	if result.Token == "" {
		result.Token = result.AccessToken
	}
	if result.User.Username == "" {
		result.User.Username = creds.Username
	}

	if result.Token != "" {
		c.logger.Debug("login issued token", "username", result.User.Username, "token", maskToken(result.Token))
	}
	return &result.LoginResult, nil
}

// Register creates an account and returns the backend message
func (c *Client) Register(ctx context.Context, reg models.Registration) (string, error) {
	if err := reg.Validate(); err != nil {
		return "", err
	}
	var resp messageResponse
	if err := c.RequestInto(ctx, http.MethodPost, "/register", reg, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ResetPassword sets a new password and returns the backend message
func (c *Client) ResetPassword(ctx context.Context, reset models.PasswordReset) (string, error) {
	if err := reset.Validate(); err != nil {
		return "", err
	}
	var resp messageResponse
	if err := c.RequestInto(ctx, http.MethodPost, "/reset-password", reset, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// SessionCheck asks the backend whether the current credentials are valid
func (c *Client) SessionCheck(ctx context.Context) (*SessionStatus, error) {
	var status SessionStatus
	if err := c.RequestInto(ctx, http.MethodGet, "/session-check", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Logout ends the backend session
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodPost, "/logout", nil)
	return err
}

// Captcha fetches a new captcha challenge
func (c *Client) Captcha(ctx context.Context) (*models.Captcha, error) {
	var captcha models.Captcha
	if err := c.RequestInto(ctx, http.MethodGet, "/generate-captcha", nil, &captcha); err != nil {
		return nil, err
	}
	return &captcha, nil
}

// CurrentUser fetches the profile of username
func (c *Client) CurrentUser(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", models.ErrValidation)
	}
	var resp struct {
		User *models.User `json:"user"`
	}
	endpoint := "/user/" + url.PathEscape(username)
	if err := c.RequestInto(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, &RequestError{Kind: KindDecode, Method: http.MethodGet, Endpoint: endpoint, Message: "response has no user"}
	}
	return resp.User, nil
}
