package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// Auth endpoint paths.
const (
	PathRegister = "/api/v1/auth/register"
	PathLogin    = "/api/v1/auth/login"
	PathMe       = "/api/v1/auth/me"
)

// Register creates an account.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.RegisterResponse, error) {
	var out models.RegisterResponse
	err := c.doJSON(ctx, http.MethodPost, PathRegister, req, &out)
	return out, err
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, PathLogin, models.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return out, err
	}
	if out.AccessToken == "" {
		return out, fmt.Errorf("backend returned no access token")
	}
	return out, nil
}

// Me returns the profile for the current token.
func (c *Client) Me(ctx context.Context) (models.MeResponse, error) {
	var out models.MeResponse
	err := c.doJSON(ctx, http.MethodGet, PathMe, nil, &out)
	return out, err
}
