// Package idclient talks to the upstream identity API over HTTP. The API
// schema is owned by the backend; this client only shuttles credentials
// and profiles, leaving error translation to the session controller.
package idclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/barkeep-app/barkeep/internal/session"
)

// Client wraps interactions with the identity API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a new client.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authPayload struct {
	Token string          `json:"token"`
	User  session.Profile `json:"user"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Ping checks if the identity API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/healthz", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("identity api returned status %d", resp.StatusCode)
	}
	return nil
}

// Login exchanges credentials for a bearer token and profile.
func (c *Client) Login(ctx context.Context, email, password string) (string, session.Profile, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", session.Profile{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/auth/login", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return "", session.Profile{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", session.Profile{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", session.Profile{}, upstreamError(resp)
	}

	var payload authPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", session.Profile{}, fmt.Errorf("decode login response: %w", err)
	}
	return payload.Token, payload.User, nil
}

// Logout invalidates the token upstream. Callers treat failures as
// best-effort.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/auth/logout", c.baseURL), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return upstreamError(resp)
	}
	return nil
}

// Profile fetches the authoritative profile for a token.
func (c *Client) Profile(ctx context.Context, token string) (session.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/auth/me", c.baseURL), nil)
	if err != nil {
		return session.Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session.Profile{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return session.Profile{}, upstreamError(resp)
	}

	var payload authPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return session.Profile{}, fmt.Errorf("decode profile response: %w", err)
	}
	return payload.User, nil
}

func upstreamError(resp *http.Response) error {
	var payload errorPayload
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		_ = json.Unmarshal(data, &payload)
	}
	return &session.UpstreamError{StatusCode: resp.StatusCode, Message: payload.Error}
}

var _ session.IdentityAPI = (*Client)(nil)
