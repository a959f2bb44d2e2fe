// Package client is a Go SDK for the editactf-engine HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/editactf/engine/internal/models"
)

// Client talks to one editactf-engine instance. Login stores the bearer
// token on the client; all later calls send it.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken sets an existing bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new editactf-engine client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Token returns the current bearer token, empty when signed out.
func (c *Client) Token() string {
	return c.token
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := c.doEnvelope(ctx, "POST", "/api/v1/auth/register", credentialsRequest{email, password}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login signs in and stores the bearer token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	var data struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	if err := c.doEnvelope(ctx, "POST", "/api/v1/auth/login", credentialsRequest{email, password}, &data); err != nil {
		return nil, err
	}
	c.token = data.Token
	return data.User, nil
}

// Logout drops the stored token.
func (c *Client) Logout() {
	c.token = ""
}

// Challenges lists all challenges in catalog order.
func (c *Client) Challenges(ctx context.Context) ([]models.ChallengeSummary, error) {
	var out []models.ChallengeSummary
	if err := c.doEnvelope(ctx, "GET", "/api/v1/challenges", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Challenge retrieves one challenge by id.
func (c *Client) Challenge(ctx context.Context, id string) (*models.Challenge, error) {
	body, err := c.doRequest(ctx, "GET", "/api/v1/challenges?id="+id, nil)
	if err != nil {
		return nil, err
	}
	var out models.Challenge
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	return &out, nil
}

// Rules retrieves the competition rules text.
func (c *Client) Rules(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, "GET", "/api/v1/rules", nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Leaderboard retrieves the ranked team standings.
func (c *Client) Leaderboard(ctx context.Context) ([]models.LeaderboardRow, error) {
	body, err := c.doRequest(ctx, "GET", "/api/v1/leaderboard", nil)
	if err != nil {
		return nil, err
	}
	var out []models.LeaderboardRow
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal leaderboard: %w", err)
	}
	return out, nil
}

// Teams retrieves the public team listing.
func (c *Client) Teams(ctx context.Context) ([]models.TeamsRow, error) {
	body, err := c.doRequest(ctx, "GET", "/api/v1/teams", nil)
	if err != nil {
		return nil, err
	}
	var out []models.TeamsRow
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal teams: %w", err)
	}
	return out, nil
}

// Summary retrieves the session summary for the stored token.
func (c *Client) Summary(ctx context.Context) (*models.Summary, error) {
	var out models.Summary
	if err := c.doEnvelope(ctx, "GET", "/api/v1/session/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type flagRequest struct {
	ChallengeID string `json:"challenge_id"`
	Flag        string `json:"flag"`
}

// SubmitFlag submits one flag against a challenge.
func (c *Client) SubmitFlag(ctx context.Context, challengeID, flag string) (*models.SubmissionResult, error) {
	var out models.SubmissionResult
	if err := c.doEnvelope(ctx, "POST", "/api/v1/flag", flagRequest{challengeID, flag}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetDisplayName sets the player's display name.
func (c *Client) SetDisplayName(ctx context.Context, name string) error {
	return c.doEnvelope(ctx, "PUT", "/api/v1/profile/name", map[string]string{"name": name}, nil)
}

type teamRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// CreateTeam creates a team and moves the player onto it.
func (c *Client) CreateTeam(ctx context.Context, name, password string) error {
	return c.doEnvelope(ctx, "POST", "/api/v1/team", teamRequest{name, password}, nil)
}

// JoinTeam joins an existing team.
func (c *Client) JoinTeam(ctx context.Context, name, password string) error {
	return c.doEnvelope(ctx, "POST", "/api/v1/team/join", teamRequest{name, password}, nil)
}

// LeaveTeam returns the player to individual play.
func (c *Client) LeaveTeam(ctx context.Context) error {
	return c.doEnvelope(ctx, "POST", "/api/v1/team/leave", nil, nil)
}

// Export downloads the player's data export as raw JSON.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	return c.doRequest(ctx, "GET", "/api/v1/export", nil)
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/health", nil)
	return err
}

// doEnvelope performs a request against a wrapped endpoint and decodes the
// data field into out (which may be nil).
func (c *Client) doEnvelope(ctx context.Context, method, path string, reqBody, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		if result.Error != nil {
			return fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
		}
		return fmt.Errorf("API error: request failed")
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
