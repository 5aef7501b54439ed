// Package client is a Go client for the taskboard HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"taskboard/internal/domain/models"

	"github.com/klauspost/compress/gzip"
)

const defaultTimeout = 15 * time.Second

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("taskboard: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("taskboard: %d %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return stderrors.As(err, &apiErr) && apiErr.StatusCode == status
}

type Client struct {
	baseURL *url.URL
	http    *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken starts the client with an existing bearer token, e.g. one
// restored from a saved session.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Signup(ctx context.Context, username, email, password string) error {
	req := models.SignupRequest{Username: username, Email: email, Password: password}
	return c.do(ctx, http.MethodPost, "/api/auth/signup", req, nil)
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.setToken(resp.Token)
	return &resp, nil
}

// Logout revokes the current token on the server and forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return err
	}
	c.setToken("")
	return nil
}

func (c *Client) Users(ctx context.Context) ([]models.UserSummary, error) {
	var users []models.UserSummary
	if err := c.do(ctx, http.MethodGet, "/api/auth/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) ListTodos(ctx context.Context) ([]models.TaskView, error) {
	var tasks []models.TaskView
	if err := c.do(ctx, http.MethodGet, "/api/todos", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) GetTodo(ctx context.Context, id string) (*models.TaskView, error) {
	var task models.TaskView
	if err := c.do(ctx, http.MethodGet, "/api/todos/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTodo creates a task. An empty assigneeID assigns it to the caller.
func (c *Client) CreateTodo(ctx context.Context, title, description, assigneeID string) (*models.TaskView, error) {
	req := models.CreateTaskRequest{Title: title, Description: description, AssignedTo: assigneeID}
	var task models.TaskView
	if err := c.do(ctx, http.MethodPost, "/api/todos", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) UpdateTodo(ctx context.Context, id string, req models.UpdateTaskRequest) (*models.TaskView, error) {
	var task models.TaskView
	if err := c.do(ctx, http.MethodPut, "/api/todos/"+url.PathEscape(id), req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/todos/"+url.PathEscape(id), nil, nil)
}

// ToggleStatus flips a task between pending and completed. The update is
// conditional on the version that was read, so a concurrent change makes it
// fail with 409 instead of silently overwriting.
func (c *Client) ToggleStatus(ctx context.Context, id string) (*models.TaskView, error) {
	task, err := c.GetTodo(ctx, id)
	if err != nil {
		return nil, err
	}
	next := models.StatusCompleted
	if task.Status == models.StatusCompleted {
		next = models.StatusPending
	}
	version := task.Version
	return c.UpdateTodo(ctx, id, models.UpdateTaskRequest{Status: &next, Version: &version})
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := readBody(resp)
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg models.MessageResponse
		if json.Unmarshal(respBody, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// readBody reads the response, inflating it when the server compressed it.
// Setting Accept-Encoding ourselves turns off net/http's transparent gzip.
func readBody(resp *http.Response) ([]byte, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return io.ReadAll(resp.Body)
	}
	gr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
