// Package client is a Go client for the resolveit HTTP API. Public calls go
// through Client; calls that need an administrator go through a Session
// obtained from Login or resumed from a saved token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoToken is returned when a session is used without a token.
var ErrNoToken = errors.New("client: session has no token")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Problems   []Problem
}

// Problem is one failing field reported by a validation error.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %d %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client calls the public endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New returns a client for the server at baseURL, e.g. "http://localhost:5000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session carries an administrator token. It is safe for concurrent use.
type Session struct {
	client    *Client
	token     string
	ExpiresAt time.Time
}

// Token returns the bearer token so callers can persist it.
func (s *Session) Token() string {
	return s.token
}

// Resume wraps a previously issued token in a session.
func (c *Client) Resume(token string) *Session {
	return &Session{client: c, token: strings.TrimSpace(token)}
}

// Login exchanges administrator credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var resp struct {
		Success   bool   `json:"success"`
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
		Message   string `json:"message"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/admin-login", "", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Token == "" {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Message: resp.Message}
	}

	s := &Session{client: c, token: resp.Token}
	if t, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
		s.ExpiresAt = t
	}
	return s, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, token, out)
}

func (c *Client) send(req *http.Request, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var payload struct {
		Error    string    `json:"error"`
		Message  string    `json:"message"`
		Problems []Problem `json:"problems"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &payload) == nil {
		switch {
		case payload.Error != "":
			apiErr.Message = payload.Error
		case payload.Message != "":
			apiErr.Message = payload.Message
		}
		apiErr.Problems = payload.Problems
	}
	return apiErr
}

func casePath(id string, suffix string) string {
	return "/api/case/" + url.PathEscape(id) + suffix
}
