// Package remote is a client for a central catalog API. Catalog implements
// store.CatalogRepository so the CatalogService can be backed by it.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tablefront/pos/internal/store"
)

// ErrNotLoggedIn is returned for calls made before Login or after Logout.
var ErrNotLoggedIn = errors.New("remote session is not logged in")

// StatusError is a non-2xx response the client could not map to a store sentinel.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// Session holds the tokens of the logged-in API user. Tokens are read on
// every request, so a refresh is visible to in-flight callers immediately.
type Session struct {
	mu      sync.RWMutex
	userID  uuid.UUID
	role    string
	access  string
	refresh string
}

func (s *Session) Access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *Session) Refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// UserID returns the logged-in user, or uuid.Nil.
func (s *Session) UserID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Session) LoggedIn() bool {
	return s.Access() != ""
}

func (s *Session) set(resp tokenResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp.UserID != uuid.Nil {
		s.userID = resp.UserID
	}
	if resp.Role != "" {
		s.role = resp.Role
	}
	s.access = resp.Access
	if resp.Refresh != "" {
		s.refresh = resp.Refresh
	}
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = uuid.Nil
	s.role = ""
	s.access = ""
	s.refresh = ""
}

// Client talks to the catalog API at baseURL.
type Client struct {
	baseURL string
	http    *http.Client
	session *Session
}

// NewClient creates a logged-out client. timeout bounds each request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: &Session{},
	}
}

func (c *Client) Session() *Session { return c.session }

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
}

// Login authenticates and stores the returned tokens on the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp tokenResponse
	body := loginRequest{Username: username, Password: password}
	if err := c.send(ctx, http.MethodPost, "/api/auth/login/", jsonBody(body), &resp, false); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Access == "" {
		return fmt.Errorf("login: response carried no access token")
	}
	c.session.set(resp)
	return nil
}

// Logout drops the session tokens. Later calls fail with ErrNotLoggedIn.
func (c *Client) Logout() {
	c.session.clear()
}

func (c *Client) refreshAccess(ctx context.Context) error {
	refresh := c.session.Refresh()
	if refresh == "" {
		return ErrNotLoggedIn
	}
	var resp tokenResponse
	if err := c.send(ctx, http.MethodPost, "/api/auth/refresh/", jsonBody(refreshRequest{Refresh: refresh}), &resp, false); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	c.session.set(resp)
	return nil
}

// --- Transport ---

// body builds a fresh request body. It is called again when a request is
// retried after a token refresh.
type body func() (io.Reader, string, error)

func jsonBody(v any) body {
	return func() (io.Reader, string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

// do sends an authenticated request. A 401 triggers one refresh and retry.
func (c *Client) do(ctx context.Context, method, path string, b body, out any) error {
	if !c.session.LoggedIn() {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotLoggedIn)
	}
	err := c.send(ctx, method, path, b, out, true)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		if rerr := c.refreshAccess(ctx); rerr != nil {
			return fmt.Errorf("%w (%v)", err, rerr)
		}
		return c.send(ctx, method, path, b, out, true)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, b body, out any, authed bool) error {
	var (
		reader      io.Reader
		contentType string
	)
	if b != nil {
		var err error
		reader, contentType, err = b()
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.session.Access())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusErr(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// statusErr maps 404 and 409 onto the store sentinels so the catalog engine
// classifies them the same way as local backend failures.
func statusErr(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(raw))
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			msg = payload.Error
		} else if payload.Detail != "" {
			msg = payload.Detail
		}
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s %s: %w: %s", method, path, store.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%s %s: %w: %s", method, path, store.ErrConflict, msg)
	}
	return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: msg}
}
